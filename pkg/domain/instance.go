package domain

import (
	"maps"
	"time"
)

// Slot is one entry of a component instance's state container.
type Slot struct {
	Key string `json:"key"`
	// Public marks externally-exposed slots (component props).
	Public bool `json:"public"`
	Value  any  `json:"value"`
}

// Handle is the key-based state accessor the UI framework exposes for every mounted
// instance. Implementations must be safe to call from the coordinator goroutine.
type Handle interface {
	// Slots lists the current state slots of the instance.
	Slots() []Slot
	// Set writes a slot. It returns ErrIncompatibleSlot when the value does not fit
	// the slot's declared type and ErrUnknownSlot when the key does not exist.
	Set(key string, value any) error
}

// ComponentInstance is a live node of the running UI tree.
type ComponentInstance struct {
	// ID is stable across accepted updates.
	ID string `json:"id"`

	// Impl is the implementation currently backing the instance.
	Impl ImplRef `json:"impl"`

	// ParentID is a lookup-only back reference. Empty for the root.
	ParentID string `json:"parent_id,omitempty"`

	// Props are the initial props the tree mounted the instance with.
	Props map[string]any `json:"props,omitempty"`

	Handle Handle `json:"-"`

	MountedAt time.Time `json:"mounted_at"`
}

// State returns a copy of the instance's slots as a map.
func (c *ComponentInstance) State() map[string]any {
	out := make(map[string]any)
	if c.Handle == nil {
		return out
	}
	for _, s := range c.Handle.Slots() {
		out[s.Key] = s.Value
	}
	return out
}

// PreservePolicy selects which slots survive a hot-swap.
type PreservePolicy string

const (
	PreserveFull       PreservePolicy = "full"
	PreservePublicOnly PreservePolicy = "public-only"
)

// Valid reports whether p is a known policy.
func (p PreservePolicy) Valid() bool {
	return p == PreserveFull || p == PreservePublicOnly
}

// StateSnapshot is a point-in-time copy of an instance's preservable state.
// It lives for one replacement, unless retained by a PlaceholderRecord.
type StateSnapshot struct {
	InstanceID string         `json:"instance_id"`
	Policy     PreservePolicy `json:"policy"`
	Slots      map[string]any `json:"slots"`
	TakenAt    time.Time      `json:"taken_at"`
}

// Clone returns a shallow copy with its own slot map.
func (s *StateSnapshot) Clone() *StateSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Slots = maps.Clone(s.Slots)
	return &cp
}

// FailureDetail describes why an instance could not be (re)constructed.
type FailureDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Impl is the implementation that failed.
	Impl ImplRef   `json:"impl"`
	At   time.Time `json:"at"`
}

// PlaceholderRecord stands in for an instance that failed to construct.
type PlaceholderRecord struct {
	InstanceID string         `json:"instance_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Props      map[string]any `json:"props,omitempty"`
	Failure    FailureDetail  `json:"failure"`

	// Snapshot is retained so the next successful update can restore prior state.
	Snapshot *StateSnapshot `json:"snapshot,omitempty"`

	// LastGood is the last implementation that mounted successfully, if any.
	LastGood *ImplRef `json:"last_good,omitempty"`
}

// InstanceStatus names the variant of an InstanceState.
type InstanceStatus string

const (
	StatusLive        InstanceStatus = "live"
	StatusPlaceholder InstanceStatus = "placeholder"
)

// InstanceState is the tagged variant stored per instance id:
// either *Live or *Placeholder.
type InstanceState interface {
	Status() InstanceStatus
	InstanceID() string
	ModuleID() string
}

// Live wraps a constructed instance.
type Live struct {
	Instance *ComponentInstance
}

func (l *Live) Status() InstanceStatus { return StatusLive }
func (l *Live) InstanceID() string     { return l.Instance.ID }
func (l *Live) ModuleID() string       { return l.Instance.Impl.ModuleID }

// Placeholder wraps a failed construction.
type Placeholder struct {
	Record *PlaceholderRecord
}

func (p *Placeholder) Status() InstanceStatus { return StatusPlaceholder }
func (p *Placeholder) InstanceID() string     { return p.Record.InstanceID }
func (p *Placeholder) ModuleID() string       { return p.Record.Failure.Impl.ModuleID }

// InstanceView is a serializable projection of an InstanceState for tooling.
type InstanceView struct {
	ID       string         `json:"id"`
	Status   InstanceStatus `json:"status"`
	ModuleID string         `json:"module_id"`
	Version  uint64         `json:"version"`
	ParentID string         `json:"parent_id,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	Failure  *FailureDetail `json:"failure,omitempty"`
}

// View projects an InstanceState.
func View(s InstanceState) InstanceView {
	switch v := s.(type) {
	case *Live:
		return InstanceView{
			ID:       v.Instance.ID,
			Status:   StatusLive,
			ModuleID: v.Instance.Impl.ModuleID,
			Version:  v.Instance.Impl.Version,
			ParentID: v.Instance.ParentID,
			State:    v.Instance.State(),
		}
	case *Placeholder:
		f := v.Record.Failure
		return InstanceView{
			ID:       v.Record.InstanceID,
			Status:   StatusPlaceholder,
			ModuleID: f.Impl.ModuleID,
			Version:  f.Impl.Version,
			ParentID: v.Record.ParentID,
			Failure:  &f,
		}
	}
	return InstanceView{}
}
