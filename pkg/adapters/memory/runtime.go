package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/aretw0/hotswap/pkg/domain"
)

// SlotSpec declares one state slot of a component implementation.
type SlotSpec struct {
	Key     string
	Public  bool
	Initial any
}

// Component is an in-memory component implementation.
type Component struct {
	Slots []SlotSpec

	// FailMount makes Mount return an error with this message.
	FailMount string
	// PanicMount makes Mount panic.
	PanicMount bool
	// FailTeardown makes Teardown of its instances return an error.
	FailTeardown bool
}

// Runtime implements ports.Runtime and ports.PlaceholderRenderer in memory.
// Safe for concurrent use.
type Runtime struct {
	mu           sync.Mutex
	components   map[domain.ImplRef]Component
	mounts       map[string]int
	teardowns    int
	placeholders []*domain.PlaceholderRecord
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		components: make(map[domain.ImplRef]Component),
		mounts:     make(map[string]int),
	}
}

// Define registers the implementation of moduleID at version.
func (r *Runtime) Define(moduleID string, version uint64, c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[domain.ImplRef{ModuleID: moduleID, Version: version}] = c
}

// Mount builds an instance of impl. Props matching a slot key override its
// initial value.
func (r *Runtime) Mount(ctx context.Context, impl domain.ImplRef, initial map[string]any) (domain.Handle, error) {
	r.mu.Lock()
	c, ok := r.components[impl]
	if ok {
		r.mounts[impl.ModuleID]++
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no implementation for %s@%d", impl.ModuleID, impl.Version)
	}
	if c.PanicMount {
		panic(fmt.Sprintf("%s@%d exploded during mount", impl.ModuleID, impl.Version))
	}
	if c.FailMount != "" {
		return nil, fmt.Errorf("%s", c.FailMount)
	}

	inst := &Instance{
		impl:         impl,
		failTeardown: c.FailTeardown,
		values:       make(map[string]any, len(c.Slots)),
	}
	for _, s := range c.Slots {
		inst.specs = append(inst.specs, s)
		inst.values[s.Key] = s.Initial
		if v, ok := initial[s.Key]; ok {
			inst.values[s.Key] = v
		}
	}
	return inst, nil
}

// Teardown marks the instance as released.
func (r *Runtime) Teardown(ctx context.Context, h domain.Handle) error {
	inst, ok := h.(*Instance)
	if !ok {
		return fmt.Errorf("unexpected handle type %T", h)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.released {
		return fmt.Errorf("instance of %s@%d torn down twice", inst.impl.ModuleID, inst.impl.Version)
	}
	inst.released = true

	r.mu.Lock()
	r.teardowns++
	r.mu.Unlock()

	if inst.failTeardown {
		return fmt.Errorf("teardown hook of %s failed", inst.impl.ModuleID)
	}
	return nil
}

// RenderPlaceholder records the placeholder.
func (r *Runtime) RenderPlaceholder(ctx context.Context, p *domain.PlaceholderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placeholders = append(r.placeholders, p)
	return nil
}

// Mounts returns how many times moduleID was mounted.
func (r *Runtime) Mounts(moduleID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mounts[moduleID]
}

// Teardowns returns the number of teardown calls that reached a live instance.
func (r *Runtime) Teardowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardowns
}

// Placeholders returns the rendered placeholders in order.
func (r *Runtime) Placeholders() []*domain.PlaceholderRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.PlaceholderRecord(nil), r.placeholders...)
}

// Instance is the Handle of a mounted in-memory component.
type Instance struct {
	impl         domain.ImplRef
	failTeardown bool

	mu       sync.Mutex
	specs    []SlotSpec
	values   map[string]any
	released bool
}

// Slots lists the slots in declaration order.
func (i *Instance) Slots() []domain.Slot {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]domain.Slot, 0, len(i.specs))
	for _, s := range i.specs {
		out = append(out, domain.Slot{Key: s.Key, Public: s.Public, Value: i.values[s.Key]})
	}
	return out
}

// Set writes a slot. A value whose dynamic type differs from the slot's initial
// value is rejected; nil initial values accept anything.
func (i *Instance) Set(key string, value any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range i.specs {
		if s.Key != key {
			continue
		}
		if s.Initial != nil && reflect.TypeOf(s.Initial) != reflect.TypeOf(value) {
			return fmt.Errorf("%w: slot %q wants %T, got %T", domain.ErrIncompatibleSlot, key, s.Initial, value)
		}
		i.values[key] = value
		return nil
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownSlot, key)
}

// Get reads a slot value.
func (i *Instance) Get(key string) (any, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.values[key]
	return v, ok
}

// Impl returns the implementation backing the instance.
func (i *Instance) Impl() domain.ImplRef {
	return i.impl
}

// Released reports whether Teardown ran.
func (i *Instance) Released() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.released
}
