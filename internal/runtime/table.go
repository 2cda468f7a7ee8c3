package runtime

import (
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Table stores the InstanceState of every tracked instance id.
// The lock only guards map access; it is never held across a runtime call.
type Table struct {
	mu      sync.RWMutex
	entries map[string]domain.InstanceState
}

// NewTable creates an empty instance table.
func NewTable() *Table {
	return &Table{entries: make(map[string]domain.InstanceState)}
}

// Get returns the state stored for id.
func (t *Table) Get(id string) (domain.InstanceState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.entries[id]
	return s, ok
}

// Put stores s under its instance id, replacing any previous variant.
func (t *Table) Put(s domain.InstanceState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s.InstanceID()] = s
}

// Insert stores s only if its id is not tracked yet.
func (t *Table) Insert(s domain.InstanceState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[s.InstanceID()]; exists {
		return false
	}
	t.entries[s.InstanceID()] = s
	return true
}

// Delete forgets id.
func (t *Table) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// ByModule returns the sorted ids of instances backed by moduleID.
func (t *Table) ByModule(moduleID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for id, s := range t.entries {
		if s.ModuleID() == moduleID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Views projects every entry, sorted by id.
func (t *Table) Views() []domain.InstanceView {
	t.mu.RLock()
	states := make([]domain.InstanceState, 0, len(t.entries))
	for _, s := range t.entries {
		states = append(states, s)
	}
	t.mu.RUnlock()

	views := make([]domain.InstanceView, 0, len(states))
	for _, s := range states {
		views = append(views, domain.View(s))
	}
	slices.SortFunc(views, func(a, b domain.InstanceView) int {
		return strings.Compare(a.ID, b.ID)
	})
	return views
}

// Len returns the number of tracked instances.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reset drops every entry and returns how many were discarded.
func (t *Table) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	t.entries = make(map[string]domain.InstanceState)
	return n
}
