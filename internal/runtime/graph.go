package runtime

import (
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Graph is the explicit adjacency structure of tracked modules.
// Records are replaced wholesale; callers always receive clones.
type Graph struct {
	mu      sync.RWMutex
	modules map[string]domain.ModuleRecord
}

// NewGraph creates an empty module graph.
func NewGraph() *Graph {
	return &Graph{modules: make(map[string]domain.ModuleRecord)}
}

// Register adds or replaces a module record.
func (g *Graph) Register(rec domain.ModuleRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modules[rec.ID] = rec.Clone()
}

// Get returns a copy of the record for id.
func (g *Graph) Get(id string) (domain.ModuleRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.modules[id]
	if !ok {
		return domain.ModuleRecord{}, false
	}
	return rec.Clone(), true
}

// Version returns the tracked version of id, or 0 when unknown.
func (g *Graph) Version(id string) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.modules[id].Version
}

// Accept replaces the records of the given packet entries.
// Dependencies omitted by the bundler keep their previously tracked value.
func (g *Graph) Accept(entries []domain.PacketEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range entries {
		rec := e.Record()
		if e.Dependencies == nil {
			if prev, ok := g.modules[e.ModuleID]; ok {
				rec.Dependencies = slices.Clone(prev.Dependencies)
			}
		}
		g.modules[rec.ID] = rec
	}
}

// Records lists all tracked modules sorted by id.
func (g *Graph) Records() []domain.ModuleRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ModuleRecord, 0, len(g.modules))
	for _, rec := range g.modules {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b domain.ModuleRecord) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
