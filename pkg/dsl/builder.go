package dsl

import (
	"fmt"
	"slices"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Builder manages the module graph construction.
type Builder struct {
	order   []string
	modules map[string]*ModuleBuilder
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		modules: make(map[string]*ModuleBuilder),
	}
}

// Add creates a new module in the graph at version 1.
// If the module already exists, it returns the existing builder.
func (b *Builder) Add(id string) *ModuleBuilder {
	if mb, ok := b.modules[id]; ok {
		return mb
	}
	mb := &ModuleBuilder{
		rec:     domain.ModuleRecord{ID: id, Version: 1},
		builder: b,
	}
	b.modules[id] = mb
	b.order = append(b.order, id)
	return mb
}

// Build compiles the graph into module records in insertion order. Dependents
// are derived from the declared imports, so both directions always agree.
func (b *Builder) Build() ([]domain.ModuleRecord, error) {
	dependents := make(map[string][]string, len(b.modules))
	for _, id := range b.order {
		for _, dep := range b.modules[id].rec.Dependencies {
			if _, ok := b.modules[dep]; !ok {
				return nil, fmt.Errorf("module %q imports unknown module %q", id, dep)
			}
			if dep == id {
				return nil, fmt.Errorf("module %q imports itself", id)
			}
			if !slices.Contains(dependents[dep], id) {
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	records := make([]domain.ModuleRecord, 0, len(b.order))
	for _, id := range b.order {
		rec := b.modules[id].rec.Clone()
		rec.Dependents = dependents[id]
		records = append(records, rec)
	}
	return records, nil
}

// Bump returns the packet entry a bundler would emit after recompiling id:
// the next version with the current edges. The builder's own version of id is
// advanced so successive bumps keep increasing.
func (b *Builder) Bump(id string) (domain.PacketEntry, error) {
	mb, ok := b.modules[id]
	if !ok {
		return domain.PacketEntry{}, fmt.Errorf("module %q is not defined", id)
	}
	records, err := b.Build()
	if err != nil {
		return domain.PacketEntry{}, err
	}
	mb.rec.Version++
	for _, rec := range records {
		if rec.ID == id {
			return domain.PacketEntry{
				ModuleID:     id,
				Version:      mb.rec.Version,
				AcceptsSelf:  rec.AcceptsSelf,
				Dependents:   rec.Dependents,
				Dependencies: rec.Dependencies,
			}, nil
		}
	}
	return domain.PacketEntry{}, fmt.Errorf("module %q is not defined", id)
}

// ModuleBuilder provides a fluent API for configuring a module.
type ModuleBuilder struct {
	rec     domain.ModuleRecord
	builder *Builder
}

// AcceptsSelf marks the module as a hot-update boundary.
func (m *ModuleBuilder) AcceptsSelf() *ModuleBuilder {
	m.rec.AcceptsSelf = true
	return m
}

// Version sets the compiled version of the module.
func (m *ModuleBuilder) Version(v uint64) *ModuleBuilder {
	m.rec.Version = v
	return m
}

// Imports declares the modules this module depends on.
func (m *ModuleBuilder) Imports(ids ...string) *ModuleBuilder {
	for _, id := range ids {
		if !slices.Contains(m.rec.Dependencies, id) {
			m.rec.Dependencies = append(m.rec.Dependencies, id)
		}
	}
	return m
}

// Add switches to another module of the same builder.
func (m *ModuleBuilder) Add(id string) *ModuleBuilder {
	return m.builder.Add(id)
}
