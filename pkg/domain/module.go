package domain

import "slices"

// ModuleRecord is the coordinator's view of one compiled module.
// Records are replaced wholesale on every accepted update, never mutated in place.
type ModuleRecord struct {
	// ID is the stable module identifier assigned by the bundler (e.g. "src/App.svelte").
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Version is a monotonic counter bumped by the bundler on each recompilation.
	Version uint64 `json:"version" yaml:"version" mapstructure:"version"`

	// AcceptsSelf reports whether the module opted into hot acceptance (boundary-capable).
	AcceptsSelf bool `json:"accepts_self" yaml:"acceptsSelf" mapstructure:"acceptsSelf"`

	// Dependencies are the modules this module imports.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`

	// Dependents are the modules importing this module.
	Dependents []string `json:"dependents,omitempty" yaml:"dependents,omitempty" mapstructure:"dependents"`
}

// Clone returns a deep copy of the record.
func (m ModuleRecord) Clone() ModuleRecord {
	m.Dependencies = slices.Clone(m.Dependencies)
	m.Dependents = slices.Clone(m.Dependents)
	return m
}

// IsRoot reports whether nothing imports the module (the application entry).
func (m ModuleRecord) IsRoot() bool {
	return len(m.Dependents) == 0
}

// PacketEntry is one changed module inside an UpdatePacket, as produced by the bundler.
type PacketEntry struct {
	ModuleID    string   `json:"moduleId" yaml:"moduleId" mapstructure:"moduleId"`
	Version     uint64   `json:"version" yaml:"version" mapstructure:"version"`
	AcceptsSelf bool     `json:"acceptsSelf" yaml:"acceptsSelf" mapstructure:"acceptsSelf"`
	Dependents  []string `json:"dependents,omitempty" yaml:"dependents,omitempty" mapstructure:"dependents"`

	// Dependencies is optional; when omitted the previously tracked set is kept.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`

	// CompileError is set when the bundler failed to compile this module.
	// Such an entry never applies; it is routed to failure containment.
	CompileError string `json:"compileError,omitempty" yaml:"compileError,omitempty" mapstructure:"compileError"`
}

// Record converts the entry into a ModuleRecord.
func (e PacketEntry) Record() ModuleRecord {
	return ModuleRecord{
		ID:           e.ModuleID,
		Version:      e.Version,
		AcceptsSelf:  e.AcceptsSelf,
		Dependencies: slices.Clone(e.Dependencies),
		Dependents:   slices.Clone(e.Dependents),
	}
}

// UpdatePacket is the unit handed to the coordinator per change cycle.
// It is created fresh per cycle and discarded after resolution.
type UpdatePacket struct {
	Modules []PacketEntry `json:"modules" yaml:"modules" mapstructure:"modules"`
}

// ModuleIDs returns the module ids of the packet in order.
func (p UpdatePacket) ModuleIDs() []string {
	ids := make([]string, 0, len(p.Modules))
	for _, m := range p.Modules {
		ids = append(ids, m.ModuleID)
	}
	return ids
}

// Merge folds next into p by module id. The higher version wins per module; on equal
// versions the entry from next wins. First-seen order is kept.
func (p UpdatePacket) Merge(next UpdatePacket) UpdatePacket {
	out := UpdatePacket{Modules: make([]PacketEntry, 0, len(p.Modules)+len(next.Modules))}
	index := make(map[string]int, len(p.Modules)+len(next.Modules))

	add := func(e PacketEntry) {
		if i, ok := index[e.ModuleID]; ok {
			if e.Version >= out.Modules[i].Version {
				out.Modules[i] = e
			}
			return
		}
		index[e.ModuleID] = len(out.Modules)
		out.Modules = append(out.Modules, e)
	}
	for _, e := range p.Modules {
		add(e)
	}
	for _, e := range next.Modules {
		add(e)
	}
	return out
}

// ImplRef names one compiled implementation of a component module.
type ImplRef struct {
	ModuleID string `json:"module_id"`
	Version  uint64 `json:"version"`
}
