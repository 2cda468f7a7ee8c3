package runtime

import (
	"fmt"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Decide runs the acceptance decision for the changed entries of one cycle.
//
// Every changed module must resolve, along every dependent path, to a
// self-accepting module (a boundary). Reaching the application root, an unknown
// module or a module with no tracked owner forces a full reload, and a reload
// wins over every apply of the cycle.
func Decide(g *Graph, changed []domain.PacketEntry) domain.Decision {
	// Changed entries carry the freshest view of their own module.
	overrides := make(map[string]domain.ModuleRecord, len(changed))
	for _, e := range changed {
		if e.CompileError != "" {
			continue
		}
		rec := e.Record()
		if prev, ok := g.Get(e.ModuleID); ok && e.Dependencies == nil {
			rec.Dependencies = prev.Dependencies
		}
		overrides[e.ModuleID] = rec
	}
	lookup := func(id string) (domain.ModuleRecord, bool) {
		if rec, ok := overrides[id]; ok {
			return rec, true
		}
		return g.Get(id)
	}

	decision := domain.Decision{}
	index := make(map[string]int) // boundary -> position in Applies

	for _, e := range changed {
		if e.CompileError != "" {
			if decision.Failed == nil {
				decision.Failed = make(map[string]string)
			}
			decision.Failed[e.ModuleID] = e.CompileError
			continue
		}

		boundaries, err := findBoundaries(e.ModuleID, lookup, g)
		if err != nil {
			return domain.Decision{
				Reload: true,
				Reason: err.Error(),
				Err:    err,
				Failed: decision.Failed,
			}
		}

		rec := overrides[e.ModuleID]
		for _, b := range boundaries {
			i, ok := index[b]
			if !ok {
				i = len(decision.Applies)
				index[b] = i
				decision.Applies = append(decision.Applies, domain.Apply{Boundary: b})
			}
			decision.Applies[i].Modules = append(decision.Applies[i].Modules, rec.Clone())
		}
	}

	return decision
}

// findBoundaries walks dependents breadth-first from id and returns the
// self-accepting modules closing every path, in discovery order.
func findBoundaries(id string, lookup func(string) (domain.ModuleRecord, bool), g *Graph) ([]string, error) {
	start, ok := lookup(id)
	if !ok {
		return nil, domain.NewError(domain.KindAmbiguousBoundary, id, fmt.Errorf("module is not tracked"))
	}
	if start.AcceptsSelf {
		return []string{id}, nil
	}
	if start.IsRoot() {
		if _, known := g.Get(id); !known {
			return nil, domain.NewError(domain.KindAmbiguousBoundary, id, fmt.Errorf("changed module has no tracked owner"))
		}
		return nil, fmt.Errorf("update to %s reached the application root without a boundary", id)
	}

	var boundaries []string
	visited := map[string]bool{id: true}
	found := map[string]bool{}
	queue := append([]string(nil), start.Dependents...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true

		rec, ok := lookup(current)
		if !ok {
			return nil, domain.NewError(domain.KindAmbiguousBoundary, id,
				fmt.Errorf("dependent %s is not tracked", current))
		}
		if rec.AcceptsSelf {
			if !found[current] {
				found[current] = true
				boundaries = append(boundaries, current)
			}
			continue
		}
		if rec.IsRoot() {
			return nil, fmt.Errorf("update to %s propagated to application root %s without a boundary", id, current)
		}
		for _, d := range rec.Dependents {
			if !visited[d] {
				queue = append(queue, d)
			}
		}
	}

	if len(boundaries) == 0 {
		// Every path looped back onto visited modules.
		return nil, domain.NewError(domain.KindAmbiguousBoundary, id, fmt.Errorf("dependency cycle without a boundary"))
	}
	return boundaries, nil
}
