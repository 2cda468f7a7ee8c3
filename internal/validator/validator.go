package validator

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/hotswap/internal/runtime"
	"github.com/aretw0/hotswap/pkg/domain"
)

// Report collects the findings of ValidateGraph.
type Report struct {
	// Errors make the graph unusable for hot updates.
	Errors []string
	// Warnings flag modules whose edits will always force a full reload.
	Warnings []string
}

// Err folds the errors of the report into one error, or nil.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(r.Errors), strings.Join(r.Errors, "\n- "))
}

// ValidateGraph checks module records for broken edges and for modules that
// cannot reach a self-accepting boundary.
func ValidateGraph(records []domain.ModuleRecord) Report {
	var r Report

	byID := make(map[string]domain.ModuleRecord, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			r.Errors = append(r.Errors, "Module without id")
			continue
		}
		if _, dup := byID[rec.ID]; dup {
			r.Errors = append(r.Errors, fmt.Sprintf("Duplicate module: '%s'", rec.ID))
			continue
		}
		byID[rec.ID] = rec
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	roots := 0
	for _, id := range ids {
		rec := byID[id]
		if rec.IsRoot() {
			roots++
		}
		for _, dep := range rec.Dependents {
			switch other, ok := byID[dep]; {
			case dep == id:
				r.Errors = append(r.Errors, fmt.Sprintf("Module '%s' lists itself as a dependent", id))
			case !ok:
				r.Errors = append(r.Errors, fmt.Sprintf("Module '%s' has unknown dependent '%s'", id, dep))
			case len(other.Dependencies) > 0 && !slices.Contains(other.Dependencies, id):
				r.Warnings = append(r.Warnings, fmt.Sprintf("Module '%s' is imported by '%s' but not listed in its dependencies", id, dep))
			}
		}
		for _, dep := range rec.Dependencies {
			switch other, ok := byID[dep]; {
			case dep == id:
				r.Errors = append(r.Errors, fmt.Sprintf("Module '%s' imports itself", id))
			case !ok:
				r.Errors = append(r.Errors, fmt.Sprintf("Module '%s' imports unknown module '%s'", id, dep))
			case !slices.Contains(other.Dependents, id):
				r.Warnings = append(r.Warnings, fmt.Sprintf("Module '%s' imports '%s' but is not listed in its dependents", id, dep))
			}
		}
	}
	if len(byID) > 0 && roots == 0 {
		r.Errors = append(r.Errors, "No application root: every module has dependents")
	}
	if len(r.Errors) > 0 {
		return r
	}

	// Simulate an edit of every module through the acceptance decision.
	g := runtime.NewGraph()
	for _, rec := range byID {
		g.Register(rec)
	}
	for _, id := range ids {
		rec := byID[id]
		if rec.IsRoot() {
			continue
		}
		d := runtime.Decide(g, []domain.PacketEntry{{
			ModuleID:    rec.ID,
			Version:     rec.Version + 1,
			AcceptsSelf: rec.AcceptsSelf,
			Dependents:  rec.Dependents,
		}})
		if !d.Reload {
			continue
		}
		msg := fmt.Sprintf("Edits to '%s' force a full reload: %s", id, d.Reason)
		if errors.Is(d.Err, domain.ErrAmbiguousBoundary) {
			r.Errors = append(r.Errors, msg)
			continue
		}
		r.Warnings = append(r.Warnings, msg)
	}
	return r
}
