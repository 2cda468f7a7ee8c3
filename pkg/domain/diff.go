package domain

import (
	"reflect"
	"slices"
)

// Outcome is what an applied subtree did with one of its instances.
type Outcome string

const (
	// OutcomeReplaced: the instance runs the new implementation.
	OutcomeReplaced Outcome = "replaced"
	// OutcomeReverted: construction failed and the last-known-good code was remounted.
	OutcomeReverted Outcome = "reverted"
	// OutcomePlaceholder: construction failed and a placeholder stands in (optimistic).
	OutcomePlaceholder Outcome = "placeholder"
)

// PreservationReport describes what happened to one instance of an applied subtree
// and to each slot of its snapshot during reinjection. It is serialized into
// applied events for tooling.
type PreservationReport struct {
	InstanceID string `json:"instance_id"`

	// Outcome tells whether the instance runs the new code.
	Outcome Outcome `json:"outcome,omitempty"`

	// Restored keys were written into the new instance.
	Restored []string `json:"restored,omitempty"`

	// Dropped keys exist only in the old version.
	Dropped []string `json:"dropped,omitempty"`

	// Missed keys exist in both versions but the value was rejected by the new one.
	Missed []string `json:"missed,omitempty"`

	// Fresh keys exist only in the new version and keep their initial value.
	Fresh []string `json:"fresh,omitempty"`
}

// IsEmpty reports whether the report carries no slot at all.
func (r *PreservationReport) IsEmpty() bool {
	return r == nil || (len(r.Restored) == 0 &&
		len(r.Dropped) == 0 &&
		len(r.Missed) == 0 &&
		len(r.Fresh) == 0)
}

// SlotDiff splits the keys of a snapshot and of a freshly mounted instance.
type SlotDiff struct {
	// Common keys exist in both; reinjection candidates.
	Common []string
	// OnlyOld keys exist only in the snapshot.
	OnlyOld []string
	// OnlyNew keys exist only in the new instance.
	OnlyNew []string
	// Unchanged are common keys whose fresh value already equals the snapshot value.
	Unchanged []string
}

// DiffSlots compares snapshot values against the slots of a new instance.
// All key lists are sorted so reports are deterministic.
func DiffSlots(snapshot map[string]any, next []Slot) SlotDiff {
	var d SlotDiff
	seen := make(map[string]bool, len(next))

	for _, s := range next {
		seen[s.Key] = true
		oldVal, exists := snapshot[s.Key]
		if !exists {
			d.OnlyNew = append(d.OnlyNew, s.Key)
			continue
		}
		d.Common = append(d.Common, s.Key)
		if reflect.DeepEqual(oldVal, s.Value) {
			d.Unchanged = append(d.Unchanged, s.Key)
		}
	}

	for k := range snapshot {
		if !seen[k] {
			d.OnlyOld = append(d.OnlyOld, k)
		}
	}

	slices.Sort(d.Common)
	slices.Sort(d.OnlyOld)
	slices.Sort(d.OnlyNew)
	slices.Sort(d.Unchanged)
	return d
}
