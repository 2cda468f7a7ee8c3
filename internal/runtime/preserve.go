package runtime

import (
	"errors"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Capture takes a snapshot of the preservable slots of h under policy.
// Under public-only, private slots never enter the snapshot.
func Capture(instanceID string, h domain.Handle, policy domain.PreservePolicy, at time.Time) *domain.StateSnapshot {
	snap := &domain.StateSnapshot{
		InstanceID: instanceID,
		Policy:     policy,
		Slots:      make(map[string]any),
		TakenAt:    at,
	}
	if h == nil {
		return snap
	}
	for _, s := range h.Slots() {
		if policy == domain.PreservePublicOnly && !s.Public {
			continue
		}
		snap.Slots[s.Key] = s.Value
	}
	return snap
}

// slotError records a slot that was rejected during reinjection.
type slotError struct {
	Key string
	Err error
}

// Reinject transplants snapshot values into the matching slots of a freshly
// constructed instance. Keys only present in the snapshot are dropped, keys only
// present in the new instance keep their initial value, and values the new
// instance rejects are reported as misses. No coercion is attempted.
func Reinject(h domain.Handle, snap *domain.StateSnapshot) (domain.PreservationReport, []slotError) {
	report := domain.PreservationReport{}
	if snap != nil {
		report.InstanceID = snap.InstanceID
	}

	next := h.Slots()
	var values map[string]any
	if snap != nil {
		values = snap.Slots
		if snap.Policy == domain.PreservePublicOnly {
			next = publicSlots(next)
		}
	}

	diff := domain.DiffSlots(values, next)
	report.Dropped = diff.OnlyOld
	report.Fresh = diff.OnlyNew

	unchanged := make(map[string]bool, len(diff.Unchanged))
	for _, k := range diff.Unchanged {
		unchanged[k] = true
	}

	var misses []slotError
	for _, key := range diff.Common {
		if unchanged[key] {
			report.Restored = append(report.Restored, key)
			continue
		}
		if err := h.Set(key, values[key]); err != nil {
			if errors.Is(err, domain.ErrUnknownSlot) {
				report.Dropped = append(report.Dropped, key)
				continue
			}
			report.Missed = append(report.Missed, key)
			misses = append(misses, slotError{Key: key, Err: err})
			continue
		}
		report.Restored = append(report.Restored, key)
	}

	return report, misses
}

func publicSlots(slots []domain.Slot) []domain.Slot {
	out := make([]domain.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Public {
			out = append(out, s)
		}
	}
	return out
}
