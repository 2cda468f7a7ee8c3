package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
)

// guard runs fn and converts a panic into an error.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", stage, r)
		}
	}()
	return fn()
}

// construction is the outcome of steps 3-4 of a replacement.
type construction struct {
	handle domain.Handle
	report domain.PreservationReport
	misses []slotError
}

// construct mounts impl and reinjects snap inside a failure boundary.
// It is all-or-nothing: when reinjection blows up, the new handle is torn down
// again so no half-built instance is observable.
func (e *Engine) construct(ctx context.Context, instanceID string, impl domain.ImplRef, props map[string]any, snap *domain.StateSnapshot) (*construction, error) {
	var h domain.Handle
	err := guard("mount", func() error {
		var mountErr error
		h, mountErr = e.runtime.Mount(ctx, impl, props)
		return mountErr
	})
	if err == nil && h == nil {
		err = fmt.Errorf("mount returned no handle")
	}
	if err != nil {
		return nil, domain.NewError(domain.KindConstructionFailure, instanceID,
			fmt.Errorf("mount %s@%d: %w", impl.ModuleID, impl.Version, err))
	}

	c := &construction{handle: h}
	err = guard("reinject", func() error {
		c.report, c.misses = Reinject(h, snap)
		return nil
	})
	if err != nil {
		if tdErr := e.teardown(ctx, h); tdErr != nil {
			e.logger.WarnContext(ctx, "discarding half-built instance failed", "instance", instanceID, "err", tdErr)
		}
		return nil, domain.NewError(domain.KindConstructionFailure, instanceID, err)
	}
	c.report.InstanceID = instanceID
	return c, nil
}

// teardown calls the runtime teardown hook inside a failure boundary.
func (e *Engine) teardown(ctx context.Context, h domain.Handle) error {
	return guard("teardown", func() error {
		return e.runtime.Teardown(ctx, h)
	})
}

// contained is what failure containment decided for one instance.
type contained int

const (
	// containedPlaceholder: a placeholder replaced the instance (optimistic).
	containedPlaceholder contained = iota
	// containedReverted: the last-known-good implementation was remounted.
	containedReverted
	// containedReload: nothing could keep the instance alive.
	containedReload
	// containedSkipped: the instance vanished before it could be replaced.
	containedSkipped
)

// containFailure handles a construction failure for instanceID.
// In optimistic mode the failure becomes a placeholder retaining snap. Otherwise
// the last-known-good implementation is remounted with snap, and when there is
// none the failure escalates to a full reload.
func (e *Engine) containFailure(ctx context.Context, cycle string, prior priorState, failed domain.ImplRef, snap *domain.StateSnapshot, cause error) contained {
	e.reporter.Failure(ctx, cycle, prior.id, e.cfg.FailureChannel(domain.KindOf(cause)), cause)

	if e.cfg.Optimistic {
		e.placeholder(ctx, prior, failed, snap, cause)
		return containedPlaceholder
	}

	if prior.lastGood != nil {
		c, err := e.construct(ctx, prior.id, *prior.lastGood, prior.props, snap)
		if err == nil {
			e.table.Put(&domain.Live{Instance: &domain.ComponentInstance{
				ID:        prior.id,
				Impl:      *prior.lastGood,
				ParentID:  prior.parentID,
				Props:     prior.props,
				Handle:    c.handle,
				MountedAt: e.now(),
			}})
			e.logger.WarnContext(ctx, "reverted to last-known-good implementation",
				"instance", prior.id,
				"module", prior.lastGood.ModuleID,
				"version", prior.lastGood.Version,
				"failed_version", failed.Version,
			)
			return containedReverted
		}
		e.logger.ErrorContext(ctx, "last-known-good remount failed", "instance", prior.id, "err", err)
	}

	e.table.Delete(prior.id)
	return containedReload
}

// placeholder stores a PlaceholderRecord for the instance and asks the runtime to
// render it when supported.
func (e *Engine) placeholder(ctx context.Context, prior priorState, failed domain.ImplRef, snap *domain.StateSnapshot, cause error) {
	rec := &domain.PlaceholderRecord{
		InstanceID: prior.id,
		ParentID:   prior.parentID,
		Props:      prior.props,
		Failure: domain.FailureDetail{
			Kind:    domain.KindOf(cause),
			Message: cause.Error(),
			Impl:    failed,
			At:      e.now(),
		},
		Snapshot: snap.Clone(),
		LastGood: prior.lastGood,
	}
	e.table.Put(&domain.Placeholder{Record: rec})

	if renderer, ok := e.runtime.(ports.PlaceholderRenderer); ok {
		err := guard("render placeholder", func() error {
			return renderer.RenderPlaceholder(ctx, rec)
		})
		if err != nil {
			e.logger.WarnContext(ctx, "placeholder render failed", "instance", prior.id, "err", err)
		}
	}
}
