package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/hotswap/pkg/domain"
)

// priorState is what survives of an instance while it is being replaced.
type priorState struct {
	id       string
	parentID string
	props    map[string]any
	lastGood *domain.ImplRef
}

// outcome summarises the replacement of one instance.
type outcome struct {
	result contained
	ok     bool
	report domain.PreservationReport
}

// applySubtree replaces every instance owned by the boundary module of apply.
func (e *Engine) applySubtree(ctx context.Context, cy *cycle, apply domain.Apply) {
	boundary := apply.Boundary
	e.reporter.Emit(ctx, domain.Event{Cycle: cy.id, Type: domain.EventApplying, Subject: boundary})

	impl := domain.ImplRef{ModuleID: boundary, Version: e.graph.Version(boundary)}

	var (
		reports  []domain.PreservationReport
		missed   bool
		replaced int
		reverted int
		fallback bool
	)
	for _, id := range e.table.ByModule(boundary) {
		out := e.replaceInstance(ctx, cy, id, impl)
		switch {
		case out.ok:
			replaced++
			if len(out.report.Missed) > 0 {
				missed = true
			}
			if e.cfg.VerboseEvents || len(out.report.Missed) > 0 {
				reports = append(reports, out.report)
			}
		case out.result == containedReload:
			cy.requestReload(fmt.Sprintf("instance %s could not be recovered", id), domain.NewError(domain.KindConstructionFailure, id, fmt.Errorf("no last-known-good implementation")))
			return
		case out.result == containedReverted:
			reverted++
			fallback = true
			reports = append(reports, domain.PreservationReport{InstanceID: id, Outcome: domain.OutcomeReverted})
		case out.result == containedPlaceholder:
			fallback = true
			reports = append(reports, domain.PreservationReport{InstanceID: id, Outcome: domain.OutcomePlaceholder})
		}
	}

	// Every instance is back on the last-known-good code: the graph follows, so a
	// later edit bubbling to this boundary does not remount the broken version.
	if reverted > 0 && replaced == 0 {
		e.rollback(ctx, cy, apply)
	}

	event := domain.Event{Cycle: cy.id, Type: domain.EventApplied, Subject: boundary}
	if e.cfg.VerboseEvents || missed || fallback {
		event.Reports = reports
	}
	e.reporter.Emit(ctx, event)
}

// rollback restores the records this cycle replaced for the modules of apply.
func (e *Engine) rollback(ctx context.Context, cy *cycle, apply domain.Apply) {
	for _, rec := range apply.Modules {
		prev, ok := cy.previous[rec.ID]
		if !ok {
			continue
		}
		e.graph.Register(prev)
		e.logger.InfoContext(ctx, "module version rolled back", "cycle", cy.id, "module", prev.ID, "version", prev.Version, "failed_version", rec.Version)
	}
}

// replaceInstance runs the replacement of one instance: capture, teardown,
// construct and reinject. The instance id is kept across the swap.
func (e *Engine) replaceInstance(ctx context.Context, cy *cycle, id string, impl domain.ImplRef) outcome {
	release, err := e.claims.acquire(ctx, id)
	if err != nil {
		e.logger.WarnContext(ctx, "instance claim aborted", "instance", id, "err", err)
		return outcome{result: containedSkipped}
	}
	defer release()

	s, ok := e.table.Get(id)
	if !ok {
		// Unmounted while the cycle was deciding.
		return outcome{result: containedSkipped}
	}

	var (
		prior priorState
		snap  *domain.StateSnapshot
	)
	switch st := s.(type) {
	case *domain.Live:
		inst := st.Instance
		lastGood := inst.Impl
		prior = priorState{id: id, parentID: inst.ParentID, props: inst.Props, lastGood: &lastGood}
		snap = e.capture(ctx, cy, id, inst.Handle)
		if tdErr := e.teardown(ctx, inst.Handle); tdErr != nil {
			e.reporter.Failure(ctx, cy.id, id, domain.ChannelTransport, domain.NewError(domain.KindTeardownFailure, id, tdErr))
		}
	case *domain.Placeholder:
		rec := st.Record
		prior = priorState{id: id, parentID: rec.ParentID, props: rec.Props, lastGood: rec.LastGood}
		snap = rec.Snapshot.Clone()
	default:
		return outcome{result: containedSkipped}
	}

	c, err := e.construct(ctx, id, impl, prior.props, snap)
	if err != nil {
		return outcome{result: e.containFailure(ctx, cy.id, prior, impl, snap, err)}
	}

	e.table.Put(&domain.Live{Instance: &domain.ComponentInstance{
		ID:        id,
		Impl:      impl,
		ParentID:  prior.parentID,
		Props:     prior.props,
		Handle:    c.handle,
		MountedAt: e.now(),
	}})

	for _, miss := range c.misses {
		e.logger.WarnContext(ctx, "state slot not transplanted",
			"instance", id,
			"slot", miss.Key,
			"kind", domain.KindPreservationMiss,
			"err", miss.Err,
		)
	}
	c.report.Outcome = domain.OutcomeReplaced
	return outcome{ok: true, report: c.report}
}
