package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine is the hot update coordinator core.
//
// It owns the module graph, the instance table and the sequencer. Every update
// cycle goes received -> deciding -> applying/applied per subtree, or
// rejected:reload, and always ends in a terminal, reported outcome.
type Engine struct {
	runtime     ports.Runtime
	cfg         domain.Config
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxParallel int
	now         func() time.Time
	newCycleID  func() string

	graph     *Graph
	table     *Table
	claims    *claims
	sequencer *Sequencer
	reporter  *Reporter
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithConfig sets the coordinator options.
func WithConfig(cfg domain.Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxParallel lets up to n independent subtrees of one cycle apply concurrently.
// The default of 1 applies them sequentially in packet order.
func WithMaxParallel(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCycleIDs overrides the cycle id generator (tests).
func WithCycleIDs(gen func() string) EngineOption {
	return func(e *Engine) {
		e.newCycleID = gen
	}
}

// NewEngine creates an engine driving rt and reporting to transport.
func NewEngine(rt ports.Runtime, transport ports.Transport, opts ...EngineOption) (*Engine, error) {
	if rt == nil {
		return nil, fmt.Errorf("new engine: runtime is nil")
	}
	e := &Engine{
		runtime:     rt,
		cfg:         domain.DefaultConfig(),
		logger:      logging.NewNop(),
		maxParallel: 1,
		now:         time.Now,
		newCycleID:  uuid.NewString,
		graph:       NewGraph(),
		table:       NewTable(),
		claims:      newClaims(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if e.cfg.Optimistic && e.cfg.Overlay {
		e.logger.Info("optimistic and overlay both enabled: construction and compile failures use the placeholder channel")
	}

	e.reporter = NewReporter(transport, e.hooks, e.logger, e.cfg.VerboseEvents, e.now)
	e.sequencer = NewSequencer(e.processCycle)
	return e, nil
}

// Config returns the active configuration.
func (e *Engine) Config() domain.Config {
	return e.cfg
}

// RegisterModule tracks a module of the initial graph.
func (e *Engine) RegisterModule(rec domain.ModuleRecord) {
	e.graph.Register(rec)
}

// Graph returns the tracked module records.
func (e *Engine) Graph() []domain.ModuleRecord {
	return e.graph.Records()
}

// Instances lists the instance table.
func (e *Engine) Instances() []domain.InstanceView {
	return e.table.Views()
}

// Instance returns the state stored for id.
func (e *Engine) Instance(id string) (domain.InstanceState, bool) {
	return e.table.Get(id)
}

// Enqueue hands a packet to the sequencer. It returns once the packet was either
// processed or merged into the cycle currently pending.
func (e *Engine) Enqueue(ctx context.Context, packet domain.UpdatePacket) error {
	if len(packet.Modules) == 0 {
		cause := errors.New("packet has no modules")
		e.ReportMalformed(ctx, "packet", cause)
		return fmt.Errorf("enqueue: %w: %w", domain.ErrMalformedUpdate, cause)
	}
	if !e.sequencer.Enqueue(ctx, packet) {
		e.logger.DebugContext(ctx, "packet merged into pending cycle", "modules", packet.ModuleIDs())
	}
	return nil
}

// ReportMalformed reports input that never became a packet (an empty packet, an
// undecodable line or message) as its own short cycle: received, then
// error:<subject> with kind MalformedUpdate.
func (e *Engine) ReportMalformed(ctx context.Context, subject string, cause error) {
	id := e.newCycleID()
	e.reporter.Emit(ctx, domain.Event{Cycle: id, Type: domain.EventReceived})
	e.reporter.Failure(ctx, id, subject, domain.ChannelTransport, domain.NewError(domain.KindMalformedUpdate, subject, cause))
}

// Wait blocks until the pipeline is settled.
func (e *Engine) Wait(ctx context.Context) error {
	return e.sequencer.Wait(ctx)
}

// Mount is the initial mount path for a node of the UI tree. It runs inside the
// same failure boundary as replacements.
func (e *Engine) Mount(ctx context.Context, instanceID, moduleID, parentID string, props map[string]any) (domain.InstanceState, error) {
	if instanceID == "" {
		return nil, fmt.Errorf("mount: instance id is required")
	}
	rec, ok := e.graph.Get(moduleID)
	if !ok {
		return nil, fmt.Errorf("mount %s: module %q is not tracked", instanceID, moduleID)
	}

	release, err := e.claims.acquire(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", instanceID, err)
	}
	defer release()

	if _, exists := e.table.Get(instanceID); exists {
		return nil, fmt.Errorf("mount %s: %w", instanceID, domain.ErrDuplicateInstance)
	}

	impl := domain.ImplRef{ModuleID: rec.ID, Version: rec.Version}
	c, err := e.construct(ctx, instanceID, impl, props, nil)
	if err == nil {
		live := &domain.Live{Instance: &domain.ComponentInstance{
			ID:        instanceID,
			Impl:      impl,
			ParentID:  parentID,
			Props:     props,
			Handle:    c.handle,
			MountedAt: e.now(),
		}}
		e.table.Put(live)
		e.logger.DebugContext(ctx, "instance mounted", "instance", instanceID, "module", moduleID, "version", rec.Version)
		return live, nil
	}

	prior := priorState{id: instanceID, parentID: parentID, props: props}
	switch e.containFailure(ctx, "", prior, impl, nil, err) {
	case containedPlaceholder:
		s, _ := e.table.Get(instanceID)
		return s, nil
	default:
		e.reporter.Emit(ctx, domain.Event{
			Type:    domain.EventRejected,
			Subject: "reload",
			Kind:    domain.KindConstructionFailure,
			Message: err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", domain.ErrReloadRequired, err)
	}
}

// Unmount tears the instance down and forgets it.
func (e *Engine) Unmount(ctx context.Context, instanceID string) error {
	release, err := e.claims.acquire(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("unmount %s: %w", instanceID, err)
	}
	defer release()

	s, ok := e.table.Get(instanceID)
	if !ok {
		return fmt.Errorf("unmount %s: %w", instanceID, domain.ErrInstanceNotFound)
	}
	e.table.Delete(instanceID)

	if live, ok := s.(*domain.Live); ok {
		if err := e.teardown(ctx, live.Instance.Handle); err != nil {
			return domain.NewError(domain.KindTeardownFailure, instanceID, err)
		}
	}
	return nil
}

// cycle carries the per-cycle bookkeeping.
type cycle struct {
	id      string
	started time.Time

	// previous holds the graph records replaced by this cycle, so a subtree that
	// only reverted can put them back.
	previous map[string]domain.ModuleRecord

	mu       sync.Mutex
	reload   bool
	reasons  []string
	failures []error
}

func (c *cycle) requestReload(reason string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reload = true
	c.reasons = append(c.reasons, reason)
	if err != nil {
		c.failures = append(c.failures, err)
	}
}

// processCycle runs one update cycle. It is only ever called by the sequencer.
func (e *Engine) processCycle(ctx context.Context, packet domain.UpdatePacket) {
	cy := &cycle{id: e.newCycleID(), started: e.now()}
	logger := e.logger.With("cycle", cy.id)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "update cycle panicked", "panic", r)
			cy.requestReload(fmt.Sprintf("internal failure: %v", r), nil)
			e.rejectReload(ctx, cy, nil)
		}
		if e.hooks.OnCycleSettled != nil {
			e.runHook(ctx, "cycle settled", func() {
				e.hooks.OnCycleSettled(ctx, cy.id, e.now().Sub(cy.started), cy.reload)
			})
		}
	}()
	if e.hooks.OnCycleStart != nil {
		e.runHook(ctx, "cycle start", func() {
			e.hooks.OnCycleStart(ctx, cy.id, packet)
		})
	}

	e.reporter.Emit(ctx, domain.Event{Cycle: cy.id, Type: domain.EventReceived})

	valid := e.validate(ctx, cy, packet)
	if len(valid) == 0 {
		logger.WarnContext(ctx, "packet dropped: no valid entry")
		return
	}

	changed := e.changed(valid)
	if len(changed) == 0 {
		logger.DebugContext(ctx, "no-op update", "modules", packet.ModuleIDs())
		e.reporter.Emit(ctx, domain.Event{Cycle: cy.id, Type: domain.EventApplied})
		return
	}

	e.reporter.Emit(ctx, domain.Event{Cycle: cy.id, Type: domain.EventDeciding})
	decision := Decide(e.graph, changed)

	if decision.Reload {
		cy.requestReload(decision.Reason, decision.Err)
		e.rejectReload(ctx, cy, changed)
		return
	}

	var accepted []domain.PacketEntry
	for _, entry := range changed {
		if entry.CompileError != "" {
			e.compileFailure(ctx, cy, entry, decision.Failed[entry.ModuleID])
			continue
		}
		accepted = append(accepted, entry)
	}
	cy.previous = make(map[string]domain.ModuleRecord, len(accepted))
	for _, entry := range accepted {
		if rec, ok := e.graph.Get(entry.ModuleID); ok {
			cy.previous[entry.ModuleID] = rec
		}
	}
	e.graph.Accept(accepted)

	g := new(errgroup.Group)
	g.SetLimit(e.maxParallel)
	for _, apply := range decision.Applies {
		g.Go(func() error {
			// Subtrees run on their own goroutines; the cycle's recover does not reach them.
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "subtree panicked", "subtree", apply.Boundary, "panic", r)
					cy.requestReload(fmt.Sprintf("subtree %s failed: %v", apply.Boundary, r), nil)
				}
			}()
			e.applySubtree(ctx, cy, apply)
			return nil
		})
	}
	_ = g.Wait()

	if cy.reload {
		e.rejectReload(ctx, cy, nil)
	}
}

// validate drops malformed entries, reporting each of them.
func (e *Engine) validate(ctx context.Context, cy *cycle, packet domain.UpdatePacket) []domain.PacketEntry {
	seen := make(map[string]domain.PacketEntry, len(packet.Modules))
	conflicted := make(map[string]bool)
	valid := make([]domain.PacketEntry, 0, len(packet.Modules))

	for i, entry := range packet.Modules {
		subject := entry.ModuleID
		if subject == "" {
			subject = fmt.Sprintf("#%d", i)
		}
		var problem string
		switch {
		case entry.ModuleID == "":
			problem = "module id is empty"
		case entry.Version == 0:
			problem = "version must be positive"
		case containsString(entry.Dependents, entry.ModuleID):
			problem = "module lists itself as dependent"
		case containsString(entry.Dependents, ""):
			problem = "empty dependent id"
		}
		if prev, dup := seen[entry.ModuleID]; problem == "" && dup {
			if prev.Version == entry.Version && prev.AcceptsSelf == entry.AcceptsSelf {
				continue
			}
			problem = "duplicate module with conflicting payload"
			conflicted[entry.ModuleID] = true
		}
		if problem != "" {
			err := domain.NewError(domain.KindMalformedUpdate, subject, errors.New(problem))
			e.reporter.Failure(ctx, cy.id, subject, domain.ChannelTransport, err)
			continue
		}
		seen[entry.ModuleID] = entry
		valid = append(valid, entry)
	}

	// A conflicting duplicate invalidates every copy of the module.
	out := valid[:0]
	for _, entry := range valid {
		if !conflicted[entry.ModuleID] {
			out = append(out, entry)
		}
	}
	return out
}

// changed keeps the entries newer than the tracked version. Compile failures are
// always kept since they carry a report, not code.
func (e *Engine) changed(entries []domain.PacketEntry) []domain.PacketEntry {
	var out []domain.PacketEntry
	for _, entry := range entries {
		if entry.CompileError != "" {
			out = append(out, entry)
			continue
		}
		current, known := e.graph.Get(entry.ModuleID)
		if known && entry.Version <= current.Version {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// rejectReload emits the single reload event of a cycle and discards the session:
// after a full reload the tree is mounted again from scratch.
func (e *Engine) rejectReload(ctx context.Context, cy *cycle, changed []domain.PacketEntry) {
	var accepted []domain.PacketEntry
	for _, entry := range changed {
		if entry.CompileError == "" {
			accepted = append(accepted, entry)
		}
	}
	e.graph.Accept(accepted)

	kind := domain.ErrorKind("")
	if len(cy.failures) > 0 {
		kind = domain.KindOf(cy.failures[0])
	}
	message := ""
	if len(cy.reasons) > 0 {
		message = cy.reasons[0]
	}
	e.reporter.Emit(ctx, domain.Event{
		Cycle:   cy.id,
		Type:    domain.EventRejected,
		Subject: "reload",
		Kind:    kind,
		Message: message,
	})

	discarded := e.table.Reset()
	e.logger.InfoContext(ctx, "full reload requested", "cycle", cy.id, "reason", message, "discarded_instances", discarded)
}

// compileFailure routes a module the bundler failed to compile. Live instances keep
// running the last-known-good code unless optimistic mode turns them into
// placeholders.
func (e *Engine) compileFailure(ctx context.Context, cy *cycle, entry domain.PacketEntry, message string) {
	if message == "" {
		message = entry.CompileError
	}
	moduleID := entry.ModuleID
	err := domain.NewError(domain.KindCompileFailure, moduleID, errors.New(message))
	channel := e.cfg.FailureChannel(domain.KindCompileFailure)

	if channel != domain.ChannelPlaceholder {
		e.reporter.Failure(ctx, cy.id, moduleID, channel, err)
		return
	}

	failed := domain.ImplRef{ModuleID: moduleID, Version: entry.Version}
	for _, id := range e.table.ByModule(moduleID) {
		release, claimErr := e.claims.acquire(ctx, id)
		if claimErr != nil {
			continue
		}
		s, ok := e.table.Get(id)
		if live, isLive := s.(*domain.Live); ok && isLive {
			inst := live.Instance
			snap := e.capture(ctx, cy, id, inst.Handle)
			if tdErr := e.teardown(ctx, inst.Handle); tdErr != nil {
				e.reporter.Failure(ctx, cy.id, id, domain.ChannelTransport, domain.NewError(domain.KindTeardownFailure, id, tdErr))
			}
			lastGood := inst.Impl
			prior := priorState{id: id, parentID: inst.ParentID, props: inst.Props, lastGood: &lastGood}
			e.reporter.Failure(ctx, cy.id, id, domain.ChannelPlaceholder, err)
			e.placeholder(ctx, prior, failed, snap, err)
		}
		release()
	}
}

// capture snapshots h inside a failure boundary. When the framework's accessor
// fails, the failure is reported and an empty snapshot is returned: the swap goes
// on without the old state.
func (e *Engine) capture(ctx context.Context, cy *cycle, id string, h domain.Handle) *domain.StateSnapshot {
	var snap *domain.StateSnapshot
	err := guard("capture", func() error {
		snap = Capture(id, h, e.cfg.PreserveState, e.now())
		return nil
	})
	if err != nil {
		e.reporter.Failure(ctx, cy.id, id, domain.ChannelTransport, domain.NewError(domain.KindPreservationMiss, id, err))
		return Capture(id, nil, e.cfg.PreserveState, e.now())
	}
	return snap
}

// runHook calls a lifecycle hook, logging instead of propagating its panic.
func (e *Engine) runHook(ctx context.Context, name string, fn func()) {
	err := guard(name+" hook", func() error {
		fn()
		return nil
	})
	if err != nil {
		e.logger.WarnContext(ctx, "lifecycle hook failed", "hook", name, "err", err)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
