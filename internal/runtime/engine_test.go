package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/hotswap/internal/runtime"
	"github.com/aretw0/hotswap/pkg/adapters/memory"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counterSlots = []memory.SlotSpec{
	{Key: "label", Public: true, Initial: "clicks"},
	{Key: "count", Initial: 0},
}

// harness wires an engine to the in-memory runtime with two independent leaves
// A and B under a non-accepting App root.
type harness struct {
	engine  *runtime.Engine
	runtime *memory.Runtime
	events  *memory.Recorder
}

func newHarness(t *testing.T, cfg domain.Config, opts ...runtime.EngineOption) *harness {
	t.Helper()
	rt := memory.NewRuntime()
	rt.Define("App", 1, memory.Component{})
	rt.Define("A", 1, memory.Component{Slots: counterSlots})
	rt.Define("B", 1, memory.Component{Slots: counterSlots})

	rec := memory.NewRecorder()
	opts = append([]runtime.EngineOption{
		runtime.WithConfig(cfg),
		runtime.WithCycleIDs(func() string { return "cycle" }),
	}, opts...)
	engine, err := runtime.NewEngine(rt, rec, opts...)
	require.NoError(t, err)

	engine.RegisterModule(domain.ModuleRecord{ID: "App", Version: 1, Dependencies: []string{"A", "B"}})
	engine.RegisterModule(domain.ModuleRecord{ID: "A", Version: 1, AcceptsSelf: true, Dependents: []string{"App"}})
	engine.RegisterModule(domain.ModuleRecord{ID: "B", Version: 1, AcceptsSelf: true, Dependents: []string{"App"}})

	ctx := context.Background()
	_, err = engine.Mount(ctx, "app", "App", "", nil)
	require.NoError(t, err)
	_, err = engine.Mount(ctx, "a-1", "A", "app", nil)
	require.NoError(t, err)
	_, err = engine.Mount(ctx, "b-1", "B", "app", nil)
	require.NoError(t, err)
	rec.Reset()

	return &harness{engine: engine, runtime: rt, events: rec}
}

func (h *harness) live(t *testing.T, id string) (*domain.ComponentInstance, *memory.Instance) {
	t.Helper()
	s, ok := h.engine.Instance(id)
	require.True(t, ok, "instance %s missing", id)
	l, ok := s.(*domain.Live)
	require.True(t, ok, "instance %s is %s, want live", id, s.Status())
	return l.Instance, l.Instance.Handle.(*memory.Instance)
}

func (h *harness) update(t *testing.T, entries ...domain.PacketEntry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.engine.Enqueue(ctx, domain.UpdatePacket{Modules: entries}))
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Wait(waitCtx))
}

func leaf(id string, version uint64) domain.PacketEntry {
	return domain.PacketEntry{ModuleID: id, Version: version, AcceptsSelf: true, Dependents: []string{"App"}}
}

func TestEngine_UpdateSingleLeaf(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.runtime.Define("A", 2, memory.Component{Slots: counterSlots})

	_, a := h.live(t, "a-1")
	require.NoError(t, a.Set("count", 5))
	_, bBefore := h.live(t, "b-1")
	require.NoError(t, bBefore.Set("count", 9))

	h.update(t, leaf("A", 2))

	assert.Equal(t, []string{"received", "deciding", "applying:A", "applied:A"}, h.events.Names())

	inst, a2 := h.live(t, "a-1")
	assert.Equal(t, uint64(2), inst.Impl.Version)
	assert.Equal(t, "app", inst.ParentID)
	count, _ := a2.Get("count")
	assert.Equal(t, 5, count, "state should survive the swap")
	assert.True(t, a.Released(), "old instance should be torn down")

	bInst, bAfter := h.live(t, "b-1")
	assert.Same(t, bBefore, bAfter, "sibling must not be touched")
	assert.Equal(t, uint64(1), bInst.Impl.Version)
	bCount, _ := bAfter.Get("count")
	assert.Equal(t, 9, bCount)
	assert.Equal(t, 1, h.runtime.Teardowns())
}

func TestEngine_SharedDependencyWithoutBoundary(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.engine.RegisterModule(domain.ModuleRecord{ID: "util", Version: 1, Dependents: []string{"App"}})

	h.update(t, domain.PacketEntry{ModuleID: "util", Version: 2, Dependents: []string{"App"}})

	assert.Equal(t, []string{"received", "deciding", "rejected:reload"}, h.events.Names())
	assert.Empty(t, h.engine.Instances(), "reload discards the session")
	assert.Equal(t, 0, h.runtime.Teardowns())
	assert.Equal(t, uint64(2), graphVersion(h.engine, "util"))
}

func TestEngine_BubblesToBoundary(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.engine.RegisterModule(domain.ModuleRecord{ID: "format", Version: 1, Dependents: []string{"A"}})

	_, a := h.live(t, "a-1")
	require.NoError(t, a.Set("count", 3))

	h.update(t, domain.PacketEntry{ModuleID: "format", Version: 2, Dependents: []string{"A"}})

	assert.Equal(t, []string{"received", "deciding", "applying:A", "applied:A"}, h.events.Names())
	inst, a2 := h.live(t, "a-1")
	assert.Equal(t, uint64(1), inst.Impl.Version, "boundary is remounted at its current version")
	count, _ := a2.Get("count")
	assert.Equal(t, 3, count)
}

func TestEngine_NoopUpdate(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())

	h.update(t, leaf("A", 1), leaf("B", 1))

	assert.Equal(t, []string{"received", "applied"}, h.events.Names())
	assert.Equal(t, 0, h.runtime.Teardowns())
	assert.Equal(t, 1, h.runtime.Mounts("A"))
}

func TestEngine_PublicOnlyPreservation(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.PreserveState = domain.PreservePublicOnly
	h := newHarness(t, cfg)
	h.runtime.Define("A", 2, memory.Component{Slots: counterSlots})

	_, a := h.live(t, "a-1")
	require.NoError(t, a.Set("label", "taps"))
	require.NoError(t, a.Set("count", 7))

	h.update(t, leaf("A", 2))

	_, a2 := h.live(t, "a-1")
	label, _ := a2.Get("label")
	count, _ := a2.Get("count")
	assert.Equal(t, "taps", label)
	assert.Equal(t, 0, count, "internal slots reset under public-only")

	applied := h.events.Events()[3]
	require.Len(t, applied.Reports, 1)
	assert.Equal(t, []string{"label"}, applied.Reports[0].Restored)
	assert.Empty(t, applied.Reports[0].Missed)
}

func TestEngine_PreservationMissIsReported(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.VerboseEvents = false
	h := newHarness(t, cfg)
	h.runtime.Define("A", 2, memory.Component{Slots: []memory.SlotSpec{
		{Key: "label", Public: true, Initial: "clicks"},
		{Key: "count", Initial: "zero"},
		{Key: "step", Initial: 1},
	}})

	_, a := h.live(t, "a-1")
	require.NoError(t, a.Set("count", 4))

	h.update(t, leaf("A", 2))

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "applied:A", events[0].String())
	require.Len(t, events[0].Reports, 1)
	report := events[0].Reports[0]
	assert.Equal(t, "a-1", report.InstanceID)
	assert.Equal(t, []string{"count"}, report.Missed)
	assert.Equal(t, []string{"step"}, report.Fresh)

	_, a2 := h.live(t, "a-1")
	count, _ := a2.Get("count")
	assert.Equal(t, "zero", count, "incompatible value is not coerced")
}

func TestEngine_OptimisticPlaceholderRoundTrip(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Optimistic = true
	h := newHarness(t, cfg)
	h.runtime.Define("A", 2, memory.Component{FailMount: "undefined is not a function"})
	h.runtime.Define("A", 3, memory.Component{Slots: counterSlots})

	_, a := h.live(t, "a-1")
	require.NoError(t, a.Set("count", 5))
	_, b := h.live(t, "b-1")

	h.update(t, leaf("A", 2))

	assert.Equal(t, []string{"received", "deciding", "applying:A", "error:a-1", "applied:A"}, h.events.Names())
	failure := h.events.Events()[3]
	assert.Equal(t, domain.ChannelPlaceholder, failure.Channel)
	assert.Equal(t, domain.KindConstructionFailure, failure.Kind)

	s, ok := h.engine.Instance("a-1")
	require.True(t, ok)
	ph, ok := s.(*domain.Placeholder)
	require.True(t, ok, "expected placeholder, got %s", s.Status())
	assert.Equal(t, uint64(2), ph.Record.Failure.Impl.Version)
	require.NotNil(t, ph.Record.Snapshot)
	assert.Equal(t, 5, ph.Record.Snapshot.Slots["count"])
	assert.Len(t, h.runtime.Placeholders(), 1)

	_, bAfter := h.live(t, "b-1")
	assert.Same(t, b, bAfter)

	h.events.Reset()
	h.update(t, leaf("A", 3))

	assert.Equal(t, []string{"received", "deciding", "applying:A", "applied:A"}, h.events.Names())
	inst, a3 := h.live(t, "a-1")
	assert.Equal(t, uint64(3), inst.Impl.Version)
	count, _ := a3.Get("count")
	assert.Equal(t, 5, count, "snapshot retained by the placeholder is restored")
}

func TestEngine_PanicDuringMountIsContained(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Optimistic = true
	h := newHarness(t, cfg)
	h.runtime.Define("A", 2, memory.Component{PanicMount: true})

	h.update(t, leaf("A", 2))

	s, ok := h.engine.Instance("a-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusPlaceholder, s.Status())
	assert.Contains(t, h.events.Events()[3].Message, "panicked")
}

func TestEngine_RevertsToLastKnownGood(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.runtime.Define("A", 2, memory.Component{FailMount: "boom"})

	_, a := h.live(t, "a-1")
	require.NoError(t, a.Set("count", 5))

	h.update(t, leaf("A", 2))

	assert.Equal(t, []string{"received", "deciding", "applying:A", "error:a-1", "applied:A"}, h.events.Names())
	assert.Equal(t, domain.ChannelTransport, h.events.Events()[3].Channel)

	inst, reverted := h.live(t, "a-1")
	assert.Equal(t, uint64(1), inst.Impl.Version)
	count, _ := reverted.Get("count")
	assert.Equal(t, 5, count)

	applied := h.events.Events()[4]
	require.Len(t, applied.Reports, 1)
	assert.Equal(t, "a-1", applied.Reports[0].InstanceID)
	assert.Equal(t, domain.OutcomeReverted, applied.Reports[0].Outcome)
}

func TestEngine_RevertRollsBackGraphVersion(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.engine.RegisterModule(domain.ModuleRecord{ID: "format", Version: 1, Dependents: []string{"A"}})
	h.runtime.Define("A", 2, memory.Component{FailMount: "boom"})

	h.update(t, leaf("A", 2))
	assert.Equal(t, uint64(1), graphVersion(h.engine, "A"), "reverted code stays current in the graph")

	h.events.Reset()
	h.update(t, domain.PacketEntry{ModuleID: "format", Version: 2, Dependents: []string{"A"}})

	assert.Equal(t, []string{"received", "deciding", "applying:A", "applied:A"}, h.events.Names())
	inst, _ := h.live(t, "a-1")
	assert.Equal(t, uint64(1), inst.Impl.Version)
}

func TestEngine_EscalatesToReload(t *testing.T) {
	var reloaded bool
	hooks := domain.LifecycleHooks{
		OnCycleSettled: func(ctx context.Context, cycle string, elapsed time.Duration, r bool) {
			reloaded = r
		},
	}
	h := newHarness(t, domain.DefaultConfig(), runtime.WithLifecycleHooks(hooks))
	h.runtime.Define("A", 2, memory.Component{FailMount: "boom"})
	// The last-known-good implementation cannot be mounted anymore either.
	h.runtime.Define("A", 1, memory.Component{FailMount: "stale chunk"})

	h.update(t, leaf("A", 2))

	assert.Equal(t, []string{"received", "deciding", "applying:A", "error:a-1", "rejected:reload"}, h.events.Names())
	last := h.events.Events()[4]
	assert.Equal(t, domain.KindConstructionFailure, last.Kind)
	assert.True(t, reloaded)
	assert.Empty(t, h.engine.Instances())
}

func TestEngine_TeardownFailureProceeds(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.runtime.Define("A", 1, memory.Component{Slots: counterSlots, FailTeardown: true})
	h.runtime.Define("A", 2, memory.Component{Slots: counterSlots})
	require.NoError(t, h.engine.Unmount(context.Background(), "a-1"), "instance mounted before the redefinition tears down cleanly")
	_, err := h.engine.Mount(context.Background(), "a-1", "A", "app", nil)
	require.NoError(t, err)
	h.events.Reset()

	h.update(t, leaf("A", 2))

	assert.Equal(t, []string{"received", "deciding", "applying:A", "error:a-1", "applied:A"}, h.events.Names())
	assert.Equal(t, domain.KindTeardownFailure, h.events.Events()[3].Kind)
	inst, _ := h.live(t, "a-1")
	assert.Equal(t, uint64(2), inst.Impl.Version)
}

func TestEngine_QuietEvents(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.VerboseEvents = false
	h := newHarness(t, cfg)
	h.runtime.Define("A", 2, memory.Component{Slots: counterSlots})

	h.update(t, leaf("A", 2))

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "applied:A", events[0].String())
	assert.Empty(t, events[0].Reports)
}

func TestEngine_MalformedEntriesAreDropped(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	h.runtime.Define("A", 2, memory.Component{Slots: counterSlots})

	h.update(t,
		domain.PacketEntry{Version: 3},
		domain.PacketEntry{ModuleID: "B", Version: 0},
		leaf("A", 2),
	)

	assert.Equal(t, []string{"received", "error:#0", "error:B", "deciding", "applying:A", "applied:A"}, h.events.Names())
	assert.Equal(t, domain.KindMalformedUpdate, h.events.Events()[1].Kind)

	t.Run("Empty packet", func(t *testing.T) {
		h.events.Reset()
		err := h.engine.Enqueue(context.Background(), domain.UpdatePacket{})
		require.ErrorIs(t, err, domain.ErrMalformedUpdate)

		assert.Equal(t, []string{"received", "error:packet"}, h.events.Names())
		failure := h.events.Events()[1]
		assert.Equal(t, domain.KindMalformedUpdate, failure.Kind)
		assert.Equal(t, domain.ChannelTransport, failure.Channel)
	})
}

func TestEngine_ConflictingDuplicates(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())

	h.update(t, leaf("A", 2), leaf("A", 3))

	assert.Equal(t, []string{"received", "error:A"}, h.events.Names())
	assert.Equal(t, uint64(1), graphVersion(h.engine, "A"))
}

func TestEngine_CompileErrorChannels(t *testing.T) {
	tests := []struct {
		name       string
		optimistic bool
		overlay    bool
		want       domain.Channel
		status     domain.InstanceStatus
	}{
		{name: "Transport", want: domain.ChannelTransport, status: domain.StatusLive},
		{name: "Overlay", overlay: true, want: domain.ChannelOverlay, status: domain.StatusLive},
		{name: "Optimistic", optimistic: true, want: domain.ChannelPlaceholder, status: domain.StatusPlaceholder},
		{name: "Optimistic wins over overlay", optimistic: true, overlay: true, want: domain.ChannelPlaceholder, status: domain.StatusPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			cfg.Optimistic = tt.optimistic
			cfg.Overlay = tt.overlay
			h := newHarness(t, cfg)

			entry := leaf("A", 2)
			entry.CompileError = "Unexpected token (3:9)"
			h.update(t, entry)

			var failures []domain.Event
			for _, e := range h.events.Events() {
				if e.Type == domain.EventError {
					failures = append(failures, e)
				}
			}
			require.Len(t, failures, 1, "a failure is reported on exactly one channel")
			assert.Equal(t, tt.want, failures[0].Channel)
			assert.Equal(t, domain.KindCompileFailure, failures[0].Kind)

			s, ok := h.engine.Instance("a-1")
			require.True(t, ok)
			assert.Equal(t, tt.status, s.Status())
			if p, ok := s.(*domain.Placeholder); ok {
				assert.Equal(t, uint64(2), p.Record.Failure.Impl.Version, "placeholder names the version that failed")
			}
			assert.Equal(t, uint64(1), graphVersion(h.engine, "A"), "failed compile never enters the graph")
		})
	}
}

func TestEngine_MountFailure(t *testing.T) {
	t.Run("Reload Required", func(t *testing.T) {
		h := newHarness(t, domain.DefaultConfig())
		h.engine.RegisterModule(domain.ModuleRecord{ID: "C", Version: 1, AcceptsSelf: true, Dependents: []string{"App"}})
		h.runtime.Define("C", 1, memory.Component{FailMount: "no"})

		_, err := h.engine.Mount(context.Background(), "c-1", "C", "app", nil)
		assert.ErrorIs(t, err, domain.ErrReloadRequired)
		assert.ErrorIs(t, err, domain.ErrConstructionFailure)
		assert.Equal(t, []string{"error:c-1", "rejected:reload"}, h.events.Names())
	})

	t.Run("Optimistic Placeholder", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Optimistic = true
		h := newHarness(t, cfg)
		h.engine.RegisterModule(domain.ModuleRecord{ID: "C", Version: 1, AcceptsSelf: true, Dependents: []string{"App"}})
		h.runtime.Define("C", 1, memory.Component{FailMount: "no"})

		s, err := h.engine.Mount(context.Background(), "c-1", "C", "app", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPlaceholder, s.Status())
	})

	t.Run("Duplicate And Unknown", func(t *testing.T) {
		h := newHarness(t, domain.DefaultConfig())
		_, err := h.engine.Mount(context.Background(), "a-1", "A", "app", nil)
		assert.ErrorIs(t, err, domain.ErrDuplicateInstance)
		_, err = h.engine.Mount(context.Background(), "x", "nope", "", nil)
		assert.Error(t, err)
	})
}

func TestEngine_Unmount(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig())
	_, a := h.live(t, "a-1")

	require.NoError(t, h.engine.Unmount(context.Background(), "a-1"))
	assert.True(t, a.Released())
	assert.ErrorIs(t, h.engine.Unmount(context.Background(), "a-1"), domain.ErrInstanceNotFound)
}

func TestEngine_EventsAreOrdered(t *testing.T) {
	h := newHarness(t, domain.DefaultConfig(), runtime.WithMaxParallel(4))
	h.runtime.Define("A", 2, memory.Component{Slots: counterSlots})
	h.runtime.Define("B", 2, memory.Component{Slots: counterSlots})

	h.update(t, leaf("A", 2), leaf("B", 2))

	events := h.events.Events()
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	names := h.events.Names()
	assert.Contains(t, names, "applied:A")
	assert.Contains(t, names, "applied:B")
	assert.NotContains(t, names, "rejected:reload")
}

func TestEngine_InvalidConfig(t *testing.T) {
	_, err := runtime.NewEngine(memory.NewRuntime(), nil, runtime.WithConfig(domain.Config{PreserveState: "some"}))
	assert.Error(t, err)

	_, err = runtime.NewEngine(nil, nil)
	assert.Error(t, err)
}

func graphVersion(e *runtime.Engine, id string) uint64 {
	for _, rec := range e.Graph() {
		if rec.ID == id {
			return rec.Version
		}
	}
	return 0
}
