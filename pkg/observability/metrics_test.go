package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnEvent(ctx, &domain.Event{Type: domain.EventApplied, Subject: "A"})
	hooks.OnEvent(ctx, &domain.Event{Type: domain.EventError, Subject: "a-1", Kind: domain.KindConstructionFailure, Channel: domain.ChannelPlaceholder})
	hooks.OnCycleSettled(ctx, "c1", 20*time.Millisecond, false)
	hooks.OnCycleSettled(ctx, "c2", 5*time.Millisecond, true)

	count, err := testutil.GatherAndCount(reg, "hotswap_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per event type")

	count, err = testutil.GatherAndCount(reg, "hotswap_cycles_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "hotswap_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_TrackInstances(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.TrackInstances(reg, func() []domain.InstanceView {
		return []domain.InstanceView{
			{ID: "a", Status: domain.StatusLive},
			{ID: "b", Status: domain.StatusLive},
			{ID: "c", Status: domain.StatusPlaceholder},
		}
	})

	count, err := testutil.GatherAndCount(reg, "hotswap_instances")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCombine(t *testing.T) {
	var order []string
	a := domain.LifecycleHooks{OnEvent: func(ctx context.Context, e *domain.Event) { order = append(order, "a") }}
	b := domain.LifecycleHooks{
		OnEvent:      func(ctx context.Context, e *domain.Event) { order = append(order, "b") },
		OnCycleStart: func(ctx context.Context, cycle string, p domain.UpdatePacket) { order = append(order, "start") },
	}

	h := observability.Combine(a, b)
	h.OnEvent(context.Background(), &domain.Event{})
	h.OnCycleStart(context.Background(), "c", domain.UpdatePacket{})
	h.OnCycleSettled(context.Background(), "c", 0, false)

	assert.Equal(t, []string{"a", "b", "start"}, order)
}
