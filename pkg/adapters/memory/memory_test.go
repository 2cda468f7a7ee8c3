package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/hotswap/pkg/adapters/memory"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Contract(t *testing.T) {
	rec := memory.NewRecorder()
	ports.RunTransportContract(t, rec, rec.Drain)
}

func TestRuntime_MountAndSet(t *testing.T) {
	rt := memory.NewRuntime()
	rt.Define("counter", 1, memory.Component{Slots: []memory.SlotSpec{
		{Key: "label", Public: true, Initial: "clicks"},
		{Key: "count", Initial: 0},
	}})

	h, err := rt.Mount(context.Background(), domain.ImplRef{ModuleID: "counter", Version: 1}, map[string]any{"label": "taps"})
	require.NoError(t, err)

	inst := h.(*memory.Instance)
	label, _ := inst.Get("label")
	assert.Equal(t, "taps", label, "props should override initial values")

	require.NoError(t, h.Set("count", 3))
	assert.ErrorIs(t, h.Set("count", "three"), domain.ErrIncompatibleSlot)
	assert.ErrorIs(t, h.Set("missing", 1), domain.ErrUnknownSlot)
	assert.Equal(t, 1, rt.Mounts("counter"))
}

func TestRuntime_MountFailures(t *testing.T) {
	rt := memory.NewRuntime()
	rt.Define("broken", 1, memory.Component{FailMount: "render threw"})
	rt.Define("bomb", 1, memory.Component{PanicMount: true})
	ctx := context.Background()

	_, err := rt.Mount(ctx, domain.ImplRef{ModuleID: "broken", Version: 1}, nil)
	assert.EqualError(t, err, "render threw")

	_, err = rt.Mount(ctx, domain.ImplRef{ModuleID: "unknown", Version: 1}, nil)
	assert.Error(t, err)

	assert.Panics(t, func() {
		_, _ = rt.Mount(ctx, domain.ImplRef{ModuleID: "bomb", Version: 1}, nil)
	})
}

func TestRuntime_TeardownOnce(t *testing.T) {
	rt := memory.NewRuntime()
	rt.Define("a", 1, memory.Component{})
	ctx := context.Background()

	h, err := rt.Mount(ctx, domain.ImplRef{ModuleID: "a", Version: 1}, nil)
	require.NoError(t, err)

	require.NoError(t, rt.Teardown(ctx, h))
	assert.True(t, h.(*memory.Instance).Released())
	assert.Error(t, rt.Teardown(ctx, h), "second teardown must be rejected")
	assert.Equal(t, 1, rt.Teardowns())
}
