package runtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/stretchr/testify/assert"
)

// fakeHandle is a minimal typed state container.
type fakeHandle struct {
	slots []domain.Slot
}

func (f *fakeHandle) Slots() []domain.Slot {
	return append([]domain.Slot(nil), f.slots...)
}

func (f *fakeHandle) Set(key string, value any) error {
	for i, s := range f.slots {
		if s.Key != key {
			continue
		}
		if fmt.Sprintf("%T", s.Value) != fmt.Sprintf("%T", value) {
			return domain.ErrIncompatibleSlot
		}
		f.slots[i].Value = value
		return nil
	}
	return domain.ErrUnknownSlot
}

func (f *fakeHandle) get(key string) any {
	for _, s := range f.slots {
		if s.Key == key {
			return s.Value
		}
	}
	return nil
}

func TestCapture(t *testing.T) {
	h := &fakeHandle{slots: []domain.Slot{
		{Key: "title", Public: true, Value: "Todo"},
		{Key: "items", Value: []string{"milk"}},
	}}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	full := Capture("list", h, domain.PreserveFull, at)
	assert.Equal(t, map[string]any{"title": "Todo", "items": []string{"milk"}}, full.Slots)
	assert.Equal(t, at, full.TakenAt)

	public := Capture("list", h, domain.PreservePublicOnly, at)
	assert.Equal(t, map[string]any{"title": "Todo"}, public.Slots)

	empty := Capture("list", nil, domain.PreserveFull, at)
	assert.Empty(t, empty.Slots)
}

func TestReinject_RoundTrip(t *testing.T) {
	old := &fakeHandle{slots: []domain.Slot{
		{Key: "title", Public: true, Value: "Groceries"},
		{Key: "items", Value: []string{"milk", "eggs"}},
		{Key: "legacy", Value: true},
	}}
	snap := Capture("list", old, domain.PreserveFull, time.Now())

	next := &fakeHandle{slots: []domain.Slot{
		{Key: "title", Public: true, Value: "Todo"},
		{Key: "items", Value: []string{}},
		{Key: "filter", Value: "all"},
	}}
	report, misses := Reinject(next, snap)

	assert.Empty(t, misses)
	assert.Equal(t, []string{"items", "title"}, report.Restored)
	assert.Equal(t, []string{"legacy"}, report.Dropped)
	assert.Equal(t, []string{"filter"}, report.Fresh)
	assert.Equal(t, "Groceries", next.get("title"))
	assert.Equal(t, []string{"milk", "eggs"}, next.get("items"))
	assert.Equal(t, "all", next.get("filter"))
}

func TestReinject_IncompatibleValueIsMissed(t *testing.T) {
	snap := &domain.StateSnapshot{InstanceID: "c", Policy: domain.PreserveFull, Slots: map[string]any{"count": 3}}
	next := &fakeHandle{slots: []domain.Slot{{Key: "count", Value: "0"}}}

	report, misses := Reinject(next, snap)

	assert.Equal(t, []string{"count"}, report.Missed)
	if assert.Len(t, misses, 1) {
		assert.ErrorIs(t, misses[0].Err, domain.ErrIncompatibleSlot)
	}
	assert.Equal(t, "0", next.get("count"), "no coercion")
}

func TestReinject_PublicOnlyLeavesPrivateSlots(t *testing.T) {
	snap := &domain.StateSnapshot{Policy: domain.PreservePublicOnly, Slots: map[string]any{"title": "x"}}
	next := &fakeHandle{slots: []domain.Slot{
		{Key: "title", Public: true, Value: "y"},
		{Key: "cache", Value: 1},
	}}

	report, _ := Reinject(next, snap)

	assert.Equal(t, []string{"title"}, report.Restored)
	assert.Empty(t, report.Fresh, "private slots are outside the policy")
	assert.Equal(t, 1, next.get("cache"))
}

func TestReinject_NilSnapshot(t *testing.T) {
	next := &fakeHandle{slots: []domain.Slot{{Key: "count", Value: 0}}}
	report, misses := Reinject(next, nil)
	assert.Empty(t, misses)
	assert.Equal(t, []string{"count"}, report.Fresh)
}
