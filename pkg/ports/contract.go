package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTransportContract runs a suite of tests to verify that a Transport implementation
// delivers events in emission order without losing their fields.
// drain must return the events observed by the consumer side, waiting up to the
// given timeout for want events to arrive.
func RunTransportContract(t *testing.T, transport Transport, drain func(want int, timeout time.Duration) []domain.Event) {
	ctx := context.Background()
	cycle := "contract-" + time.Now().Format("20060102150405")

	t.Run("Ordered Delivery", func(t *testing.T) {
		sent := []domain.Event{
			{Seq: 1, Cycle: cycle, Type: domain.EventReceived},
			{Seq: 2, Cycle: cycle, Type: domain.EventDeciding},
			{Seq: 3, Cycle: cycle, Type: domain.EventApplying, Subject: "A"},
			{Seq: 4, Cycle: cycle, Type: domain.EventApplied, Subject: "A"},
		}
		for _, e := range sent {
			require.NoError(t, transport.Emit(ctx, e), "Emit should not return error")
		}

		got := drain(len(sent), 2*time.Second)
		require.Len(t, got, len(sent))
		for i := range sent {
			assert.Equal(t, sent[i].String(), got[i].String(), "event %d out of order", i)
			assert.Equal(t, sent[i].Seq, got[i].Seq)
		}
	})

	t.Run("Failure Fields", func(t *testing.T) {
		e := domain.Event{
			Seq:     5,
			Cycle:   cycle,
			Type:    domain.EventError,
			Subject: "counter-1",
			Kind:    domain.KindConstructionFailure,
			Channel: domain.ChannelPlaceholder,
			Message: fmt.Sprintf("boom at %s", cycle),
		}
		require.NoError(t, transport.Emit(ctx, e))

		got := drain(1, 2*time.Second)
		require.Len(t, got, 1)
		assert.Equal(t, e.Kind, got[0].Kind)
		assert.Equal(t, e.Channel, got[0].Channel)
		assert.Equal(t, e.Message, got[0].Message)
		assert.Equal(t, "error:counter-1", got[0].String())
	})
}
