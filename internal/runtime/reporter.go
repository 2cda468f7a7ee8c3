package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
)

// Reporter emits ordered lifecycle events.
// Emission is synchronous: when Emit returns, the transport and the hooks have
// seen the event, which is what tooling relies on to know a cycle settled.
type Reporter struct {
	transport ports.Transport
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	verbose   bool
	now       func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewReporter creates a reporter. A nil transport only logs and runs hooks.
func NewReporter(transport ports.Transport, hooks domain.LifecycleHooks, logger *slog.Logger, verbose bool, now func() time.Time) *Reporter {
	return &Reporter{
		transport: transport,
		hooks:     hooks,
		logger:    logger,
		verbose:   verbose,
		now:       now,
	}
}

// Emit stamps and delivers e. Intermediate events are dropped when verbose
// events are disabled; terminal ones always go out.
func (r *Reporter) Emit(ctx context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.verbose && !e.Type.Terminal() {
		r.logger.DebugContext(ctx, "event suppressed", "event", e.String(), "cycle", e.Cycle)
		return
	}

	r.seq++
	e.Seq = r.seq
	e.Timestamp = r.now()

	level := slog.LevelInfo
	if e.Type == domain.EventError || e.Type == domain.EventRejected {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "hmr event",
		"event", e.String(),
		"cycle", e.Cycle,
		"seq", e.Seq,
		"kind", e.Kind,
		"channel", e.Channel,
		"message", e.Message,
	)

	if r.transport != nil {
		err := guard("transport", func() error {
			return r.transport.Emit(ctx, e)
		})
		if err != nil {
			r.logger.WarnContext(ctx, "transport rejected event", "event", e.String(), "err", err)
		}
	}
	if r.hooks.OnEvent != nil {
		err := guard("event hook", func() error {
			r.hooks.OnEvent(ctx, &e)
			return nil
		})
		if err != nil {
			r.logger.WarnContext(ctx, "event hook failed", "event", e.String(), "err", err)
		}
	}
}

// Failure emits an error event for subject with the classified kind of err.
func (r *Reporter) Failure(ctx context.Context, cycle, subject string, channel domain.Channel, err error) {
	r.Emit(ctx, domain.Event{
		Cycle:   cycle,
		Type:    domain.EventError,
		Subject: subject,
		Kind:    domain.KindOf(err),
		Channel: channel,
		Message: err.Error(),
	})
}
