package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/hotswap/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Transport implements ports.Transport using Redis pub/sub.
// Every event is published on <prefix>events and appended to a capped
// <prefix>history list so tooling attaching late can catch up.
type Transport struct {
	client  *backend.Client
	prefix  string
	history int64
}

// Option configures the Redis adapters.
type Option func(*options)

type options struct {
	prefix  string
	history int64
}

func defaultOptions() options {
	return options{prefix: "hotswap:", history: 256}
}

// WithPrefix sets the key and channel prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithHistory caps the event history list. Zero disables it.
func WithHistory(n int64) Option {
	return func(o *options) {
		o.history = n
	}
}

// NewTransport creates a transport from an existing client.
func NewTransport(client *backend.Client, opts ...Option) *Transport {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Transport{client: client, prefix: o.prefix, history: o.history}
}

// EventsChannel is the pub/sub channel events are published on.
func (t *Transport) EventsChannel() string {
	return t.prefix + "events"
}

func (t *Transport) historyKey() string {
	return t.prefix + "history"
}

// Emit publishes the event.
func (t *Transport) Emit(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := t.client.Pipeline()
	pipe.Publish(ctx, t.EventsChannel(), data)
	if t.history > 0 {
		pipe.RPush(ctx, t.historyKey(), data)
		pipe.LTrim(ctx, t.historyKey(), -t.history, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// History returns up to the last n recorded events, oldest first.
func (t *Transport) History(ctx context.Context, n int64) ([]domain.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := t.client.LRange(ctx, t.historyKey(), -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	events := make([]domain.Event, 0, len(raw))
	for _, r := range raw {
		var e domain.Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("corrupt history entry: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
