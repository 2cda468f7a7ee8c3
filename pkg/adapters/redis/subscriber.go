package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Subscriber feeds update packets published on <prefix>updates into a coordinator.
type Subscriber struct {
	client      *backend.Client
	coordinator ports.Coordinator
	prefix      string
	logger      *slog.Logger
	locker      *Locker
	lockTTL     time.Duration
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithExclusive makes the subscriber hold a distributed lock while consuming, so
// only one coordinator of a dev session applies its updates.
func WithExclusive(locker *Locker, ttl time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

// NewSubscriber creates a subscriber. opts are the shared prefix options.
func NewSubscriber(client *backend.Client, c ports.Coordinator, opts []Option, sopts ...SubscriberOption) *Subscriber {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Subscriber{
		client:      client,
		coordinator: c,
		prefix:      o.prefix,
		logger:      logging.NewNop(),
	}
	for _, opt := range sopts {
		opt(s)
	}
	return s
}

// UpdatesChannel is the pub/sub channel bundlers publish packets on.
func (s *Subscriber) UpdatesChannel() string {
	return s.prefix + "updates"
}

// Publish sends a packet to the updates channel (bundler side).
func Publish(ctx context.Context, client *backend.Client, prefix string, packet domain.UpdatePacket) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}
	return client.Publish(ctx, prefix+"updates", data).Err()
}

// Run consumes packets until ctx is done. ready, when not nil, is closed once the
// subscription is confirmed. An exclusive subscriber keeps its lock alive while
// consuming and stops with ErrLockLost when it cannot.
func (s *Subscriber) Run(ctx context.Context, ready chan<- struct{}) error {
	if s.locker == nil {
		return s.consume(ctx, ready)
	}

	lease, err := s.locker.Acquire(ctx, s.UpdatesChannel(), s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release consumer lock", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := lease.KeepAlive(gctx); err != nil {
			s.logger.Error("consumer lock lost", "channel", s.UpdatesChannel(), "err", err)
			return fmt.Errorf("consume %s: %w", s.UpdatesChannel(), err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.consume(gctx, ready); err != nil {
			return err
		}
		// consume only returns nil once gctx is done; surface why.
		return gctx.Err()
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Subscriber) consume(ctx context.Context, ready chan<- struct{}) error {
	sub := s.client.Subscribe(ctx, s.UpdatesChannel())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.UpdatesChannel(), err)
	}
	if ready != nil {
		close(ready)
	}
	s.logger.Info("consuming update packets", "channel", s.UpdatesChannel())

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

// handle decodes one published packet. Undecodable payloads are reported to the
// coordinator as malformed updates when it supports that.
func (s *Subscriber) handle(ctx context.Context, payload string) {
	var packet domain.UpdatePacket
	if err := json.Unmarshal([]byte(payload), &packet); err != nil {
		s.logger.Warn("dropping undecodable packet", "err", err, "size", len(payload))
		ports.ReportMalformed(ctx, s.coordinator, s.UpdatesChannel(), fmt.Errorf("%w: %w", domain.ErrMalformedUpdate, err))
		return
	}
	if err := s.coordinator.Enqueue(ctx, packet); err != nil {
		s.logger.Warn("packet rejected", "err", err)
	}
}
