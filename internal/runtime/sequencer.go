package runtime

import (
	"context"
	"sync"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Sequencer serializes update packets so exactly one cycle is in flight.
//
// Packets arriving while a cycle runs are merged into a single pending packet
// (later version wins per module) instead of being queued one by one, so stale
// intermediate states are never applied. The goroutine that finds the sequencer
// idle drains it; every other caller returns right after merging.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Wait(): safe from any goroutine
//   - process: never runs concurrently with itself
type Sequencer struct {
	process func(ctx context.Context, packet domain.UpdatePacket)

	mu      sync.Mutex
	pending *domain.UpdatePacket
	busy    bool
	idle    chan struct{} // closed while no cycle is in flight
	merged  int           // packets folded into a pending one, for diagnostics
}

// NewSequencer creates a sequencer running process for each cycle.
func NewSequencer(process func(ctx context.Context, packet domain.UpdatePacket)) *Sequencer {
	idle := make(chan struct{})
	close(idle)
	return &Sequencer{process: process, idle: idle}
}

// Enqueue adds a packet. It returns true when the caller processed the queue
// itself and false when the packet was merged into the pending cycle of another
// caller. Processing is detached from ctx cancellation so a cycle is never left
// half-applied.
func (s *Sequencer) Enqueue(ctx context.Context, packet domain.UpdatePacket) bool {
	s.mu.Lock()
	if s.pending == nil {
		cp := domain.UpdatePacket{Modules: append([]domain.PacketEntry(nil), packet.Modules...)}
		s.pending = &cp
	} else {
		merged := s.pending.Merge(packet)
		s.pending = &merged
		s.merged++
	}
	if s.busy {
		s.mu.Unlock()
		return false
	}
	s.busy = true
	s.idle = make(chan struct{})
	s.mu.Unlock()

	s.drain(context.WithoutCancel(ctx))
	return true
}

func (s *Sequencer) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.pending == nil {
			s.busy = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		packet := *s.pending
		s.pending = nil
		s.mu.Unlock()

		s.process(ctx, packet)
	}
}

// Wait blocks until no cycle is in flight or pending, or ctx is done.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a cycle is in flight.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Merged returns how many packets were folded into a pending cycle so far.
func (s *Sequencer) Merged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merged
}
