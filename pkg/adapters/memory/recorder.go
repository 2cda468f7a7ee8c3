package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Recorder implements ports.Transport by keeping every event in memory.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	cursor int
	signal chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 1)}
}

// Emit appends the event.
func (r *Recorder) Emit(ctx context.Context, e domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Names returns the recorded events rendered as "type" or "type:subject".
func (r *Recorder) Names() []string {
	events := r.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.String()
	}
	return names
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.cursor = 0
}

// Drain waits until want events arrived since the previous Drain (or timeout
// elapsed) and returns them.
func (r *Recorder) Drain(want int, timeout time.Duration) []domain.Event {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		if len(r.events)-r.cursor >= want {
			out := append([]domain.Event(nil), r.events[r.cursor:]...)
			r.cursor = len(r.events)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()

		select {
		case <-r.signal:
		case <-deadline.C:
			r.mu.Lock()
			out := append([]domain.Event(nil), r.events[r.cursor:]...)
			r.cursor = len(r.events)
			r.mu.Unlock()
			return out
		}
	}
}
