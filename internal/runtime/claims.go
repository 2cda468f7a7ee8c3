package runtime

import (
	"context"
	"sync"
)

// claimEntry marks an instance id as being in transition.
type claimEntry struct {
	done chan struct{}
}

// claims serializes transitions (mount, replace, unmount) per instance id so the
// old instance is always torn down before its replacement is constructed.
//
// Unlike a mutex, waiting is context-aware and entries are garbage collected as
// soon as the transition completes.
type claims struct {
	mu      sync.Mutex
	entries map[string]*claimEntry
}

func newClaims() *claims {
	return &claims{entries: make(map[string]*claimEntry)}
}

// acquire waits until id is free, then claims it. The returned release func
// MUST be called once the transition is over.
func (c *claims) acquire(ctx context.Context, id string) (func(), error) {
	for {
		c.mu.Lock()
		entry, busy := c.entries[id]
		if !busy {
			entry = &claimEntry{done: make(chan struct{})}
			c.entries[id] = entry
			c.mu.Unlock()
			return func() {
				c.mu.Lock()
				delete(c.entries, id)
				c.mu.Unlock()
				close(entry.done)
			}, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-entry.done:
		}
	}
}

// active returns the number of ids currently in transition.
func (c *claims) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
