package ports

import (
	"context"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Runtime is the driven port onto the UI framework.
// The coordinator never renders or diffs; it only mounts, tears down and
// reads/writes state through the returned Handle.
type Runtime interface {
	// Mount constructs an instance of impl and runs its mount lifecycle.
	// initial carries the props the tree mounts the instance with.
	// A returned error or a panic is treated as a construction failure.
	Mount(ctx context.Context, impl domain.ImplRef, initial map[string]any) (domain.Handle, error)

	// Teardown releases the instance's live resources (timers, subscriptions).
	// The coordinator calls it exactly once per mounted handle.
	Teardown(ctx context.Context, h domain.Handle) error
}

// PlaceholderRenderer is implemented by runtimes that can render a stand-in
// for an instance whose construction failed (optimistic mode).
type PlaceholderRenderer interface {
	RenderPlaceholder(ctx context.Context, p *domain.PlaceholderRecord) error
}
