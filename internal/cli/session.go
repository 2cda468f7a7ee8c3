package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/hotswap"
	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/pkg/adapters/memory"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
)

// SessionOptions wires the outer surfaces of a session.
type SessionOptions struct {
	Transports  []ports.Transport
	Hooks       domain.LifecycleHooks
	Logger      *slog.Logger
	MaxParallel int

	// Placeholders additionally receives every placeholder the coordinator renders.
	Placeholders ports.PlaceholderRenderer
}

// Session is a coordinator driving the in-memory runtime described by a manifest.
type Session struct {
	Manifest    *config.Manifest
	Runtime     *memory.Runtime
	Coordinator *hotswap.Coordinator
}

// sessionRuntime forwards placeholders to an extra renderer (the terminal).
type sessionRuntime struct {
	*memory.Runtime
	extra ports.PlaceholderRenderer
}

func (r sessionRuntime) RenderPlaceholder(ctx context.Context, p *domain.PlaceholderRecord) error {
	if err := r.Runtime.RenderPlaceholder(ctx, p); err != nil {
		return err
	}
	if r.extra != nil {
		return r.extra.RenderPlaceholder(ctx, p)
	}
	return nil
}

// NewSession defines the manifest's components, seeds the module graph and mounts
// the initial tree.
func NewSession(ctx context.Context, m *config.Manifest, opts SessionOptions) (*Session, error) {
	rt := memory.NewRuntime()
	for _, c := range m.Components {
		rt.Define(c.Module, c.Version, c.Memory())
	}

	maxParallel := opts.MaxParallel
	if maxParallel == 0 {
		maxParallel = m.Server.MaxParallel
	}

	coordOpts := []hotswap.Option{
		hotswap.WithConfig(m.Config),
		hotswap.WithModules(m.Modules...),
		hotswap.WithLifecycleHooks(opts.Hooks),
		hotswap.WithMaxParallel(maxParallel),
		hotswap.WithName(m.Name),
	}
	if len(opts.Transports) > 0 {
		coordOpts = append(coordOpts, hotswap.WithTransport(ports.MultiTransport(opts.Transports...)))
	}
	if opts.Logger != nil {
		coordOpts = append(coordOpts, hotswap.WithLogger(opts.Logger))
	}

	c, err := hotswap.New(sessionRuntime{Runtime: rt, extra: opts.Placeholders}, coordOpts...)
	if err != nil {
		return nil, err
	}

	for _, in := range m.Instances {
		if _, err := c.Mount(ctx, in.ID, in.Module, in.Parent, in.Props); err != nil {
			return nil, fmt.Errorf("mount %s: %w", in.ID, err)
		}
	}
	return &Session{Manifest: m, Runtime: rt, Coordinator: c}, nil
}

// Define registers additional component implementations on the session runtime.
func (s *Session) Define(components ...config.Component) {
	for _, c := range components {
		s.Runtime.Define(c.Module, c.Version, c.Memory())
	}
}
