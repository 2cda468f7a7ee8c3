package hotswap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/internal/runtime"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
)

// Version is the release of the coordinator.
const Version = "0.3.0"

// Coordinator is the high-level entry point for the library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Coordinator struct {
	engine      *runtime.Engine
	transport   ports.Transport
	cfg         domain.Config
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxParallel int
	modules     []domain.ModuleRecord
	Name        string
}

// Option defines a functional option for configuring the Coordinator.
type Option func(*Coordinator)

// WithTransport sets where lifecycle events are delivered.
func WithTransport(t ports.Transport) Option {
	return func(c *Coordinator) {
		c.transport = t
	}
}

// WithConfig sets the recognized options (preserveState, optimistic, verboseEvents, overlay).
func WithConfig(cfg domain.Config) Option {
	return func(c *Coordinator) {
		c.cfg = cfg
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMaxParallel lets independent subtrees of one cycle apply concurrently.
func WithMaxParallel(n int) Option {
	return func(c *Coordinator) {
		c.maxParallel = n
	}
}

// WithModules seeds the module graph.
func WithModules(records ...domain.ModuleRecord) Option {
	return func(c *Coordinator) {
		c.modules = append(c.modules, records...)
	}
}

// WithName labels the dev session in logs.
func WithName(name string) Option {
	return func(c *Coordinator) {
		c.Name = name
	}
}

// New initializes a coordinator driving rt.
func New(rt ports.Runtime, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{cfg: domain.DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.Name != "" {
		c.logger = c.logger.With("session", c.Name)
	}

	engine, err := runtime.NewEngine(rt, c.transport,
		runtime.WithConfig(c.cfg),
		runtime.WithLifecycleHooks(c.hooks),
		runtime.WithLogger(c.logger),
		runtime.WithMaxParallel(c.maxParallel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	for _, rec := range c.modules {
		engine.RegisterModule(rec)
	}
	c.engine = engine
	return c, nil
}

// RegisterModule tracks a module of the initial graph.
func (c *Coordinator) RegisterModule(rec domain.ModuleRecord) {
	c.engine.RegisterModule(rec)
}

// Mount constructs the instance id of moduleID under the failure boundary.
func (c *Coordinator) Mount(ctx context.Context, id, moduleID, parentID string, props map[string]any) (domain.InstanceState, error) {
	return c.engine.Mount(ctx, id, moduleID, parentID, props)
}

// Unmount tears the instance down.
func (c *Coordinator) Unmount(ctx context.Context, id string) error {
	return c.engine.Unmount(ctx, id)
}

// Enqueue hands an update packet to the sequencer.
// When the pipeline is idle the packet is processed before Enqueue returns.
func (c *Coordinator) Enqueue(ctx context.Context, packet domain.UpdatePacket) error {
	return c.engine.Enqueue(ctx, packet)
}

// ReportMalformed reports input that never decoded into a packet as a
// MalformedUpdate error event.
func (c *Coordinator) ReportMalformed(ctx context.Context, subject string, cause error) {
	c.engine.ReportMalformed(ctx, subject, cause)
}

// Wait blocks until every enqueued packet has settled.
func (c *Coordinator) Wait(ctx context.Context) error {
	return c.engine.Wait(ctx)
}

// Instances lists the instance table.
func (c *Coordinator) Instances() []domain.InstanceView {
	return c.engine.Instances()
}

// Instance returns the state of one instance.
func (c *Coordinator) Instance(id string) (domain.InstanceState, bool) {
	return c.engine.Instance(id)
}

// Graph lists the tracked module records.
func (c *Coordinator) Graph() []domain.ModuleRecord {
	return c.engine.Graph()
}

// Config returns the active configuration.
func (c *Coordinator) Config() domain.Config {
	return c.engine.Config()
}

var (
	_ ports.Coordinator       = (*Coordinator)(nil)
	_ ports.MalformedReporter = (*Coordinator)(nil)
)
