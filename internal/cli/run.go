package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aretw0/hotswap"
	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/internal/presentation/tui"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ManifestPath string
	Input        io.Reader
	Output       io.Writer
	Headless     bool
	JSON         bool
	Debug        bool
	MaxParallel  int

	// Watch follows saves of the manifest instead of reading packets from Input.
	// Interval is the quiet period collapsing a burst of saves into one reload.
	Watch    bool
	Interval time.Duration
}

// Execute handles the run command, dispatching to stream or watch mode.
func Execute(opts RunOptions) error {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Watch && opts.JSON {
		return fmt.Errorf("--watch and --json cannot be used together")
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	var err error
	if opts.Watch {
		err = RunWatch(sigCtx, opts)
	} else {
		err = RunSession(sigCtx, opts)
	}
	if !opts.Headless && !opts.JSON {
		logCompletion(opts.Output, err, sigCtx.Signal())
	}
	return handleExecutionError(err)
}

// RunSession mounts the manifest's tree and applies JSON update packets read
// line by line from opts.Input.
func RunSession(ctx context.Context, opts RunOptions) error {
	m, err := config.Load(opts.ManifestPath)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, m, opts)
	if err != nil {
		return err
	}

	return newRunnerFor(opts).Run(ctx, s.Coordinator)
}

func newRunnerFor(opts RunOptions) *hotswap.Runner {
	runner := hotswap.NewRunner()
	runner.Input = opts.Input
	runner.Output = opts.Output
	runner.Headless = opts.Headless || opts.JSON
	return runner
}

func openSession(ctx context.Context, m *config.Manifest, opts RunOptions) (*Session, error) {
	format := logging.FormatText
	if opts.JSON {
		format = logging.FormatJSON
	}
	so := SessionOptions{
		Logger:      createLogger(opts.Debug, format),
		MaxParallel: opts.MaxParallel,
	}

	switch {
	case opts.JSON:
		so.Transports = append(so.Transports, jsonTransport(opts.Output))
	case !opts.Headless:
		tui.PrintBanner(opts.Output, hotswap.Version)
		printer := tui.NewPrinter(opts.Output)
		so.Transports = append(so.Transports, printer)
		so.Placeholders = printer
	}
	return NewSession(ctx, m, so)
}

// jsonTransport writes one JSON encoded event per line.
func jsonTransport(w io.Writer) ports.Transport {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return ports.TransportFunc(func(ctx context.Context, e domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(e)
	})
}
