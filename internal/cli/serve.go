package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/hotswap"
	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/internal/presentation/tui"
	httpadapter "github.com/aretw0/hotswap/pkg/adapters/http"
	redisadapter "github.com/aretw0/hotswap/pkg/adapters/redis"
	"github.com/aretw0/hotswap/pkg/observability"
	"github.com/aretw0/hotswap/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions configures the dev server. Zero values fall back to the
// manifest's server section.
type ServeOptions struct {
	ManifestPath string
	Addr         string
	RedisURL     string
	RedisPrefix  string
	Exclusive    bool
	MaxParallel  int
	Debug        bool
	JSONLogs     bool
	Quiet        bool
	Output       io.Writer
}

// Serve runs a session behind the HTTP adapter until ctx is done. With a Redis
// URL, events are also published to Redis and update packets are consumed from it.
func Serve(ctx context.Context, opts ServeOptions) error {
	m, err := config.Load(opts.ManifestPath)
	if err != nil {
		return err
	}
	mergeServerOptions(&m.Server, opts)

	format := logging.FormatText
	if opts.JSONLogs {
		format = logging.FormatJSON
	}
	logger := createLogger(opts.Debug, format)

	out := opts.Output
	if out == nil || opts.Quiet {
		out = io.Discard
	}
	if !opts.Quiet {
		tui.PrintBanner(out, hotswap.Version)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	streams := httpadapter.NewStreamManager()
	printer := tui.NewPrinter(out)
	transports := []ports.Transport{streams, printer}

	var client *backend.Client
	if m.Server.RedisURL != "" {
		redisOpts, err := backend.ParseURL(m.Server.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client = backend.NewClient(redisOpts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		transports = append(transports, redisadapter.NewTransport(client, redisPrefix(m.Server)...))
	}

	s, err := NewSession(ctx, m, SessionOptions{
		Transports:   transports,
		Placeholders: printer,
		Hooks:        metrics.Hooks(),
		Logger:       logger,
		MaxParallel:  m.Server.MaxParallel,
	})
	if err != nil {
		return err
	}
	metrics.TrackInstances(reg, s.Coordinator.Instances)

	srv := &http.Server{
		Addr:              m.Server.Addr,
		Handler:           httpadapter.NewHandler(s.Coordinator, streams, httpadapter.WithMetrics(reg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		printSystemMessage(out, "Serving %s on %s", m.Name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if client != nil {
		subOpts := []redisadapter.SubscriberOption{redisadapter.WithLogger(logger)}
		if m.Server.Exclusive {
			locker := redisadapter.NewLocker(client, prefixOf(m.Server))
			subOpts = append(subOpts, redisadapter.WithExclusive(locker, 30*time.Second))
		}
		sub := redisadapter.NewSubscriber(client, s.Coordinator, redisPrefix(m.Server), subOpts...)
		go func() {
			if err := sub.Run(ctx, nil); err != nil {
				errCh <- fmt.Errorf("redis subscriber: %w", err)
			}
		}()
	}

	select {
	case err = <-errCh:
		logger.Error("server stopped", "err", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", shutErr)
		_ = srv.Close()
	}
	if waitErr := s.Coordinator.Wait(shutdownCtx); waitErr != nil {
		logger.Warn("pending cycle did not settle", "err", waitErr)
	}
	printSystemMessage(out, "Server stopped.")
	return err
}

func mergeServerOptions(s *config.Server, opts ServeOptions) {
	if opts.Addr != "" {
		s.Addr = opts.Addr
	}
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if opts.RedisURL != "" {
		s.RedisURL = opts.RedisURL
	}
	if opts.RedisPrefix != "" {
		s.RedisPrefix = opts.RedisPrefix
	}
	if opts.Exclusive {
		s.Exclusive = true
	}
	if opts.MaxParallel != 0 {
		s.MaxParallel = opts.MaxParallel
	}
}

func prefixOf(s config.Server) string {
	if s.RedisPrefix == "" {
		return "hotswap:"
	}
	return s.RedisPrefix
}

func redisPrefix(s config.Server) []redisadapter.Option {
	return []redisadapter.Option{redisadapter.WithPrefix(prefixOf(s))}
}
