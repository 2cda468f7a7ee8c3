package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/aretw0/hotswap/internal/logging"
)

// SignalContext is cancelled by SIGINT or SIGTERM and remembers which one arrived,
// so a session can tell a user interrupt from a supervisor shutdown.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc
	got    atomic.Pointer[os.Signal]
}

// NewSignalContext starts listening for SIGINT and SIGTERM until parent is done.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			sc.got.Store(&sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	if p := sc.got.Load(); p != nil {
		return *p
	}
	return nil
}

// createLogger returns a stderr logger in debug mode, keeping stdout for events,
// and a no-op logger otherwise.
func createLogger(debug bool, format logging.Format) *slog.Logger {
	if !debug {
		return logging.NewNop()
	}
	return logging.NewWithWriter(os.Stderr, slog.LevelDebug, format)
}

func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> "+format+"\n", args...)
}

// isInterrupted reports errors that mean the session was stopped, not broken:
// a cancelled context or a closed packet stream.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

func logCompletion(w io.Writer, err error, sig os.Signal) {
	var msg string
	switch {
	case sig == os.Interrupt:
		msg = "Interrupted (ctrl+c)."
	case sig != nil:
		msg = fmt.Sprintf("Stopped by %v.", sig)
	case err == nil:
		msg = "Session finished."
	case isInterrupted(err):
		msg = "Interrupted."
	default:
		return
	}
	printSystemMessage(w, "%s", msg)
}
