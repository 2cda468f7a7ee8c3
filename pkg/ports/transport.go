package ports

import (
	"context"
	"errors"

	"github.com/aretw0/hotswap/pkg/domain"
)

// Transport carries lifecycle events to dev tooling (browser overlay, test harness).
// Emit is called synchronously, in stage order, once the stage completed.
type Transport interface {
	Emit(ctx context.Context, e domain.Event) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, e domain.Event) error

func (f TransportFunc) Emit(ctx context.Context, e domain.Event) error {
	return f(ctx, e)
}

// MultiTransport delivers every event to each transport in order. A failing
// transport does not stop delivery to the others; their errors are joined.
func MultiTransport(transports ...Transport) Transport {
	return TransportFunc(func(ctx context.Context, e domain.Event) error {
		var errs []error
		for _, t := range transports {
			if t == nil {
				continue
			}
			if err := t.Emit(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Coordinator is the driving port used by inbound adapters (HTTP, MCP, Redis).
type Coordinator interface {
	// Enqueue hands an update packet to the sequencer.
	Enqueue(ctx context.Context, packet domain.UpdatePacket) error

	// Instances lists the instance table.
	Instances() []domain.InstanceView

	// Graph lists the tracked module records.
	Graph() []domain.ModuleRecord
}

// MalformedReporter is implemented by coordinators that surface input which never
// became a packet (undecodable lines or messages) through their status reporter.
// Inbound adapters detect it by type assertion.
type MalformedReporter interface {
	ReportMalformed(ctx context.Context, subject string, cause error)
}

// ReportMalformed forwards to c when it is a MalformedReporter and reports
// whether it did.
func ReportMalformed(ctx context.Context, c Coordinator, subject string, cause error) bool {
	r, ok := c.(MalformedReporter)
	if ok {
		r.ReportMalformed(ctx, subject, cause)
	}
	return ok
}
