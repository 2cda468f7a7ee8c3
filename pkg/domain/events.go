package domain

import (
	"context"
	"time"
)

// EventType defines the lifecycle stage an event reports.
type EventType string

const (
	EventReceived EventType = "received"
	EventDeciding EventType = "deciding"
	EventApplying EventType = "applying"
	// EventApplied closes a subtree's stage. It does not promise every instance
	// runs the new code: reverted or placeholder instances are listed in Reports.
	EventApplied  EventType = "applied"
	EventRejected EventType = "rejected"
	EventError    EventType = "error"
)

// Terminal reports whether the event type closes a stage and is always emitted,
// even when verbose events are disabled.
func (t EventType) Terminal() bool {
	switch t {
	case EventApplied, EventRejected, EventError:
		return true
	}
	return false
}

// Channel is the surface on which a failure is displayed.
type Channel string

const (
	ChannelTransport   Channel = "transport"
	ChannelOverlay     Channel = "overlay"
	ChannelPlaceholder Channel = "placeholder"
)

// Event is one ordered lifecycle record emitted by the status reporter.
type Event struct {
	Seq       uint64    `json:"seq"`
	Cycle     string    `json:"cycle"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Subject is the subtree (boundary module), instance id or "reload".
	Subject string `json:"subject,omitempty"`

	Kind    ErrorKind `json:"kind,omitempty"`
	Channel Channel   `json:"channel,omitempty"`
	Message string    `json:"message,omitempty"`

	// Reports are attached to applied events when verbose events are on
	// or when a slot could not be transplanted.
	Reports []PreservationReport `json:"reports,omitempty"`
}

// String renders the event as "type" or "type:subject".
func (e Event) String() string {
	if e.Subject == "" {
		return string(e.Type)
	}
	return string(e.Type) + ":" + e.Subject
}

// LifecycleHooks defines callbacks for coordinator observability.
// Hooks run synchronously after the transport received the event.
type LifecycleHooks struct {
	OnEvent        func(context.Context, *Event)
	OnCycleStart   func(ctx context.Context, cycle string, packet UpdatePacket)
	OnCycleSettled func(ctx context.Context, cycle string, elapsed time.Duration, reloaded bool)
}
