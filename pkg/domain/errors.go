package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the coordinator.
type ErrorKind string

const (
	KindMalformedUpdate     ErrorKind = "malformed_update"
	KindAmbiguousBoundary   ErrorKind = "ambiguous_boundary"
	KindPreservationMiss    ErrorKind = "preservation_miss"
	KindConstructionFailure ErrorKind = "construction_failure"
	KindTeardownFailure     ErrorKind = "teardown_failure"
	KindCompileFailure      ErrorKind = "compile_failure"
)

var (
	// ErrMalformedUpdate is returned for packet entries with a bad shape.
	ErrMalformedUpdate = errors.New("malformed update")

	// ErrAmbiguousBoundary is returned when the graph walk cannot resolve an owner.
	ErrAmbiguousBoundary = errors.New("ambiguous boundary")

	// ErrPreservationMiss is returned when a state slot could not be transplanted.
	ErrPreservationMiss = errors.New("preservation miss")

	// ErrConstructionFailure is returned when an implementation fails to mount.
	ErrConstructionFailure = errors.New("construction failure")

	// ErrTeardownFailure is returned when an old instance's teardown hook fails.
	ErrTeardownFailure = errors.New("teardown failure")

	// ErrCompileFailure is returned for modules the bundler failed to compile.
	ErrCompileFailure = errors.New("compile failure")

	// ErrIncompatibleSlot is returned by Handle.Set when the value does not fit the slot.
	ErrIncompatibleSlot = errors.New("incompatible slot value")

	// ErrUnknownSlot is returned by Handle.Set when the key does not exist.
	ErrUnknownSlot = errors.New("unknown slot")

	// ErrInstanceNotFound is returned when an instance id is not in the table.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrDuplicateInstance is returned when mounting an id that is already tracked.
	ErrDuplicateInstance = errors.New("duplicate instance")

	// ErrReloadRequired is returned when containment cannot keep the session alive.
	ErrReloadRequired = errors.New("full reload required")
)

var kindSentinels = map[ErrorKind]error{
	KindMalformedUpdate:     ErrMalformedUpdate,
	KindAmbiguousBoundary:   ErrAmbiguousBoundary,
	KindPreservationMiss:    ErrPreservationMiss,
	KindConstructionFailure: ErrConstructionFailure,
	KindTeardownFailure:     ErrTeardownFailure,
	KindCompileFailure:      ErrCompileFailure,
}

// Error is a classified coordinator failure about one subject (module, instance or slot).
type Error struct {
	Kind    ErrorKind
	Subject string
	Err     error
}

// NewError builds an *Error.
func NewError(kind ErrorKind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrConstructionFailure) works.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf extracts the ErrorKind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
