package domain

import (
	"fmt"
	"strings"
)

// Config is the recognized option surface of the coordinator.
type Config struct {
	// PreserveState selects the preservation policy (full or public-only).
	PreserveState PreservePolicy `json:"preserveState" yaml:"preserveState" mapstructure:"preserveState"`

	// Optimistic converts construction failures into placeholders instead of
	// reverting or reloading.
	Optimistic bool `json:"optimistic" yaml:"optimistic" mapstructure:"optimistic"`

	// VerboseEvents emits the intermediate received/deciding/applying events.
	VerboseEvents bool `json:"verboseEvents" yaml:"verboseEvents" mapstructure:"verboseEvents"`

	// Overlay surfaces compile failures through the transport's overlay channel.
	// Construction failures in optimistic mode stay on the placeholder channel.
	Overlay bool `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
}

// DefaultConfig mirrors a dev server with state preservation and status messages on.
func DefaultConfig() Config {
	return Config{
		PreserveState: PreserveFull,
		VerboseEvents: true,
	}
}

// Normalize canonicalises hand-written values: the policy is trimmed and
// lowercased, and an empty policy means full preservation.
func (c Config) Normalize() Config {
	p := PreservePolicy(strings.ToLower(strings.TrimSpace(string(c.PreserveState))))
	switch p {
	case "":
		p = PreserveFull
	case "public", "publiconly", "public_only":
		p = PreservePublicOnly
	}
	c.PreserveState = p
	return c
}

// Validate checks option values.
func (c Config) Validate() error {
	if !c.PreserveState.Valid() {
		return fmt.Errorf("invalid preserveState %q: expected %q or %q", c.PreserveState, PreserveFull, PreservePublicOnly)
	}
	return nil
}

// FailureChannel picks the single channel on which a failure of the given kind is
// reported. Optimistic placeholders take precedence over the overlay, so the same
// failure is never reported twice.
func (c Config) FailureChannel(kind ErrorKind) Channel {
	switch kind {
	case KindConstructionFailure:
		if c.Optimistic {
			return ChannelPlaceholder
		}
		return ChannelTransport
	case KindCompileFailure:
		if c.Optimistic {
			return ChannelPlaceholder
		}
		if c.Overlay {
			return ChannelOverlay
		}
		return ChannelTransport
	}
	return ChannelTransport
}
