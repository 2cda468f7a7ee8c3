package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/hotswap/pkg/adapters/memory"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied on top of the manifest's config section.
const (
	EnvPreserveState   = "HOTSWAP_PRESERVE_STATE"
	EnvNoPreserveState = "HOTSWAP_NO_PRESERVE_STATE"
	EnvOptimistic      = "HOTSWAP_OPTIMISTIC"
	EnvVerbose         = "HOTSWAP_VERBOSE"
	EnvOverlay         = "HOTSWAP_OVERLAY"
)

// Manifest describes a dev session: coordinator options, the module graph,
// in-memory component implementations, the initial tree and scripted update steps.
type Manifest struct {
	Name       string                `mapstructure:"name"`
	Config     domain.Config         `mapstructure:"config"`
	Server     Server                `mapstructure:"server"`
	Modules    []domain.ModuleRecord `mapstructure:"modules"`
	Components []Component           `mapstructure:"components"`
	Instances  []Mount               `mapstructure:"instances"`
	Steps      []Step                `mapstructure:"steps"`
}

// Server holds the network settings of `hotswap serve`.
type Server struct {
	Addr        string `mapstructure:"addr"`
	RedisURL    string `mapstructure:"redisUrl"`
	RedisPrefix string `mapstructure:"redisPrefix"`
	Exclusive   bool   `mapstructure:"exclusive"`
	MaxParallel int    `mapstructure:"maxParallel"`
}

// Slot declares one state slot of a component.
type Slot struct {
	Key     string `mapstructure:"key"`
	Public  bool   `mapstructure:"public"`
	Initial any    `mapstructure:"initial"`
}

// Component is one implementation of a module at a version.
type Component struct {
	Module       string `mapstructure:"module"`
	Version      uint64 `mapstructure:"version"`
	Slots        []Slot `mapstructure:"slots"`
	FailMount    string `mapstructure:"failMount"`
	PanicMount   bool   `mapstructure:"panicMount"`
	FailTeardown bool   `mapstructure:"failTeardown"`
}

// Mount is one instance of the initial tree.
type Mount struct {
	ID     string         `mapstructure:"id"`
	Module string         `mapstructure:"module"`
	Parent string         `mapstructure:"parent"`
	Props  map[string]any `mapstructure:"props"`
}

// Step is one scripted update of a replay.
type Step struct {
	Name   string              `mapstructure:"name"`
	Define []Component         `mapstructure:"define"`
	Packet domain.UpdatePacket `mapstructure:"packet"`

	// Expect lists the event names ("type" or "type:subject") the step must emit.
	Expect []string `mapstructure:"expect"`

	// ExpectInstances checks the instance table after the step settled.
	ExpectInstances map[string]InstanceExpect `mapstructure:"expectInstances"`
}

// InstanceExpect is the expected view of one instance.
type InstanceExpect struct {
	Status  domain.InstanceStatus `mapstructure:"status"`
	Version uint64                `mapstructure:"version"`
	State   map[string]any        `mapstructure:"state"`
}

// Load reads and parses the manifest at path, applying environment overrides.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a YAML manifest. lookup resolves environment overrides and may be nil.
func Parse(data []byte, lookup func(string) (string, bool)) (*Manifest, error) {
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	if lookup != nil {
		cfg, _ := raw["config"].(map[string]any)
		if cfg == nil {
			cfg = make(map[string]any)
		}
		if err := applyEnv(cfg, lookup); err != nil {
			return nil, err
		}
		raw["config"] = cfg
	}

	m := &Manifest{Config: domain.DefaultConfig()}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           m,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	m.Config = m.Config.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func applyEnv(cfg map[string]any, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPreserveState); ok && v != "" {
		cfg["preserveState"] = v
	}
	if v, ok := lookup(EnvNoPreserveState); ok && v != "" {
		off, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNoPreserveState, err)
		}
		if off {
			cfg["preserveState"] = string(domain.PreservePublicOnly)
		}
	}
	for env, key := range map[string]string{
		EnvOptimistic: "optimistic",
		EnvVerbose:    "verboseEvents",
		EnvOverlay:    "overlay",
	} {
		if v, ok := lookup(env); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			cfg[key] = b
		}
	}
	return nil
}

// Validate checks the manifest for inconsistencies the coordinator would only
// discover at mount time.
func (m *Manifest) Validate() error {
	if err := m.Config.Validate(); err != nil {
		return err
	}

	modules := make(map[string]uint64, len(m.Modules))
	for i, rec := range m.Modules {
		if rec.ID == "" {
			return fmt.Errorf("modules[%d]: missing id", i)
		}
		if _, dup := modules[rec.ID]; dup {
			return fmt.Errorf("modules[%d]: duplicate module %q", i, rec.ID)
		}
		modules[rec.ID] = rec.Version
	}
	defined := make(map[domain.ImplRef]bool, len(m.Components))
	for i, c := range m.Components {
		if c.Module == "" {
			return fmt.Errorf("components[%d]: missing module", i)
		}
		defined[domain.ImplRef{ModuleID: c.Module, Version: c.Version}] = true
	}

	ids := make(map[string]bool, len(m.Instances))
	for i, in := range m.Instances {
		if in.ID == "" {
			return fmt.Errorf("instances[%d]: missing id", i)
		}
		if ids[in.ID] {
			return fmt.Errorf("instances[%d]: %w: %s", i, domain.ErrDuplicateInstance, in.ID)
		}
		version, ok := modules[in.Module]
		if !ok {
			return fmt.Errorf("instances[%d]: unknown module %q", i, in.Module)
		}
		if !defined[domain.ImplRef{ModuleID: in.Module, Version: version}] {
			return fmt.Errorf("instances[%d]: no component defined for %s@%d", i, in.Module, version)
		}
		if in.Parent != "" && !ids[in.Parent] {
			return fmt.Errorf("instances[%d]: parent %q must be mounted first", i, in.Parent)
		}
		ids[in.ID] = true
	}

	for i, s := range m.Steps {
		if len(s.Packet.Modules) == 0 {
			return fmt.Errorf("steps[%d] %s: empty packet", i, s.Name)
		}
	}
	return nil
}

// Memory converts c into an in-memory runtime component.
func (c Component) Memory() memory.Component {
	slots := make([]memory.SlotSpec, 0, len(c.Slots))
	for _, s := range c.Slots {
		slots = append(slots, memory.SlotSpec{Key: s.Key, Public: s.Public, Initial: s.Initial})
	}
	return memory.Component{
		Slots:        slots,
		FailMount:    c.FailMount,
		PanicMount:   c.PanicMount,
		FailTeardown: c.FailTeardown,
	}
}
