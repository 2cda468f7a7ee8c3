package cli

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sort"

	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/internal/presentation/tui"
	"github.com/aretw0/hotswap/pkg/adapters/memory"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
)

// ReplayOptions configures a scripted replay of a manifest's steps.
type ReplayOptions struct {
	ManifestPath string
	Output       io.Writer
	Quiet        bool
	Debug        bool
	MaxParallel  int
}

// StepResult is the outcome of one replayed step.
type StepResult struct {
	Name     string
	Events   []string
	Failures []string
}

// Passed reports whether every expectation of the step held.
func (r StepResult) Passed() bool {
	return len(r.Failures) == 0
}

// Replay loads the manifest and runs its steps against a fresh session, checking
// the emitted events and the instance table after each step.
func Replay(ctx context.Context, opts ReplayOptions) ([]StepResult, error) {
	m, err := config.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	return ReplayManifest(ctx, m, opts)
}

// ReplayManifest runs the steps of an already loaded manifest.
func ReplayManifest(ctx context.Context, m *config.Manifest, opts ReplayOptions) ([]StepResult, error) {
	out := opts.Output
	if out == nil || opts.Quiet {
		out = io.Discard
	}

	rec := memory.NewRecorder()
	printer := tui.NewPrinter(out)
	s, err := NewSession(ctx, m, SessionOptions{
		Transports:   []ports.Transport{rec, printer},
		Placeholders: printer,
		Logger:       createLogger(opts.Debug, logging.FormatText),
		MaxParallel:  opts.MaxParallel,
	})
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(m.Steps))
	for i, step := range m.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		printSystemMessage(out, "%s", name)

		s.Define(step.Define...)
		rec.Reset()
		if err := s.Coordinator.Enqueue(ctx, step.Packet); err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
		if err := s.Coordinator.Wait(ctx); err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}

		res := StepResult{Name: name, Events: rec.Names()}
		res.Failures = append(res.Failures, checkEvents(step.Expect, res.Events)...)
		res.Failures = append(res.Failures, checkInstances(step.ExpectInstances, s.Coordinator.Instances())...)
		for _, f := range res.Failures {
			printSystemMessage(out, "FAIL %s", f)
		}
		results = append(results, res)
	}
	return results, nil
}

func checkEvents(want, got []string) []string {
	if len(want) == 0 || slices.Equal(want, got) {
		return nil
	}
	return []string{fmt.Sprintf("events: want %v, got %v", want, got)}
}

func checkInstances(want map[string]config.InstanceExpect, views []domain.InstanceView) []string {
	byID := make(map[string]domain.InstanceView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}

	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var failures []string
	for _, id := range ids {
		exp := want[id]
		v, ok := byID[id]
		if !ok {
			failures = append(failures, fmt.Sprintf("instance %s: not found", id))
			continue
		}
		if exp.Status != "" && exp.Status != v.Status {
			failures = append(failures, fmt.Sprintf("instance %s: status %s, want %s", id, v.Status, exp.Status))
		}
		if exp.Version != 0 && exp.Version != v.Version {
			failures = append(failures, fmt.Sprintf("instance %s: version %d, want %d", id, v.Version, exp.Version))
		}
		keys := make([]string, 0, len(exp.State))
		for k := range exp.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if got := v.State[k]; !reflect.DeepEqual(got, exp.State[k]) {
				failures = append(failures, fmt.Sprintf("instance %s: slot %s = %v, want %v", id, k, got, exp.State[k]))
			}
		}
	}
	return failures
}
