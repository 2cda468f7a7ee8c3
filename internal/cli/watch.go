package cli

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/pkg/domain"
)

const defaultWatchDebounce = 100 * time.Millisecond

// RunWatch mounts the manifest's tree and watches the manifest file. Every saved
// change becomes an update packet: modules whose version moved are sent to the
// coordinator, acting as a bundler watching the source tree.
//
// The parent directory is watched rather than the file so editors that save by
// renaming a temporary file over the manifest are still seen. Bursts of events
// are collapsed into one reload after opts.Interval of quiet.
func RunWatch(ctx context.Context, opts RunOptions) error {
	debounce := opts.Interval
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	data, err := os.ReadFile(opts.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	current, err := config.Load(opts.ManifestPath)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	target := filepath.Clean(opts.ManifestPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	s, err := openSession(ctx, current, opts)
	if err != nil {
		return err
	}
	logger := createLogger(opts.Debug, logging.FormatText)
	logger.Info("Starting Watcher", "path", opts.ManifestPath, "debounce", debounce)
	if !opts.Headless {
		printSystemMessage(opts.Output, "Watching '%s' for changes.", opts.ManifestPath)
	}

	sum := md5.Sum(data)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)
			continue
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			logger.Debug("manifest event", "op", ev.Op.String())
			timer.Reset(debounce)
			continue
		case <-timer.C:
		}

		data, err := os.ReadFile(opts.ManifestPath)
		if err != nil {
			// Renamed away mid-save; the create that follows re-arms the timer.
			logger.Warn("manifest unreadable", "err", err)
			continue
		}
		next := md5.Sum(data)
		if next == sum {
			logger.Debug("manifest saved without changes")
			continue
		}
		sum = next

		m, err := config.Load(opts.ManifestPath)
		if err != nil {
			// Saved mid-edit; wait for the next write.
			printSystemMessage(opts.Output, "Ignoring invalid manifest: %v", err)
			continue
		}

		s.Define(m.Components...)
		packet := DiffManifests(current, m)
		current = m
		if len(packet.Modules) == 0 {
			logger.Debug("manifest changed without module updates")
			continue
		}
		if err := s.Coordinator.Enqueue(ctx, packet); err != nil {
			printSystemMessage(opts.Output, "Update rejected: %v", err)
			continue
		}
		if err := s.Coordinator.Wait(ctx); err != nil {
			return err
		}
	}
}

// DiffManifests builds the update packet that turns prev's module graph into
// next's: every module that is new or whose version increased.
func DiffManifests(prev, next *config.Manifest) domain.UpdatePacket {
	known := make(map[string]domain.ModuleRecord, len(prev.Modules))
	for _, rec := range prev.Modules {
		known[rec.ID] = rec
	}

	var packet domain.UpdatePacket
	for _, rec := range next.Modules {
		old, ok := known[rec.ID]
		if ok && rec.Version <= old.Version {
			continue
		}
		packet.Modules = append(packet.Modules, domain.PacketEntry{
			ModuleID:     rec.ID,
			Version:      rec.Version,
			AcceptsSelf:  rec.AcceptsSelf,
			Dependents:   slices.Clone(rec.Dependents),
			Dependencies: slices.Clone(rec.Dependencies),
		})
	}
	return packet
}
