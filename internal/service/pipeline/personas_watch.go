package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/logging"
)

const personasReloadDebounce = 200 * time.Millisecond

// WatchPersonas reloads the roster at path whenever it changes on disk and
// passes each valid roster to apply. Invalid rosters are logged and skipped.
// The parent directory is watched so editors that replace the file by
// rename are followed. WatchPersonas blocks until ctx is done.
func WatchPersonas(ctx context.Context, path string, apply func([]core.PersonaConfig), logger *logging.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving persona roster path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(ev.Name)
			if name != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(personasReloadDebounce)
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("persona roster watcher error", "error", err)
		case <-fire:
			fire = nil
			personas, err := LoadPersonas(target)
			if err != nil {
				logger.Warn("persona roster not reloaded", "path", target, "error", err)
				continue
			}
			logger.Info("persona roster reloaded", "path", target, "personas", len(personas))
			apply(personas)
		}
	}
}
