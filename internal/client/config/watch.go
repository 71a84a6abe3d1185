package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// reloadDelay collapses the burst of events an editor produces on save.
const reloadDelay = 100 * time.Millisecond

// Watch re-reads the config file whenever it changes and calls onChange with
// the new config. Values not present in the file keep the ones in base. The
// parent directory is watched, since editors often replace the file rather
// than write it in place. Watch blocks until ctx is done.
func Watch(ctx context.Context, base *Config, log logging.Logger, onChange func(*Config)) error {
	if base.File == "" {
		return fmt.Errorf("config was not loaded from a file")
	}
	path, err := filepath.Abs(base.File)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	log = log.With("module", "config")

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			next := *base
			if err := loadFile(&next, path); err != nil {
				log.Warn(ctx, "config reload failed, keeping previous values", "error", err)
				continue
			}
			log.Info(ctx, "config reloaded", "file", path)
			onChange(&next)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn(ctx, "config watcher error", "error", err)
		}
	}
}
