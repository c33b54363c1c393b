package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle coalesces the burst of events an editor produces for a
// single save.
const watchSettle = 100 * time.Millisecond

// Watch reports changes to the file at path until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// editors that save by rename are still seen. Each receive from the
// returned channel means "the file changed at least once since the last
// receive". The channel is closed when ctx ends or the watcher fails.
//
// If error is not nil, the channel is nil.
func Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer w.Close()

		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
					!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
					continue
				}
				if settle == nil {
					settle = time.After(watchSettle)
				}
			case <-settle:
				settle = nil
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("settings watcher error", "file", path, "error", err)
			}
		}
	}()
	return changes, nil
}
