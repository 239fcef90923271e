package configstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports external edits of a FileStore's backing file. It watches
// the containing directory because editors and FileStore itself replace the
// file by rename.
type Watcher struct {
	store    *FileStore
	watcher  *fsnotify.Watcher
	debounce *debouncer
	logger   *slog.Logger
}

// NewWatcher creates a watcher for store. Bursts of events within interval
// are coalesced into one callback.
func NewWatcher(store *FileStore, interval time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Watcher{
		store:    store,
		watcher:  w,
		debounce: newDebouncer(interval),
		logger:   slog.Default().With("component", "configstore.watcher"),
	}, nil
}

// Watch blocks until ctx is cancelled, calling onChange after each external
// modification of the store file.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context) error) error {
	defer w.watcher.Close()
	defer w.debounce.stop()

	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	target := filepath.Clean(w.store.Path())

	w.logger.Info("config store watcher started", "path", target)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config store watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.debounce.trigger(func() {
				if !w.store.ChangedExternally() {
					return
				}
				w.logger.Info("config store file changed", "path", target, "op", event.Op.String())
				if err := onChange(ctx); err != nil {
					w.logger.Error("config store reload failed", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config store watcher error", "error", err)
		}
	}
}

// debouncer runs the most recent callback once no trigger has arrived for
// the interval.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
