package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lysyi3m/season-rank/app/season"
)

const defaultReloadDebounce = 400 * time.Millisecond

// OverridesWatcher reloads the overrides file when it changes on disk and
// hands the result to the refresher. A file that fails to parse keeps the
// previous overrides in place.
type OverridesWatcher struct {
	path      string
	refresher *Refresher
	debounce  time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

func NewOverridesWatcher(path string, refresher *Refresher) *OverridesWatcher {
	return &OverridesWatcher{
		path:      filepath.Clean(path),
		refresher: refresher,
		debounce:  defaultReloadDebounce,
		done:      make(chan struct{}),
	}
}

// Start watches the directory holding the file, so editors that replace
// the file by rename are still picked up. It returns once the watch is set
// and stops when ctx is cancelled.
func (w *OverridesWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	slog.Info("Watching overrides file", "path", w.path)

	go w.run(ctx, watcher)
	return nil
}

// Done is closed after the watcher has shut down.
func (w *OverridesWatcher) Done() <-chan struct{} {
	return w.done
}

func (w *OverridesWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.done)
	defer watcher.Close()
	defer w.cancelReload()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Overrides watcher error", "error", err)
		}
	}
}

func (w *OverridesWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *OverridesWatcher) cancelReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *OverridesWatcher) reload() {
	overrides, err := season.LoadOverrides(w.path)
	if err != nil {
		slog.Warn("Keeping previous overrides", "path", w.path, "error", err)
		return
	}

	w.refresher.SetOverrides(overrides)
	slog.Info("Overrides reloaded", "path", w.path, "exclude", len(overrides.Exclude), "include", len(overrides.Include))
}
