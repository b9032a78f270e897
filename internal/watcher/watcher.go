// Package watcher provides vector file watching with fsnotify and
// debouncing, so re-exported collections are picked up without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches a set of vector files and invokes a reload callback
// when any of them is rewritten. Exporters replace files via rename, so
// the watch sits on the parent directories, not the files themselves.
type Watcher struct {
	files    map[string]struct{} // absolute file paths to react to
	dirs     []string            // parent directories to watch
	onReload func()
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for the given vector files. onReload is called
// once per burst of changes, after the debounce interval has passed with
// no further events.
func New(paths []string, onReload func(), logger *zap.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		files:    make(map[string]struct{}, len(paths)),
		onReload: onReload,
		debounce: defaultDebounce,
		logger:   logger,
		done:     make(chan struct{}),
	}
	seen := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		w.files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, dup := seen[dir]; !dup {
			seen[dir] = struct{}{}
			w.dirs = append(w.dirs, dir)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching vector files",
		zap.Int("files", len(w.files)),
		zap.Strings("dirs", w.dirs))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		abs = ev.Name
	}
	if _, watched := w.files[abs]; !watched {
		return
	}
	w.logger.Debug("vector file changed", zap.String("path", abs), zap.String("op", ev.Op.String()))
	w.scheduleReload()
}

// scheduleReload resets the debounce timer; the callback fires once the
// burst of events settles.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onReload)
}

// Stop stops the watcher and cancels any pending reload.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		// Close wakes the run loop via its closed channels. The field is
		// left set: run reads it without the lock, so it must never be
		// written after Start.
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		w.started = false
	})
}
