package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"
)

// Watcher observes a single file for writes and invokes registered
// callbacks after a quiet period, so a burst of saves (editors that write
// via a temp file + rename, or multiple syscalls per save) triggers one
// reload instead of several.
type Watcher struct {
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	cbs      []func()
	debounce func(func())
	cancel   context.CancelFunc
}

// DefaultDebounce is the quiet period applied between a file changing and
// Watcher invoking its callbacks.
const DefaultDebounce = 100 * time.Millisecond

// NewWatcher creates a Watcher with no file registered yet. Call Watch to
// start observing a path.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating fsnotify watcher: %w", err)
	}
	return &Watcher{fsw: fsw, debounce: debounce.New(DefaultDebounce)}, nil
}

// OnChange registers a callback invoked after the watched file settles
// following a change. Multiple callbacks may be registered.
func (w *Watcher) OnChange(cb func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cbs = append(w.cbs, cb)
}

// SetDebounce overrides the default quiet period used between a detected
// change and the callbacks firing.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = debounce.New(d)
}

// Watch starts observing path's containing directory (fsnotify does not
// reliably follow atomic renames if the file itself is watched directly)
// and fires callbacks, debounced, whenever path is written or replaced.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("config: watching directory %q: %w", dir, err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.loop(runCtx, path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, path string) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.fire()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	cbs := make([]func(), len(w.cbs))
	copy(cbs, w.cbs)
	debounced := w.debounce
	w.mu.Unlock()
	debounced(func() {
		for _, cb := range cbs {
			cb()
		}
	})
}

// Close stops the underlying fsnotify watcher and its event loop.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.fsw.Close()
}
