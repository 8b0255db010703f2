// Package watcher keeps an explicit set of files under observation and
// reports debounced change and removal notifications for them.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period a path must see before it is dispatched
const DefaultDebounce = 200 * time.Millisecond

// Handler receives notifications for watched paths. Calls are made from a
// single goroutine, one at a time.
type Handler interface {
	// OnFileChanged is called when a watched file was written, created,
	// replaced or had its permissions changed
	OnFileChanged(path string)

	// OnFileRemoved is called when a watched file no longer exists
	OnFileRemoved(path string)
}

// Options configures a Watcher
type Options struct {
	Debounce time.Duration // Quiet period per path (default: DefaultDebounce)
	Logger   *slog.Logger
}

// Watcher observes the parent directories of its watched files through
// fsnotify. Observing directories rather than files keeps a file covered
// when it is replaced by a rename.
type Watcher struct {
	handler  Handler
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watched map[string]struct{}  // WatchSet
	dirs    map[string]int       // Parent directory -> watched children
	pending map[string]time.Time // Path -> last event time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Watcher with an empty WatchSet and starts its event loop
func New(handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		handler:  handler,
		fs:       fs,
		debounce: opts.Debounce,
		logger:   opts.Logger.With("component", "watcher"),
		watched:  make(map[string]struct{}),
		dirs:     make(map[string]int),
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()

	return w, nil
}

// Add puts paths into the WatchSet. Paths already watched are ignored. A path
// whose parent directory cannot be observed is left out and reported in the
// returned error; the remaining paths are still added.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for _, path := range paths {
		path = filepath.Clean(path)
		if _, ok := w.watched[path]; ok {
			continue
		}

		dir := filepath.Dir(path)
		if w.dirs[dir] == 0 {
			if err := w.fs.Add(dir); err != nil {
				errs = append(errs, fmt.Errorf("failed to watch %s: %w", dir, err))
				continue
			}
		}
		w.dirs[dir]++
		w.watched[path] = struct{}{}
	}

	return errors.Join(errs...)
}

// Remove takes path out of the WatchSet and reports whether it was watched
func (w *Watcher) Remove(path string) bool {
	path = filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[path]; !ok {
		return false
	}
	delete(w.watched, path)
	delete(w.pending, path)

	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		// The directory may already be gone, in which case fsnotify dropped it
		_ = w.fs.Remove(dir)
	}
	return true
}

// RemoveAll empties the WatchSet
func (w *Watcher) RemoveAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for dir := range w.dirs {
		_ = w.fs.Remove(dir)
	}
	w.watched = make(map[string]struct{})
	w.dirs = make(map[string]int)
	w.pending = make(map[string]time.Time)
}

// IsWatched reports whether path is in the WatchSet
func (w *Watcher) IsWatched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watched[filepath.Clean(path)]
	return ok
}

// Watched returns the WatchSet sorted
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watched))
	for path := range w.watched {
		paths = append(paths, path)
	}
	w.mu.Unlock()

	sort.Strings(paths)
	return paths
}

// Len returns the size of the WatchSet
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Close stops the event loop and releases the fsnotify watcher. Pending
// notifications are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

// processEvents turns fsnotify events for watched paths into pending entries
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.record(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// record marks the event's path pending if it is watched
func (w *Watcher) record(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) &&
		!event.Has(fsnotify.Chmod) {
		return
	}

	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[path]; !ok {
		return
	}
	w.pending[path] = time.Now()
}

// processPending dispatches paths whose debounce period has elapsed
func (w *Watcher) processPending() {
	defer w.wg.Done()

	interval := w.debounce / 2
	if interval > 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case now := <-ticker.C:
			for _, path := range w.due(now) {
				w.dispatch(path)
			}
		}
	}
}

// due removes and returns the pending paths that have been quiet for the
// debounce period, sorted
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// dispatch notifies the handler about path. A path that can no longer be
// stat'ed counts as removed.
func (w *Watcher) dispatch(path string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked", "path", path, "panic", r)
		}
	}()

	if !w.IsWatched(path) {
		return
	}

	if _, err := os.Stat(path); err != nil {
		w.logger.Debug("file removed", "path", path)
		w.handler.OnFileRemoved(path)
		return
	}

	w.logger.Debug("file changed", "path", path)
	w.handler.OnFileChanged(path)
}
