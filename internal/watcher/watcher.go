// Package watcher watches directories for files that have finished being
// written, and feeds e-books dropped into the inbox to the library.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors file system changes using fsnotify. A file is reported
// only once its size and modification time stop changing for SettleDelay,
// so copies in progress are never picked up half-written.
type Watcher struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	roots   []string
	pending map[string]*pendingEvent // path -> pending event info
	mu      sync.Mutex               // protects roots and pending

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
}

// pendingEvent tracks a file that may still be changing
type pendingEvent struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a new file watcher.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		logger:  logger,
		opts:    opts,
		watcher: fw,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a directory to be monitored recursively. Ignore rules apply
// to paths relative to it.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", path)
	}

	w.mu.Lock()
	w.roots = append(w.roots, path)
	w.mu.Unlock()

	return w.watchDir(path)
}

// watchDir recursively watches a directory
func (w *Watcher) watchDir(path string) error {
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(p); err != nil {
			w.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}
		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

// Start processes events until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("dropping watcher error", "error", err)
			}
		}
	}
}

// handle handles an fsnotify event with debouncing
func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if w.ignored(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Files may already be inside a directory moved in whole.
			_ = w.watchDir(path)
			w.settleTree(path)
			return
		}
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.cancelPending(path)
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		w.startSettling(path)
	}
}

// settleTree starts settling every file below dir.
func (w *Watcher) settleTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || w.ignored(p) {
			if d != nil && d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			w.startSettling(p)
		}
		return nil
	})
}

// startSettling begins the settling process for a file
func (w *Watcher) startSettling(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
	}
	pending := &pendingEvent{size: info.Size(), modTime: info.ModTime()}
	pending.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) })
	w.pending[path] = pending
}

// checkSettled checks if a file has finished settling
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	pending, exists := w.pending[path]
	if !exists {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		w.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		// Still changing, restart timer
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) })
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()

	w.emit(Event{
		Type:    EventAdded,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// cancelPending cancels a pending event
func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
		delete(w.pending, path)
	}
}

// ignored applies the ignore rules to path relative to its watch root.
func (w *Watcher) ignored(path string) bool {
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()

	rel := path
	for _, root := range roots {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
			break
		}
	}
	return w.opts.shouldIgnore(rel)
}

// emit sends an event to the events channel
func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

// Events returns the channel for receiving settled file events
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel for receiving errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources. Later calls are no-ops.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, pending := range w.pending {
			pending.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}
