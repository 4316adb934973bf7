// Package watch reports changes to workflow definition files in a directory.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inercia/comfyone/internal/fileutil"
)

// DebounceDelay is the default quiet period before a change is reported.
const DebounceDelay = 200 * time.Millisecond

// ChangeEvent lists the payload files that changed during one debounce window.
type ChangeEvent struct {
	// Updated files were created or written and still exist.
	Updated []string
	// Removed files were deleted or renamed away.
	Removed   []string
	Timestamp time.Time
}

// Handler receives change events. It runs on the debounce timer's goroutine,
// one event at a time.
type Handler func(ChangeEvent)

// Watcher watches directories for .json/.yaml/.yml changes and reports them
// in batches.
//
// All public methods are safe for concurrent use.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]struct{}
	handler Handler

	debounceDelay time.Duration
	// pending maps a path to whether it still exists.
	pending       map[string]bool
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
	// fireMu keeps handler calls from overlapping.
	fireMu sync.Mutex

	logger *slog.Logger

	done    chan struct{}
	stopped chan struct{}
}

// New creates a watcher that calls handler with each batch of changes.
// Call Start to begin and Close when done.
func New(handler Handler, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:       fw,
		dirs:          make(map[string]struct{}),
		handler:       handler,
		debounceDelay: DebounceDelay,
		pending:       make(map[string]bool),
		logger:        logger,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// SetDebounceDelay changes the quiet period. Call it before Start.
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	w.debounceDelay = d
}

// Start runs the event loop in the background.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Close stops the watcher. No handler call starts after Close returns.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	// Wait for a handler call already in progress.
	w.fireMu.Lock()
	w.fireMu.Unlock()
	return err
}

// Add starts watching dir. Subdirectories are not watched.
func (w *Watcher) Add(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "watch", Path: absDir, Err: os.ErrInvalid}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[absDir]; ok {
		return nil
	}
	if err := w.watcher.Add(absDir); err != nil {
		return err
	}
	w.dirs[absDir] = struct{}{}
	w.debug("Watching workflow directory", "dir", absDir)
	return nil
}

// WatchedDirCount returns the number of watched directories.
func (w *Watcher) WatchedDirCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("Workflow watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if !fileutil.IsPayloadFile(path) {
		return
	}

	var exists bool
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		exists = true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		exists = false
	default:
		return
	}

	w.debug("Workflow file changed", "path", path, "op", event.Op.String())

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	w.pending[path] = exists
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.firePending)
}

func (w *Watcher) firePending() {
	w.fireMu.Lock()
	defer w.fireMu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	w.debounceMu.Lock()
	changes := w.pending
	w.pending = make(map[string]bool)
	w.debounceTimer = nil
	w.debounceMu.Unlock()

	if len(changes) == 0 {
		return
	}

	event := ChangeEvent{Timestamp: time.Now()}
	for path, exists := range changes {
		// A rename-then-create (editor save) ends with the file present.
		if _, err := os.Stat(path); err == nil {
			exists = true
		}
		if exists {
			event.Updated = append(event.Updated, path)
		} else {
			event.Removed = append(event.Removed, path)
		}
	}
	sort.Strings(event.Updated)
	sort.Strings(event.Removed)

	w.debug("Workflow files changed", "updated", len(event.Updated), "removed", len(event.Removed))
	if w.handler != nil {
		w.handler(event)
	}
}

func (w *Watcher) debug(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}
