package table

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"answervet/internal/logging"
)

// Watcher watches one input table file and invokes a callback after writes
// settle. Editors save through temp-file renames, so it watches the parent
// directory and filters events by file name.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	onChange    func(path string)
	lastEvent   time.Time
	pending     bool
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the given table file.
func NewWatcher(path string, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:     fw,
		path:        abs,
		onChange:    onChange,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	logging.Table("Watching %s for changes", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryTable).Error("Watcher close: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
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
			logging.Get(logging.CategoryTable).Error("Watcher error: %v", err)

		case <-ticker.C:
			w.fireSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	logging.Table("Change detected: %s (%s)", event.Name, event.Op)

	w.mu.Lock()
	w.lastEvent = time.Now()
	w.pending = true
	w.mu.Unlock()
}

func (w *Watcher) fireSettled() {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	w.onChange(w.path)
}
