// Package watcher provides a small file watcher used to react to
// settings changes.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounceWindow absorbs the bursts of events editors emit when saving.
const debounceWindow = 500 * time.Millisecond

// Watcher invokes a callback when one specific file changes. The parent
// directory is watched rather than the file itself: most editors replace
// files on save, which would otherwise drop the watch.
type Watcher struct {
	path     string
	callback func()

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	lastHit time.Time
	stopCh  chan struct{}
	running bool
}

// New creates a watcher for path. The callback fires on write, create
// and rename events for that path, debounced.
func New(path string, callback func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		callback: callback,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled in a goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return err
	}

	w.fsw = fsw
	w.running = true
	go w.loop()
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	_ = w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			fire := time.Since(w.lastHit) >= debounceWindow
			if fire {
				w.lastHit = time.Now()
			}
			w.mu.Unlock()
			if fire {
				w.callback()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("File watcher error")
		}
	}
}
