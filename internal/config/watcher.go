package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"deskagent/internal/logging"
)

// ChangeHandler receives the freshly reloaded settings after the config
// file changes on disk.
type ChangeHandler func(*Settings)

// Watcher monitors the config file and reloads it on change. Editors
// often replace the file with a rename, so the parent directory is
// watched rather than the file itself.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	onChange  ChangeHandler
	debounce  time.Duration
	pending   time.Time
	mu        sync.Mutex
	done      chan struct{}
	stopOnce  sync.Once
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange ChangeHandler) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      path,
		onChange:  onChange,
		debounce:  500 * time.Millisecond,
		done:      make(chan struct{}),
	}
	go w.processEvents()
	go w.processDebounce()
	return w, nil
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	return w.fsWatcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) processDebounce() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			fire := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if fire {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if !fire {
				continue
			}

			s, err := LoadFrom(w.path)
			if err != nil {
				logging.Warn("config reload failed", "path", w.path, "error", err)
				continue
			}
			logging.Info("config reloaded", "path", w.path)
			w.onChange(s)
		}
	}
}
