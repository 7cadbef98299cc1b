package secretstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"apisession/pkg/logging"
)

const (
	// DefaultWatchInterval is the fallback polling interval when fsnotify
	// is not available.
	DefaultWatchInterval = 10 * time.Second

	// debounceInterval is the quiet period before a change is reported,
	// so a rewrite does not fire once per write syscall.
	debounceInterval = 500 * time.Millisecond
)

// Watcher monitors one credential file for external changes. When another
// process refreshes the shared credential, the watcher invalidates the file
// store's cache and notifies the callback so in-memory tokens get reloaded
// instead of triggering a second refresh.
//
// fsnotify is used when available, with a polling fallback.
type Watcher struct {
	mu sync.Mutex

	store    *FileStore
	key      string
	onChange func()
	interval time.Duration

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the credential stored under key.
// onChange runs on a background goroutine after each detected change.
func NewWatcher(store *FileStore, key string, onChange func()) *Watcher {
	return &Watcher{
		store:    store,
		key:      key,
		onChange: onChange,
		interval: DefaultWatchInterval,
	}
}

// Start begins watching. It returns immediately; events are processed on a
// background goroutine until Stop is called.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.running = true

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("SecretStore", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	// Watch the directory, not the file: credential rewrites may replace
	// the file, which drops a direct file watch.
	if err := fsWatcher.Add(w.store.Dir()); err != nil {
		logging.Warn("SecretStore", "Failed to watch %s, falling back to polling: %v", w.store.Dir(), err)
		fsWatcher.Close()
		go w.pollForChanges()
		return nil
	}

	w.fsWatcher = fsWatcher
	go w.processEvents(fsWatcher.Events, fsWatcher.Errors)

	logging.Debug("SecretStore", "Watching %s for credential changes", w.store.Dir())
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("SecretStore", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
}

func (w *Watcher) processEvents(events <-chan fsnotify.Event, errors <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.key+".json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logging.Debug("SecretStore", "Credential file changed externally")
			w.notifyDebounced()

		case err, ok := <-errors:
			if !ok {
				return
			}
			logging.Error("SecretStore", err, "fsnotify error")
		}
	}
}

func (w *Watcher) notifyDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceInterval, func() {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}

		w.store.Invalidate(w.key)
		if w.onChange != nil {
			w.onChange()
		}
	})
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	path := w.store.path(w.key)
	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				logging.Debug("SecretStore", "Credential change detected via polling")
				w.notifyDebounced()
			}
		}
	}
}
