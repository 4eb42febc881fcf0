package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/nvcomplete/internal/logging"
)

// Watcher reloads the configuration file on change and publishes the
// new Config into a Store. Running sessions are untouched; only new
// reads of the store observe the update.
type Watcher struct {
	mu sync.Mutex

	path    string
	store   *Store
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	// debounce coalesces editor write bursts into one reload
	debounce time.Duration
	timer    *time.Timer

	onReload func(*Config)

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithReloadCallback sets a callback invoked after each successful reload.
func WithReloadCallback(fn func(*Config)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// WithDebounce sets the reload debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger used for reload diagnostics.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher creates a watcher for path that publishes into store.
// Call Start to begin watching and Close to release resources.
func NewWatcher(path string, store *Store, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		store:    store,
		watcher:  fsw,
		logger:   logging.Null,
		debounce: 100 * time.Millisecond,
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Watch the directory, not the file: editors replace config files
	// by rename, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Start begins processing file events in a background goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error: %v", err)
		}
	}
}

// scheduleReload arms the trailing-edge debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous: %v", err)
		return
	}

	w.store.Set(cfg)
	w.logger.Info("config reloaded from %s", w.path)

	w.mu.Lock()
	cb := w.onReload
	closed := w.closed
	w.mu.Unlock()
	if cb != nil && !closed {
		cb(cfg)
	}
}
