package config

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// debounceInterval coalesces rapid sequences of fs events (editors and
	// Kubernetes ConfigMap updates produce several) into one reload.
	debounceInterval = 300 * time.Millisecond

	// pollInterval drives the content-hash fallback for filesystems where
	// fsnotify misses symlink swaps (Kubernetes mounts ConfigMaps through
	// a ..data symlink).
	pollInterval = 2 * time.Second
)

// ReloadFunc receives the freshly loaded and validated configuration.
type ReloadFunc func(*Config)

// Watcher watches the config file for changes and triggers hot-reload.
// A change that fails to load or validate is logged and ignored; the
// previous configuration stays active.
type Watcher struct {
	path     string
	onReload ReloadFunc
	logger   *slog.Logger

	mu       sync.Mutex
	lastHash [sha256.Size]byte
	stopped  bool
	stop     chan struct{}
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, onReload ReloadFunc, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger.With("component", "config-watcher"),
		stop:     make(chan struct{}),
	}
}

// Start begins watching. Blocks until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := os.Stat(w.path); err != nil {
		w.logger.Info("config file not present, hot-reload disabled", "path", w.path)
		return nil
	}

	w.mu.Lock()
	w.lastHash = w.hashFile()
	w.mu.Unlock()

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		return w.pollLoop(ctx)
	}
	defer fsWatcher.Close()

	// Watch the directory rather than the file: editors and ConfigMap
	// updates replace the file, which drops a direct file watch.
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("watch failed, falling back to polling", "error", err)
		return w.pollLoop(ctx)
	}

	w.logger.Info("watching config file", "path", w.path)

	var debounce *time.Timer
	debounceC := make(chan struct{}, 1)
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case ev, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.relevantEvent(ev) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, func() {
				select {
				case debounceC <- struct{}{}:
				default:
				}
			})
		case <-debounceC:
			w.reloadIfChanged()
		case <-poll.C:
			w.reloadIfChanged()
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
}

func (w *Watcher) relevantEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) == filepath.Clean(w.path) {
		return true
	}
	// Kubernetes atomically swaps the ..data symlink on ConfigMap update.
	return filepath.Base(ev.Name) == "..data"
}

// pollLoop is the pure-polling fallback when fsnotify cannot be used.
func (w *Watcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.reloadIfChanged()
		}
	}
}

// reloadIfChanged compares the file content hash against the last seen hash
// and runs a full load + validate + callback cycle on change.
func (w *Watcher) reloadIfChanged() {
	w.mu.Lock()
	defer w.mu.Unlock()

	hash := w.hashFile()
	if hash == w.lastHash {
		return
	}
	w.lastHash = hash

	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Error("config reload rejected, keeping previous config", "error", err)
		return
	}

	w.logger.Info("config file changed, reloading", "path", w.path)
	w.onReload(cfg)
}

func (w *Watcher) hashFile() [sha256.Size]byte {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}
