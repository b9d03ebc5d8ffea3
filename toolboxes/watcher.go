package toolboxes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/framework"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the toolbox names touched by one reload batch.
type ReloadFunc func(changed []string)

// Watcher keeps registry toolboxes in sync with toolbox directories.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	registry    *framework.Registry
	dirs        []string
	logger      *zap.Logger
	onReload    ReloadFunc
	files       map[string]string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceDur = d
		}
	}
}

// WithReloadFunc installs the reload callback.
func WithReloadFunc(fn ReloadFunc) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher loads every dir into the registry and prepares a watcher for
// them. Load errors for individual files are logged, not returned.
func NewWatcher(registry *framework.Registry, dirs []string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:     fw,
		registry:    registry,
		dirs:        append([]string(nil), dirs...),
		logger:      zap.NewNop(),
		files:       make(map[string]string),
		debounceMap: make(map[string]time.Time),
		debounceDur: DefaultDebounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, dir := range w.dirs {
		w.scan(dir)
	}
	return w, nil
}

func (w *Watcher) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("toolbox dir unreadable", zap.String("dir", dir), zap.Error(err))
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsToolboxFile(entry.Name()) {
			continue
		}
		w.load(filepath.Join(dir, entry.Name()))
	}
}

// load registers one file and returns the names it affected.
func (w *Watcher) load(path string) []string {
	name, tb, err := LoadFile(path)
	if err != nil {
		w.logger.Warn("toolbox load failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	var changed []string
	previous, ok := w.files[path]
	w.files[path] = name
	if ok && previous != name {
		w.release(previous, path)
		changed = append(changed, previous)
	}
	w.registry.Register(name, tb)
	w.logger.Debug("toolbox loaded", zap.String("name", name), zap.String("path", path))
	return append(changed, name)
}

func (w *Watcher) unload(path string) []string {
	name, ok := w.files[path]
	if !ok {
		return nil
	}
	delete(w.files, path)
	w.release(name, path)
	return []string{name}
}

// release drops a name that path no longer defines. Another watched file
// defining the same name takes over, then the builtin, else it is removed.
func (w *Watcher) release(name, path string) {
	for other, otherName := range w.files {
		if otherName != name || other == path {
			continue
		}
		if _, tb, err := LoadFile(other); err == nil {
			w.registry.Register(name, tb)
			w.logger.Debug("toolbox taken over", zap.String("name", name), zap.String("path", other))
			return
		}
	}
	if tb, ok := builtinToolbox(name); ok {
		w.registry.Register(name, tb)
		w.logger.Debug("toolbox reverted to builtin", zap.String("name", name), zap.String("path", path))
		return
	}
	w.registry.Unregister(name)
	w.logger.Debug("toolbox removed", zap.String("name", name), zap.String("path", path))
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("toolbox dir not watched", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.logger.Info("watching toolbox dir", zap.String("dir", dir))
	}
	go w.run(ctx)
	return nil
}

// Stop ends watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()
	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	tick := w.debounceDur / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
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
			w.logger.Error("toolbox watcher error", zap.Error(err))
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsToolboxFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.debounceMap[event.Name] = time.Now()
}

func (w *Watcher) processDebounced() {
	now := time.Now()
	var ready []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
		}
	}
	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)
	seen := make(map[string]struct{})
	var changed []string
	for _, path := range ready {
		delete(w.debounceMap, path)
		var names []string
		if _, err := os.Stat(path); err == nil {
			names = w.load(path)
		} else {
			names = w.unload(path)
		}
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			changed = append(changed, name)
		}
	}
	if len(changed) > 0 && w.onReload != nil {
		w.onReload(changed)
	}
}

// ReloadManager returns a ReloadFunc that refreshes mgr when its current
// toolbox is among the changed names.
func ReloadManager(mgr *framework.Manager) ReloadFunc {
	return func(changed []string) {
		current := mgr.Toolbox()
		for _, name := range changed {
			if name == current {
				mgr.ReloadToolbox()
				return
			}
		}
	}
}
