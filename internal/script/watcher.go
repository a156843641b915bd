package script

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherClosed is returned when operating on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Watcher reloads scripts whose files change and unloads scripts whose
// files disappear. Directories created under a watched directory are
// watched too.
type Watcher struct {
	loader *Loader
	fsw    *fsnotify.Watcher
	delay  time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a path must stay quiet before it is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// NewWatcher starts a watcher driving l.
func NewWatcher(l *Loader, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		loader:  l,
		fsw:     fsw,
		delay:   DefaultDebounce,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Watch watches dir and its subdirectories, skipping hidden ones.
func (w *Watcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()

	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.loader.logger.Warn(w.ctx, "script watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.Watch(ev.Name); err != nil && !errors.Is(err, ErrWatcherClosed) {
				w.loader.logger.Warn(w.ctx, "watch new directory failed", "dir", ev.Name, "err", err)
			}
			return
		}
	}
	if !w.loader.Supports(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	w.schedule(filepath.Clean(ev.Name))
}

// schedule debounces path: the latest event wins once the path has been
// quiet for the delay.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			w.sync(path)
		}
	})
}

// sync makes the loader match the file: present files are (re)loaded,
// missing ones unloaded.
func (w *Watcher) sync(path string) {
	if _, err := os.Stat(path); err != nil {
		if w.loader.Unload(w.ctx, path) {
			w.loader.logger.Info(w.ctx, "script removed", "script", path)
		}
		return
	}
	// Load logs and publishes failures; the previous version stays
	// unloaded until the file is fixed.
	_ = w.loader.Load(w.ctx, path)
}
