// Package script discovers guest scripts on disk and keeps each one loaded
// in its own runtime. A Watcher reloads scripts as their files change.
package script

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/guest"
	"github.com/dshills/conductor/internal/hook"
	"github.com/dshills/conductor/internal/telemetry"
)

// Events published by the loader.
const (
	EventLoaded   = "script.loaded"
	EventUnloaded = "script.unloaded"
	EventFailed   = "script.failed"
)

// ErrUnsupported is returned for files no registered kind handles.
var ErrUnsupported = errors.New("unsupported script type")

type (
	// Loader owns the runtimes of loaded scripts.
	Loader struct {
		executor *hook.Executor
		bus      *event.Bus
		logger   telemetry.Logger
		kinds    map[string]Kind
		now      func() time.Time

		mu      sync.Mutex
		scripts map[string]*loaded
	}

	loaded struct {
		info    Info
		runtime Runtime
		host    *guest.Host
	}

	// Info describes a loaded script.
	Info struct {
		Path          string
		Language      core.Language
		LoadedAt      time.Time
		Hooks         int
		Subscriptions int
	}

	// Option configures a Loader.
	Option func(*Loader)
)

// WithLogger sets the logger handed to the loader and every script host.
func WithLogger(l telemetry.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithKinds replaces the supported script kinds.
func WithKinds(kinds ...Kind) Option {
	return func(ld *Loader) {
		ld.kinds = make(map[string]Kind, len(kinds))
		for _, k := range kinds {
			ld.kinds[k.Ext] = k
		}
	}
}

// NewLoader returns a loader registering hooks with executor and events
// with bus. bus may be nil.
func NewLoader(executor *hook.Executor, bus *event.Bus, opts ...Option) *Loader {
	l := &Loader{
		executor: executor,
		bus:      bus,
		logger:   telemetry.NoopLogger{},
		now:      time.Now,
		scripts:  make(map[string]*loaded),
	}
	WithKinds(DefaultKinds(RuntimeOptions{})...)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supports reports whether path has a supported extension.
func (l *Loader) Supports(path string) bool {
	_, ok := l.kinds[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadDir loads every supported file under dir, skipping hidden entries.
// Failing scripts are reported in the joined error; the rest stay loaded.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && l.Supports(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	var errs []error
	var ok []string
	for _, p := range paths {
		if err := l.Load(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		ok = append(ok, filepath.Clean(p))
	}
	return ok, errors.Join(errs...)
}

// Load runs the script at path in a new runtime. A script already loaded
// from path is unloaded first, so a reload never leaves two copies of its
// hooks registered.
func (l *Loader) Load(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	kind, ok := l.kinds[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.scripts[path]; ok {
		l.release(ctx, old)
	}

	host := guest.NewHost(path, kind.Language, l.executor, l.bus, guest.WithLogger(l.logger))
	rt, err := kind.Factory(ctx, host, path)
	if err != nil {
		l.logger.Warn(ctx, "script failed to load", "script", path, "err", err)
		l.publish(ctx, EventFailed, map[string]any{"path": path, "language": string(kind.Language), "error": err.Error()})
		return fmt.Errorf("load %s: %w", path, err)
	}

	ld := &loaded{
		info:    Info{Path: path, Language: kind.Language, LoadedAt: l.now()},
		runtime: rt,
		host:    host,
	}
	l.scripts[path] = ld
	hooks, subs := host.Owned()
	l.logger.Info(ctx, "script loaded", "script", path, "language", string(kind.Language), "hooks", len(hooks), "subscriptions", len(subs))
	l.publish(ctx, EventLoaded, map[string]any{"path": path, "language": string(kind.Language), "hooks": len(hooks)})
	return nil
}

// Unload closes the runtime of the script at path.
func (l *Loader) Unload(ctx context.Context, path string) bool {
	path = filepath.Clean(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	ld, ok := l.scripts[path]
	if !ok {
		return false
	}
	l.release(ctx, ld)
	return true
}

// release closes ld and forgets it. Callers hold mu.
func (l *Loader) release(ctx context.Context, ld *loaded) {
	delete(l.scripts, ld.info.Path)
	if err := ld.runtime.Close(); err != nil {
		l.logger.Warn(ctx, "script close failed", "script", ld.info.Path, "err", err)
	}
	l.logger.Info(ctx, "script unloaded", "script", ld.info.Path)
	l.publish(ctx, EventUnloaded, map[string]any{"path": ld.info.Path})
}

// Scripts lists loaded scripts by path.
func (l *Loader) Scripts() []Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Info, 0, len(l.scripts))
	for _, ld := range l.scripts {
		info := ld.info
		hooks, subs := ld.host.Owned()
		info.Hooks, info.Subscriptions = len(hooks), len(subs)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Close unloads every script.
func (l *Loader) Close(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ld := range l.scripts {
		l.release(ctx, ld)
	}
}

func (l *Loader) publish(ctx context.Context, eventType string, data map[string]any) {
	if l.bus == nil || l.bus.IsClosed() {
		return
	}
	if err := l.bus.Publish(ctx, eventType, data, event.WithSource("script.loader")); err != nil {
		l.logger.Debug(ctx, "script event not published", "event_type", eventType, "err", err)
	}
}
