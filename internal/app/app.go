// Package app wires the hook pipeline, the event bus, event persistence and
// the script loader from one configuration, and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/config"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/hook"
	"github.com/dshills/conductor/internal/script"
	"github.com/dshills/conductor/internal/telemetry"
)

// Application owns every subsystem built from a Config.
type Application struct {
	cfg     *config.Config
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
	now     func() time.Time

	registry *hook.Registry
	executor *hook.Executor
	bus      *event.Bus
	relay    *executionRelay
	store    event.Store
	loader   *script.Loader
	watcher  *script.Watcher

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	storeOverride event.Store
}

// Option configures an Application.
type Option func(*Application)

// WithLogger replaces the clue logger built from the logging section.
func WithLogger(l telemetry.Logger) Option {
	return func(app *Application) {
		app.logger = l
	}
}

// WithMetrics sets the metrics recorder shared by the executor and the bus.
func WithMetrics(m telemetry.Metrics) Option {
	return func(app *Application) {
		app.metrics = m
	}
}

// WithTracer sets the tracer used by the executor.
func WithTracer(t telemetry.Tracer) Option {
	return func(app *Application) {
		app.tracer = t
	}
}

// WithStore uses s for event history instead of the configured backend.
func WithStore(s event.Store) Option {
	return func(app *Application) {
		app.storeOverride = s
	}
}

// WithClock sets the clock used for history retention.
func WithClock(now func() time.Time) Option {
	return func(app *Application) {
		app.now = now
	}
}

// New validates cfg and builds every subsystem in dependency order. A nil
// cfg uses config.Default. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ComponentError{Component: "config", Action: "validate", Err: err}
	}

	app := &Application{
		cfg:     cfg,
		metrics: telemetry.NewOTELMetrics(),
		tracer:  telemetry.NewOTELTracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := NewLogger(ctx, cfg.Logging, os.Stderr)
		if err != nil {
			return nil, &ComponentError{Component: "logging", Err: err}
		}
		app.logger = logger
	}

	// 1. Event history
	if app.storeOverride != nil {
		app.store = app.storeOverride
	} else {
		s, err := openStore(ctx, cfg.Persistence)
		if err != nil {
			return nil, &ComponentError{Component: "store", Action: "open " + cfg.Persistence.Backend, Err: err}
		}
		app.store = s
	}

	// 2. Event bus
	bus, err := app.newBus()
	if err != nil {
		app.closeStore(ctx)
		return nil, &ComponentError{Component: "bus", Action: "configure", Err: err}
	}
	app.bus = bus
	app.relay = newExecutionRelay(bus, app.logger, app.metrics, relayQueueSize)

	// 3. Hook registry and executor
	app.registry = hook.NewRegistry(hook.WithDefaultBreaker(hook.BreakerConfig{
		SlowThreshold:      cfg.Hooks.SlowThreshold.Std(),
		MaxConsecutiveSlow: cfg.Hooks.MaxConsecutiveSlow,
		Cooldown:           cfg.Hooks.Cooldown.Std(),
	}))
	app.executor = hook.NewExecutor(app.registry,
		hook.WithLogger(app.logger),
		hook.WithMetrics(app.metrics),
		hook.WithTracer(app.tracer),
		hook.WithEventSink(app.relay.send, cfg.Hooks.ExecutionEvents),
		hook.WithDefaultTimeout(cfg.Hooks.DefaultTimeout.Std()),
		hook.WithOverheadTarget(cfg.Hooks.OverheadTarget),
	)
	adapter.Install(app.executor, script.Adapters()...)

	// 4. Script loader
	app.loader = script.NewLoader(app.executor, app.bus,
		script.WithLogger(app.logger),
		script.WithKinds(script.DefaultKinds(script.RuntimeOptions{
			Timeout:          cfg.Scripts.Timeout.Std(),
			LuaQueueSize:     cfg.Scripts.LuaQueueSize,
			StarlarkMaxSteps: cfg.Scripts.StarlarkMaxSteps,
		})...),
	)

	return app, nil
}

func (app *Application) newBus() (*event.Bus, error) {
	ec := app.cfg.Events
	strategy, err := event.ParseStrategy(ec.Backpressure)
	if err != nil {
		return nil, err
	}
	opts := []event.BusOption{
		event.WithDefaultCapacity(ec.Capacity),
		event.WithDefaultStrategy(strategy),
		event.WithBlockTimeout(ec.BlockTimeout.Std()),
		event.WithMaxPayloadBytes(ec.MaxPayloadBytes),
		event.WithMatchCacheSize(ec.MatchCacheSize),
		event.WithBusLogger(app.logger),
		event.WithBusMetrics(app.metrics),
	}
	if ec.RateLimit.PerSecond > 0 {
		opts = append(opts, event.WithRateLimit(ec.RateLimit.PerSecond, ec.RateLimit.Burst))
	}
	if ec.InstanceID != "" {
		opts = append(opts, event.WithInstanceID(ec.InstanceID))
	}
	if app.store != nil {
		opts = append(opts, event.WithStore(app.store, app.cfg.Persistence.Patterns...))
	}
	return event.NewBus(opts...), nil
}

// Start loads the configured script directories, starts the file watcher
// when enabled and starts history cleanup when a retention is set. Script
// load failures are logged and do not fail Start.
func (app *Application) Start(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.cancel = cancel

	for _, dir := range app.cfg.Scripts.Dirs {
		loaded, err := app.loader.LoadDir(ctx, dir)
		if err != nil {
			app.logger.Warn(ctx, "some scripts failed to load", "dir", dir, "err", err)
		}
		app.logger.Info(ctx, "scripts loaded", "dir", dir, "count", len(loaded))
	}

	if app.cfg.Scripts.Watch && len(app.cfg.Scripts.Dirs) > 0 {
		w, err := script.NewWatcher(app.loader)
		if err != nil {
			app.stop(ctx)
			return &ComponentError{Component: "scripts", Action: "watch", Err: err}
		}
		app.watcher = w
		for _, dir := range app.cfg.Scripts.Dirs {
			if err := w.Watch(dir); err != nil {
				app.stop(ctx)
				return &ComponentError{Component: "scripts", Action: "watch " + dir, Err: err}
			}
		}
	}

	if app.store != nil && app.cfg.Persistence.Retention > 0 {
		app.wg.Add(1)
		go app.cleanupLoop(runCtx, app.cfg.Persistence.Retention.Std(), app.cfg.Persistence.CleanupInterval.Std())
	}
	return nil
}

// Shutdown stops the subsystems in reverse order. The bus drains until ctx
// is done.
func (app *Application) Shutdown(ctx context.Context) error {
	if !app.running.Load() {
		return ErrNotRunning
	}
	return app.stop(ctx)
}

// Close releases every subsystem whether or not Start was called.
func (app *Application) Close(ctx context.Context) error {
	return app.stop(ctx)
}

func (app *Application) stop(ctx context.Context) error {
	var errs []error

	// 1. Stop reacting to file changes
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			errs = append(errs, &ComponentError{Component: "scripts", Action: "close watcher", Err: err})
		}
		app.watcher = nil
	}

	// 2. Stop background work
	if app.cancel != nil {
		app.cancel()
		app.cancel = nil
	}
	app.wg.Wait()

	// 3. Release script hooks and subscriptions
	app.loader.Close(ctx)

	// 4. Flush executor notifications, then drain the bus
	app.relay.close(ctx)
	if err := app.bus.Close(ctx); err != nil && !errors.Is(err, event.ErrBusClosed) {
		errs = append(errs, &ComponentError{Component: "bus", Action: "close", Err: err})
	}

	// 5. Close history
	app.closeStore(ctx)

	app.running.Store(false)
	return errors.Join(errs...)
}

func (app *Application) closeStore(ctx context.Context) {
	if app.store == nil {
		return
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn(ctx, "event store close failed", "err", err)
	}
	app.store = nil
}

// IsRunning reports whether Start succeeded and Shutdown has not run.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the validated configuration.
func (app *Application) Config() *config.Config {
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() telemetry.Logger {
	return app.logger
}

// Registry returns the hook registry.
func (app *Application) Registry() *hook.Registry {
	return app.registry
}

// Executor returns the hook executor.
func (app *Application) Executor() *hook.Executor {
	return app.executor
}

// Bus returns the event bus.
func (app *Application) Bus() *event.Bus {
	return app.bus
}

// Store returns the event history store, or nil when persistence is off.
func (app *Application) Store() event.Store {
	return app.store
}

// Scripts returns the script loader.
func (app *Application) Scripts() *script.Loader {
	return app.loader
}
