package hook

import (
	"time"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/telemetry"
)

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

type registration struct {
	name        string
	description string
	tags        []string
	language    core.Language
	timeout     time.Duration
	breaker     *BreakerConfig
}

// WithName sets a name for the hook. Names are unique per point.
func WithName(name string) RegisterOption {
	return func(r *registration) {
		r.name = name
	}
}

// WithDescription attaches a human-readable description.
func WithDescription(desc string) RegisterOption {
	return func(r *registration) {
		r.description = desc
	}
}

// WithTags attaches tags usable in List filters.
func WithTags(tags ...string) RegisterOption {
	return func(r *registration) {
		r.tags = append(r.tags, tags...)
	}
}

// WithLanguage records the origin language. GuestHooks report their own
// language and do not need this option.
func WithLanguage(lang core.Language) RegisterOption {
	return func(r *registration) {
		r.language = lang
	}
}

// WithTimeout bounds each invocation of the hook. An overrun is a fault.
func WithTimeout(d time.Duration) RegisterOption {
	return func(r *registration) {
		r.timeout = d
	}
}

// WithBreakerConfig overrides the registry's breaker settings for this hook.
func WithBreakerConfig(cfg BreakerConfig) RegisterOption {
	return func(r *registration) {
		r.breaker = &cfg
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultBreaker sets the breaker configuration given to new hooks.
func WithDefaultBreaker(cfg BreakerConfig) RegistryOption {
	return func(r *Registry) {
		r.breakerCfg = cfg.withDefaults()
	}
}

// WithRegistryClock overrides time.Now for registration timestamps.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for hook faults and breaker transitions.
func WithLogger(l telemetry.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t telemetry.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithAdapter registers a guest language adapter.
func WithAdapter(a Adapter) ExecutorOption {
	return func(e *Executor) {
		e.adapters[a.Language()] = a
	}
}

// WithEventSink enables execution events. When executionEvents is false only
// breaker transitions are reported.
func WithEventSink(sink EventSink, executionEvents bool) ExecutorOption {
	return func(e *Executor) {
		e.sink = sink
		e.executionEvents = executionEvents
	}
}

// WithClock overrides time.Now. Breakers and durations use it.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// WithDefaultTimeout bounds every hook that has no timeout of its own.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.defaultTimeout = d
	}
}

// WithOverheadTarget sets the fraction of operation time the monitor treats
// as acceptable hook overhead.
func WithOverheadTarget(f float64) ExecutorOption {
	return func(e *Executor) {
		e.monitor.target = f
	}
}
