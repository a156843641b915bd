package hook

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/telemetry"
)

// Event types emitted through the EventSink.
const (
	EventExecutionStart    = "hook.execution.start"
	EventExecutionComplete = "hook.execution.complete"
	EventBreakerOpened     = "hook.breaker.opened"
	EventBreakerClosed     = "hook.breaker.closed"
)

// EventSink receives executor notifications. It must not block.
type EventSink func(ctx context.Context, eventType string, correlation core.CorrelationID, data map[string]any)

// Executor runs the chain registered at a point and reduces it to one Result.
type Executor struct {
	registry *Registry
	monitor  *Monitor

	adaptersMu sync.RWMutex
	adapters   map[core.Language]Adapter

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	sink            EventSink
	executionEvents bool

	now            func() time.Time
	defaultTimeout time.Duration
}

// NewExecutor returns an Executor reading chains from r.
func NewExecutor(r *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: r,
		monitor:  newMonitor(),
		adapters: make(map[core.Language]Adapter),
		logger:   telemetry.NoopLogger{},
		metrics:  telemetry.NoopMetrics{},
		tracer:   telemetry.NoopTracer{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the executor reads from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Monitor returns the performance monitor.
func (e *Executor) Monitor() *Monitor {
	return e.monitor
}

// RegisterAdapter adds or replaces the adapter for a.Language().
func (e *Executor) RegisterAdapter(a Adapter) {
	e.adaptersMu.Lock()
	defer e.adaptersMu.Unlock()
	e.adapters[a.Language()] = a
}

func (e *Executor) adapter(lang core.Language) (Adapter, bool) {
	e.adaptersMu.RLock()
	defer e.adaptersMu.RUnlock()
	a, ok := e.adapters[lang]
	return a, ok
}

// Unregister removes a hook from the registry and drops its statistics.
func (e *Executor) Unregister(h Handle) bool {
	e.monitor.Forget(h)
	return e.registry.Unregister(h)
}

// Run executes the chain for point against hc and returns the effective
// result together with hc as the chain left it.
//
// Reduction: Continue and Skipped leave the chain running. Modified replaces
// hc.Data and the chain keeps running; if no later hook decides otherwise
// the effective result is Modified carrying the final data. Any other result
// ends the chain and becomes the effective result. Faulting hooks are
// logged and treated as Continue.
//
// Run returns an error only for infrastructure faults: a nil context, a
// guest hook whose language has no adapter, or an adapter panic.
func (e *Executor) Run(ctx context.Context, point Point, hc *Context) (Result, *Context, error) {
	if hc == nil {
		return nil, nil, ErrNilContext
	}
	hc.Point = point
	hc.State = make(map[string]any)
	if hc.Data == nil {
		hc.Data = make(map[string]any)
	}
	if hc.CorrelationID == "" {
		hc.CorrelationID = core.NewCorrelationID()
	}

	if !e.registry.GlobalEnabled() {
		return Continue{}, hc, nil
	}
	chain := e.registry.snapshot(point)
	if len(chain) == 0 {
		return Continue{}, hc, nil
	}

	ctx, span := e.tracer.Start(ctx, "hook.run", trace.WithAttributes(
		attribute.String("hook.point", string(point)),
		attribute.Int("hook.count", len(chain)),
		attribute.String("correlation_id", string(hc.CorrelationID)),
	))
	defer span.End()

	start := e.now()
	if e.executionEvents {
		e.emit(ctx, EventExecutionStart, hc.CorrelationID, map[string]any{
			"point":      string(point),
			"hook_count": int64(len(chain)),
		})
	}

	var effective Result = Continue{}
	for _, ent := range chain {
		if !ent.enabled.Load() {
			continue
		}
		res, err := e.invoke(ctx, ent, hc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, hc, err
		}
		switch r := res.(type) {
		case Continue, Skipped:
		case Modified:
			hc.Data = r.Data
			if hc.Data == nil {
				hc.Data = make(map[string]any)
			}
			effective = Modified{Data: hc.Data}
		default:
			effective = res
		}
		if Terminal(res) {
			break
		}
	}

	elapsed := e.now().Sub(start)
	e.monitor.recordChain(elapsed)
	e.metrics.RecordTimer(telemetry.MetricChainDuration, elapsed, "point", string(point))
	span.SetAttributes(attribute.String("hook.result", string(effective.Kind())))

	if e.executionEvents {
		e.emit(ctx, EventExecutionComplete, hc.CorrelationID, map[string]any{
			"point":       string(point),
			"hook_count":  int64(len(chain)),
			"result":      string(effective.Kind()),
			"duration_ms": elapsed.Milliseconds(),
		})
	}
	return effective, hc, nil
}

// invoke runs one entry through its breaker. Hook faults come back as
// Continue with a nil error; only infrastructure faults return an error.
func (e *Executor) invoke(ctx context.Context, ent *entry, hc *Context) (Result, error) {
	tags := []string{"point", string(ent.point), "language", string(ent.language)}

	if c, ok := ent.hook.(Conditional); ok && !c.ShouldExecute(hc) {
		e.monitor.record(ent, 0, outcomeSkip)
		e.metrics.IncCounter(telemetry.MetricHookSkipped, 1, append(tags, "reason", ReasonCondition)...)
		return Skipped{Reason: ReasonCondition}, nil
	}

	if !ent.breaker.Allow(e.now()) {
		e.monitor.record(ent, 0, outcomeSkip)
		e.metrics.IncCounter(telemetry.MetricHookSkipped, 1, append(tags, "reason", ReasonCircuitOpen)...)
		return Skipped{Reason: ReasonCircuitOpen}, nil
	}

	timeout := ent.timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := e.now()
	res, err := e.call(callCtx, ent, hc)
	elapsed := e.now().Sub(start)

	if errors.Is(err, ErrAdapterFault) || errors.Is(err, ErrNoAdapter) {
		ent.breaker.Record(elapsed, true, e.now())
		return nil, err
	}
	if err == nil && timeout > 0 && callCtx.Err() != nil {
		err = fmt.Errorf("exceeded timeout %s: %w", timeout, callCtx.Err())
	}

	e.metrics.IncCounter(telemetry.MetricHookInvocations, 1, tags...)
	e.metrics.RecordTimer(telemetry.MetricHookDuration, elapsed, tags...)

	if e.transition(ctx, ent, elapsed, err != nil, hc.CorrelationID) == TransitionOpened {
		e.metrics.IncCounter(telemetry.MetricBreakerOpen, 1, tags...)
	}

	if err != nil {
		e.monitor.record(ent, elapsed, outcomeFault)
		e.metrics.IncCounter(telemetry.MetricHookFaults, 1, tags...)
		e.logger.Warn(ctx, "hook fault ignored",
			"hook", ent.name,
			"point", string(ent.point),
			"language", string(ent.language),
			"correlation_id", string(hc.CorrelationID),
			"err", &HookError{Hook: ent.name, Point: ent.point, Err: err},
		)
		return Continue{}, nil
	}
	e.monitor.record(ent, elapsed, outcomeRan)
	if res == nil {
		return Continue{}, nil
	}
	return res, nil
}

// call dispatches to a native or guest hook and recovers hook panics.
func (e *Executor) call(ctx context.Context, ent *entry, hc *Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	gh, ok := ent.hook.(GuestHook)
	if !ok {
		return ent.hook.Execute(ctx, hc)
	}
	a, ok := e.adapter(gh.Language())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, gh.Language())
	}
	return gh.Invoke(ctx, hc, a)
}

func (e *Executor) transition(ctx context.Context, ent *entry, d time.Duration, failed bool, cid core.CorrelationID) Transition {
	tr := ent.breaker.Record(d, failed, e.now())
	switch tr {
	case TransitionOpened:
		e.logger.Warn(ctx, "hook circuit opened",
			"hook", ent.name,
			"point", string(ent.point),
			"duration", d,
		)
		e.emit(ctx, EventBreakerOpened, cid, map[string]any{
			"hook":        ent.name,
			"handle":      string(ent.handle),
			"point":       string(ent.point),
			"duration_ms": d.Milliseconds(),
		})
	case TransitionClosed:
		e.logger.Info(ctx, "hook circuit closed", "hook", ent.name, "point", string(ent.point))
		e.emit(ctx, EventBreakerClosed, cid, map[string]any{
			"hook":   ent.name,
			"handle": string(ent.handle),
			"point":  string(ent.point),
		})
	}
	return tr
}

func (e *Executor) emit(ctx context.Context, eventType string, cid core.CorrelationID, data map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink(ctx, eventType, cid, data)
}
