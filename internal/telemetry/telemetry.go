// Package telemetry defines the logging, metrics and tracing seams used by
// the hook executor and the event bus, with clue/OpenTelemetry backed
// implementations and no-op defaults.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log lines. keyvals alternate string keys and values.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers and gauges. tags alternate keys and values.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, d time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	}
)

// Metric names shared across packages.
const (
	MetricHookInvocations = "hook.invocations"
	MetricHookFaults      = "hook.faults"
	MetricHookSkipped     = "hook.skipped"
	MetricHookDuration    = "hook.duration"
	MetricBreakerOpen     = "hook.breaker.open"
	MetricChainDuration   = "hook.chain.duration"

	MetricExecutionEventsDropped = "hook.events.dropped"

	MetricEventPublished = "event.published"
	MetricEventDelivered = "event.delivered"
	MetricEventDropped   = "event.dropped"
	MetricEventRejected  = "event.rejected"
	MetricQueueDepth     = "event.queue.depth"
)
