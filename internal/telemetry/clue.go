package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const instrumentationName = "github.com/dshills/conductor"

type (
	// ClueLogger writes through goa.design/clue/log. Format and debug level
	// come from the context (see NewLogContext).
	ClueLogger struct{}

	// OTELMetrics records metrics on the global OpenTelemetry meter provider.
	OTELMetrics struct {
		meter metric.Meter
	}

	// OTELTracer starts spans on the global OpenTelemetry tracer provider.
	OTELTracer struct {
		tracer trace.Tracer
	}
)

// NewClueLogger returns a Logger backed by clue.
func NewClueLogger() Logger {
	return ClueLogger{}
}

// NewOTELMetrics returns a Metrics recorder backed by otel.Meter.
func NewOTELMetrics() Metrics {
	return &OTELMetrics{meter: otel.Meter(instrumentationName)}
}

// NewOTELTracer returns a Tracer backed by otel.Tracer.
func NewOTELTracer() Tracer {
	return &OTELTracer{tracer: otel.Tracer(instrumentationName)}
}

// NewLogContext prepares ctx for clue logging. format is "json", "text" or
// "terminal"; an empty format picks terminal output when stderr is a tty.
// A nil w keeps clue's default output.
func NewLogContext(ctx context.Context, format string, debug bool, w io.Writer) context.Context {
	var f log.FormatFunc
	switch format {
	case "json":
		f = log.FormatJSON
	case "text":
		f = log.FormatText
	case "terminal":
		f = log.FormatTerminal
	default:
		f = log.FormatJSON
		if log.IsTerminal() {
			f = log.FormatTerminal
		}
	}
	opts := []log.LogOption{log.WithFormat(f)}
	if w != nil {
		opts = append(opts, log.WithOutput(w))
	}
	if debug {
		opts = append(opts, log.WithDebug())
	}
	return log.Context(ctx, opts...)
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	var err error
	for i := 0; i+1 < len(keyvals); i += 2 {
		if e, ok := keyvals[i+1].(error); ok && keyvals[i] == "err" {
			err = e
			break
		}
	}
	log.Error(ctx, err, fielders(msg, keyvals)...)
}

// IncCounter adds value to a float counter.
func (m *OTELMetrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(attrs(tags)...))
}

// RecordTimer records d in seconds on a histogram.
func (m *OTELMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name, metric.WithUnit("s"))
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(attrs(tags)...))
}

// RecordGauge records value on a synchronous gauge.
func (m *OTELMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(attrs(tags)...))
}

// Start opens a span.
func (t *OTELTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// fielders converts msg and alternating key/value pairs into clue fielders.
// Non-string keys are dropped; a trailing key is paired with nil.
func fielders(msg string, keyvals []any) []log.Fielder {
	out := make([]log.Fielder, 0, 1+len(keyvals)/2)
	out = append(out, log.KV{K: "msg", V: msg})
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		if s, ok := v.(fmt.Stringer); ok {
			v = s.String()
		}
		out = append(out, log.KV{K: k, V: v})
	}
	return out
}

func attrs(tags []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		out = append(out, attribute.String(tags[i], v))
	}
	return out
}
