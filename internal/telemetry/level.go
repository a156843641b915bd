package telemetry

import (
	"context"
	"fmt"
	"strings"

	"goa.design/clue/log"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// BoundLogger drops lines below min and writes the rest to next with the
// clue logger carried by base, so calls made with contexts that were never
// prepared with NewLogContext still reach the output.
type BoundLogger struct {
	base context.Context
	min  Level
	next Logger
}

// NewBoundLogger binds next to the clue logger in base.
func NewBoundLogger(base context.Context, min Level, next Logger) *BoundLogger {
	return &BoundLogger{base: base, min: min, next: next}
}

func (l *BoundLogger) ctx(ctx context.Context) context.Context {
	if ctx == nil {
		return l.base
	}
	return log.WithContext(ctx, l.base)
}

func (l *BoundLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	if l.min <= LevelDebug {
		l.next.Debug(l.ctx(ctx), msg, keyvals...)
	}
}

func (l *BoundLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	if l.min <= LevelInfo {
		l.next.Info(l.ctx(ctx), msg, keyvals...)
	}
}

func (l *BoundLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	if l.min <= LevelWarn {
		l.next.Warn(l.ctx(ctx), msg, keyvals...)
	}
}

func (l *BoundLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.next.Error(l.ctx(ctx), msg, keyvals...)
}
