package adapter

import (
	"strings"
	"time"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

// Default reasons for results that omit one.
const (
	DefaultCancelReason = "cancelled by hook"
	DefaultSkipReason   = "skipped by hook"
)

// DecodeResult converts a normalized guest return value into a Result.
//
//	nil, booleans, numbers, lists, maps without "type"  -> Continue
//	"continue"                                          -> Continue
//	"skip", "skipped"                                   -> Skipped
//	any other string                                    -> Cancel{reason: string}
//	{type: ...}                                         -> the named variant
//
// Unknown types and missing required fields return an AdaptError.
func DecodeResult(lang core.Language, v any) (hook.Result, error) {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(t) {
		case "continue":
			return hook.Continue{}, nil
		case "skip", "skipped":
			return hook.Skipped{Reason: DefaultSkipReason}, nil
		}
		return hook.Cancel{Reason: t}, nil
	case map[string]any:
		typ, ok := t["type"]
		if !ok {
			return hook.Continue{}, nil
		}
		name, ok := typ.(string)
		if !ok {
			return nil, adaptErr(lang, "type", "expected string, got %T", typ)
		}
		return decodeTyped(lang, strings.ToLower(name), t)
	}
	return hook.Continue{}, nil
}

func decodeTyped(lang core.Language, typ string, m map[string]any) (hook.Result, error) {
	switch typ {
	case "continue":
		return hook.Continue{}, nil
	case "modified":
		data, err := mapField(lang, m, "data")
		if err != nil {
			return nil, err
		}
		return hook.Modified{Data: data}, nil
	case "cancel":
		return hook.Cancel{Reason: stringOr(m, "reason", DefaultCancelReason)}, nil
	case "redirect":
		target, ok := m["target"].(string)
		if !ok || target == "" {
			return nil, adaptErr(lang, "target", "redirect requires a target")
		}
		return hook.Redirect{Target: target}, nil
	case "replace":
		field := "component"
		if _, ok := m[field]; !ok {
			field = "data"
		}
		comp, err := mapField(lang, m, field)
		if err != nil {
			return nil, err
		}
		return hook.Replace{Component: comp}, nil
	case "retry":
		attempts, err := intField(lang, m, "max_attempts", hook.DefaultRetryAttempts)
		if err != nil {
			return nil, err
		}
		backoffKey := "backoff_ms"
		if _, ok := m[backoffKey]; !ok {
			backoffKey = "delay_ms"
		}
		backoff, err := intField(lang, m, backoffKey, hook.DefaultRetryBackoff.Milliseconds())
		if err != nil {
			return nil, err
		}
		if attempts < 0 || backoff < 0 {
			return nil, adaptErr(lang, "retry", "negative attempts or backoff")
		}
		return hook.Retry{MaxAttempts: int(attempts), Backoff: time.Duration(backoff) * time.Millisecond}, nil
	case "fork":
		return decodeFork(lang, m)
	case "cache":
		ttl, err := intField(lang, m, "ttl_ms", 0)
		if err != nil {
			return nil, err
		}
		if ttl < 0 {
			return nil, adaptErr(lang, "ttl_ms", "negative ttl")
		}
		return hook.Cache{TTL: time.Duration(ttl) * time.Millisecond, Value: m["value"]}, nil
	case "skipped", "skip":
		return hook.Skipped{Reason: stringOr(m, "reason", DefaultSkipReason)}, nil
	}
	return nil, adaptErr(lang, "type", "unknown result type %q", typ)
}

func decodeFork(lang core.Language, m map[string]any) (hook.Result, error) {
	raw, ok := m["branches"].([]any)
	if !ok || len(raw) == 0 {
		return nil, adaptErr(lang, "branches", "fork requires a non-empty list of branches")
	}
	branches := make([]hook.Branch, len(raw))
	for i, b := range raw {
		bm, ok := b.(map[string]any)
		if !ok {
			return nil, adaptErr(lang, "branches", "branch %d: expected map, got %T", i, b)
		}
		name, _ := bm["name"].(string)
		if name == "" {
			return nil, adaptErr(lang, "branches", "branch %d: missing name", i)
		}
		data, err := mapField(lang, bm, "data")
		if err != nil {
			return nil, err
		}
		branches[i] = hook.Branch{Name: name, Data: data}
	}
	return hook.Fork{Branches: branches}, nil
}

func stringOr(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intField(lang core.Language, m map[string]any, key string, def int64) (int64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch n := raw.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, adaptErr(lang, key, "expected number, got %T", raw)
}
