package loader

import (
	"encoding/json"
	"strconv"
	"strings"
)

// LookupFunc reports the value of an environment variable. os.LookupEnv
// satisfies it.
type LookupFunc func(key string) (string, bool)

// Binding maps one environment variable to a config path.
type Binding struct {
	Env  string
	Path string
	// List splits comma-separated values into a list.
	List bool
}

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	lookup   LookupFunc
	bindings []Binding
}

// NewEnvLoader creates a loader for bindings.
func NewEnvLoader(lookup LookupFunc, bindings []Binding) *EnvLoader {
	return &EnvLoader{lookup: lookup, bindings: bindings}
}

// EnvName converts a dotted path to an environment variable name:
// events.rate_limit.burst with prefix CONDUCTOR_ becomes
// CONDUCTOR_EVENTS_RATE_LIMIT_BURST.
func EnvName(prefix, path string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

// Load implements Loader. Empty values are treated as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	for _, b := range l.bindings {
		val, ok := l.lookup(b.Env)
		if !ok {
			continue
		}
		if b.List && !strings.HasPrefix(strings.TrimSpace(val), "[") {
			SetByPath(config, b.Path, splitList(val))
			continue
		}
		SetByPath(config, b.Path, parseValue(val))
	}
	return config, nil
}

func splitList(s string) []any {
	out := []any{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseValue attempts to parse the string value into an appropriate type.
// Durations stay strings; the decoder parses them.
func parseValue(s string) any {
	if s == "" {
		return s
	}

	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	// Only with a decimal point, so version-like strings stay strings.
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	return s
}
