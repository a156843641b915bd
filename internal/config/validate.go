package config

import (
	"errors"
	"fmt"

	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/event/topic"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError describes one invalid setting.
type ValidationError struct {
	// Path is the setting path that failed validation.
	Path string
	// Message describes the problem.
	Message string
	// Value is the invalid value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Unwrap returns ErrInvalid.
func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, path, msg string, v any) {
		if !ok {
			errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
		}
	}
	oneOf := func(v string, allowed ...string) bool {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}

	check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"), "logging.level", "must be debug, info, warn or error", c.Logging.Level)
	check(oneOf(c.Logging.Format, "text", "json"), "logging.format", "must be text or json", c.Logging.Format)

	check(c.Hooks.SlowThreshold > 0, "hooks.slow_threshold", "must be positive", c.Hooks.SlowThreshold)
	check(c.Hooks.MaxConsecutiveSlow > 0, "hooks.max_consecutive_slow", "must be positive", c.Hooks.MaxConsecutiveSlow)
	check(c.Hooks.Cooldown > 0, "hooks.cooldown", "must be positive", c.Hooks.Cooldown)
	check(c.Hooks.DefaultTimeout >= 0, "hooks.default_timeout", "must not be negative", c.Hooks.DefaultTimeout)
	check(c.Hooks.OverheadTarget > 0 && c.Hooks.OverheadTarget <= 1, "hooks.overhead_target", "must be in (0, 1]", c.Hooks.OverheadTarget)

	check(c.Events.Capacity > 0, "events.capacity", "must be positive", c.Events.Capacity)
	_, err := event.ParseStrategy(c.Events.Backpressure)
	check(err == nil, "events.backpressure", "unknown strategy", c.Events.Backpressure)
	check(c.Events.BlockTimeout >= 0, "events.block_timeout", "must not be negative", c.Events.BlockTimeout)
	check(c.Events.MaxPayloadBytes >= 0, "events.max_payload_bytes", "must not be negative", c.Events.MaxPayloadBytes)
	check(c.Events.MatchCacheSize >= 0, "events.match_cache_size", "must not be negative", c.Events.MatchCacheSize)
	check(c.Events.RateLimit.PerSecond >= 0, "events.rate_limit.per_second", "must not be negative", c.Events.RateLimit.PerSecond)
	check(c.Events.RateLimit.Burst >= 0, "events.rate_limit.burst", "must not be negative", c.Events.RateLimit.Burst)

	p := c.Persistence
	check(oneOf(p.Backend, BackendNone, BackendMemory, BackendRedis, BackendSQLite, BackendMongo), "persistence.backend", "unknown backend", p.Backend)
	check(p.Retention >= 0, "persistence.retention", "must not be negative", p.Retention)
	check(p.CleanupInterval >= 0, "persistence.cleanup_interval", "must not be negative", p.CleanupInterval)
	for _, pat := range p.Patterns {
		_, err := topic.Compile(pat)
		check(err == nil, "persistence.patterns", "invalid pattern", pat)
	}
	switch p.Backend {
	case BackendMemory:
		check(p.MemoryLimit > 0, "persistence.memory_limit", "must be positive", p.MemoryLimit)
	case BackendRedis:
		check(p.Redis.Addr != "", "persistence.redis.addr", "is required", p.Redis.Addr)
	case BackendSQLite:
		check(p.SQLite.Path != "", "persistence.sqlite.path", "is required", p.SQLite.Path)
	case BackendMongo:
		check(p.Mongo.URI != "", "persistence.mongo.uri", "is required", p.Mongo.URI)
		check(p.Mongo.Database != "", "persistence.mongo.database", "is required", p.Mongo.Database)
		check(p.Mongo.Timeout >= 0, "persistence.mongo.timeout", "must not be negative", p.Mongo.Timeout)
	}

	check(c.Scripts.Timeout >= 0, "scripts.timeout", "must not be negative", c.Scripts.Timeout)
	check(c.Scripts.LuaQueueSize >= 0, "scripts.lua_queue_size", "must not be negative", c.Scripts.LuaQueueSize)

	return errors.Join(errs...)
}
