package config

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/event/topic"
)

// Persistence backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

type (
	// Config is the complete conductor configuration.
	Config struct {
		Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
		Hooks       HooksConfig       `yaml:"hooks" toml:"hooks"`
		Events      EventsConfig      `yaml:"events" toml:"events"`
		Persistence PersistenceConfig `yaml:"persistence" toml:"persistence"`
		Scripts     ScriptsConfig     `yaml:"scripts" toml:"scripts"`
	}

	LoggingConfig struct {
		// Level is one of debug, info, warn or error.
		Level string `yaml:"level" toml:"level"`
		// Format is text or json.
		Format string `yaml:"format" toml:"format"`
	}

	HooksConfig struct {
		SlowThreshold      Duration `yaml:"slow_threshold" toml:"slow_threshold"`
		MaxConsecutiveSlow int      `yaml:"max_consecutive_slow" toml:"max_consecutive_slow"`
		Cooldown           Duration `yaml:"cooldown" toml:"cooldown"`
		// DefaultTimeout bounds hooks without a timeout of their own. Zero
		// leaves them unbounded.
		DefaultTimeout  Duration `yaml:"default_timeout" toml:"default_timeout"`
		ExecutionEvents bool     `yaml:"execution_events" toml:"execution_events"`
		OverheadTarget  float64  `yaml:"overhead_target" toml:"overhead_target"`
	}

	EventsConfig struct {
		Capacity        int             `yaml:"capacity" toml:"capacity"`
		Backpressure    string          `yaml:"backpressure" toml:"backpressure"`
		BlockTimeout    Duration        `yaml:"block_timeout" toml:"block_timeout"`
		MaxPayloadBytes int             `yaml:"max_payload_bytes" toml:"max_payload_bytes"`
		MatchCacheSize  int             `yaml:"match_cache_size" toml:"match_cache_size"`
		RateLimit       RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
		InstanceID      string          `yaml:"instance_id" toml:"instance_id"`
	}

	// RateLimitConfig is disabled while PerSecond is zero.
	RateLimitConfig struct {
		PerSecond float64 `yaml:"per_second" toml:"per_second"`
		Burst     int     `yaml:"burst" toml:"burst"`
	}

	PersistenceConfig struct {
		Backend string `yaml:"backend" toml:"backend"`
		// Patterns selects event types persisted even when not published
		// as persistent.
		Patterns []string `yaml:"patterns" toml:"patterns"`
		// MemoryLimit caps the memory backend.
		MemoryLimit int `yaml:"memory_limit" toml:"memory_limit"`
		// Retention drops history older than this on each cleanup. Zero
		// keeps everything.
		Retention       Duration     `yaml:"retention" toml:"retention"`
		CleanupInterval Duration     `yaml:"cleanup_interval" toml:"cleanup_interval"`
		Redis           RedisConfig  `yaml:"redis" toml:"redis"`
		SQLite          SQLiteConfig `yaml:"sqlite" toml:"sqlite"`
		Mongo           MongoConfig  `yaml:"mongo" toml:"mongo"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr" toml:"addr"`
		Password string `yaml:"password" toml:"password"`
		DB       int    `yaml:"db" toml:"db"`
		Prefix   string `yaml:"prefix" toml:"prefix"`
	}

	SQLiteConfig struct {
		Path string `yaml:"path" toml:"path"`
	}

	MongoConfig struct {
		URI        string   `yaml:"uri" toml:"uri"`
		Database   string   `yaml:"database" toml:"database"`
		Collection string   `yaml:"collection" toml:"collection"`
		Timeout    Duration `yaml:"timeout" toml:"timeout"`
	}

	ScriptsConfig struct {
		Dirs  []string `yaml:"dirs" toml:"dirs"`
		Watch bool     `yaml:"watch" toml:"watch"`
		// Timeout bounds a script load or a single guest hook call.
		Timeout          Duration `yaml:"timeout" toml:"timeout"`
		LuaQueueSize     int      `yaml:"lua_queue_size" toml:"lua_queue_size"`
		StarlarkMaxSteps uint64   `yaml:"starlark_max_steps" toml:"starlark_max_steps"`
	}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Hooks: HooksConfig{
			SlowThreshold:      Duration(100 * time.Millisecond),
			MaxConsecutiveSlow: 5,
			Cooldown:           Duration(30 * time.Second),
			OverheadTarget:     0.05,
		},
		Events: EventsConfig{
			Capacity:        event.DefaultCapacity,
			Backpressure:    string(event.DropOldest),
			BlockTimeout:    Duration(event.DefaultBlockTimeout),
			MaxPayloadBytes: event.DefaultMaxPayloadBytes,
			MatchCacheSize:  topic.DefaultCacheSize,
		},
		Persistence: PersistenceConfig{
			Backend:     BackendNone,
			MemoryLimit: 10000,
			Redis:       RedisConfig{Addr: "localhost:6379"},
			SQLite:      SQLiteConfig{Path: "conductor.db"},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "conductor",
				Timeout:  Duration(5 * time.Second),
			},
		},
		Scripts: ScriptsConfig{
			Timeout:      Duration(5 * time.Second),
			LuaQueueSize: 64,
		},
	}
}

// decode overlays m onto c. Keys that match no field are errors.
func (c *Config) decode(m map[string]any) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Duration is a time.Duration written as a duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
