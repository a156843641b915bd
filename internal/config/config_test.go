package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/config/loader"
)

func envMap(vars map[string]string) loader.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Hooks.SlowThreshold.Std())
	assert.Equal(t, 5, cfg.Hooks.MaxConsecutiveSlow)
	assert.Equal(t, 30*time.Second, cfg.Hooks.Cooldown.Std())
	assert.Equal(t, 10000, cfg.Events.Capacity)
	assert.Equal(t, "drop_oldest", cfg.Events.Backpressure)
	assert.Equal(t, time.Second, cfg.Events.BlockTimeout.Std())
	assert.Equal(t, 1<<20, cfg.Events.MaxPayloadBytes)
	assert.Equal(t, 4096, cfg.Events.MatchCacheSize)
}

func TestLoadYAML(t *testing.T) {
	fsys := loader.MapFS{"conductor.yaml": `
logging:
  level: debug
hooks:
  slow_threshold: 250ms
events:
  capacity: 500
  backpressure: reject
  rate_limit:
    per_second: 100
persistence:
  backend: sqlite
  patterns: ["agent.**"]
  sqlite:
    path: /tmp/events.db
scripts:
  dirs: [hooks]
  watch: true
`}

	cfg, err := LoadFS(fsys, "conductor.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Hooks.SlowThreshold.Std())
	assert.Equal(t, 5, cfg.Hooks.MaxConsecutiveSlow)
	assert.Equal(t, 500, cfg.Events.Capacity)
	assert.Equal(t, "reject", cfg.Events.Backpressure)
	assert.Equal(t, 100.0, cfg.Events.RateLimit.PerSecond)
	assert.Equal(t, BackendSQLite, cfg.Persistence.Backend)
	assert.Equal(t, []string{"agent.**"}, cfg.Persistence.Patterns)
	assert.Equal(t, "/tmp/events.db", cfg.Persistence.SQLite.Path)
	assert.Equal(t, []string{"hooks"}, cfg.Scripts.Dirs)
	assert.True(t, cfg.Scripts.Watch)
}

func TestLoadTOML(t *testing.T) {
	fsys := loader.MapFS{"conductor.toml": `
[events]
capacity = 64
block_timeout = "2s"

[persistence]
backend = "redis"

[persistence.redis]
addr = "cache:6379"
db = 2
`}

	cfg, err := LoadFS(fsys, "conductor.toml")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Events.Capacity)
	assert.Equal(t, 2*time.Second, cfg.Events.BlockTimeout.Std())
	assert.Equal(t, BackendRedis, cfg.Persistence.Backend)
	assert.Equal(t, "cache:6379", cfg.Persistence.Redis.Addr)
	assert.Equal(t, 2, cfg.Persistence.Redis.DB)
}

func TestLoadErrors(t *testing.T) {
	fsys := loader.MapFS{
		"typo.yaml":  "events:\n  capacty: 5\n",
		"bad.toml":   "[events\n",
		"dur.yaml":   "hooks:\n  cooldown: 30\n",
		"config.ini": "x=1",
	}

	_, err := LoadFS(fsys, "missing.yaml")
	require.ErrorIs(t, err, ErrFileNotFound)

	_, err = LoadFS(fsys, "typo.yaml")
	require.ErrorContains(t, err, "capacty")

	_, err = LoadFS(fsys, "bad.toml")
	var perr *loader.ParseError
	require.True(t, errors.As(err, &perr))

	_, err = LoadFS(fsys, "dur.yaml")
	require.Error(t, err)

	_, err = LoadFS(fsys, "config.ini")
	require.ErrorIs(t, err, loader.ErrUnknownFormat)

	cfg, err := LoadFS(fsys, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"CONDUCTOR_EVENTS_CAPACITY":            "256",
		"CONDUCTOR_EVENTS_BLOCK_TIMEOUT":       "150ms",
		"CONDUCTOR_EVENTS_RATE_LIMIT_BURST":    "10",
		"CONDUCTOR_PERSISTENCE_BACKEND":        "mongo",
		"CONDUCTOR_PERSISTENCE_PATTERNS":       "agent.*, tool.**",
		"CONDUCTOR_PERSISTENCE_REDIS_PASSWORD": "1234",
		"CONDUCTOR_HOOKS_EXECUTION_EVENTS":     "true",
		"CONDUCTOR_SCRIPTS_STARLARK_MAX_STEPS": "100000",
		"UNRELATED":                            "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Events.Capacity)
	assert.Equal(t, 150*time.Millisecond, cfg.Events.BlockTimeout.Std())
	assert.Equal(t, 10, cfg.Events.RateLimit.Burst)
	assert.Equal(t, BackendMongo, cfg.Persistence.Backend)
	assert.Equal(t, []string{"agent.*", "tool.**"}, cfg.Persistence.Patterns)
	assert.Equal(t, "1234", cfg.Persistence.Redis.Password)
	assert.True(t, cfg.Hooks.ExecutionEvents)
	assert.Equal(t, uint64(100000), cfg.Scripts.StarlarkMaxSteps)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestApplyEnvBadValue(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{"CONDUCTOR_EVENTS_CAPACITY": "lots"}))
	require.Error(t, err)
}

func TestEnvVars(t *testing.T) {
	vars := EnvVars()
	assert.Contains(t, vars, "CONDUCTOR_EVENTS_CAPACITY")
	assert.Contains(t, vars, "CONDUCTOR_PERSISTENCE_BACKEND")
	assert.Contains(t, vars, "CONDUCTOR_PERSISTENCE_MONGO_URI")
	assert.Contains(t, vars, "CONDUCTOR_EVENTS_RATE_LIMIT_PER_SECOND")
	assert.IsNonDecreasing(t, vars)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"capacity", func(c *Config) { c.Events.Capacity = 0 }, "events.capacity"},
		{"strategy", func(c *Config) { c.Events.Backpressure = "sideways" }, "events.backpressure"},
		{"backend", func(c *Config) { c.Persistence.Backend = "postgres" }, "persistence.backend"},
		{"negative duration", func(c *Config) { c.Events.BlockTimeout = Duration(-time.Second) }, "events.block_timeout"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"pattern", func(c *Config) { c.Persistence.Patterns = []string{"a..b"} }, "persistence.patterns"},
		{"mongo database", func(c *Config) {
			c.Persistence.Backend = BackendMongo
			c.Persistence.Mongo.Database = ""
		}, "persistence.mongo.database"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tc.path)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Events.Capacity = -1
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "events.capacity")
	assert.ErrorContains(t, err, "logging.format")
}

func TestYAMLRendersDurations(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "slow_threshold: 100ms")
}
