package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dshills/conductor/internal/config/loader"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONDUCTOR_"

// ErrFileNotFound indicates the configuration file doesn't exist.
var ErrFileNotFound = errors.New("config file not found")

// Load returns the defaults overlaid with the file at path. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	return LoadFS(loader.OSFS{}, path)
}

// LoadFS is Load reading through fsys.
func LoadFS(fsys loader.FileSystem, path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	l, err := loader.ForPath(fsys, path)
	if err != nil {
		return nil, err
	}
	m, err := l.Load()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err := cfg.decode(m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays CONDUCTOR_* variables reported by lookup onto cfg.
func ApplyEnv(cfg *Config, lookup loader.LookupFunc) error {
	m, err := loader.NewEnvLoader(lookup, envBindings()).Load()
	if err != nil || len(m) == 0 {
		return err
	}
	if err := cfg.decode(m); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// EnvVars lists every recognized environment variable.
func EnvVars() []string {
	bindings := envBindings()
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Env
	}
	sort.Strings(out)
	return out
}

// envBindings derives one binding per leaf field from the yaml tags.
func envBindings() []loader.Binding {
	var out []loader.Binding
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "" || name == "-" {
				continue
			}
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, path)
				continue
			}
			out = append(out, loader.Binding{
				Env:  loader.EnvName(EnvPrefix, path),
				Path: path,
				List: f.Type.Kind() == reflect.Slice,
			})
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return out
}
