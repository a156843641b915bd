package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLLoader loads configuration from YAML files.
type YAMLLoader struct {
	fs   FileSystem
	path string
}

// NewYAMLLoader creates a YAML loader for path.
func NewYAMLLoader(fsys FileSystem, path string) *YAMLLoader {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &YAMLLoader{fs: fsys, path: path}
}

// Load implements Loader.
func (l *YAMLLoader) Load() (map[string]any, error) {
	data, ok, err := readFile(l.fs, l.path)
	if err != nil || !ok {
		return nil, err
	}

	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		perr := &ParseError{Path: l.path, Err: err}
		// yaml.v3 reports syntax errors as "yaml: line N: ...".
		_, _ = fmt.Sscanf(err.Error(), "yaml: line %d:", &perr.Line)
		return nil, perr
	}
	if config == nil {
		config = map[string]any{}
	}
	return config, nil
}
