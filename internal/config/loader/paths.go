package loader

import "strings"

// SetByPath stores value at the dotted path in data, creating the maps on
// the way.
func SetByPath(data map[string]any, path string, value any) {
	keys := strings.Split(path, ".")
	m := data
	for _, k := range keys[:len(keys)-1] {
		child, ok := m[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[k] = child
		}
		m = child
	}
	m[keys[len(keys)-1]] = value
}
