package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/conductor/internal/core"
)

// buildData parses the --data document and applies each --set path=value
// assignment to it. Values that are valid JSON are set raw, anything else
// as a string.
func buildData(doc string, sets []string) (map[string]any, error) {
	if strings.TrimSpace(doc) == "" {
		doc = "{}"
	}
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}
	if !gjson.Parse(doc).IsObject() {
		return nil, fmt.Errorf("--data must be a JSON object")
	}

	var err error
	for _, s := range sets {
		path, value, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("--set %q: expected path=value", s)
		}
		if gjson.Valid(value) {
			doc, err = sjson.SetRaw(doc, path, value)
		} else {
			doc, err = sjson.Set(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", s, err)
		}
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, err
	}
	n, err := core.Normalize(m)
	if err != nil {
		return nil, err
	}
	out, _ := n.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// project returns the value at path in the JSON document, or the document
// itself when path is empty.
func project(doc []byte, path string) string {
	if path == "" {
		return string(doc)
	}
	return gjson.GetBytes(doc, path).String()
}
