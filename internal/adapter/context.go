package adapter

import (
	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

// EncodeContext renders hc in the shape guest handlers receive:
// hook_point, component_id{id,name,component_type}, correlation_id, data,
// metadata, language and state. Maps are copied.
func EncodeContext(hc *hook.Context) map[string]any {
	return map[string]any{
		"hook_point":     string(hc.Point),
		"component_id":   hc.Component.Map(),
		"correlation_id": string(hc.CorrelationID),
		"data":           orEmpty(core.CloneMap(hc.Data)),
		"metadata":       orEmpty(core.CloneMap(hc.Metadata)),
		"language":       hc.Language.String(),
		"state":          orEmpty(core.CloneMap(hc.State)),
	}
}

// DecodeContext is the inverse of EncodeContext for values that came back
// from a guest.
func DecodeContext(lang core.Language, m map[string]any) (*hook.Context, error) {
	hc := &hook.Context{Language: lang}

	if s, ok := m["hook_point"].(string); ok && s != "" {
		p, err := hook.ParsePoint(s)
		if err != nil {
			return nil, &AdaptError{Language: lang, Field: "hook_point", Err: err}
		}
		hc.Point = p
	}
	if raw, ok := m["component_id"]; ok && raw != nil {
		cm, ok := raw.(map[string]any)
		if !ok {
			return nil, adaptErr(lang, "component_id", "expected map, got %T", raw)
		}
		c, err := core.ComponentIDFromMap(cm)
		if err != nil {
			return nil, &AdaptError{Language: lang, Field: "component_id", Err: err}
		}
		hc.Component = c
	}
	if s, ok := m["correlation_id"].(string); ok {
		hc.CorrelationID = core.CorrelationID(s)
	}
	if s, ok := m["language"].(string); ok && s != "" {
		hc.Language = core.Language(s)
	}

	var err error
	if hc.Data, err = mapField(lang, m, "data"); err != nil {
		return nil, err
	}
	if hc.Metadata, err = mapField(lang, m, "metadata"); err != nil {
		return nil, err
	}
	if hc.State, err = mapField(lang, m, "state"); err != nil {
		return nil, err
	}
	return hc, nil
}

func mapField(lang core.Language, m map[string]any, field string) (map[string]any, error) {
	raw, ok := m[field]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case []any:
		// Empty guest tables decode as empty lists.
		if len(v) == 0 {
			return map[string]any{}, nil
		}
	}
	return nil, adaptErr(lang, field, "expected map, got %T", raw)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
