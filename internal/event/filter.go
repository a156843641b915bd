package event

import (
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event/topic"
)

// FilterFunc decides whether a matched event is delivered to a subscription.
type FilterFunc func(e *UniversalEvent) bool

// FilterBySource only allows events published by the named component.
func FilterBySource(component string) FilterFunc {
	return func(e *UniversalEvent) bool {
		return e.Source.Component == component
	}
}

// FilterBySourcePrefix only allows events from components whose name starts with prefix.
func FilterBySourcePrefix(prefix string) FilterFunc {
	return func(e *UniversalEvent) bool {
		return e.Source.Component != "" && strings.HasPrefix(e.Source.Component, prefix)
	}
}

// FilterByCorrelation only allows events carrying the given correlation id.
func FilterByCorrelation(id core.CorrelationID) FilterFunc {
	return func(e *UniversalEvent) bool {
		return e.Source.CorrelationID == id
	}
}

// FilterByLanguage only allows events published from the given language.
func FilterByLanguage(lang core.Language) FilterFunc {
	return func(e *UniversalEvent) bool {
		return e.Source.Language == lang
	}
}

// FilterExcludeTopic drops events whose type matches pattern. An invalid
// pattern excludes nothing.
func FilterExcludeTopic(pattern string) FilterFunc {
	p, err := topic.Compile(pattern)
	return func(e *UniversalEvent) bool {
		return err != nil || !p.Match(e.Type)
	}
}

// FilterData matches on fields of the event data. Keys are gjson paths
// ("user.name", "items.0.id"); values are compared after numeric
// normalization, so 3 and 3.0 are equal. Every condition must hold.
func FilterData(conditions map[string]any) FilterFunc {
	want := make(map[string]any, len(conditions))
	for path, v := range conditions {
		n, err := core.Normalize(v)
		if err != nil {
			n = v
		}
		want[path] = n
	}
	return func(e *UniversalEvent) bool {
		raw, err := e.DataJSON()
		if err != nil {
			return false
		}
		for path, v := range want {
			res := gjson.GetBytes(raw, path)
			if !res.Exists() {
				return false
			}
			got, err := core.Normalize(res.Value())
			if err != nil || !reflect.DeepEqual(got, v) {
				return false
			}
		}
		return true
	}
}

// FilterDataExists only allows events whose data has a value at path.
func FilterDataExists(path string) FilterFunc {
	return func(e *UniversalEvent) bool {
		raw, err := e.DataJSON()
		return err == nil && gjson.GetBytes(raw, path).Exists()
	}
}

// FilterAnd combines filters with AND logic.
func FilterAnd(filters ...FilterFunc) FilterFunc {
	return func(e *UniversalEvent) bool {
		for _, f := range filters {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

// FilterOr combines filters with OR logic.
func FilterOr(filters ...FilterFunc) FilterFunc {
	return func(e *UniversalEvent) bool {
		for _, f := range filters {
			if f(e) {
				return true
			}
		}
		return false
	}
}

// FilterNot negates a filter.
func FilterNot(filter FilterFunc) FilterFunc {
	return func(e *UniversalEvent) bool {
		return !filter(e)
	}
}
