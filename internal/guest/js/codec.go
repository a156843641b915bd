// Package js runs guest hooks and event consumers written in JavaScript on
// goja. Scripts see the same Hook and Event globals as Lua scripts, with
// the same snake_case names, plus console.log.
package js

import (
	"github.com/dop251/goja"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/core"
)

// Codec converts between normalized host values and JavaScript values.
// Host values are handed to goja as Go maps and slices, which scripts see
// as objects and arrays; goja values coming back are exported.
type Codec struct{}

var _ adapter.Codec = Codec{}

// NewAdapter returns the hook adapter for JavaScript.
func NewAdapter() *adapter.Adapter {
	return adapter.New(Codec{})
}

// Language implements adapter.Codec.
func (Codec) Language() core.Language { return core.LanguageJavaScript }

// ToGuest implements adapter.Codec.
func (Codec) ToGuest(v any) (any, error) {
	return core.Normalize(v)
}

// FromGuest implements adapter.Codec. undefined and null become nil.
func (Codec) FromGuest(v any) (any, error) {
	return FromJS(v)
}

// FromJS normalizes a goja value or an exported Go value.
func FromJS(v any) (any, error) {
	if gv, ok := v.(goja.Value); ok {
		if gv == nil || goja.IsUndefined(gv) || goja.IsNull(gv) {
			return nil, nil
		}
		v = gv.Export()
	}
	return core.Normalize(v)
}
