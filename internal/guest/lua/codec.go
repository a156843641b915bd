package lua

import (
	"errors"
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/core"
)

const maxDepth = 64

// Codec converts between normalized host values and Lua values. It holds
// no state and may be shared by every runtime.
type Codec struct{}

var _ adapter.Codec = Codec{}

// NewAdapter returns the hook adapter for Lua.
func NewAdapter() *adapter.Adapter {
	return adapter.New(Codec{})
}

// Language implements adapter.Codec.
func (Codec) Language() core.Language { return core.LanguageLua }

// ToGuest implements adapter.Codec. The result is a lua.LValue.
func (Codec) ToGuest(v any) (any, error) {
	n, err := core.Normalize(v)
	if err != nil {
		return nil, err
	}
	return ToLua(n), nil
}

// FromGuest implements adapter.Codec. v is normally a lua.LValue; plain Go
// values are normalized as they are.
func (Codec) FromGuest(v any) (any, error) {
	lv, ok := v.(lua.LValue)
	if !ok {
		return core.Normalize(v)
	}
	return FromLua(lv)
}

// newTable builds a table without an LState. Such tables need an explicit
// nil metatable.
func newTable() *lua.LTable {
	return &lua.LTable{Metatable: lua.LNil}
}

// ToLua converts a normalized value. Values outside the normalized set
// become nil.
func ToLua(v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case int64:
		return lua.LNumber(t)
	case int:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	case []any:
		tbl := newTable()
		for i, e := range t {
			tbl.RawSetInt(i+1, ToLua(e))
		}
		return tbl
	case map[string]any:
		tbl := newTable()
		for k, e := range t {
			tbl.RawSetString(k, ToLua(e))
		}
		return tbl
	case lua.LValue:
		return t
	}
	return lua.LNil
}

// FromLua converts a Lua value into a normalized value. Tables with keys
// 1..n become lists, other tables become maps and the empty table becomes
// an empty map. Functions, userdata, threads and cyclic tables are errors.
func FromLua(lv lua.LValue) (any, error) {
	return fromLua(lv, make(map[*lua.LTable]bool), 0)
}

func fromLua(lv lua.LValue, path map[*lua.LTable]bool, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("table nested deeper than %d levels", maxDepth)
	}
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		return core.NarrowFloat(float64(v)), nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		if path[v] {
			return nil, errors.New("cyclic table")
		}
		path[v] = true
		defer delete(path, v)
		return tableFromLua(v, path, depth)
	}
	return nil, fmt.Errorf("unsupported lua value of type %s", lv.Type())
}

func tableFromLua(t *lua.LTable, path map[*lua.LTable]bool, depth int) (any, error) {
	count, maxN := 0, 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		kn, ok := k.(lua.LNumber)
		if !ok {
			isArray = false
			return
		}
		n := int(kn)
		if float64(n) != float64(kn) || n < 1 {
			isArray = false
			return
		}
		if n > maxN {
			maxN = n
		}
	})

	if isArray && count > 0 && count == maxN {
		out := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			v, err := fromLua(t.RawGetInt(i), path, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i-1] = v
		}
		return out, nil
	}

	out := make(map[string]any, count)
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}
		key, err := tableKey(k)
		if err != nil {
			firstErr = err
			return
		}
		val, err := fromLua(v, path, depth+1)
		if err != nil {
			firstErr = fmt.Errorf("%s: %w", key, err)
			return
		}
		out[key] = val
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func tableKey(k lua.LValue) (string, error) {
	switch kv := k.(type) {
	case lua.LString:
		return string(kv), nil
	case lua.LNumber:
		switch n := core.NarrowFloat(float64(kv)).(type) {
		case int64:
			return strconv.FormatInt(n, 10), nil
		default:
			return strconv.FormatFloat(float64(kv), 'g', -1, 64), nil
		}
	case lua.LBool:
		return strconv.FormatBool(bool(kv)), nil
	}
	return "", fmt.Errorf("unsupported table key of type %s", k.Type())
}
