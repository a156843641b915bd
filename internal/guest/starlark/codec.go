package starlark

import (
	"fmt"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/core"
)

const maxDepth = 64

// Codec converts between normalized host values and Starlark values. Maps
// become dicts with string keys, so hooks read ctx["data"]["x"].
type Codec struct{}

var _ adapter.Codec = Codec{}

// NewAdapter returns the hook adapter for Starlark.
func NewAdapter() *adapter.Adapter {
	return adapter.New(Codec{})
}

// Language implements adapter.Codec.
func (Codec) Language() core.Language { return core.LanguageStarlark }

// ToGuest implements adapter.Codec. The result is a starlark.Value.
func (Codec) ToGuest(v any) (any, error) {
	n, err := core.Normalize(v)
	if err != nil {
		return nil, err
	}
	return ToStarlark(n)
}

// FromGuest implements adapter.Codec.
func (Codec) FromGuest(v any) (any, error) {
	sv, ok := v.(starlark.Value)
	if !ok {
		return core.Normalize(v)
	}
	return FromStarlark(sv)
}

// ToStarlark converts a normalized value. Dict keys are inserted in sorted
// order.
func ToStarlark(v any) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case int64:
		return starlark.MakeInt64(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case float64:
		return starlark.Float(t), nil
	case string:
		return starlark.String(t), nil
	case []any:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			sv, err := ToStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(t))
		for _, k := range core.SortedKeys(t) {
			sv, err := ToStarlark(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case starlark.Value:
		return t, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// FromStarlark converts a Starlark value into a normalized value. Lists and
// tuples become []any; dicts and structs become maps. Functions, sets and
// integers outside int64 are errors.
func FromStarlark(v starlark.Value) (any, error) {
	return fromStarlark(v, 0)
}

func fromStarlark(v starlark.Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxDepth)
	}
	switch t := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(t), nil
	case starlark.Int:
		n, ok := t.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", t)
		}
		return n, nil
	case starlark.Float:
		return core.NarrowFloat(float64(t)), nil
	case starlark.String:
		return string(t), nil
	case *starlark.List:
		return sequence(t, depth)
	case starlark.Tuple:
		return sequence(t, depth)
	case *starlark.Dict:
		out := make(map[string]any, t.Len())
		for _, item := range t.Items() {
			key, err := dictKey(item[0])
			if err != nil {
				return nil, err
			}
			val, err := fromStarlark(item[1], depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = val
		}
		return out, nil
	case *starlarkstruct.Struct:
		names := t.AttrNames()
		out := make(map[string]any, len(names))
		for _, name := range names {
			attr, err := t.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := fromStarlark(attr, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported starlark value of type %s", v.Type())
}

func sequence(seq starlark.Indexable, depth int) ([]any, error) {
	out := make([]any, seq.Len())
	for i := range out {
		val, err := fromStarlark(seq.Index(i), depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}

func dictKey(k starlark.Value) (string, error) {
	switch kv := k.(type) {
	case starlark.String:
		return string(kv), nil
	case starlark.Int:
		return kv.String(), nil
	case starlark.Bool:
		return strconv.FormatBool(bool(kv)), nil
	}
	return "", fmt.Errorf("unsupported dict key of type %s", k.Type())
}
