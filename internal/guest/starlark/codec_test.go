package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/dshills/conductor/internal/adapter"
	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

func evalStarlark(t *testing.T, expr string) starlark.Value {
	t.Helper()
	v, err := starlark.Eval(&starlark.Thread{Name: "test"}, "expr.star", expr, starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)})
	require.NoError(t, err)
	return v
}

func TestFromStarlark(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want any
	}{
		{"none", "None", nil},
		{"bool", "True", true},
		{"int", "42", int64(42)},
		{"integral float", "2.0", int64(2)},
		{"fraction", "1.5", 1.5},
		{"string", `"hi"`, "hi"},
		{"list", `[1, "two", 3.5]`, []any{int64(1), "two", 3.5}},
		{"tuple", `(1, 2)`, []any{int64(1), int64(2)}},
		{"dict", `{"a": 1, "b": {"c": True}}`, map[string]any{"a": int64(1), "b": map[string]any{"c": true}}},
		{"int keys", `{1: "a"}`, map[string]any{"1": "a"}},
		{"struct", `struct(k = "v")`, map[string]any{"k": "v"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromStarlark(evalStarlark(t, tc.expr))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromStarlarkErrors(t *testing.T) {
	for _, expr := range []string{
		"lambda: 1",
		`{"f": len}`,
		"1 << 70",
		`{(1, 2): "tuple key"}`,
	} {
		_, err := FromStarlark(evalStarlark(t, expr))
		assert.Error(t, err, expr)
	}
}

func TestToStarlarkDict(t *testing.T) {
	v, err := ToStarlark(map[string]any{"b": int64(2), "a": []any{"x", nil}})
	require.NoError(t, err)
	d, ok := v.(*starlark.Dict)
	require.True(t, ok)
	assert.Equal(t, `{"a": ["x", None], "b": 2}`, d.String())

	_, err = ToStarlark(make(chan int))
	require.Error(t, err)
}

func TestCodecContextRoundTrip(t *testing.T) {
	a := NewAdapter()
	hc := hook.NewContext(hook.BeforeToolExecution, core.NewComponentID("search", core.KindTool))
	hc.Data = map[string]any{"query": "go", "limit": int64(5), "nested": map[string]any{"tags": []any{"a", "b"}}}

	guestVal, err := a.AdaptContext(hc)
	require.NoError(t, err)
	_, ok := guestVal.(*starlark.Dict)
	require.True(t, ok)

	host, err := a.Codec().FromGuest(guestVal)
	require.NoError(t, err)
	back, err := adapter.DecodeContext(core.LanguageStarlark, host.(map[string]any))
	require.NoError(t, err)
	assert.Equal(t, hc.Component, back.Component)
	assert.Equal(t, hc.Data, back.Data)
	assert.Equal(t, hook.BeforeToolExecution, back.Point)
}

func TestCodecResults(t *testing.T) {
	a := NewAdapter()
	cases := []struct {
		expr string
		want hook.Result
	}{
		{"None", hook.Continue{}},
		{`"skip"`, hook.Skipped{Reason: adapter.DefaultSkipReason}},
		{`"denied"`, hook.Cancel{Reason: "denied"}},
		{`{"type": "modified", "data": {"x": 1}}`, hook.Modified{Data: map[string]any{"x": int64(1)}}},
		{`{"type": "redirect", "target": "backup"}`, hook.Redirect{Target: "backup"}},
	}
	for _, tc := range cases {
		got, err := a.AdaptResult(evalStarlark(t, tc.expr))
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}

	_, err := a.AdaptResult(evalStarlark(t, `{"type": "teleport"}`))
	require.ErrorIs(t, err, adapter.ErrAdapt)
}
