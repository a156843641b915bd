package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/conductor/internal/core"
)

var nop = Func(func(context.Context, *Context) (Result, error) { return Continue{}, nil })

func TestRegistryRegisterErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(BeforeToolExecution, PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrNilHook)

	_, err = r.Register(Point("NotAPoint"), PriorityNormal, nop)
	assert.ErrorIs(t, err, ErrUnknownPoint)

	_, err = r.Register(Custom("anything"), PriorityNormal, nop)
	assert.NoError(t, err)
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	mustRegister(r, ToolError, PriorityNormal, nop, WithName("audit"))

	_, err := r.Register(ToolError, PriorityLow, nop, WithName("audit"))
	assert.True(t, errors.Is(err, ErrDuplicateName))

	// Same name at another point is fine.
	_, err = r.Register(AgentError, PriorityLow, nop, WithName("audit"))
	assert.NoError(t, err)
}

func TestRegistryOrdering(t *testing.T) {
	r := NewRegistry()
	mustRegister(r, SessionStart, PriorityLow, nop, WithName("low"))
	mustRegister(r, SessionStart, PriorityHighest, nop, WithName("highest"))
	mustRegister(r, SessionStart, PriorityNormal, nop, WithName("normal-1"))
	mustRegister(r, SessionStart, PriorityHigh, nop, WithName("high"))
	mustRegister(r, SessionStart, PriorityNormal, nop, WithName("normal-2"))

	var names []string
	for _, d := range r.List(Filter{Point: SessionStart}) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"highest", "high", "normal-1", "normal-2", "low"}, names)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	h := mustRegister(r, SessionEnd, PriorityNormal, nop)

	assert.Equal(t, 1, r.Count(SessionEnd))
	assert.True(t, r.Unregister(h))
	assert.False(t, r.Unregister(h))
	assert.Equal(t, 0, r.Count(SessionEnd))

	_, ok := r.Lookup(h)
	assert.False(t, ok)
}

func TestRegistrySnapshotIsStable(t *testing.T) {
	r := NewRegistry()
	mustRegister(r, SessionSave, PriorityNormal, nop)

	snap := r.snapshot(SessionSave)
	mustRegister(r, SessionSave, PriorityHighest, nop)

	assert.Len(t, snap, 1)
	assert.Len(t, r.snapshot(SessionSave), 2)
}

func TestRegistryListFilter(t *testing.T) {
	r := NewRegistry()
	mustRegister(r, ToolValidation, PriorityHigh, nop, WithTags("security"))
	mustRegister(r, ToolValidation, PriorityLow, nop, WithTags("cost"), WithLanguage(core.LanguageLua))
	mustRegister(r, AgentError, PriorityHigh, nop, WithTags("security"))

	assert.Len(t, r.List(Filter{}), 3)
	assert.Len(t, r.List(Filter{Tag: "security"}), 2)
	assert.Len(t, r.List(Filter{Band: "low"}), 1)
	assert.Len(t, r.List(Filter{Point: ToolValidation, Tag: "security"}), 1)

	lua := r.List(Filter{Language: core.LanguageLua})
	require.Len(t, lua, 1)
	assert.Equal(t, []string{"cost"}, lua[0].Tags)
}

func TestRegistryEnableAndStats(t *testing.T) {
	r := NewRegistry()
	h := mustRegister(r, AfterStateWrite, PriorityNormal, nop)
	mustRegister(r, AfterStateWrite, PriorityLowest, nop, WithLanguage(core.LanguageJavaScript))

	assert.True(t, r.SetEnabled(h, false))
	assert.False(t, r.SetEnabled(Handle("missing"), false))

	s := r.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Enabled)
	assert.Equal(t, 2, s.ByPoint[AfterStateWrite])
	assert.Equal(t, 1, s.ByBand["lowest"])
	assert.Equal(t, 1, s.ByLanguage[core.LanguageJavaScript])

	d, ok := r.Lookup(h)
	require.True(t, ok)
	assert.False(t, d.Enabled)
	assert.Equal(t, BreakerClosed, d.Breaker.Status)
}
