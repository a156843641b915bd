package lua

import (
	"context"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/conductor/internal/telemetry"
)

// removedGlobals are base-library functions that reach outside the state.
var removedGlobals = []string{
	"dofile",     // Load and execute file
	"loadfile",   // Load file as function
	"load",       // Load string or reader as function
	"loadstring", // Load string as function
	"require",    // Module loading
	"module",
	"_printregs",
}

// Sandbox restricts a Lua state to the safe subset of the standard library.
type Sandbox struct {
	L      *lua.LState
	script string
	logger telemetry.Logger
}

// NewSandbox creates a sandbox for L. print output is logged under script.
func NewSandbox(L *lua.LState, script string, logger telemetry.Logger) *Sandbox {
	return &Sandbox{L: L, script: script, logger: logger}
}

// Install opens the safe libraries and removes everything else.
func (s *Sandbox) Install() error {
	if err := openSafeLibraries(s.L); err != nil {
		return err
	}
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.L.SetGlobal("print", s.L.NewFunction(s.print))
	return nil
}

// openSafeLibraries opens only base, table, string and math.
// io, os, debug, package and channel are never opened.
func openSafeLibraries(L *lua.LState) error {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return err
		}
	}
	return nil
}

// print joins its arguments with tabs like the stock print and logs them.
func (s *Sandbox) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s.logger.Info(ctx, "script output", "script", s.script, "message", strings.Join(parts, "\t"))
	return 0
}
