package script

import (
	"context"
	"time"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/guest"
	jsguest "github.com/dshills/conductor/internal/guest/js"
	luaguest "github.com/dshills/conductor/internal/guest/lua"
	starguest "github.com/dshills/conductor/internal/guest/starlark"
	"github.com/dshills/conductor/internal/hook"
)

// Runtime is a loaded script. Closing it releases every hook and
// subscription it created.
type Runtime interface {
	Close() error
}

// Factory creates a runtime bound to host and runs the script at path in it.
type Factory func(ctx context.Context, host *guest.Host, path string) (Runtime, error)

// Kind binds a file extension to a guest language.
type Kind struct {
	Ext      string
	Language core.Language
	Factory  Factory
}

// RuntimeOptions tunes the built-in runtimes. Zero values keep each
// runtime's defaults.
type RuntimeOptions struct {
	Timeout          time.Duration
	LuaQueueSize     int
	StarlarkMaxSteps uint64
}

// DefaultKinds returns the .lua, .js and .star kinds.
func DefaultKinds(o RuntimeOptions) []Kind {
	return []Kind{
		{Ext: ".lua", Language: core.LanguageLua, Factory: luaFactory(o)},
		{Ext: ".js", Language: core.LanguageJavaScript, Factory: jsFactory(o)},
		{Ext: ".star", Language: core.LanguageStarlark, Factory: starlarkFactory(o)},
	}
}

// Adapters returns the hook adapters the built-in runtimes need installed
// on the executor.
func Adapters() []hook.Adapter {
	return []hook.Adapter{luaguest.NewAdapter(), jsguest.NewAdapter(), starguest.NewAdapter()}
}

func luaFactory(o RuntimeOptions) Factory {
	return func(ctx context.Context, host *guest.Host, path string) (Runtime, error) {
		var opts []luaguest.Option
		if o.Timeout > 0 {
			opts = append(opts, luaguest.WithExecutionTimeout(o.Timeout))
		}
		if o.LuaQueueSize > 0 {
			opts = append(opts, luaguest.WithQueueSize(o.LuaQueueSize))
		}
		rt, err := luaguest.New(host, opts...)
		if err != nil {
			return nil, err
		}
		return run(rt, rt.DoFile(ctx, path))
	}
}

func jsFactory(o RuntimeOptions) Factory {
	return func(ctx context.Context, host *guest.Host, path string) (Runtime, error) {
		var opts []jsguest.Option
		if o.Timeout > 0 {
			opts = append(opts, jsguest.WithExecutionTimeout(o.Timeout))
		}
		rt, err := jsguest.New(host, opts...)
		if err != nil {
			return nil, err
		}
		return run(rt, rt.RunFile(ctx, path))
	}
}

func starlarkFactory(o RuntimeOptions) Factory {
	return func(ctx context.Context, host *guest.Host, path string) (Runtime, error) {
		var opts []starguest.Option
		if o.Timeout > 0 {
			opts = append(opts, starguest.WithExecutionTimeout(o.Timeout))
		}
		if o.StarlarkMaxSteps > 0 {
			opts = append(opts, starguest.WithMaxSteps(o.StarlarkMaxSteps))
		}
		rt, err := starguest.New(host, opts...)
		if err != nil {
			return nil, err
		}
		return run(rt, rt.ExecFile(ctx, path))
	}
}

// run closes rt when the script failed, so partial registrations are
// released.
func run(rt Runtime, err error) (Runtime, error) {
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}
