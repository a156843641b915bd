// Package adapter holds the marshalling contract shared by every guest
// language: the context shape handed to guest hooks, result decoding and
// the errors raised when a guest value does not fit.
//
// A language plugs in by supplying a Codec that converts between normalized
// host values (nil, bool, int64, float64, string, []any, map[string]any)
// and its own values. New wraps a Codec into a hook.Adapter.
package adapter

import (
	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

// Codec converts values for one guest language. Implementations may panic
// on runtime misuse; the Adapter turns panics into hook.ErrAdapterFault.
type Codec interface {
	Language() core.Language
	// ToGuest converts a normalized host value into a guest value.
	ToGuest(v any) (any, error)
	// FromGuest converts a guest value into a normalized host value.
	FromGuest(v any) (any, error)
}

// Adapter implements hook.Adapter over a Codec.
type Adapter struct {
	codec Codec
}

var _ hook.Adapter = (*Adapter)(nil)

// New returns an Adapter for c.
func New(c Codec) *Adapter {
	return &Adapter{codec: c}
}

// Language implements hook.Adapter.
func (a *Adapter) Language() core.Language { return a.codec.Language() }

// Codec returns the underlying codec.
func (a *Adapter) Codec() Codec { return a.codec }

// AdaptContext implements hook.Adapter.
func (a *Adapter) AdaptContext(hc *hook.Context) (out any, err error) {
	err = Guard(a.Language(), func() error {
		var cerr error
		out, cerr = a.codec.ToGuest(EncodeContext(hc))
		return a.wrap("context", cerr)
	})
	return out, err
}

// AdaptResult implements hook.Adapter.
func (a *Adapter) AdaptResult(v any) (res hook.Result, err error) {
	err = Guard(a.Language(), func() error {
		host, cerr := a.codec.FromGuest(v)
		if cerr != nil {
			return a.wrap("result", cerr)
		}
		res, cerr = DecodeResult(a.Language(), host)
		return cerr
	})
	return res, err
}

// AdaptEventData implements hook.Adapter.
func (a *Adapter) AdaptEventData(v any) (out any, err error) {
	err = Guard(a.Language(), func() error {
		var cerr error
		out, cerr = a.codec.ToGuest(v)
		return a.wrap("data", cerr)
	})
	return out, err
}

func (a *Adapter) wrap(field string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*AdaptError); ok {
		return err
	}
	return &AdaptError{Language: a.Language(), Field: field, Err: err}
}

// Guard runs fn and converts a panic into hook.AdapterFault.
func Guard(lang core.Language, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = hook.AdapterFault(lang, r)
		}
	}()
	return fn()
}

// Install registers adapters with the executor.
func Install(e *hook.Executor, adapters ...hook.Adapter) {
	for _, a := range adapters {
		e.RegisterAdapter(a)
	}
}

// NativeCodec normalizes values without changing representation. It serves
// Go callers that want the guest contract, and tests.
type NativeCodec struct {
	Lang core.Language
}

// Language implements Codec.
func (c NativeCodec) Language() core.Language {
	if c.Lang == "" {
		return core.LanguageNative
	}
	return c.Lang
}

// ToGuest implements Codec.
func (c NativeCodec) ToGuest(v any) (any, error) { return core.Normalize(v) }

// FromGuest implements Codec.
func (c NativeCodec) FromGuest(v any) (any, error) { return core.Normalize(v) }
