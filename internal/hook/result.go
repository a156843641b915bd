package hook

import (
	"time"

	"github.com/dshills/conductor/internal/core"
)

// ResultKind names a Result variant.
type ResultKind string

const (
	KindContinue ResultKind = "continue"
	KindModified ResultKind = "modified"
	KindCancel   ResultKind = "cancel"
	KindRedirect ResultKind = "redirect"
	KindReplace  ResultKind = "replace"
	KindRetry    ResultKind = "retry"
	KindFork     ResultKind = "fork"
	KindCache    ResultKind = "cache"
	KindSkipped  ResultKind = "skipped"
)

// Result is the outcome of a hook. The set of implementations is closed:
// Continue, Modified, Cancel, Redirect, Replace, Retry, Fork, Cache and
// Skipped. Hosts switch on the concrete type.
type Result interface {
	Kind() ResultKind
	sealed()
}

// Continue has no effect.
type Continue struct{}

// Modified replaces Context.Data for later hooks and for the operation.
type Modified struct {
	Data map[string]any
}

// Cancel aborts the operation.
type Cancel struct {
	Reason string
}

// Redirect routes the operation to another named component.
type Redirect struct {
	Target string
}

// Replace substitutes the invoked component. Component describes the
// substitute in a form the host understands.
type Replace struct {
	Component map[string]any
}

// Retry asks the caller to re-invoke the operation.
type Retry struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Branch is one alternative execution requested by Fork.
type Branch struct {
	Name string
	Data map[string]any
}

// Fork requests parallel alternative executions. The caller owns fan-out.
type Fork struct {
	Branches []Branch
}

// Cache short-circuits the operation with Value.
type Cache struct {
	TTL   time.Duration
	Value any
}

// Skipped means the hook declined to act.
type Skipped struct {
	Reason string
}

func (Continue) Kind() ResultKind { return KindContinue }
func (Modified) Kind() ResultKind { return KindModified }
func (Cancel) Kind() ResultKind   { return KindCancel }
func (Redirect) Kind() ResultKind { return KindRedirect }
func (Replace) Kind() ResultKind  { return KindReplace }
func (Retry) Kind() ResultKind    { return KindRetry }
func (Fork) Kind() ResultKind     { return KindFork }
func (Cache) Kind() ResultKind    { return KindCache }
func (Skipped) Kind() ResultKind  { return KindSkipped }

func (Continue) sealed() {}
func (Modified) sealed() {}
func (Cancel) sealed()   {}
func (Redirect) sealed() {}
func (Replace) sealed()  {}
func (Retry) sealed()    {}
func (Fork) sealed()     {}
func (Cache) sealed()    {}
func (Skipped) sealed()  {}

// Default Retry values used when a guest omits them.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second
)

// Reasons attached to Skipped results produced by the executor.
const (
	ReasonCircuitOpen = "circuit_open"
	ReasonCondition   = "condition"
)

// IsPassive reports whether r lets the chain continue unchanged.
func IsPassive(r Result) bool {
	switch r.(type) {
	case nil, Continue, Skipped:
		return true
	}
	return false
}

// Terminal reports whether r ends the chain.
func Terminal(r Result) bool {
	if IsPassive(r) {
		return false
	}
	_, modified := r.(Modified)
	return !modified
}

// ToMap renders r in the guest-facing shape {type, ...}.
func ToMap(r Result) map[string]any {
	m := map[string]any{"type": string(r.Kind())}
	switch v := r.(type) {
	case Modified:
		m["data"] = core.CloneMap(v.Data)
	case Cancel:
		m["reason"] = v.Reason
	case Redirect:
		m["target"] = v.Target
	case Replace:
		m["component"] = core.CloneMap(v.Component)
	case Retry:
		m["max_attempts"] = int64(v.MaxAttempts)
		m["backoff_ms"] = v.Backoff.Milliseconds()
	case Fork:
		branches := make([]any, len(v.Branches))
		for i, b := range v.Branches {
			branches[i] = map[string]any{"name": b.Name, "data": core.CloneMap(b.Data)}
		}
		m["branches"] = branches
	case Cache:
		m["ttl_ms"] = v.TTL.Milliseconds()
		m["value"] = core.CloneValue(v.Value)
	case Skipped:
		m["reason"] = v.Reason
	}
	return m
}
