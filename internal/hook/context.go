package hook

import (
	"github.com/dshills/conductor/internal/core"
)

// Context is the envelope passed through a hook chain. Hooks may read and
// write Data and State; the executor replaces Data when a hook returns
// Modified. State is scratch space that the executor resets at the start of
// every Run.
type Context struct {
	Point         Point
	Component     core.ComponentID
	CorrelationID core.CorrelationID
	Data          map[string]any
	Metadata      map[string]any
	Language      core.Language
	State         map[string]any
}

// NewContext returns a Context with empty maps and a fresh correlation id.
func NewContext(point Point, component core.ComponentID) *Context {
	return &Context{
		Point:         point,
		Component:     component,
		CorrelationID: core.NewCorrelationID(),
		Data:          make(map[string]any),
		Metadata:      make(map[string]any),
		Language:      core.LanguageNative,
		State:         make(map[string]any),
	}
}

// WithData sets Data and returns c for chaining.
func (c *Context) WithData(data map[string]any) *Context {
	c.Data = data
	return c
}

// WithCorrelation sets the correlation id and returns c for chaining.
func (c *Context) WithCorrelation(id core.CorrelationID) *Context {
	c.CorrelationID = id
	return c
}

// Clone returns a deep copy of c.
func (c *Context) Clone() *Context {
	return &Context{
		Point:         c.Point,
		Component:     c.Component,
		CorrelationID: c.CorrelationID,
		Data:          core.CloneMap(c.Data),
		Metadata:      core.CloneMap(c.Metadata),
		Language:      c.Language,
		State:         core.CloneMap(c.State),
	}
}

// Get returns a Data value.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.Data[key]
	return v, ok
}

// Set stores a Data value.
func (c *Context) Set(key string, v any) {
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	c.Data[key] = v
}
