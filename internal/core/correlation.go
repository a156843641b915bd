package core

import "github.com/google/uuid"

// CorrelationID threads one logical request across hooks, events and
// language boundaries. It is opaque and propagated by value.
type CorrelationID string

// NewCorrelationID generates a correlation id at an operation boundary.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// String returns the id.
func (c CorrelationID) String() string {
	return string(c)
}

// Language tags the runtime a hook or event originated from.
type Language string

const (
	LanguageNative     Language = "native"
	LanguageLua        Language = "lua"
	LanguageJavaScript Language = "javascript"
	LanguageStarlark   Language = "starlark"
)

// String returns the language tag.
func (l Language) String() string {
	if l == "" {
		return string(LanguageNative)
	}
	return string(l)
}

// IsGuest reports whether l names an embedded scripting language.
func (l Language) IsGuest() bool {
	return l != "" && l != LanguageNative
}
