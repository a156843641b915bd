package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ComponentKind classifies the entity that triggers a hook or publishes an event.
type ComponentKind string

const (
	KindAgent    ComponentKind = "agent"
	KindTool     ComponentKind = "tool"
	KindWorkflow ComponentKind = "workflow"
	KindSystem   ComponentKind = "system"
	KindCustom   ComponentKind = "custom"
)

// String returns the kind name.
func (k ComponentKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k ComponentKind) Valid() bool {
	switch k {
	case KindAgent, KindTool, KindWorkflow, KindSystem, KindCustom:
		return true
	}
	return false
}

// ParseComponentKind converts a kind name. Unknown names map to KindCustom.
func ParseComponentKind(s string) ComponentKind {
	k := ComponentKind(s)
	if k.Valid() {
		return k
	}
	return KindCustom
}

// ComponentID identifies a component. It is a value type and is never
// mutated after construction.
type ComponentID struct {
	ID   uuid.UUID
	Name string
	Kind ComponentKind
}

// NewComponentID returns a ComponentID with a fresh random UUID.
func NewComponentID(name string, kind ComponentKind) ComponentID {
	return ComponentID{ID: uuid.New(), Name: name, Kind: kind}
}

// SystemComponent is the component used when the host itself triggers a hook.
var SystemComponent = ComponentID{
	ID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte("conductor.system")),
	Name: "system",
	Kind: KindSystem,
}

// IsZero reports whether c was never initialized.
func (c ComponentID) IsZero() bool {
	return c.ID == uuid.Nil && c.Name == "" && c.Kind == ""
}

// String returns "kind:name".
func (c ComponentID) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Name)
}

// Map returns the guest-facing shape {id, name, component_type}.
func (c ComponentID) Map() map[string]any {
	return map[string]any{
		"id":             c.ID.String(),
		"name":           c.Name,
		"component_type": string(c.Kind),
	}
}

// ComponentIDFromMap is the inverse of Map.
func ComponentIDFromMap(m map[string]any) (ComponentID, error) {
	var c ComponentID
	if s, ok := m["id"].(string); ok && s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return c, fmt.Errorf("component id: %w", err)
		}
		c.ID = id
	}
	c.Name, _ = m["name"].(string)
	kind, _ := m["component_type"].(string)
	c.Kind = ParseComponentKind(kind)
	return c, nil
}
