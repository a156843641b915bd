package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/conductor/internal/core"
)

// Version is the record format version written into every event.
const Version = "1.0"

// Source describes who published an event.
type Source struct {
	Component     string             `json:"component"`
	InstanceID    string             `json:"instance_id"`
	CorrelationID core.CorrelationID `json:"correlation_id"`
	Language      core.Language      `json:"language"`
}

// UniversalEvent is the cross-language event record. Events are immutable
// once published; subscribers share one instance and must not modify Data
// or Metadata.
type UniversalEvent struct {
	ID         uuid.UUID
	Type       string
	Timestamp  time.Time
	Version    string
	Sequence   uint64
	Source     Source
	Data       any
	Metadata   map[string]any
	TTL        time.Duration
	Persistent bool

	// raw caches the JSON encoding of Data computed at publish time.
	raw []byte
}

// wireEvent is the JSON record shape.
type wireEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version"`
	Sequence   uint64         `json:"sequence"`
	Source     Source         `json:"source"`
	Data       any            `json:"data"`
	Metadata   map[string]any `json:"metadata"`
	TTLSeconds int64          `json:"ttl_seconds,omitempty"`
	Persistent bool           `json:"persistent,omitempty"`
}

// MarshalJSON writes the wire shape.
func (e *UniversalEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		ID:         e.ID.String(),
		Type:       e.Type,
		Timestamp:  e.Timestamp.UTC(),
		Version:    e.Version,
		Sequence:   e.Sequence,
		Source:     e.Source,
		Data:       e.Data,
		Metadata:   e.Metadata,
		TTLSeconds: int64(e.TTL / time.Second),
		Persistent: e.Persistent,
	}
	if w.Version == "" {
		w.Version = Version
	}
	if w.Metadata == nil {
		w.Metadata = map[string]any{}
	}
	if e.raw != nil {
		w.Data = json.RawMessage(e.raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the wire shape without schema validation. Use Decode
// for untrusted input.
func (e *UniversalEvent) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	data, err := core.Normalize(w.Data)
	if err != nil {
		return err
	}
	meta, err := core.Normalize(w.Metadata)
	if err != nil {
		return err
	}
	*e = UniversalEvent{
		ID:         id,
		Type:       w.Type,
		Timestamp:  w.Timestamp,
		Version:    w.Version,
		Sequence:   w.Sequence,
		Source:     w.Source,
		Data:       data,
		TTL:        time.Duration(w.TTLSeconds) * time.Second,
		Persistent: w.Persistent,
	}
	if m, ok := meta.(map[string]any); ok {
		e.Metadata = m
	}
	return nil
}

// Expired reports whether the event's TTL elapsed before now.
func (e *UniversalEvent) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.Timestamp) > e.TTL
}

// DataJSON returns the JSON encoding of Data.
func (e *UniversalEvent) DataJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return json.Marshal(e.Data)
}

// Map returns the event in the guest-facing record shape.
func (e *UniversalEvent) Map() map[string]any {
	m := map[string]any{
		"id":         e.ID.String(),
		"event_type": e.Type,
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
		"version":    e.Version,
		"sequence":   int64(e.Sequence),
		"source": map[string]any{
			"component":      e.Source.Component,
			"instance_id":    e.Source.InstanceID,
			"correlation_id": string(e.Source.CorrelationID),
			"language":       e.Source.Language.String(),
		},
		"data":     core.CloneValue(e.Data),
		"metadata": core.CloneMap(e.Metadata),
	}
	if m["metadata"] == nil {
		m["metadata"] = map[string]any{}
	}
	if e.TTL > 0 {
		m["ttl_seconds"] = int64(e.TTL / time.Second)
	}
	if e.Persistent {
		m["persistent"] = true
	}
	return m
}
