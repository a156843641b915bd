package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "event_type", "timestamp", "version", "source"],
  "properties": {
    "id": {"type": "string", "format": "uuid"},
    "event_type": {
      "type": "string",
      "minLength": 1,
      "maxLength": 255,
      "pattern": "^[^.*?\\[\\]{},\\s]+(\\.[^.*?\\[\\]{},\\s]+)*$"
    },
    "timestamp": {"type": "string", "format": "date-time"},
    "version": {"const": "1.0"},
    "sequence": {"type": "integer", "minimum": 0},
    "source": {
      "type": "object",
      "required": ["component", "language"],
      "properties": {
        "component": {"type": "string"},
        "instance_id": {"type": "string"},
        "correlation_id": {"type": "string"},
        "language": {"type": "string", "minLength": 1}
      }
    },
    "data": true,
    "metadata": {"type": ["object", "null"]},
    "ttl_seconds": {"type": "integer", "minimum": 0},
    "persistent": {"type": "boolean"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("parse record schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource("event.json", doc); err != nil {
		return nil, fmt.Errorf("add record schema: %w", err)
	}
	return c.Compile("event.json")
})

// Encode renders e as a JSON record.
func Encode(e *UniversalEvent) ([]byte, error) {
	return json.Marshal(e)
}

// Decode validates b against the record schema and parses it.
func Decode(b []byte) (*UniversalEvent, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	var e UniversalEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &e, nil
}
