package decide

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response schemas for the two decision payloads. Unrecognized fields pass
// through; structurally wrong payloads are rejected at the boundary so the
// caller can degrade to the fallback.

const turnSchemaJSON = `{
  "type": "object",
  "required": ["thought"],
  "properties": {
    "thought": {"type": "string", "minLength": 1},
    "speech": {"type": ["string", "null"]},
    "action": {"type": ["string", "null"]},
    "movement": {
      "type": ["object", "null"],
      "required": ["direction", "distance"],
      "properties": {
        "direction": {"enum": ["N", "S", "E", "W"]},
        "distance": {"type": "number", "minimum": 0}
      }
    }
  }
}`

const deliberationSchemaJSON = `{
  "type": "object",
  "properties": {
    "observation": {"type": ["string", "null"]},
    "new_goal": {"type": ["string", "null"]},
    "resident_instruction": {
      "type": ["object", "null"],
      "required": ["target", "text"],
      "properties": {
        "target": {"type": "string"},
        "text": {"type": "string"}
      }
    },
    "actions": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {"kind": {"type": "string"}}
      }
    }
  }
}`

var (
	turnSchema         = jsonschema.MustCompileString("turn.schema.json", turnSchemaJSON)
	deliberationSchema = jsonschema.MustCompileString("deliberation.schema.json", deliberationSchemaJSON)
)

// ParseTurn validates and decodes a raw turn payload.
func ParseTurn(raw string) (*Turn, error) {
	body := extractJSON(raw)
	if err := validate(turnSchema, body); err != nil {
		return nil, fmt.Errorf("turn payload: %w", err)
	}
	var t Turn
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("turn payload: %w", err)
	}
	return &t, nil
}

// ParseDeliberation validates and decodes a raw deliberation payload.
func ParseDeliberation(raw string) (*Deliberation, error) {
	body := extractJSON(raw)
	if err := validate(deliberationSchema, body); err != nil {
		return nil, fmt.Errorf("deliberation payload: %w", err)
	}
	var d Deliberation
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("deliberation payload: %w", err)
	}
	return &d, nil
}

func validate(schema *jsonschema.Schema, body string) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return schema.Validate(v)
}

// extractJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON object. Models wrap responses despite instructions not to.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
