// Package schema validates and decodes the JSON step documents produced by
// the external authoring component before they reach the engine.
package schema

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/petrijr/stepflow/pkg/api"
)

const stepsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "type"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "name": {"type": "string"},
      "type": {
        "type": "string",
        "enum": ["task", "ai", "data_ops", "switch", "loop", "scatter"]
      },
      "params": {"type": "object"},
      "data_ops": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["op"],
          "properties": {"op": {"type": "string", "minLength": 1}}
        }
      },
      "preprocess": {
        "type": "object",
        "properties": {
          "trim_strings": {"type": "boolean"},
          "lowercase_keys": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    },
    "additionalProperties": false
  }
}`

var compiled = jsonschema.MustCompileString("steps.json", stepsSchema)

// ParseSteps validates raw JSON against the step schema and decodes it.
// Schema violations are configuration errors: the run aborts before it
// starts.
func ParseSteps(data []byte) ([]api.Step, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, api.NewConfigurationError("", "steps document is not valid JSON: %v", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, api.NewConfigurationError(offendingStep(doc, err), "steps document violates schema: %v", err)
	}

	var steps []api.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, api.NewConfigurationError("", "decode steps: %v", err)
	}
	return steps, nil
}

// offendingStep extracts the step ID behind a schema violation so the error
// can name it, when the violating instance location points into a step.
func offendingStep(doc any, err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return ""
	}
	loc := ve.InstanceLocation
	for _, cause := range ve.Causes {
		if cause.InstanceLocation != "" {
			loc = cause.InstanceLocation
			break
		}
	}
	parts := strings.Split(strings.TrimPrefix(loc, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	arr, ok := doc.([]any)
	if !ok {
		return ""
	}
	idx, err2 := strconv.Atoi(parts[0])
	if err2 != nil || idx < 0 || idx >= len(arr) {
		return ""
	}
	if m, ok := arr[idx].(map[string]any); ok {
		if id, ok := m["id"].(string); ok {
			return id
		}
	}
	return ""
}
