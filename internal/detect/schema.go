package detect

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// patternSchema is the JSON Schema for veil.patterns.yaml files.
const patternSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "veil.patterns.yaml",
  "description": "Veil pattern library definition v1",
  "type": "object",
  "required": ["version", "types"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "enum": [1]},
    "types": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "type": {"type": "string", "minLength": 1, "pattern": "^[A-Z][A-Z0-9_]*$"},
          "patterns": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "regex"],
              "additionalProperties": false,
              "properties": {
                "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_]+$"},
                "regex": {"type": "string", "minLength": 1},
                "confidence": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "deny": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    }
  }
}`

// ValidateSchema validates pattern YAML bytes against the v1 JSON schema.
// The YAML is first converted to JSON because gojsonschema operates on JSON.
func ValidateSchema(yamlBytes []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	// yaml.v3 unmarshals map keys as string, but nested maps need the same
	// treatment before JSON marshalling.
	normalized := normalizeYAML(raw)

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(patternSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("pattern file schema errors:\n%s", errMsg)
	}

	return nil
}

// normalizeYAML recursively converts map[interface{}]interface{} to
// map[string]interface{} so that json.Marshal can handle it.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
