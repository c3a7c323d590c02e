package workflow

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the wire shape the editor submits on PUT .../steps.
// It is checked before decoding so shape problems come back as structured
// field errors instead of decode failures.
const definitionSchema = `{
	"type": "object",
	"required": ["nodes", "edges"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"kind": {"type": "string", "enum": ["trigger", "action", "condition", ""]},
					"type": {"type": "string", "minLength": 1},
					"position": {
						"type": "object",
						"properties": {
							"x": {"type": "number"},
							"y": {"type": "number"}
						}
					},
					"config": {"type": "object"}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source", "target"],
				"properties": {
					"id": {"type": "string"},
					"source": {"type": "string", "minLength": 1},
					"target": {"type": "string", "minLength": 1},
					"branch": {"type": "string", "enum": ["", "true", "false"]},
					"label": {"type": "string"},
					"animated": {"type": "boolean"}
				}
			}
		}
	}
}`

var compiledDefinitionSchema = gojsonschema.NewStringLoader(definitionSchema)

// ValidateRawDefinition checks a raw definition document against the wire
// schema and returns one message per shape problem.
func ValidateRawDefinition(raw []byte) ([]string, error) {
	result, err := gojsonschema.Validate(compiledDefinitionSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate definition document: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return messages, nil
}
