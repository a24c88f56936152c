package gateway

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas for the two payloads the state machine depends on structurally.
// Generation is all-or-nothing, so a response that fails its schema is
// rejected whole rather than partially accepted.
const questionSetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type", "text"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["technical", "behavioral", "both", "mixed"]},
          "text": {"type": "string", "minLength": 1},
          "difficulty": {"type": "string"},
          "focus_area": {"type": "string"}
        }
      }
    }
  }
}`

const evaluationReportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["overall_score"],
  "properties": {
    "overall_score": {"type": "number", "minimum": 0, "maximum": 100},
    "technical_score": {"type": "number"},
    "behavioral_score": {"type": "number"},
    "question_scores": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question_id", "score"],
        "properties": {
          "question_id": {"type": "string"},
          "score": {"type": "number"},
          "feedback": {"type": "string"}
        }
      }
    },
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "feedback": {"type": "string"},
    "recommendations": {"type": "array", "items": {"type": "string"}}
  }
}`

// SchemaError describes a payload that failed schema validation, with the
// offending field paths.
type SchemaError struct {
	Fields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload failed schema validation: %s", strings.Join(e.Fields, "; "))
}

// validatePayload validates raw JSON content against a schema string.
func validatePayload(schema string, payload []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed to run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	fields := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		fields = append(fields, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return &SchemaError{Fields: fields}
}
