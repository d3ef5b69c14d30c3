package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EvaluationJSONSchema describes the reply shape the evaluation prompt asks
// for. It is deliberately loose: marks may be numbers or numeric strings and
// unknown keys are allowed, because aggregation reads the payload leniently.
func EvaluationJSONSchema() map[string]any {
	mark := map[string]any{"type": []string{"number", "string"}}
	question := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question_total": mark,
			"total_awarded":  mark,
			"marks_awarded":  mark,
			"awarded":        mark,
			"question_max":   mark,
			"max_marks":      mark,
			"subdivisions": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "object"},
			},
		},
	}
	section := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":                 "object",
				"additionalProperties": question,
			},
			"retained":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"section_total": mark,
		},
		"required": []string{"questions"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"section_wise_evaluation": map[string]any{
				"type":                 "object",
				"additionalProperties": section,
			},
			"final_summary": map[string]any{"type": "object"},
		},
		"required": []string{"section_wise_evaluation"},
	}
}

var (
	evalSchemaOnce sync.Once
	evalSchema     *jsonschema.Schema
	evalSchemaErr  error
)

// ValidateEvaluationJSON checks data against EvaluationJSONSchema.
func ValidateEvaluationJSON(data []byte) error {
	evalSchemaOnce.Do(func() {
		evalSchema, evalSchemaErr = compileSchema(EvaluationJSONSchema())
	})
	if evalSchemaErr != nil {
		return evalSchemaErr
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := evalSchema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateJSONAgainstSchema compiles schemaMap and validates data against it.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema(schemaMap)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
