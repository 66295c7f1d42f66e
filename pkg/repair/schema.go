package repair

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Conforms checks a repaired value against a JSON schema requiring every
// expected field to be present as a string. ValidateAndRepair guarantees this
// by construction; Conforms lets callers assert it independently.
func Conforms(value map[string]string, expectedFields []string) error {
	properties := map[string]any{}
	for _, field := range expectedFields {
		properties[field] = map[string]any{"type": "string"}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(expectedFields) > 0 {
		schema["required"] = expectedFields
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(value),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	if !result.Valid() {
		return fmt.Errorf("value does not conform to schema: %v", result.Errors())
	}

	return nil
}
