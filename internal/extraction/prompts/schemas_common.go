package prompts

func StringSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func StringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func BooleanSchema() map[string]any {
	return map[string]any{"type": "boolean"}
}

func NumberSchema() map[string]any {
	return map[string]any{"type": "number"}
}

func EnumSchema(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

// SchemaVersionedObject wraps properties into a strict top-level object with
// a const schema_version field, as required for strict structured outputs.
func SchemaVersionedObject(version int, properties map[string]any, required []string) map[string]any {
	props := map[string]any{
		"schema_version": map[string]any{"type": "integer", "const": version},
	}
	for k, v := range properties {
		props[k] = v
	}
	req := append([]string{"schema_version"}, required...)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             req,
		"additionalProperties": false,
	}
}
