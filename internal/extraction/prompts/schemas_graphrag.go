package prompts

func EntityExtractSchema() map[string]any {
	entity := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        StringSchema(),
			"label":       StringSchema(),
			"description": StringSchema(),
		},
		"required":             []string{"name", "label", "description"},
		"additionalProperties": false,
	}
	return SchemaVersionedObject(1, map[string]any{
		"entities": map[string]any{"type": "array", "items": entity},
	}, []string{"entities"})
}

func RelationshipExtractSchema() map[string]any {
	relationship := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source_entity_name": StringSchema(),
			"target_entity_name": StringSchema(),
			"relation_label":     StringSchema(),
			"fact_sentence":      StringSchema(),
		},
		"required": []string{
			"source_entity_name",
			"target_entity_name",
			"relation_label",
			"fact_sentence",
		},
		"additionalProperties": false,
	}
	return SchemaVersionedObject(1, map[string]any{
		"relationships": map[string]any{"type": "array", "items": relationship},
	}, []string{"relationships"})
}

func EntityDedupSchema() map[string]any {
	return SchemaVersionedObject(1, map[string]any{
		"is_duplicate":   BooleanSchema(),
		"duplicate_uuid": StringSchema(),
		"canonical_name": StringSchema(),
	}, []string{"is_duplicate", "duplicate_uuid", "canonical_name"})
}

func ProductMatchSchema() map[string]any {
	return SchemaVersionedObject(1, map[string]any{
		"is_match":            BooleanSchema(),
		"matched_entity_uuid": StringSchema(),
	}, []string{"is_match", "matched_entity_uuid"})
}

func MultiQuerySchema() map[string]any {
	return SchemaVersionedObject(1, map[string]any{
		"queries": StringArraySchema(),
	}, []string{"queries"})
}

func CypherGenerateSchema() map[string]any {
	return SchemaVersionedObject(1, map[string]any{
		"cypher": StringSchema(),
	}, []string{"cypher"})
}
