package prompts

// RegisterAll registers every prompt in the registry using RegisterSpec(Spec{...}).
func RegisterAll() {
	// ---------- Ingestion ----------

	RegisterSpec(Spec{
		Name:       PromptEntityExtract,
		Version:    1,
		SchemaName: "entity_extract",
		Schema:     EntityExtractSchema,
		System: `
You extract named entities from a text chunk for a knowledge graph.
Only extract entities actually present in CURRENT_CHUNK; the previous chunk is context only.
Do not invent entities. Do not extract the document or source itself as an entity.
Return JSON only.`,
		User: `
SOURCE: {{.SourceName}}

PREVIOUS_CHUNK (context only; do not extract from it):
{{.PrevChunkContent}}

CURRENT_CHUNK:
{{.ChunkContent}}

Task:
- Output a deduplicated list of named entities mentioned in CURRENT_CHUNK.
- name: the canonical surface form as written (resolve pronouns using context when unambiguous).
- label: a short category; prefer stable ones (Person, Company, Organization, Product, Location, Technology, Event) but freeform is allowed.
- description: one grounded sentence describing the entity as presented in the chunk.

Constraints:
- Prefer fewer, higher-signal entities over exhaustive micro-mentions.
- Skip dates, quantities, and generic common nouns.`,
		Validators: []Validator{
			RequireNonEmpty("ChunkContent", func(in Input) string { return in.ChunkContent }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptRelationshipExtract,
		Version:    1,
		SchemaName: "relationship_extract",
		Schema:     RelationshipExtractSchema,
		System: `
You extract factual relationships between known entities from a text chunk.
Both endpoints of every relationship must be names from KNOWN_ENTITIES_JSON, verbatim.
Every fact_sentence must be supported by CURRENT_CHUNK; do not invent facts.
Return JSON only.`,
		User: `
KNOWN_ENTITIES_JSON (the only allowed endpoint names):
{{.EntitiesJSON}}

CURRENT_CHUNK:
{{.ChunkContent}}

Task:
- Output relationships between pairs of known entities stated or clearly implied in CURRENT_CHUNK.
- relation_label: SCREAMING_SNAKE_CASE verb phrase (e.g. WORKS_AT, ACQUIRED, LOCATED_IN).
- fact_sentence: one self-contained sentence stating the fact, naming both entities.

Constraints:
- No self-relationships (source and target must differ).
- Skip relationships whose endpoints are not in KNOWN_ENTITIES_JSON.`,
		Validators: []Validator{
			RequireNonEmpty("EntitiesJSON", func(in Input) string { return in.EntitiesJSON }),
			RequireNonEmpty("ChunkContent", func(in Input) string { return in.ChunkContent }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptEntityDedup,
		Version:    1,
		SchemaName: "entity_dedup",
		Schema:     EntityDedupSchema,
		System: `
You decide whether a newly extracted entity is the same real-world thing as one of the existing candidates.
Judge identity, not similarity: different people with similar names are not duplicates.
Return JSON only.`,
		User: `
NEW_ENTITY:
- name: {{.EntityName}}
- label: {{.EntityLabel}}
- description: {{.EntityDescription}}

EXISTING_CANDIDATES_JSON (each with uuid, name, label, known facts):
{{.CandidatesJSON}}

Task:
- is_duplicate: true only if the new entity clearly refers to the same real-world thing as one candidate.
- duplicate_uuid: the matched candidate's uuid when is_duplicate is true; empty string otherwise.
- canonical_name: the best canonical name for the merged entity (prefer the fullest, most formal form).

When in doubt, answer false.`,
		Validators: []Validator{
			RequireNonEmpty("EntityName", func(in Input) string { return in.EntityName }),
			RequireNonEmpty("CandidatesJSON", func(in Input) string { return in.CandidatesJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptProductMatch,
		Version:    1,
		SchemaName: "product_match",
		Schema:     ProductMatchSchema,
		System: `
You decide whether a structured product record refers to the same thing as an existing graph entity.
Judge identity, not similarity.
Return JSON only.`,
		User: `
PRODUCT:
- name: {{.ProductName}}

PRODUCT_JSON:
{{.ProductJSON}}

EXISTING_ENTITY_CANDIDATES_JSON (each with uuid, name, label, known facts):
{{.CandidatesJSON}}

Task:
- is_match: true only if one candidate clearly refers to this exact product.
- matched_entity_uuid: the matched candidate's uuid when is_match is true; empty string otherwise.

When in doubt, answer false.`,
		Validators: []Validator{
			RequireNonEmpty("ProductName", func(in Input) string { return in.ProductName }),
			RequireNonEmpty("CandidatesJSON", func(in Input) string { return in.CandidatesJSON }),
		},
	})

	// ---------- Search ----------

	RegisterSpec(Spec{
		Name:       PromptMultiQuery,
		Version:    1,
		SchemaName: "multi_query",
		Schema:     MultiQuerySchema,
		System: `
You rewrite a search query into alternative phrasings to improve hybrid retrieval recall.
Each alternative must preserve the original intent; vary vocabulary and specificity.
Return JSON only.`,
		User: `
TODAY: {{.ReferenceDate}}

ORIGINAL_QUERY:
{{.Query}}

Task:
- Return exactly {{.QueryCount}} alternative queries.
- Resolve relative dates ("yesterday", "last week") against TODAY into absolute dates.
- Do not repeat the original query; do not return near-identical variants.`,
		Validators: []Validator{
			RequireNonEmpty("Query", func(in Input) string { return in.Query }),
			RequirePositive("QueryCount", func(in Input) int { return in.QueryCount }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptCypherGenerate,
		Version:    1,
		SchemaName: "cypher_generate",
		Schema:     CypherGenerateSchema,
		System: `
You translate a natural-language question into a single read-only Cypher query for Neo4j.
Use only the labels, properties, relationship types, and patterns in the provided schema.
Never write queries that modify data (no CREATE, MERGE, SET, DELETE, REMOVE, DROP).
If the question cannot be answered from the schema, return the single word NONE as the query.
Return JSON only.`,
		User: `
GRAPH_SCHEMA:
{{.SchemaString}}

QUESTION:
{{.Query}}

Rules:
- Return exactly one Cypher statement, or NONE.
- Match strings case-insensitively (toLower) unless the schema lists exact values.
- Never return embedding properties; they are large vectors.
- Limit results to at most 25 rows.`,
		Validators: []Validator{
			RequireNonEmpty("Query", func(in Input) string { return in.Query }),
			RequireNonEmpty("SchemaString", func(in Input) string { return in.SchemaString }),
		},
	})
}
