package prompts

type PromptName string

const (
	// Ingestion
	PromptEntityExtract       PromptName = "entity_extract"
	PromptRelationshipExtract PromptName = "relationship_extract"
	PromptEntityDedup         PromptName = "entity_dedup"
	PromptProductMatch        PromptName = "product_match"

	// Search
	PromptMultiQuery     PromptName = "multi_query"
	PromptCypherGenerate PromptName = "cypher_generate"
)
