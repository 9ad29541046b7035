package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	// Chunk grounding
	ChunkContent     string
	PrevChunkContent string
	SourceName       string

	// Entity resolution
	EntityName        string
	EntityLabel       string
	EntityDescription string
	CandidatesJSON    string

	// Relationship extraction
	EntitiesJSON string

	// Product matching
	ProductName string
	ProductJSON string

	// Search
	Query         string
	ReferenceDate string
	QueryCount    int
	SchemaString  string
}
