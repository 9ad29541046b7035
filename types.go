package graphforrag

import (
	"context"
	"encoding/json"

	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/internal/ingest"
	"github.com/dbczarnota/graphforrag/internal/search"
	"github.com/dbczarnota/graphforrag/usage"
)

// Embedder turns texts into vectors. openai.Client implements it; any
// provider with the same shape can be plugged in.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error)
	Dimensions() int
}

// LLMAgent produces strict schema-validated JSON. openai.Client implements it.
type LLMAgent interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error)
}

// Document node types.
const (
	NodeTypeChunk   = ingest.NodeTypeChunk
	NodeTypeProduct = ingest.NodeTypeProduct
)

// Product content types.
const (
	ContentTypeJSON = ingest.ContentTypeJSON
	ContentTypeText = ingest.ContentTypeText
)

// Document is one ingestable item: plain text for chunks, a JSON object for
// products.
type Document = ingest.Document

// Source is a named document set to ingest.
type Source = ingest.SourceInput

// SourceResult reports what one source ingestion produced.
type SourceResult = ingest.SourceResult

// DeleteCounters reports what a source deletion cascade removed.
type DeleteCounters = graph.DeleteCounters

// SearchConfig is the retrieval configuration tree.
type SearchConfig = search.Config

// SearchResults is the outcome of one Search call.
type SearchResults = search.Results

// SearchHit is one retrieval result.
type SearchHit = search.Hit

// SearchItem is one entry of the merged cross-kind result list.
type SearchItem = search.Item

// DefaultSearchConfig returns the configuration used when none is set.
func DefaultSearchConfig() SearchConfig { return search.DefaultConfig() }

// LoadSearchConfigYAML parses a YAML search configuration with defaults
// applied.
func LoadSearchConfigYAML(data []byte) (SearchConfig, error) {
	return search.LoadConfigYAML(data)
}
