// Package graphforrag builds and queries a Neo4j knowledge graph for
// retrieval-augmented generation: LLM-driven ingestion of text chunks and
// product records, entity resolution with promotion, and hybrid search
// with reciprocal rank fusion.
package graphforrag

import (
	"context"
	"fmt"
	"sync"

	"github.com/dbczarnota/graphforrag/internal/extraction"
	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/internal/ingest"
	"github.com/dbczarnota/graphforrag/internal/platform/embedcache"
	"github.com/dbczarnota/graphforrag/internal/platform/envutil"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/internal/platform/neo4jdb"
	"github.com/dbczarnota/graphforrag/internal/resolver"
	"github.com/dbczarnota/graphforrag/internal/search"
	"github.com/dbczarnota/graphforrag/usage"
)

// Graph is the top-level handle. It is safe for concurrent use.
type Graph struct {
	db       *neo4jdb.Client
	exec     graph.Executor
	nodes    *graph.NodeManager
	schema   *graph.SchemaManager
	pipeline *ingest.Orchestrator
	embed    search.Embedder // provider, possibly behind the Redis cache
	llm      LLMAgent
	totals   *usage.Totals
	log      *logger.Logger

	mu        sync.Mutex
	searchCfg SearchConfig
	searcher  *search.Manager
}

// NewGraph connects to Neo4j and wires the full pipeline. When REDIS_ADDR
// is set, embedding calls go through the Redis cache.
func NewGraph(uri, user, password, database string, embedder Embedder, llm LLMAgent) (*Graph, error) {
	if embedder == nil {
		return nil, fmt.Errorf("graphforrag: embedder required")
	}
	if llm == nil {
		return nil, fmt.Errorf("graphforrag: llm agent required")
	}
	log, err := logger.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("graphforrag: logger: %w", err)
	}

	db, err := neo4jdb.New(uri, user, password, database, log)
	if err != nil {
		return nil, fmt.Errorf("graphforrag: connect: %w", err)
	}

	return newGraph(db, embedder, llm, log)
}

// NewGraphFromEnv is NewGraph with the connection read from NEO4J_URI,
// NEO4J_USER, NEO4J_PASSWORD and NEO4J_DATABASE.
func NewGraphFromEnv(embedder Embedder, llm LLMAgent) (*Graph, error) {
	return NewGraph(
		envutil.Str("NEO4J_URI", "bolt://localhost:7687"),
		envutil.Str("NEO4J_USER", "neo4j"),
		envutil.Str("NEO4J_PASSWORD", ""),
		envutil.Str("NEO4J_DATABASE", "neo4j"),
		embedder, llm,
	)
}

func newGraph(db *neo4jdb.Client, embedder Embedder, llm LLMAgent, log *logger.Logger) (*Graph, error) {
	exec := storeAdapter{db}
	totals := &usage.Totals{}

	cachedEmbed := embedcache.NewFromEnv(embedder, envutil.Str("OPENAI_EMBED_MODEL", "default"), log)

	nodes := graph.NewNodeManager(exec, log)
	schema, err := graph.NewSchemaManager(exec, embedder.Dimensions(), log)
	if err != nil {
		return nil, err
	}

	extractor := extraction.NewExtractor(llm, log)
	res := resolver.New(nodes, cachedEmbed, llm, log)
	pipeline := ingest.NewOrchestrator(nodes, extractor, res, cachedEmbed, totals, log)

	g := &Graph{
		db:       db,
		exec:     exec,
		nodes:    nodes,
		schema:   schema,
		pipeline: pipeline,
		embed:    cachedEmbed,
		llm:      llm,
		totals:   totals,
		log:      log.With("component", "Graph"),
	}
	g.setSearcher(search.DefaultConfig(), cachedEmbed)
	return g, nil
}

func (g *Graph) newSearcher(cfg SearchConfig, embed search.Embedder) *search.Manager {
	multi := search.NewMultiQueryGenerator(g.llm, g.log)
	cypherGen := search.NewCypherGenerator(g.llm, g.schema, map[string][]string{
		"Entity":  {"label"},
		"Product": {"category"},
	}, g.log)
	return search.NewManager(g.exec, embed, multi, cypherGen, cfg, g.totals, g.log)
}

func (g *Graph) setSearcher(cfg SearchConfig, embed search.Embedder) {
	g.mu.Lock()
	g.searchCfg = cfg
	g.searcher = g.newSearcher(cfg, embed)
	g.mu.Unlock()
}

// SetSearchConfig replaces the search configuration for subsequent Search
// calls.
func (g *Graph) SetSearchConfig(cfg SearchConfig) {
	cfg.ApplyDefaults()
	g.setSearcher(cfg, g.embed)
}

// Close releases the database connection.
func (g *Graph) Close(ctx context.Context) error {
	return g.db.Close(ctx)
}

// EnsureSchema creates every constraint and index the library relies on.
// Call it once after connecting, and again after ingesting if dynamic
// property indexes are wanted.
func (g *Graph) EnsureSchema(ctx context.Context) error {
	return g.schema.EnsureSchema(ctx)
}

// ClearData deletes all nodes and relationships, keeping the schema.
func (g *Graph) ClearData(ctx context.Context) error {
	return g.schema.ClearData(ctx)
}

// ClearSchema drops every index and constraint the library manages.
func (g *Graph) ClearSchema(ctx context.Context) error {
	return g.schema.ClearSchema(ctx)
}

// AddDocumentsFromSource ingests one source and its documents.
func (g *Graph) AddDocumentsFromSource(ctx context.Context, src Source) (SourceResult, error) {
	return g.pipeline.AddSource(ctx, src)
}

// AddSources ingests several sources concurrently.
func (g *Graph) AddSources(ctx context.Context, sources []Source) ([]SourceResult, error) {
	return g.pipeline.AddSources(ctx, sources)
}

// DeleteSource removes the source with the given uuid together with
// everything derived from it, in one transaction. Shared entities survive;
// shared products are demoted back to entities. Use SourceUUID to derive
// the uuid from a source name.
func (g *Graph) DeleteSource(ctx context.Context, sourceUUID string) (DeleteCounters, error) {
	return g.nodes.DeleteSourceAndDerived(ctx, sourceUUID)
}

// SourceUUID derives the deterministic uuid a source name maps to.
func SourceUUID(name string) string {
	return graph.SourceUUID(name)
}

// DeleteOrphanedEntities removes entities with no remaining MENTIONS or
// RELATES_TO edges. Returns how many were deleted.
func (g *Graph) DeleteOrphanedEntities(ctx context.Context) (int, error) {
	return g.nodes.DeleteOrphanedEntities(ctx)
}

// Search runs the configured hybrid retrieval pipeline for one query.
func (g *Graph) Search(ctx context.Context, query string) (SearchResults, error) {
	g.mu.Lock()
	searcher := g.searcher
	g.mu.Unlock()
	return searcher.Search(ctx, query)
}

// SearchWithConfig runs one search under the given configuration without
// touching the handle's configured settings.
func (g *Graph) SearchWithConfig(ctx context.Context, query string, cfg SearchConfig) (SearchResults, error) {
	cfg.ApplyDefaults()
	return g.newSearcher(cfg, g.embed).Search(ctx, query)
}

// GetTotalGenerativeLLMUsage returns the accumulated generative token spend
// of this handle.
func (g *Graph) GetTotalGenerativeLLMUsage() usage.LLM {
	return g.totals.LLM()
}

// GetTotalEmbeddingUsage returns the accumulated embedding token spend of
// this handle.
func (g *Graph) GetTotalEmbeddingUsage() usage.Embedding {
	return g.totals.Embedding()
}

// storeAdapter bridges neo4jdb.Client to graph.Executor; the Tx interfaces
// are structurally identical.
type storeAdapter struct {
	c *neo4jdb.Client
}

func (s storeAdapter) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return s.c.Read(ctx, cypher, params)
}

func (s storeAdapter) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return s.c.Write(ctx, cypher, params)
}

func (s storeAdapter) WriteTx(ctx context.Context, fn func(tx graph.Tx) error) error {
	return s.c.WriteTx(ctx, func(tx neo4jdb.Tx) error { return fn(tx) })
}
