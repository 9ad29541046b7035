package search

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/dbczarnota/graphforrag/internal/extraction/prompts"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

// NoneSentinel is the model's answer when a question cannot be mapped to
// the schema.
const NoneSentinel = "NONE"

// SchemaRenderer supplies the live schema string. graph.SchemaManager
// implements it.
type SchemaRenderer interface {
	SchemaString(ctx context.Context, flaggedProps map[string][]string) (string, error)
}

// CypherGenerator turns natural-language questions into read-only Cypher.
// The schema string is cached per instance until Invalidate.
type CypherGenerator struct {
	llm     LLM
	schema  SchemaRenderer
	flagged map[string][]string

	mu     sync.Mutex
	cached string

	log *logger.Logger
}

func NewCypherGenerator(llm LLM, schema SchemaRenderer, flaggedProps map[string][]string, log *logger.Logger) *CypherGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &CypherGenerator{llm: llm, schema: schema, flagged: flaggedProps, log: log.With("component", "CypherGenerator")}
}

// Invalidate drops the cached schema string; the next Generate re-renders it.
func (g *CypherGenerator) Invalidate() {
	g.mu.Lock()
	g.cached = ""
	g.mu.Unlock()
}

func (g *CypherGenerator) schemaString(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached != "" {
		return g.cached, nil
	}
	s, err := g.schema.SchemaString(ctx, g.flagged)
	if err != nil {
		return "", err
	}
	g.cached = s
	return s, nil
}

// Generate returns a Cypher query for the question, or "" when the model
// answered NONE or anything failed. Failures never break the surrounding
// search.
func (g *CypherGenerator) Generate(ctx context.Context, question string) (string, usage.LLM) {
	var use usage.LLM
	schemaStr, err := g.schemaString(ctx)
	if err != nil {
		g.log.Warn("schema render failed, skipping cypher channel", "error", err.Error())
		return "", use
	}
	built, err := prompts.Build(prompts.PromptCypherGenerate, prompts.Input{
		Query:        question,
		SchemaString: schemaStr,
	})
	if err != nil {
		g.log.Warn("cypher prompt build failed, skipping cypher channel", "error", err.Error())
		return "", use
	}
	raw, callUse, err := g.llm.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
	use.Add(callUse)
	if err != nil {
		g.log.Warn("cypher generation failed, skipping cypher channel", "error", err.Error())
		return "", use
	}
	var payload struct {
		Cypher string `json:"cypher"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.log.Warn("cypher generation returned malformed JSON, skipping cypher channel", "error", err.Error())
		return "", use
	}
	cypher := strings.TrimSpace(payload.Cypher)
	if cypher == "" || strings.EqualFold(cypher, NoneSentinel) {
		return "", use
	}
	if !isReadOnlyCypher(cypher) {
		g.log.Warn("generated cypher is not read-only, discarding", "cypher", cypher)
		return "", use
	}
	return cypher, use
}

var writeClauses = []string{"create ", "merge ", "delete ", "detach ", "set ", "remove ", "drop ", "call db.create", "call apoc"}

// isReadOnlyCypher rejects statements containing write clauses. Execution
// additionally runs in a read transaction, so this is a fast filter, not
// the security boundary.
func isReadOnlyCypher(cypher string) bool {
	low := " " + strings.ToLower(cypher) + " "
	low = strings.ReplaceAll(low, "\n", " ")
	low = strings.ReplaceAll(low, "\t", " ")
	for _, clause := range writeClauses {
		if strings.Contains(low, " "+clause) {
			return false
		}
	}
	return true
}
