package search

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dbczarnota/graphforrag/internal/extraction/prompts"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

// LLM is the structured-output surface search needs from the provider.
type LLM interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error)
}

// MultiQueryGenerator produces alternative phrasings of a search query.
type MultiQueryGenerator struct {
	llm LLM
	now func() time.Time
	log *logger.Logger
}

func NewMultiQueryGenerator(llm LLM, log *logger.Logger) *MultiQueryGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &MultiQueryGenerator{llm: llm, now: time.Now, log: log.With("component", "MultiQuery")}
}

type multiQueryPayload struct {
	Queries []string `json:"queries"`
}

// Expand returns up to count unique alternative queries. The current local
// date and weekday are passed so relative dates resolve. Duplicates of the
// original or of each other (case-insensitive) are dropped. Any failure
// degrades to an empty slice so search proceeds with the original query.
func (g *MultiQueryGenerator) Expand(ctx context.Context, query string, count int) ([]string, usage.LLM) {
	var use usage.LLM
	if count <= 0 {
		return nil, use
	}
	built, err := prompts.Build(prompts.PromptMultiQuery, prompts.Input{
		Query:         query,
		QueryCount:    count,
		ReferenceDate: g.now().Format("Monday, 2006-01-02"),
	})
	if err != nil {
		g.log.Warn("multi-query prompt build failed, skipping expansion", "error", err.Error())
		return nil, use
	}
	raw, callUse, err := g.llm.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
	use.Add(callUse)
	if err != nil {
		g.log.Warn("multi-query expansion failed, using original only", "error", err.Error())
		return nil, use
	}
	var payload multiQueryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.log.Warn("multi-query expansion returned malformed JSON, using original only", "error", err.Error())
		return nil, use
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	out := make([]string, 0, count)
	for _, q := range payload.Queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == count {
			break
		}
	}
	return out, use
}
