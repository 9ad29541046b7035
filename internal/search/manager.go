package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

// Embedder is the embedding surface search needs from the provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error)
}

// Results is the full outcome of one Search call.
type Results struct {
	Query   string
	Queries []string // every sub-query actually executed

	Chunks        []Hit
	Sources       []Hit
	Entities      []Hit
	Products      []Hit
	Relationships []Hit
	Mentions      []Hit

	// Items is the cross-kind merge of the per-kind lists, sorted by fused
	// score and trimmed to the overall limit.
	Items []Item

	CypherQuery string
	CypherRows  []map[string]any

	ContextSnippet   string
	SourceReferences []string

	Usage usage.Report
}

// Manager runs hybrid retrieval across node kinds.
type Manager struct {
	store    graph.Executor
	embedder Embedder
	multi    *MultiQueryGenerator
	cypher   *CypherGenerator // nil disables the cypher channel
	cfg      Config
	totals   *usage.Totals
	workers  int
	log      *logger.Logger
}

func NewManager(store graph.Executor, embedder Embedder, multi *MultiQueryGenerator, cypher *CypherGenerator, cfg Config, totals *usage.Totals, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	cfg.ApplyDefaults()
	return &Manager{
		store:    store,
		embedder: embedder,
		multi:    multi,
		cypher:   cypher,
		cfg:      cfg,
		totals:   totals,
		workers:  defaultFanOutWorkers,
		log:      log.With("component", "SearchManager"),
	}
}

type kindSlot struct {
	name string
	cfg  KindConfig
	dest *[]Hit
}

func (m *Manager) kinds(r *Results) []kindSlot {
	return []kindSlot{
		{KindChunks, m.cfg.Chunks, &r.Chunks},
		{KindSources, m.cfg.Sources, &r.Sources},
		{KindEntities, m.cfg.Entities, &r.Entities},
		{KindProducts, m.cfg.Products, &r.Products},
		{KindRelationships, m.cfg.Relationships, &r.Relationships},
		{KindMentions, m.cfg.Mentions, &r.Mentions},
	}
}

// Search runs the configured retrieval pipeline for one query.
func (m *Manager) Search(ctx context.Context, query string) (Results, error) {
	query = strings.TrimSpace(query)
	result := Results{Query: query}
	if query == "" {
		return result, fmt.Errorf("search: empty query")
	}
	defer func() { m.totals.AddReport(result.Usage) }()

	queries := m.subQueries(ctx, query, &result)
	result.Queries = queries

	embeddings, err := m.embedQueries(ctx, queries, &result)
	if err != nil {
		return result, err
	}

	kinds := m.kinds(&result)
	// lists[kindIdx][queryIdx] is the fused per-sub-query list for a kind.
	lists := make([][][]Hit, len(kinds))
	for i := range lists {
		lists[i] = make([][]Hit, len(queries))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	var mu sync.Mutex
	for ki, slot := range kinds {
		if !slot.cfg.Enabled {
			continue
		}
		for qi, q := range queries {
			g.Go(func() error {
				var vec []float32
				if embeddings != nil {
					vec = embeddings[qi]
				}
				hits, err := m.runKind(gctx, slot.name, slot.cfg, q, vec)
				if err != nil {
					return err
				}
				mu.Lock()
				lists[ki][qi] = hits
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for ki, slot := range kinds {
		if !slot.cfg.Enabled {
			continue
		}
		var fused []Hit
		switch {
		case len(queries) == 1:
			// Already fused per method inside runKind; a second fusion
			// round would replace the hybrid score.
			fused = lists[ki][0]
		case slot.cfg.UseRRF:
			fused = FuseRRF(lists[ki], slot.cfg.RRFK)
		default:
			fused = DedupBestScore(lists[ki])
		}
		*slot.dest = Truncate(fused, slot.cfg.Limit, slot.cfg.MinResults)
	}
	result.Items = m.mergeItems(&result)

	if m.cfg.Cypher.Enabled && m.cypher != nil {
		m.runCypherChannel(ctx, query, &result)
	}

	if err := m.resolveSourceReferences(ctx, &result); err != nil {
		return result, err
	}
	result.ContextSnippet = m.buildContextSnippet(&result)
	return result, nil
}

// subQueries returns the list of queries to execute, applying multi-query
// expansion when configured.
func (m *Manager) subQueries(ctx context.Context, query string, result *Results) []string {
	queries := []string{query}
	if !m.cfg.MultiQuery.Enabled || m.multi == nil {
		return queries
	}
	expansions, use := m.multi.Expand(ctx, query, m.cfg.MultiQuery.QueryCount)
	result.Usage.LLM.Add(use)
	if len(expansions) == 0 {
		return queries
	}
	if m.cfg.MultiQuery.IncludeOriginal {
		return append(queries, expansions...)
	}
	return expansions
}

// embedQueries embeds every sub-query in one provider call. Returns nil when
// no enabled kind uses vector search.
func (m *Manager) embedQueries(ctx context.Context, queries []string, result *Results) ([][]float32, error) {
	needVector := false
	for _, slot := range m.kinds(&Results{}) {
		if slot.cfg.Enabled && slot.cfg.Vector.Enabled {
			needVector = true
			break
		}
	}
	if !needVector {
		return nil, nil
	}
	vecs, use, err := m.embedder.Embed(ctx, queries)
	result.Usage.Embedding.Add(use)
	if err != nil {
		return nil, fmt.Errorf("search: embed queries: %w", err)
	}
	return vecs, nil
}

// runKind executes the per-kind hybrid query for one sub-query and fuses
// its method branches into a single ranked list.
func (m *Manager) runKind(ctx context.Context, kind string, cfg KindConfig, query string, embedding []float32) ([]Hit, error) {
	cypher, ok := buildKindQuery(kind, cfg, len(embedding) > 0)
	if !ok {
		return nil, nil
	}
	params := map[string]any{
		"q":         EscapeLucene(query),
		"kw_limit":  cfg.Keyword.Limit,
		"vec_limit": cfg.Vector.Limit,
		"min_score": cfg.Vector.MinScore,
	}
	if len(embedding) > 0 {
		params["embedding"] = embeddingParam(embedding)
	}
	rows, err := m.store.Read(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("search: %s query: %w", kind, err)
	}

	// Partition rows into per-method ranked lists; each branch yields in
	// score order.
	perMethod := map[string][]Hit{}
	methodOrder := []string{}
	for _, row := range rows {
		method, _ := row["method_source"].(string)
		hit := Hit{
			UUID:          stringValue(row["uuid"]),
			Name:          stringValue(row["name"]),
			Content:       stringValue(row["content"]),
			NodeType:      stringValue(row["node_type"]),
			Score:         floatValue(row["score"]),
			MethodSources: []string{method},
		}
		if hit.UUID == "" {
			continue
		}
		if _, seen := perMethod[method]; !seen {
			methodOrder = append(methodOrder, method)
		}
		perMethod[method] = append(perMethod[method], hit)
	}
	methodLists := make([][]Hit, 0, len(methodOrder))
	for _, method := range methodOrder {
		methodLists = append(methodLists, perMethod[method])
	}
	if cfg.UseRRF {
		return FuseRRF(methodLists, cfg.RRFK), nil
	}
	return DedupBestScore(methodLists), nil
}

// runCypherChannel generates and executes the LLM Cypher query. Failures are
// logged and leave the channel empty; they never fail the search.
func (m *Manager) runCypherChannel(ctx context.Context, query string, result *Results) {
	cypher, use := m.cypher.Generate(ctx, query)
	result.Usage.LLM.Add(use)
	if cypher == "" {
		return
	}
	rows, err := m.store.Read(ctx, cypher, nil)
	if err != nil {
		m.log.Warn("generated cypher failed to execute, dropping channel",
			"cypher", cypher, "error", err.Error())
		return
	}
	result.CypherQuery = cypher
	result.CypherRows = rows
}

// resolveSourceReferences maps chunk and product hits back to the sources
// they belong to.
func (m *Manager) resolveSourceReferences(ctx context.Context, result *Results) error {
	uuids := make([]any, 0, len(result.Chunks)+len(result.Products))
	for _, h := range result.Chunks {
		uuids = append(uuids, h.UUID)
	}
	for _, h := range result.Products {
		uuids = append(uuids, h.UUID)
	}
	if len(uuids) == 0 {
		return nil
	}
	rows, err := m.store.Read(ctx, sourceReferencesQuery, map[string]any{"uuids": uuids})
	if err != nil {
		return fmt.Errorf("search: source references: %w", err)
	}
	refs := make([]string, 0, len(rows))
	for _, row := range rows {
		if name := stringValue(row["name"]); name != "" {
			refs = append(refs, name)
		}
	}
	result.SourceReferences = refs
	return nil
}

var snippetHeaders = map[string]string{
	KindChunks:        "Chunks",
	KindSources:       "Sources",
	KindEntities:      "Entities",
	KindProducts:      "Products",
	KindRelationships: "Relationships",
	KindMentions:      "Mentions",
}

// Item is one entry of the merged cross-kind result list.
type Item struct {
	Kind string
	Hit
}

// mergeItems flattens the per-kind lists into one list sorted by fused
// score, trimmed to the overall limit.
func (m *Manager) mergeItems(result *Results) []Item {
	all := []Item{}
	for _, slot := range m.kinds(result) {
		for _, h := range *slot.dest {
			all = append(all, Item{Kind: slot.name, Hit: h})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > m.cfg.OverallLimit {
		all = all[:m.cfg.OverallLimit]
	}
	return all
}

// buildContextSnippet renders the merged item list grouped by kind.
func (m *Manager) buildContextSnippet(result *Results) string {
	grouped := map[string][]Hit{}
	for _, it := range result.Items {
		grouped[it.Kind] = append(grouped[it.Kind], it.Hit)
	}
	var b strings.Builder
	for _, slot := range m.kinds(result) {
		hits := grouped[slot.name]
		if len(hits) == 0 {
			continue
		}
		b.WriteString("## " + snippetHeaders[slot.name] + "\n")
		for _, h := range hits {
			line := h.Content
			if line == "" {
				line = h.Name
			}
			b.WriteString("- ")
			if h.Name != "" && h.Name != line {
				b.WriteString(h.Name + ": ")
			}
			b.WriteString(truncateRunes(line, m.cfg.SnippetRunes))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func embeddingParam(vec []float32) []any {
	out := make([]any, len(vec))
	for i, v := range vec {
		out[i] = v
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
