package search

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/usage"
)

// fakeStore answers per-kind hybrid queries based on which index name the
// cypher references.
type fakeStore struct {
	mu      sync.Mutex
	queries []string
	params  []map[string]any
	rows    func(cypher string, params map[string]any) []map[string]any
}

func (f *fakeStore) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	f.queries = append(f.queries, cypher)
	f.params = append(f.params, params)
	f.mu.Unlock()
	if f.rows == nil {
		return nil, nil
	}
	return f.rows(cypher, params), nil
}

func (f *fakeStore) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeStore) WriteTx(ctx context.Context, fn func(tx graph.Tx) error) error {
	return nil
}

func (f *fakeStore) sawQueryContaining(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if strings.Contains(q, substr) {
			return true
		}
	}
	return false
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	texts [][]string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error) {
	f.mu.Lock()
	f.calls++
	f.texts = append(f.texts, texts)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, usage.Embedding{Tokens: len(texts) * 3, Calls: 1}, nil
}

func chunksOnlyConfig() Config {
	cfg := Config{Chunks: enabledKind()}
	cfg.ApplyDefaults()
	return cfg
}

func chunkRow(uuid, content string, score float64, method string) map[string]any {
	return map[string]any{
		"uuid": uuid, "name": "", "content": content,
		"score": score, "method_source": method, "node_type": "Chunk",
	}
}

func TestSearch_HybridChunksFusedAndSourced(t *testing.T) {
	store := &fakeStore{
		rows: func(cypher string, params map[string]any) []map[string]any {
			if strings.Contains(cypher, "BELONGS_TO_SOURCE") {
				return []map[string]any{{"name": "manual.pdf"}}
			}
			// Keyword finds c1 then c2; vector finds c2 then c3, so c2
			// must fuse to the top.
			return []map[string]any{
				chunkRow("c1", "alpha", 5.0, MethodKeyword),
				chunkRow("c2", "beta", 4.0, MethodKeyword),
				chunkRow("c2", "beta", 0.95, MethodVector),
				chunkRow("c3", "gamma", 0.90, MethodVector),
			}
		},
	}
	embedder := &fakeEmbedder{}
	m := NewManager(store, embedder, nil, nil, chunksOnlyConfig(), &usage.Totals{}, nil)

	res, err := m.Search(context.Background(), "beta things")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(res.Chunks))
	}
	if res.Chunks[0].UUID != "c2" {
		t.Fatalf("top chunk = %s, want c2 (found by both methods)", res.Chunks[0].UUID)
	}
	if len(res.Chunks[0].MethodSources) != 2 {
		t.Fatalf("method sources = %v", res.Chunks[0].MethodSources)
	}
	// A single query means the method-level fusion is the final score:
	// keyword rank 1 plus vector rank 0.
	wantTop := 1.0/float64(DefaultRRFK+2) + 1.0/float64(DefaultRRFK+1)
	if diff := res.Chunks[0].Score - wantTop; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("fused score = %v, want %v", res.Chunks[0].Score, wantTop)
	}
	if orig, _ := res.Chunks[0].Metadata["original_search_score"].(float64); orig != 4.0 {
		t.Fatalf("original_search_score = %v, want the best method score 4.0", res.Chunks[0].Metadata["original_search_score"])
	}
	if embedder.calls != 1 {
		t.Fatalf("embedded %d times, want once", embedder.calls)
	}
	if len(res.SourceReferences) != 1 || res.SourceReferences[0] != "manual.pdf" {
		t.Fatalf("source references = %v", res.SourceReferences)
	}
	if !strings.Contains(res.ContextSnippet, "## Chunks") || !strings.Contains(res.ContextSnippet, "beta") {
		t.Fatalf("context snippet = %q", res.ContextSnippet)
	}
	if res.Usage.Embedding.Calls != 1 {
		t.Fatalf("usage = %+v", res.Usage)
	}
}

func TestSearch_EscapesLuceneInKeywordParam(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, &fakeEmbedder{}, nil, nil, chunksOnlyConfig(), &usage.Totals{}, nil)

	if _, err := m.Search(context.Background(), `c++ AND "tricks"`); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(store.params) == 0 {
		t.Fatalf("no queries ran")
	}
	q, _ := store.params[0]["q"].(string)
	if q != `c\+\+ and \"tricks\"` {
		t.Fatalf("keyword param = %q", q)
	}
}

func TestSearch_MultiQueryFansOutAndFuses(t *testing.T) {
	store := &fakeStore{
		rows: func(cypher string, params map[string]any) []map[string]any {
			if strings.Contains(cypher, "BELONGS_TO_SOURCE") {
				return nil
			}
			return []map[string]any{chunkRow("c1", "shared", 0.9, MethodVector)}
		},
	}
	embedder := &fakeEmbedder{}
	llm := &fakeLLM{payload: `{"schema_version": 1, "queries": ["rephrased one", "rephrased two"]}`}

	cfg := chunksOnlyConfig()
	cfg.Chunks.Keyword.Enabled = false
	cfg.MultiQuery = MultiQueryConfig{Enabled: true, QueryCount: 2, IncludeOriginal: true}
	m := NewManager(store, embedder, NewMultiQueryGenerator(llm, nil), nil, cfg, &usage.Totals{}, nil)

	res, err := m.Search(context.Background(), "original")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Queries) != 3 {
		t.Fatalf("executed queries = %v", res.Queries)
	}
	if len(embedder.texts) != 1 || len(embedder.texts[0]) != 3 {
		t.Fatalf("sub-queries embedded separately: %v", embedder.texts)
	}
	// c1 found by all three sub-queries at rank 0.
	wantScore := 3.0 / float64(DefaultRRFK+1)
	if len(res.Chunks) != 1 {
		t.Fatalf("fused chunks = %+v, want a single hit", res.Chunks)
	}
	if diff := res.Chunks[0].Score - wantScore; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("fused score = %v, want about %v", res.Chunks[0].Score, wantScore)
	}
	// The raw vector score survives both fusion rounds.
	if orig, _ := res.Chunks[0].Metadata["original_search_score"].(float64); orig != 0.9 {
		t.Fatalf("original_search_score = %v, want 0.9", res.Chunks[0].Metadata["original_search_score"])
	}
}

func TestSearch_ItemsMergedAcrossKindsAndTrimmed(t *testing.T) {
	store := &fakeStore{
		rows: func(cypher string, params map[string]any) []map[string]any {
			switch {
			case strings.Contains(cypher, "BELONGS_TO_SOURCE"):
				return nil
			case strings.Contains(cypher, graph.IdxProductNameFT):
				return []map[string]any{
					{"uuid": "p1", "name": "Trail Boots", "content": "", "score": 6.0, "method_source": MethodKeyword, "node_type": "Product"},
				}
			default:
				return []map[string]any{
					chunkRow("c1", "alpha", 5.0, MethodKeyword),
					chunkRow("c2", "beta", 4.0, MethodKeyword),
				}
			}
		},
	}
	kind := enabledKind()
	kind.Vector.Enabled = false
	cfg := Config{Chunks: kind, Products: kind, OverallLimit: 2}
	cfg.ApplyDefaults()
	m := NewManager(store, &fakeEmbedder{}, nil, nil, cfg, &usage.Totals{}, nil)

	res, err := m.Search(context.Background(), "boots")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d, want the overall limit of 2", len(res.Items))
	}
	if res.Items[0].Score < res.Items[1].Score {
		t.Fatalf("items not sorted by fused score: %+v", res.Items)
	}
	kinds := map[string]bool{}
	for _, it := range res.Items {
		if it.UUID == "c2" {
			t.Fatalf("trimmed hit leaked into items: %+v", res.Items)
		}
		kinds[it.Kind] = true
	}
	if !kinds[KindChunks] || !kinds[KindProducts] {
		t.Fatalf("item kinds = %v", kinds)
	}
}

func TestSearch_CypherChannel(t *testing.T) {
	store := &fakeStore{
		rows: func(cypher string, params map[string]any) []map[string]any {
			if strings.Contains(cypher, "RETURN p.name") {
				return []map[string]any{{"p.name": "Trail Boots"}}
			}
			return nil
		},
	}
	llm := &fakeLLM{payload: `{"schema_version": 1, "cypher": "MATCH (p:Product) RETURN p.name LIMIT 25"}`}
	cfg := chunksOnlyConfig()
	cfg.Cypher.Enabled = true
	gen := NewCypherGenerator(llm, &staticSchema{}, nil, nil)
	m := NewManager(store, &fakeEmbedder{}, nil, gen, cfg, &usage.Totals{}, nil)

	res, err := m.Search(context.Background(), "what products exist")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.CypherQuery == "" {
		t.Fatalf("cypher channel empty")
	}
	if len(res.CypherRows) != 1 || res.CypherRows[0]["p.name"] != "Trail Boots" {
		t.Fatalf("cypher rows = %v", res.CypherRows)
	}
}

func TestSearch_DisabledKindsRunNoQueries(t *testing.T) {
	store := &fakeStore{}
	cfg := chunksOnlyConfig()
	m := NewManager(store, &fakeEmbedder{}, nil, nil, cfg, &usage.Totals{}, nil)

	if _, err := m.Search(context.Background(), "anything"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if store.sawQueryContaining(graph.IdxProductNameFT) {
		t.Fatalf("disabled product kind ran a query")
	}
	if !store.sawQueryContaining(graph.IdxChunkContentFT) {
		t.Fatalf("enabled chunk kind ran no query")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	m := NewManager(&fakeStore{}, &fakeEmbedder{}, nil, nil, DefaultConfig(), &usage.Totals{}, nil)
	if _, err := m.Search(context.Background(), "   "); err == nil {
		t.Fatalf("empty query accepted")
	}
}
