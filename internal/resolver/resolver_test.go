package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dbczarnota/graphforrag/internal/extraction"
	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/usage"
)

// fakeStore serves the NodeManager queries the resolver reaches: vector
// candidates keyed by index name, mention facts keyed by node uuid, entity
// merge, and the canonical rename.
type fakeStore struct {
	candidates map[string][]map[string]any // index name -> rows
	facts      map[string][]map[string]any // node uuid -> rows

	mergeRows []map[string]any
	renames   []map[string]any
	merges    []map[string]any
}

func (f *fakeStore) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	if index, ok := params["index"].(string); ok {
		return f.candidates[index], nil
	}
	if uuid, ok := params["uuid"].(string); ok {
		return f.facts[uuid], nil
	}
	return nil, nil
}

func (f *fakeStore) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	if _, ok := params["normalized_name"]; ok {
		f.merges = append(f.merges, params)
		return f.mergeRows, nil
	}
	f.renames = append(f.renames, params)
	return nil, nil
}

func (f *fakeStore) WriteTx(ctx context.Context, fn func(tx graph.Tx) error) error {
	return errors.New("unexpected WriteTx")
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.5, 0.5}
	}
	return out, usage.Embedding{Tokens: len(texts) * 2, Calls: 1}, nil
}

type fakeLLM struct {
	payload  string
	err      error
	calls    int
	lastUser string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error) {
	f.calls++
	f.lastUser = user
	use := usage.LLM{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Calls: 1}
	if f.err != nil {
		return nil, use, f.err
	}
	return json.RawMessage(f.payload), use, nil
}

func candidateRow(uuid, name, label, nodeType string, score float64) map[string]any {
	return map[string]any{"uuid": uuid, "name": name, "label": label, "node_type": nodeType, "score": score}
}

func mergeRow(uuid, name, label string, created bool) []map[string]any {
	return []map[string]any{{"uuid": uuid, "name": name, "label": label, "was_created": created}}
}

func newResolver(store *fakeStore, llm *fakeLLM) (*Resolver, *fakeEmbedder) {
	embedder := &fakeEmbedder{}
	return New(graph.NewNodeManager(store, nil), embedder, llm, nil), embedder
}

func fixedClock() graph.Clock {
	return func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
}

func TestResolveEntity_NoCandidatesCreatesNew(t *testing.T) {
	wantUUID := graph.EntityUUID(graph.NormalizeName("Acme Corp"), "Organization")
	store := &fakeStore{mergeRows: mergeRow(wantUUID, "Acme Corp", "Organization", true)}
	llm := &fakeLLM{}
	r, embedder := newResolver(store, llm)

	res, spend, err := r.ResolveEntity(context.Background(),
		extraction.ExtractedEntity{Name: "Acme Corp", Label: "Organization"}, fixedClock())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if llm.calls != 0 {
		t.Fatalf("dedup LLM called with no candidates")
	}
	if !res.WasCreated || res.UUID != wantUUID || res.NodeType != "Entity" {
		t.Fatalf("resolution = %+v", res)
	}
	if len(res.NameEmbedding) == 0 {
		t.Fatalf("name embedding not carried for created entity")
	}
	if embedder.calls != 1 || spend.Embedding.Calls != 1 || spend.LLM.Calls != 0 {
		t.Fatalf("spend = %+v", spend)
	}
}

func TestResolveEntity_DuplicateWithCanonicalRename(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]map[string]any{
			graph.IdxEntityNameVec: {candidateRow("e1", "ACME", "Organization", "Entity", 0.93)},
		},
		facts: map[string][]map[string]any{
			"e1": {{"fact": "ACME sells anvils."}},
		},
	}
	llm := &fakeLLM{payload: `{"schema_version": 1, "is_duplicate": true, "duplicate_uuid": "e1", "canonical_name": "ACME Corporation"}`}
	r, embedder := newResolver(store, llm)

	res, spend, err := r.ResolveEntity(context.Background(),
		extraction.ExtractedEntity{Name: "Acme", Label: "Organization", Description: "anvil maker"}, fixedClock())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.WasCreated || res.UUID != "e1" || res.Name != "ACME Corporation" {
		t.Fatalf("resolution = %+v", res)
	}
	// The rename re-embeds the canonical name so the stored vector follows it.
	if !res.Renamed || len(res.NameEmbedding) == 0 {
		t.Fatalf("renamed resolution = %+v, want a fresh name embedding", res)
	}
	if embedder.calls != 2 {
		t.Fatalf("embed calls = %d, want extracted name plus canonical name", embedder.calls)
	}
	if len(store.renames) != 1 || store.renames[0]["name"] != "ACME Corporation" || store.renames[0]["uuid"] != "e1" {
		t.Fatalf("renames = %v", store.renames)
	}
	if len(store.merges) != 0 {
		t.Fatalf("duplicate still created an entity: %v", store.merges)
	}
	if spend.LLM.Calls != 1 {
		t.Fatalf("spend = %+v", spend)
	}
	// The candidate context fed to the model includes its known facts.
	if llm.lastUser == "" || !containsAll(llm.lastUser, "ACME sells anvils.", "e1") {
		t.Fatalf("dedup prompt missing candidate context: %q", llm.lastUser)
	}
}

func TestResolveEntity_ProductDuplicateIsNeverRenamed(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]map[string]any{
			graph.IdxProductNameVec: {candidateRow("p1", "Trail Boots", "Product", "Product", 0.91)},
		},
	}
	llm := &fakeLLM{payload: `{"schema_version": 1, "is_duplicate": true, "duplicate_uuid": "p1", "canonical_name": "Trail Boots Pro"}`}
	r, _ := newResolver(store, llm)

	res, _, err := r.ResolveEntity(context.Background(),
		extraction.ExtractedEntity{Name: "trail boots", Label: "Product"}, fixedClock())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.UUID != "p1" || res.NodeType != "Product" || res.Name != "Trail Boots" {
		t.Fatalf("resolution = %+v", res)
	}
	if len(store.renames) != 0 {
		t.Fatalf("product node renamed: %v", store.renames)
	}
}

func TestResolveEntity_CandidatesRankedByScoreAcrossKinds(t *testing.T) {
	// With the candidate budget at 1, the best-scoring candidate must win
	// the cut regardless of which index produced it.
	t.Setenv("RESOLVER_TOP_K", "1")
	store := &fakeStore{
		candidates: map[string][]map[string]any{
			graph.IdxEntityNameVec:  {candidateRow("e1", "Trail Boots Ltd", "Organization", "Entity", 0.86)},
			graph.IdxProductNameVec: {candidateRow("p1", "Trail Boots", "Product", "Product", 0.99)},
		},
	}
	llm := &fakeLLM{payload: `{"schema_version": 1, "is_duplicate": true, "duplicate_uuid": "p1", "canonical_name": ""}`}
	r, _ := newResolver(store, llm)

	res, _, err := r.ResolveEntity(context.Background(),
		extraction.ExtractedEntity{Name: "trail boots", Label: "Product"}, fixedClock())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.UUID != "p1" || res.NodeType != "Product" {
		t.Fatalf("resolution = %+v", res)
	}
	if !strings.Contains(llm.lastUser, "p1") || strings.Contains(llm.lastUser, "e1") {
		t.Fatalf("lower-scoring candidate survived the cut: %q", llm.lastUser)
	}
}

func TestResolveEntity_LLMErrorFallsBackToCreate(t *testing.T) {
	wantUUID := graph.EntityUUID("acme", "Organization")
	store := &fakeStore{
		candidates: map[string][]map[string]any{
			graph.IdxEntityNameVec: {candidateRow("e1", "ACME", "Organization", "Entity", 0.93)},
		},
		mergeRows: mergeRow(wantUUID, "Acme", "Organization", true),
	}
	r, _ := newResolver(store, &fakeLLM{err: errors.New("model unavailable")})

	res, spend, err := r.ResolveEntity(context.Background(),
		extraction.ExtractedEntity{Name: "Acme", Label: "Organization"}, fixedClock())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.WasCreated || res.UUID != wantUUID {
		t.Fatalf("resolution = %+v", res)
	}
	if spend.LLM.Calls != 1 {
		t.Fatalf("failed call not counted: %+v", spend)
	}
}

func TestResolveEntity_UnknownDuplicateUUIDCreatesNew(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]map[string]any{
			graph.IdxEntityNameVec: {candidateRow("e1", "ACME", "Organization", "Entity", 0.93)},
		},
		mergeRows: mergeRow("e2", "Acme", "Organization", true),
	}
	llm := &fakeLLM{payload: `{"schema_version": 1, "is_duplicate": true, "duplicate_uuid": "nope", "canonical_name": ""}`}
	r, _ := newResolver(store, llm)

	res, _, err := r.ResolveEntity(context.Background(),
		extraction.ExtractedEntity{Name: "Acme", Label: "Organization"}, fixedClock())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.WasCreated || res.UUID != "e2" {
		t.Fatalf("resolution = %+v", res)
	}
}

func TestMatchProductToEntity_Match(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]map[string]any{
			graph.IdxEntityNameVec: {candidateRow("e1", "Trail Boots", "Product", "Entity", 0.95)},
		},
	}
	llm := &fakeLLM{payload: `{"schema_version": 1, "is_match": true, "matched_entity_uuid": "e1"}`}
	r, _ := newResolver(store, llm)

	uuid, spend, err := r.MatchProductToEntity(context.Background(), "Trail Boots", `{"name":"Trail Boots"}`)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if uuid != "e1" {
		t.Fatalf("matched uuid = %q, want e1", uuid)
	}
	if spend.LLM.Calls != 1 || spend.Embedding.Calls != 1 {
		t.Fatalf("spend = %+v", spend)
	}
}

func TestMatchProductToEntity_NoCandidatesSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	r, _ := newResolver(&fakeStore{}, llm)

	uuid, _, err := r.MatchProductToEntity(context.Background(), "Trail Boots", `{}`)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if uuid != "" || llm.calls != 0 {
		t.Fatalf("uuid = %q, llm calls = %d", uuid, llm.calls)
	}
}

func TestMatchProductToEntity_UnknownUUIDOrError(t *testing.T) {
	store := func() *fakeStore {
		return &fakeStore{
			candidates: map[string][]map[string]any{
				graph.IdxEntityNameVec: {candidateRow("e1", "Trail Boots", "Product", "Entity", 0.95)},
			},
		}
	}

	r, _ := newResolver(store(), &fakeLLM{payload: `{"schema_version": 1, "is_match": true, "matched_entity_uuid": "ghost"}`})
	uuid, _, err := r.MatchProductToEntity(context.Background(), "Trail Boots", `{}`)
	if err != nil || uuid != "" {
		t.Fatalf("unknown candidate: uuid=%q err=%v", uuid, err)
	}

	r, _ = newResolver(store(), &fakeLLM{err: errors.New("model unavailable")})
	uuid, _, err = r.MatchProductToEntity(context.Background(), "Trail Boots", `{}`)
	if err != nil || uuid != "" {
		t.Fatalf("llm error: uuid=%q err=%v", uuid, err)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
