package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dbczarnota/graphforrag/usage"
)

type fakeLLM struct {
	payload    string
	err        error
	calls      int
	lastUser   string
	lastSchema string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error) {
	f.calls++
	f.lastUser = user
	f.lastSchema = schemaName
	use := usage.LLM{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30, Calls: 1}
	if f.err != nil {
		return nil, use, f.err
	}
	return json.RawMessage(f.payload), use, nil
}

func TestEntities_FiltersBlankNamesAndLabels(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "entities": [
		{"name": "ACME", "label": "Organization", "description": "anvil maker"},
		{"name": "  ", "label": "Organization", "description": "blank name"},
		{"name": "Wile E. Coyote", "label": "", "description": "blank label"},
		{"name": " Roadrunner ", "label": " Animal ", "description": ""}
	]}`}
	ex := NewExtractor(llm, nil)

	ents, use, err := ex.Entities(context.Background(), "cartoon.txt", "ACME supplies Wile E. Coyote.", "")
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(ents), ents)
	}
	if ents[0].Name != "ACME" || ents[1].Name != "Roadrunner" || ents[1].Label != "Animal" {
		t.Fatalf("entities = %+v", ents)
	}
	if use.Calls != 1 || use.TotalTokens != 30 {
		t.Fatalf("usage = %+v", use)
	}
	if !strings.Contains(llm.lastUser, "ACME supplies Wile E. Coyote.") {
		t.Fatalf("chunk content missing from prompt: %q", llm.lastUser)
	}
}

func TestEntities_EmptyChunkSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	ex := NewExtractor(llm, nil)

	ents, use, err := ex.Entities(context.Background(), "s", "   \n\t", "prev")
	if err != nil || ents != nil || llm.calls != 0 || use.Calls != 0 {
		t.Fatalf("ents=%v use=%+v calls=%d err=%v", ents, use, llm.calls, err)
	}
}

func TestEntities_LLMErrorDegradesToEmpty(t *testing.T) {
	ex := NewExtractor(&fakeLLM{err: errors.New("model unavailable")}, nil)

	ents, use, err := ex.Entities(context.Background(), "s", "content", "")
	if err != nil {
		t.Fatalf("llm error must not surface: %v", err)
	}
	if len(ents) != 0 || use.Calls != 1 {
		t.Fatalf("ents=%v use=%+v", ents, use)
	}
}

func TestEntities_MalformedJSONDegradesToEmpty(t *testing.T) {
	ex := NewExtractor(&fakeLLM{payload: `{"entities": [`}, nil)

	ents, _, err := ex.Entities(context.Background(), "s", "content", "")
	if err != nil || len(ents) != 0 {
		t.Fatalf("ents=%v err=%v", ents, err)
	}
}

func knownPair() []ExtractedEntity {
	return []ExtractedEntity{
		{Name: "ACME", Label: "Organization"},
		{Name: "Wile E. Coyote", Label: "Person"},
	}
}

func TestRelationships_DropsSelfLoopsAndUnknownEndpoints(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "relationships": [
		{"source_entity_name": "ACME", "target_entity_name": "Wile E. Coyote", "relation_label": "SUPPLIES", "fact_sentence": "ACME supplies Wile E. Coyote with anvils."},
		{"source_entity_name": "acme", "target_entity_name": "ACME", "relation_label": "OWNS", "fact_sentence": "self loop"},
		{"source_entity_name": "ACME", "target_entity_name": "Roadrunner", "relation_label": "CHASES", "fact_sentence": "unknown endpoint"},
		{"source_entity_name": "ACME", "target_entity_name": "Wile E. Coyote", "relation_label": "", "fact_sentence": "blank label"}
	]}`}
	ex := NewExtractor(llm, nil)

	rels, use, err := ex.Relationships(context.Background(), "chunk text", knownPair())
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("got %d relationships, want 1: %+v", len(rels), rels)
	}
	if rels[0].RelationLabel != "SUPPLIES" || rels[0].SourceName != "ACME" {
		t.Fatalf("relationship = %+v", rels[0])
	}
	if use.Calls != 1 {
		t.Fatalf("usage = %+v", use)
	}
}

func TestRelationships_EndpointMatchIsCaseInsensitive(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "relationships": [
		{"source_entity_name": "acme", "target_entity_name": "WILE E. COYOTE", "relation_label": "SUPPLIES", "fact_sentence": "case-shifted endpoints"}
	]}`}
	ex := NewExtractor(llm, nil)

	rels, _, err := ex.Relationships(context.Background(), "chunk text", knownPair())
	if err != nil || len(rels) != 1 {
		t.Fatalf("rels=%+v err=%v", rels, err)
	}
}

func TestRelationships_FewerThanTwoEntitiesSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	ex := NewExtractor(llm, nil)

	rels, use, err := ex.Relationships(context.Background(), "chunk text", knownPair()[:1])
	if err != nil || rels != nil || llm.calls != 0 || use.Calls != 0 {
		t.Fatalf("rels=%v use=%+v calls=%d err=%v", rels, use, llm.calls, err)
	}
}

func TestRelationships_PromptCarriesKnownEntities(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "relationships": []}`}
	ex := NewExtractor(llm, nil)

	if _, _, err := ex.Relationships(context.Background(), "chunk text", knownPair()); err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if !strings.Contains(llm.lastUser, `"Wile E. Coyote"`) {
		t.Fatalf("known entities missing from prompt: %q", llm.lastUser)
	}
	if llm.lastSchema != "relationship_extract" {
		t.Fatalf("schema name = %q", llm.lastSchema)
	}
}
