package search

import (
	"context"
	"errors"
	"testing"
)

type staticSchema struct {
	renders int
}

func (s *staticSchema) SchemaString(ctx context.Context, flagged map[string][]string) (string, error) {
	s.renders++
	return "Node labels and properties:\n  Chunk: uuid, content\n", nil
}

func TestCypherGenerator_NoneSentinel(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "cypher": "NONE"}`}
	g := NewCypherGenerator(llm, &staticSchema{}, nil, nil)

	cypher, use := g.Generate(context.Background(), "what is the meaning of life")
	if cypher != "" {
		t.Fatalf("NONE sentinel produced cypher %q", cypher)
	}
	if use.Calls != 1 {
		t.Fatalf("usage not counted: %+v", use)
	}
}

func TestCypherGenerator_ReadOnlyFilter(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "cypher": "MATCH (n) DETACH DELETE n"}`}
	g := NewCypherGenerator(llm, &staticSchema{}, nil, nil)

	if cypher, _ := g.Generate(context.Background(), "drop everything"); cypher != "" {
		t.Fatalf("write cypher passed the filter: %q", cypher)
	}
}

func TestCypherGenerator_ValidQueryPassesThrough(t *testing.T) {
	llm := &fakeLLM{payload: `{"schema_version": 1, "cypher": "MATCH (p:Product) WHERE toLower(p.category) = 'boots' RETURN p.name LIMIT 25"}`}
	g := NewCypherGenerator(llm, &staticSchema{}, nil, nil)

	cypher, _ := g.Generate(context.Background(), "list boots")
	if cypher == "" {
		t.Fatalf("valid read query was rejected")
	}
}

func TestCypherGenerator_SchemaCachedUntilInvalidate(t *testing.T) {
	schema := &staticSchema{}
	llm := &fakeLLM{payload: `{"schema_version": 1, "cypher": "NONE"}`}
	g := NewCypherGenerator(llm, schema, nil, nil)

	g.Generate(context.Background(), "one")
	g.Generate(context.Background(), "two")
	if schema.renders != 1 {
		t.Fatalf("schema rendered %d times, want 1", schema.renders)
	}
	g.Invalidate()
	g.Generate(context.Background(), "three")
	if schema.renders != 2 {
		t.Fatalf("schema not re-rendered after Invalidate")
	}
}

func TestCypherGenerator_LLMErrorDegrades(t *testing.T) {
	g := NewCypherGenerator(&fakeLLM{err: errors.New("boom")}, &staticSchema{}, nil, nil)
	if cypher, _ := g.Generate(context.Background(), "anything"); cypher != "" {
		t.Fatalf("error path produced cypher %q", cypher)
	}
}

func TestIsReadOnlyCypher(t *testing.T) {
	reads := []string{
		"MATCH (n:Chunk) RETURN n.content LIMIT 5",
		"MATCH (a)-[r:RELATES_TO]->(b) RETURN a.name, b.name",
	}
	writes := []string{
		"CREATE (n:Chunk {uuid: '1'})",
		"MATCH (n) SET n.x = 1 RETURN n",
		"MERGE (n:Entity {uuid: '1'}) RETURN n",
		"MATCH (n) DETACH DELETE n",
		"CALL db.create.setNodeVectorProperty(null, 'x', [])",
	}
	for _, q := range reads {
		if !isReadOnlyCypher(q) {
			t.Fatalf("read query rejected: %q", q)
		}
	}
	for _, q := range writes {
		if isReadOnlyCypher(q) {
			t.Fatalf("write query accepted: %q", q)
		}
	}
}
