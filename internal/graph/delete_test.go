package graph

import (
	"context"
	"errors"
	"testing"
)

// scriptedTx replays canned rows per cascade query and records call order.
type scriptedTx struct {
	calls   []string
	params  []map[string]any
	respond func(cypher string, params map[string]any) ([]map[string]any, error)
}

func (s *scriptedTx) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	s.calls = append(s.calls, cypher)
	s.params = append(s.params, params)
	return s.respond(cypher, params)
}

type txExecutor struct {
	tx *scriptedTx
}

func (e *txExecutor) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return nil, errors.New("unexpected Read")
}

func (e *txExecutor) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return nil, errors.New("unexpected Write")
}

func (e *txExecutor) WriteTx(ctx context.Context, fn func(tx Tx) error) error {
	return fn(e.tx)
}

func TestDeleteSourceAndDerived_CascadeOrderAndCounters(t *testing.T) {
	tx := &scriptedTx{
		respond: func(cypher string, params map[string]any) ([]map[string]any, error) {
			switch cypher {
			case cascadeGatherQuery:
				return []map[string]any{{
					"chunk_uuids":   []any{"c1", "c2"},
					"product_uuids": []any{"p1"},
				}}, nil
			case cascadeNeighborEntitiesQuery:
				return []map[string]any{{"entity_uuids": []any{"e1", "e2"}}}, nil
			case cascadeDeleteRelatesToQuery:
				return []map[string]any{{"deleted": int64(3)}}, nil
			case cascadeDeleteMentionsQuery:
				return []map[string]any{{"deleted": int64(4)}}, nil
			case cascadeDeleteOrphanCandidatesQuery:
				return []map[string]any{{"deleted": int64(1)}}, nil
			case cascadeReferencedProductsQuery:
				// One product still referenced from another source.
				return []map[string]any{{"uuid": "p1", "name": "Widget", "category": ""}}, nil
			case cascadeDemoteProductQuery:
				return []map[string]any{{"moved": int64(2)}}, nil
			case cascadeDeleteProductsQuery:
				return []map[string]any{{"deleted": int64(0)}}, nil
			case cascadeDeleteChunksQuery:
				return []map[string]any{{"deleted": int64(2)}}, nil
			case cascadeDeleteSourceQuery:
				return []map[string]any{{"deleted": int64(1)}}, nil
			}
			return nil, errors.New("unexpected query: " + cypher)
		},
	}
	m := NewNodeManager(&txExecutor{tx: tx}, nil)

	counters, err := m.DeleteSourceAndDerived(context.Background(), "src-uuid")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := DeleteCounters{
		Sources:          1,
		Chunks:           2,
		Products:         0,
		ProductsDemoted:  1,
		MentionsRels:     4,
		RelatesToRels:    3,
		Entities:         1,
		DemotedEdgeMoves: 2,
	}
	if counters != want {
		t.Fatalf("counters = %+v, want %+v", counters, want)
	}

	wantOrder := []string{
		cascadeGatherQuery,
		cascadeNeighborEntitiesQuery,
		cascadeDeleteRelatesToQuery,
		cascadeDeleteMentionsQuery,
		cascadeDeleteOrphanCandidatesQuery,
		cascadeReferencedProductsQuery,
		cascadeDemoteProductQuery,
		cascadeDeleteProductsQuery,
		cascadeDeleteChunksQuery,
		cascadeDeleteSourceQuery,
	}
	if len(tx.calls) != len(wantOrder) {
		t.Fatalf("got %d cascade steps, want %d", len(tx.calls), len(wantOrder))
	}
	for i := range wantOrder {
		if tx.calls[i] != wantOrder[i] {
			t.Fatalf("step %d out of order", i)
		}
	}

	// Demotion with no category falls back to the DemotedProduct label and
	// derives the deterministic entity uuid from it.
	demoteParams := tx.params[6]
	if demoteParams["label"] != "DemotedProduct" {
		t.Fatalf("demotion label = %v", demoteParams["label"])
	}
	if demoteParams["entity_uuid"] != EntityUUID("widget", "DemotedProduct") {
		t.Fatalf("demotion entity_uuid not derived from identity key")
	}
}

func TestDeleteSourceAndDerived_UnknownSource(t *testing.T) {
	tx := &scriptedTx{
		respond: func(cypher string, params map[string]any) ([]map[string]any, error) {
			return nil, nil
		},
	}
	m := NewNodeManager(&txExecutor{tx: tx}, nil)

	_, err := m.DeleteSourceAndDerived(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSourceAndDerived_EmptySourceSkipsDerivedSteps(t *testing.T) {
	tx := &scriptedTx{
		respond: func(cypher string, params map[string]any) ([]map[string]any, error) {
			switch cypher {
			case cascadeGatherQuery:
				return []map[string]any{{"chunk_uuids": []any{}, "product_uuids": []any{}}}, nil
			case cascadeDeleteSourceQuery:
				return []map[string]any{{"deleted": int64(1)}}, nil
			}
			return nil, errors.New("unexpected query for empty source: " + cypher)
		},
	}
	m := NewNodeManager(&txExecutor{tx: tx}, nil)

	counters, err := m.DeleteSourceAndDerived(context.Background(), "src-uuid")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if counters.Sources != 1 {
		t.Fatalf("sources = %d, want 1", counters.Sources)
	}
	if len(tx.calls) != 2 {
		t.Fatalf("empty source ran %d steps, want 2", len(tx.calls))
	}
}
