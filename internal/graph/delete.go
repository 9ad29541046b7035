package graph

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DeleteCounters summarizes one source-deletion cascade.
type DeleteCounters struct {
	Sources          int `json:"sources"`
	Chunks           int `json:"chunks"`
	Products         int `json:"products"`
	ProductsDemoted  int `json:"products_demoted"`
	MentionsRels     int `json:"mentions_rels"`
	RelatesToRels    int `json:"relates_to_rels"`
	Entities         int `json:"entities"`
	DemotedEdgeMoves int `json:"demoted_edge_moves"`
}

// DeleteSourceAndDerived removes a Source and everything derived from it in
// one transaction. Entities still referenced from outside the deletion set
// survive; Products still referenced are demoted back to Entities with their
// remaining edges relinked. Any error rolls the whole cascade back.
func (m *NodeManager) DeleteSourceAndDerived(ctx context.Context, sourceUUID string) (DeleteCounters, error) {
	var counters DeleteCounters
	err := m.store.WriteTx(ctx, func(tx Tx) error {
		// 1. Gather chunks and products of the source.
		rows, err := tx.Run(ctx, cascadeGatherQuery, map[string]any{"uuid": sourceUUID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("source %s: %w", sourceUUID, ErrNotFound)
		}
		chunkUUIDs := stringList(rows[0]["chunk_uuids"])
		productUUIDs := stringList(rows[0]["product_uuids"])
		origins := append(append([]string{}, chunkUUIDs...), productUUIDs...)

		// 2. Entities one hop away are the only orphan candidates; deletion
		// never recurses over graph shape.
		var orphanCandidates []string
		if len(origins) > 0 {
			rows, err = tx.Run(ctx, cascadeNeighborEntitiesQuery, map[string]any{"origins": origins})
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				orphanCandidates = stringList(rows[0]["entity_uuids"])
			}
		}

		// 3. Facts extracted from the doomed chunks.
		if len(chunkUUIDs) > 0 {
			rows, err = tx.Run(ctx, cascadeDeleteRelatesToQuery, map[string]any{"chunk_uuids": chunkUUIDs})
			if err != nil {
				return err
			}
			counters.RelatesToRels = intField(rows, "deleted")
		}

		// 4. Mentions originating from the deletion set.
		if len(origins) > 0 {
			rows, err = tx.Run(ctx, cascadeDeleteMentionsQuery, map[string]any{"origins": origins})
			if err != nil {
				return err
			}
			counters.MentionsRels = intField(rows, "deleted")
		}

		// 5. Drop candidates with no surviving external references.
		if len(orphanCandidates) > 0 {
			rows, err = tx.Run(ctx, cascadeDeleteOrphanCandidatesQuery, map[string]any{"candidates": orphanCandidates})
			if err != nil {
				return err
			}
			counters.Entities = intField(rows, "deleted")
		}

		// 6. Externally referenced products are demoted, the rest deleted.
		if len(productUUIDs) > 0 {
			rows, err = tx.Run(ctx, cascadeReferencedProductsQuery, map[string]any{"product_uuids": productUUIDs})
			if err != nil {
				return err
			}
			ts := tsString(time.Now())
			for _, row := range rows {
				name := asString(row["name"])
				label := strings.TrimSpace(asString(row["category"]))
				if label == "" {
					label = "DemotedProduct"
				}
				normalized := NormalizeName(name)
				demoted, err := tx.Run(ctx, cascadeDemoteProductQuery, map[string]any{
					"product_uuid":    asString(row["uuid"]),
					"normalized_name": normalized,
					"label":           label,
					"entity_uuid":     EntityUUID(normalized, label),
					"name":            name,
					"ts":              ts,
				})
				if err != nil {
					return err
				}
				counters.ProductsDemoted++
				counters.DemotedEdgeMoves += intField(demoted, "moved")
			}

			rows, err = tx.Run(ctx, cascadeDeleteProductsQuery, map[string]any{"product_uuids": productUUIDs})
			if err != nil {
				return err
			}
			counters.Products = intField(rows, "deleted")
		}

		// 7. Chunks.
		if len(chunkUUIDs) > 0 {
			rows, err = tx.Run(ctx, cascadeDeleteChunksQuery, map[string]any{"chunk_uuids": chunkUUIDs})
			if err != nil {
				return err
			}
			counters.Chunks = intField(rows, "deleted")
		}

		// 8. The source itself.
		rows, err = tx.Run(ctx, cascadeDeleteSourceQuery, map[string]any{"uuid": sourceUUID})
		if err != nil {
			return err
		}
		counters.Sources = intField(rows, "deleted")
		return nil
	})
	if err != nil {
		return DeleteCounters{}, fmt.Errorf("delete source %s: %w", sourceUUID, err)
	}
	m.log.Info("source deleted",
		"source_uuid", sourceUUID,
		"chunks", counters.Chunks,
		"products", counters.Products,
		"products_demoted", counters.ProductsDemoted,
		"entities", counters.Entities,
	)
	return counters, nil
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		if s, ok := el.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
