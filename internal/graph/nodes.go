package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/dbczarnota/graphforrag/internal/platform/logger"
)

// NodeManager exposes idempotent CRUD over the knowledge graph. Each
// operation is one parameterized statement executed in its own transaction,
// except the source-deletion cascade which runs as a single transaction.
type NodeManager struct {
	store Executor
	log   *logger.Logger
}

func NewNodeManager(store Executor, log *logger.Logger) *NodeManager {
	if log == nil {
		log = logger.Nop()
	}
	return &NodeManager{store: store, log: log.With("component", "NodeManager")}
}

func tsString(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// UpsertSource merges on name. The uuid is derived from the name and never
// changes across re-ingestions.
func (m *NodeManager) UpsertSource(ctx context.Context, name string, content *string, dynProps map[string]any, ts time.Time) (string, error) {
	rows, err := m.store.Write(ctx, upsertSourceQuery, map[string]any{
		"name":    name,
		"uuid":    SourceUUID(name),
		"content": nullableString(content),
		"props":   NormalizeProps(dynProps),
		"ts":      tsString(ts),
	})
	if err != nil {
		return "", fmt.Errorf("upsert source %q: %w", name, err)
	}
	return stringField(rows, "uuid")
}

// UpsertChunk merges on uuid, ensures BELONGS_TO_SOURCE, and links
// NEXT_CHUNK from the chunk numbered number-1 when that chunk exists.
func (m *NodeManager) UpsertChunk(ctx context.Context, chunkUUID, content, sourceUUID, sourceName, name string, number *int, dynProps map[string]any, ts time.Time) (string, error) {
	rows, err := m.store.Write(ctx, upsertChunkQuery, map[string]any{
		"uuid":        chunkUUID,
		"content":     content,
		"source_uuid": sourceUUID,
		"source_name": sourceName,
		"name":        name,
		"number":      nullableInt(number),
		"props":       NormalizeProps(dynProps),
		"ts":          tsString(ts),
	})
	if err != nil {
		return "", fmt.Errorf("upsert chunk %s: %w", chunkUUID, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("upsert chunk %s: source %s: %w", chunkUUID, sourceUUID, ErrNotFound)
	}
	return stringField(rows, "uuid")
}

func (m *NodeManager) UpsertProduct(ctx context.Context, productUUID, name, content string, price *float64, sku, category *string, dynProps map[string]any, ts time.Time) (string, error) {
	rows, err := m.store.Write(ctx, upsertProductQuery, map[string]any{
		"uuid":     productUUID,
		"name":     name,
		"content":  content,
		"price":    nullableFloat(price),
		"sku":      nullableString(sku),
		"category": nullableString(category),
		"props":    NormalizeProps(dynProps),
		"ts":       tsString(ts),
	})
	if err != nil {
		return "", fmt.Errorf("upsert product %s: %w", productUUID, err)
	}
	return stringField(rows, "uuid")
}

func (m *NodeManager) LinkProductToSource(ctx context.Context, productUUID, sourceUUID string, ts time.Time) (string, error) {
	rows, err := m.store.Write(ctx, linkProductToSourceQuery, map[string]any{
		"product_uuid": productUUID,
		"source_uuid":  sourceUUID,
		"rel_uuid":     NewUUID(),
		"ts":           tsString(ts),
	})
	if err != nil {
		return "", fmt.Errorf("link product %s to source %s: %w", productUUID, sourceUUID, err)
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	return stringField(rows, "uuid")
}

// LinkChunkToEntity ensures a MENTIONS edge. Re-linking the same pair
// refreshes last_seen_at instead of duplicating.
func (m *NodeManager) LinkChunkToEntity(ctx context.Context, chunkUUID, entityUUID string, factSentence *string, ts time.Time) (string, error) {
	return m.linkMention(ctx, linkChunkToEntityQuery, chunkUUID, entityUUID, factSentence, ts)
}

func (m *NodeManager) LinkChunkToProduct(ctx context.Context, chunkUUID, productUUID string, factSentence *string, ts time.Time) (string, error) {
	return m.linkMention(ctx, linkChunkToProductQuery, chunkUUID, productUUID, factSentence, ts)
}

func (m *NodeManager) linkMention(ctx context.Context, query, chunkUUID, targetUUID string, factSentence *string, ts time.Time) (string, error) {
	rows, err := m.store.Write(ctx, query, map[string]any{
		"chunk_uuid":    chunkUUID,
		"target_uuid":   targetUUID,
		"rel_uuid":      NewUUID(),
		"fact_sentence": nullableString(factSentence),
		"ts":            tsString(ts),
	})
	if err != nil {
		return "", fmt.Errorf("link chunk %s to %s: %w", chunkUUID, targetUUID, err)
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	return stringField(rows, "uuid")
}

// EntityMergeResult reports what MergeOrCreateEntity found or made.
type EntityMergeResult struct {
	UUID       string
	Name       string
	Label      string
	WasCreated bool
}

// MergeOrCreateEntity merges on the identity key (normalized_name, label).
// The uuid parameter is only used when the merge creates the node; a
// concurrent loser observes the winner's uuid.
func (m *NodeManager) MergeOrCreateEntity(ctx context.Context, entityUUID, name, normalizedName, label string, ts time.Time) (EntityMergeResult, error) {
	rows, err := m.store.Write(ctx, mergeOrCreateEntityQuery, map[string]any{
		"uuid":            entityUUID,
		"name":            name,
		"normalized_name": normalizedName,
		"label":           label,
		"ts":              tsString(ts),
	})
	if err != nil {
		return EntityMergeResult{}, fmt.Errorf("merge entity (%s, %s): %w", normalizedName, label, err)
	}
	if len(rows) == 0 {
		return EntityMergeResult{}, fmt.Errorf("merge entity (%s, %s): empty result", normalizedName, label)
	}
	row := rows[0]
	return EntityMergeResult{
		UUID:       asString(row["uuid"]),
		Name:       asString(row["name"]),
		Label:      asString(row["label"]),
		WasCreated: asBool(row["was_created"]),
	}, nil
}

// UpdateEntityName replaces the stored display name with a longer canonical
// surface form chosen by the resolver.
func (m *NodeManager) UpdateEntityName(ctx context.Context, entityUUID, name string, ts time.Time) error {
	_, err := m.store.Write(ctx, updateEntityNameQuery, map[string]any{
		"uuid": entityUUID,
		"name": name,
		"ts":   tsString(ts),
	})
	if err != nil {
		return fmt.Errorf("update entity name %s: %w", entityUUID, err)
	}
	return nil
}

// UpsertRelationship merges on (src, dst, relation label, fact sentence).
// Re-extracting the identical fact refreshes last_seen_at.
func (m *NodeManager) UpsertRelationship(ctx context.Context, srcUUID, dstUUID, relationLabel, factSentence, chunkUUID string, ts time.Time, relUUID string) (string, error) {
	if relUUID == "" {
		relUUID = NewUUID()
	}
	rows, err := m.store.Write(ctx, upsertRelationshipQuery, map[string]any{
		"src_uuid":       srcUUID,
		"dst_uuid":       dstUUID,
		"relation_label": relationLabel,
		"fact_sentence":  factSentence,
		"chunk_uuid":     chunkUUID,
		"rel_uuid":       relUUID,
		"ts":             tsString(ts),
	})
	if err != nil {
		return "", fmt.Errorf("upsert relationship %s-[%s]->%s: %w", srcUUID, relationLabel, dstUUID, err)
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	return stringField(rows, "uuid")
}

// SetEmbedding writes a vector property on a node or relationship. The
// vector's dimension is the caller's responsibility; it must match the
// configured embedder.
func (m *NodeManager) SetEmbedding(ctx context.Context, uuid, property string, vector []float32, onRelationship bool) (bool, error) {
	query := setNodeEmbeddingQuery
	if onRelationship {
		query = setRelationshipEmbeddingQuery
	}
	rows, err := m.store.Write(ctx, query, map[string]any{
		"uuid":     uuid,
		"property": property,
		"vector":   float32sToAny(vector),
	})
	if err != nil {
		return false, fmt.Errorf("set embedding %s.%s: %w", uuid, property, err)
	}
	return intField(rows, "updated") > 0, nil
}

// PromotionCounts reports how many edges were carried over.
type PromotionCounts struct {
	MentionsMoved int
	IncomingMoved int
	OutgoingMoved int
}

// PromoteEntityToProduct atomically replaces an Entity with a new Product,
// carrying every relationship (with properties) across.
func (m *NodeManager) PromoteEntityToProduct(ctx context.Context, entityUUID, productUUID, name, content string, price *float64, sku, category *string, dynProps map[string]any, ts time.Time) (string, PromotionCounts, error) {
	rows, err := m.store.Write(ctx, promoteEntityToProductQuery, map[string]any{
		"entity_uuid":  entityUUID,
		"product_uuid": productUUID,
		"name":         name,
		"content":      content,
		"price":        nullableFloat(price),
		"sku":          nullableString(sku),
		"category":     nullableString(category),
		"props":        NormalizeProps(dynProps),
		"ts":           tsString(ts),
	})
	if err != nil {
		return "", PromotionCounts{}, fmt.Errorf("promote entity %s: %w", entityUUID, err)
	}
	if len(rows) == 0 {
		return "", PromotionCounts{}, fmt.Errorf("promote entity %s: %w", entityUUID, ErrNotFound)
	}
	row := rows[0]
	counts := PromotionCounts{
		MentionsMoved: asInt(row["mentions_moved"]),
		IncomingMoved: asInt(row["incoming_moved"]),
		OutgoingMoved: asInt(row["outgoing_moved"]),
	}
	m.log.Info("entity promoted to product",
		"entity_uuid", entityUUID,
		"product_uuid", productUUID,
		"mentions_moved", counts.MentionsMoved,
	)
	return asString(row["uuid"]), counts, nil
}

// DeleteOrphanedEntities removes Entities with no inbound MENTIONS and no
// RELATES_TO on either side.
func (m *NodeManager) DeleteOrphanedEntities(ctx context.Context) (int, error) {
	rows, err := m.store.Write(ctx, deleteOrphanedEntitiesQuery, nil)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned entities: %w", err)
	}
	return intField(rows, "deleted"), nil
}

// Candidate is one vector-search hit used by the entity resolver.
type Candidate struct {
	UUID     string
	Name     string
	Label    string
	NodeType string // Entity or Product
	Score    float64
}

// VectorCandidates queries one vector index for nodes whose embedding on
// the index's property scores above minScore.
func (m *NodeManager) VectorCandidates(ctx context.Context, index string, embedding []float32, k int, minScore float64) ([]Candidate, error) {
	rows, err := m.store.Read(ctx, vectorCandidatesQuery, map[string]any{
		"index":     index,
		"k":         k,
		"embedding": float32sToAny(embedding),
		"min_score": minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("vector candidates on %s: %w", index, err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, Candidate{
			UUID:     asString(row["uuid"]),
			Name:     asString(row["name"]),
			Label:    asString(row["label"]),
			NodeType: asString(row["node_type"]),
			Score:    asFloat(row["score"]),
		})
	}
	return out, nil
}

// MentionFacts returns fact sentences from existing MENTIONS edges into a
// node, used to give the resolver disambiguation context.
func (m *NodeManager) MentionFacts(ctx context.Context, uuid string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := m.store.Read(ctx, mentionFactsQuery, map[string]any{"uuid": uuid, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("mention facts %s: %w", uuid, err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if f := asString(row["fact"]); f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// --- shared row/param helpers ---

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// The driver wants []any for list parameters.
func float32sToAny(v []float32) []any {
	out := make([]any, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func stringField(rows []map[string]any, key string) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("empty result for %s", key)
	}
	return asString(rows[0][key]), nil
}

func intField(rows []map[string]any, key string) int {
	if len(rows) == 0 {
		return 0
	}
	return asInt(rows[0][key])
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
