package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dbczarnota/graphforrag/internal/platform/logger"
)

// Index names shared by the schema manager, the resolver, and the search
// manager.
const (
	IdxChunkContentVec    = "chunk_content_embedding"
	IdxSourceContentVec   = "source_content_embedding"
	IdxEntityNameVec      = "entity_name_embedding"
	IdxProductNameVec     = "product_name_embedding"
	IdxProductContentVec  = "product_content_embedding"
	IdxMentionsFactVec    = "mentions_fact_embedding"
	IdxRelatesToFactVec   = "relates_to_fact_embedding"
	IdxChunkContentFT     = "chunk_content_ft"
	IdxSourceContentFT    = "source_content_ft"
	IdxEntityNameFT       = "entity_name_ft"
	IdxProductNameFT      = "product_name_ft"
	IdxRelatesToFactFT    = "relates_to_fact_ft"
	dynamicIndexPrefix    = "dynamic_idx_"
	flaggedValueSampleCap = 25
)

// SchemaManager owns the constraint/index lifecycle and renders the live
// schema string consumed by the Cypher generator.
type SchemaManager struct {
	store Executor
	dim   int
	log   *logger.Logger
}

func NewSchemaManager(store Executor, embeddingDim int, log *logger.Logger) (*SchemaManager, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("schema: embedding dimension must be positive, got %d", embeddingDim)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SchemaManager{store: store, dim: embeddingDim, log: log.With("component", "SchemaManager")}, nil
}

func (s *SchemaManager) constraintStatements() []string {
	return []string{
		`CREATE CONSTRAINT source_uuid_unique IF NOT EXISTS FOR (s:Source) REQUIRE s.uuid IS UNIQUE`,
		`CREATE CONSTRAINT source_name_unique IF NOT EXISTS FOR (s:Source) REQUIRE s.name IS UNIQUE`,
		`CREATE CONSTRAINT chunk_uuid_unique IF NOT EXISTS FOR (c:Chunk) REQUIRE c.uuid IS UNIQUE`,
		`CREATE CONSTRAINT product_uuid_unique IF NOT EXISTS FOR (p:Product) REQUIRE p.uuid IS UNIQUE`,
		`CREATE CONSTRAINT entity_uuid_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.uuid IS UNIQUE`,
		`CREATE CONSTRAINT entity_identity_unique IF NOT EXISTS FOR (e:Entity) REQUIRE (e.normalized_name, e.label) IS UNIQUE`,
	}
}

func (s *SchemaManager) rangeIndexStatements() []string {
	return []string{
		`CREATE INDEX chunk_number_idx IF NOT EXISTS FOR (c:Chunk) ON (c.chunk_number)`,
		`CREATE INDEX chunk_source_description_idx IF NOT EXISTS FOR (c:Chunk) ON (c.source_description)`,
		`CREATE INDEX entity_label_idx IF NOT EXISTS FOR (e:Entity) ON (e.label)`,
		`CREATE INDEX product_sku_idx IF NOT EXISTS FOR (p:Product) ON (p.sku)`,
		`CREATE INDEX product_category_idx IF NOT EXISTS FOR (p:Product) ON (p.category)`,
	}
}

func (s *SchemaManager) fulltextStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (c:Chunk) ON EACH [c.content, c.name]`, IdxChunkContentFT),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (s:Source) ON EACH [s.content, s.name]`, IdxSourceContentFT),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (e:Entity) ON EACH [e.name, e.description]`, IdxEntityNameFT),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (p:Product) ON EACH [p.name, p.description]`, IdxProductNameFT),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON EACH [r.fact_sentence]`, IdxRelatesToFactFT),
	}
}

func (s *SchemaManager) vectorIndexStatements() []string {
	node := func(name, label, property string) string {
		return fmt.Sprintf(
			"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) "+
				"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			name, label, property, s.dim)
	}
	rel := func(name, relType, property string) string {
		return fmt.Sprintf(
			"CREATE VECTOR INDEX %s IF NOT EXISTS FOR ()-[r:%s]-() ON (r.%s) "+
				"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			name, relType, property, s.dim)
	}
	return []string{
		node(IdxChunkContentVec, "Chunk", "content_embedding"),
		node(IdxSourceContentVec, "Source", "content_embedding"),
		node(IdxEntityNameVec, "Entity", "name_embedding"),
		node(IdxProductNameVec, "Product", "name_embedding"),
		node(IdxProductContentVec, "Product", "content_embedding"),
		rel(IdxMentionsFactVec, "MENTIONS", "fact_embedding"),
		rel(IdxRelatesToFactVec, "RELATES_TO", "fact_embedding"),
	}
}

// EnsureSchema creates every constraint and index the library relies on,
// then discovers dynamic range indexes for observed scalar metadata.
func (s *SchemaManager) EnsureSchema(ctx context.Context) error {
	statements := s.constraintStatements()
	statements = append(statements, s.rangeIndexStatements()...)
	statements = append(statements, s.fulltextStatements()...)
	statements = append(statements, s.vectorIndexStatements()...)
	for _, stmt := range statements {
		if _, err := s.store.Write(ctx, stmt, nil); err != nil {
			return fmt.Errorf("schema: ensure: %w", err)
		}
	}
	if err := s.EnsureDynamicIndexes(ctx); err != nil {
		// Discovery needs data; on an empty store there is nothing to do.
		s.log.Warn("dynamic index discovery failed (continuing)", "error", err.Error())
	}
	return nil
}

const dynamicPropertyDiscoveryQuery = `
MATCH (n:%s)
UNWIND keys(n) AS key
WITH key, n[key] AS value
WHERE NOT key IN $reserved AND value IS NOT NULL
RETURN key, collect(DISTINCT valueType(value))[0] AS value_type`

var dynamicIndexLabels = []string{"Chunk", "Source", "Entity", "Product"}

// EnsureDynamicIndexes enumerates distinct non-reserved scalar properties per
// label and creates a range index for each.
func (s *SchemaManager) EnsureDynamicIndexes(ctx context.Context) error {
	reserved := make([]any, 0, len(ReservedProps))
	for k := range ReservedProps {
		reserved = append(reserved, k)
	}
	for _, label := range dynamicIndexLabels {
		rows, err := s.store.Read(ctx, fmt.Sprintf(dynamicPropertyDiscoveryQuery, label), map[string]any{"reserved": reserved})
		if err != nil {
			return fmt.Errorf("schema: discover %s properties: %w", label, err)
		}
		for _, row := range rows {
			key := asString(row["key"])
			if key == "" || !isScalarValueType(asString(row["value_type"])) {
				continue
			}
			stmt := fmt.Sprintf("CREATE INDEX %s%s_%s IF NOT EXISTS FOR (n:%s) ON (n.`%s`)",
				dynamicIndexPrefix, label, sanitizeIndexToken(key), label, key)
			if _, err := s.store.Write(ctx, stmt, nil); err != nil {
				return fmt.Errorf("schema: create dynamic index %s.%s: %w", label, key, err)
			}
		}
	}
	return nil
}

func isScalarValueType(t string) bool {
	t = strings.ToUpper(strings.TrimSpace(t))
	for _, prefix := range []string{"STRING", "INTEGER", "FLOAT", "BOOLEAN"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func sanitizeIndexToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ClearSchema drops every index and constraint this manager creates,
// including dynamically discovered ones.
func (s *SchemaManager) ClearSchema(ctx context.Context) error {
	rows, err := s.store.Read(ctx, `SHOW INDEXES YIELD name RETURN name`, nil)
	if err != nil {
		return fmt.Errorf("schema: list indexes: %w", err)
	}
	managed := s.managedIndexNames()
	for _, row := range rows {
		name := asString(row["name"])
		if name == "" {
			continue
		}
		if !managed[name] && !strings.HasPrefix(name, dynamicIndexPrefix) {
			continue
		}
		if _, err := s.store.Write(ctx, fmt.Sprintf("DROP INDEX `%s` IF EXISTS", name), nil); err != nil {
			return fmt.Errorf("schema: drop index %s: %w", name, err)
		}
	}

	rows, err = s.store.Read(ctx, `SHOW CONSTRAINTS YIELD name RETURN name`, nil)
	if err != nil {
		return fmt.Errorf("schema: list constraints: %w", err)
	}
	for _, row := range rows {
		name := asString(row["name"])
		if !s.managedConstraintNames()[name] {
			continue
		}
		if _, err := s.store.Write(ctx, fmt.Sprintf("DROP CONSTRAINT `%s` IF EXISTS", name), nil); err != nil {
			return fmt.Errorf("schema: drop constraint %s: %w", name, err)
		}
	}
	return nil
}

func (s *SchemaManager) managedIndexNames() map[string]bool {
	return map[string]bool{
		IdxChunkContentVec: true, IdxSourceContentVec: true, IdxEntityNameVec: true,
		IdxProductNameVec: true, IdxProductContentVec: true, IdxMentionsFactVec: true,
		IdxRelatesToFactVec: true, IdxChunkContentFT: true, IdxSourceContentFT: true,
		IdxEntityNameFT: true, IdxProductNameFT: true, IdxRelatesToFactFT: true,
		"chunk_number_idx": true, "chunk_source_description_idx": true,
		"entity_label_idx": true, "product_sku_idx": true, "product_category_idx": true,
	}
}

func (s *SchemaManager) managedConstraintNames() map[string]bool {
	return map[string]bool{
		"source_uuid_unique": true, "source_name_unique": true, "chunk_uuid_unique": true,
		"product_uuid_unique": true, "entity_uuid_unique": true, "entity_identity_unique": true,
	}
}

// ClearData deletes every node and relationship. Schema objects survive.
func (s *SchemaManager) ClearData(ctx context.Context) error {
	if _, err := s.store.Write(ctx, `MATCH (n) DETACH DELETE n`, nil); err != nil {
		return fmt.Errorf("schema: clear data: %w", err)
	}
	return nil
}

// SchemaString renders the node labels, their scalar/list properties (with
// observed values for flagged properties), relationship properties and the
// allowed patterns. The Cypher generator embeds it verbatim in its prompt.
func (s *SchemaManager) SchemaString(ctx context.Context, flaggedProps map[string][]string) (string, error) {
	var b strings.Builder
	b.WriteString("Node labels and properties:\n")
	for _, label := range dynamicIndexLabels {
		props, err := s.observedProperties(ctx, label)
		if err != nil {
			return "", err
		}
		b.WriteString(fmt.Sprintf("  %s: %s\n", label, strings.Join(props, ", ")))
		for _, prop := range flaggedProps[label] {
			values, err := s.distinctValues(ctx, label, prop, flaggedValueSampleCap)
			if err != nil {
				return "", err
			}
			if len(values) > 0 {
				b.WriteString(fmt.Sprintf("    %s.%s values: %s\n", label, prop, strings.Join(values, ", ")))
			}
		}
	}
	b.WriteString("Relationship types and properties:\n")
	b.WriteString("  BELONGS_TO_SOURCE: uuid, created_at\n")
	b.WriteString("  NEXT_CHUNK: (none)\n")
	b.WriteString("  MENTIONS: uuid, fact_sentence, created_at, last_seen_at\n")
	b.WriteString("  RELATES_TO: uuid, relation_label, fact_sentence, source_chunk_uuid, created_at, last_seen_at\n")
	b.WriteString("Allowed patterns:\n")
	b.WriteString("  (Chunk)-[:BELONGS_TO_SOURCE]->(Source)\n")
	b.WriteString("  (Product)-[:BELONGS_TO_SOURCE]->(Source)\n")
	b.WriteString("  (Chunk)-[:NEXT_CHUNK]->(Chunk)\n")
	b.WriteString("  (Chunk)-[:MENTIONS]->(Entity)\n")
	b.WriteString("  (Chunk)-[:MENTIONS]->(Product)\n")
	b.WriteString("  (Entity)-[:RELATES_TO]->(Entity)\n")
	b.WriteString("  (Entity)-[:RELATES_TO]->(Product)\n")
	b.WriteString("  (Product)-[:RELATES_TO]->(Entity)\n")
	return b.String(), nil
}

const observedPropertiesQuery = `
MATCH (n:%s)
UNWIND keys(n) AS key
WITH DISTINCT key
WHERE NOT key ENDS WITH '_embedding'
RETURN key`

func (s *SchemaManager) observedProperties(ctx context.Context, label string) ([]string, error) {
	rows, err := s.store.Read(ctx, fmt.Sprintf(observedPropertiesQuery, label), nil)
	if err != nil {
		return nil, fmt.Errorf("schema: observed properties %s: %w", label, err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if k := asString(row["key"]); k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

const distinctValuesQuery = `
MATCH (n:%s)
WHERE n[$prop] IS NOT NULL
RETURN DISTINCT toString(n[$prop]) AS value
LIMIT $limit`

func (s *SchemaManager) distinctValues(ctx context.Context, label, prop string, limit int) ([]string, error) {
	rows, err := s.store.Read(ctx, fmt.Sprintf(distinctValuesQuery, label), map[string]any{"prop": prop, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("schema: distinct values %s.%s: %w", label, prop, err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if v := asString(row["value"]); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}
