// Package ingest drives the pipeline that turns raw documents into graph
// nodes, mentions, relationships, and embeddings.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbczarnota/graphforrag/internal/extraction"
	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/internal/platform/envutil"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/internal/resolver"
	"github.com/dbczarnota/graphforrag/usage"
)

// Document node types accepted on ingestion. The caller declares the type;
// content is never sniffed.
const (
	NodeTypeChunk   = "chunk"
	NodeTypeProduct = "product"
)

// Product content types. Empty means JSON.
const (
	ContentTypeJSON = "json"
	ContentTypeText = "text"
)

// Document is one ingestable item of a source. For chunks Content is plain
// text; for products it is a JSON object, or a plain-text description when
// ContentType is "text".
type Document struct {
	Content     string
	NodeType    string // NodeTypeChunk (default) or NodeTypeProduct
	ContentType string // products only: ContentTypeJSON (default) or ContentTypeText
	UUID        string // optional stable id; derived when empty
	Name        string // optional display name
	ChunkNumber *int   // optional explicit ordering; assigned sequentially when nil
	Metadata    map[string]any
}

// SourceInput is one source document set to ingest.
type SourceInput struct {
	Name      string
	Content   string // optional source-level text, embedded when present
	Metadata  map[string]any
	Documents []Document
}

// SourceResult reports what one source ingestion produced.
type SourceResult struct {
	SourceName    string
	SourceUUID    string
	Chunks        int
	Products      int
	Promotions    int
	Entities      int
	Relationships int
	Skipped       int
	Usage         usage.Report
}

type Orchestrator struct {
	nodes       *graph.NodeManager
	extractor   *extraction.Extractor
	resolver    *resolver.Resolver
	embedder    resolver.Embedder
	totals      *usage.Totals
	now         graph.Clock
	concurrency int
	log         *logger.Logger
}

func NewOrchestrator(
	nodes *graph.NodeManager,
	extractor *extraction.Extractor,
	res *resolver.Resolver,
	embedder resolver.Embedder,
	totals *usage.Totals,
	log *logger.Logger,
) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		nodes:       nodes,
		extractor:   extractor,
		resolver:    res,
		embedder:    embedder,
		totals:      totals,
		now:         time.Now,
		concurrency: envutil.Int("INGEST_SOURCE_CONCURRENCY", 4),
		log:         log.With("component", "Ingest"),
	}
}

// AddSources ingests every source, fanning out across sources while keeping
// each source's documents strictly in declaration order. Results line up
// with the input slice.
func (o *Orchestrator) AddSources(ctx context.Context, sources []SourceInput) ([]SourceResult, error) {
	results := make([]SourceResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range sources {
		g.Go(func() error {
			res, err := o.AddSource(gctx, sources[i])
			if err != nil {
				return fmt.Errorf("ingest source %q: %w", sources[i].Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// AddSource ingests one source and its documents. Individual document
// failures are logged and skipped; store and embedding failures on the
// source itself abort the run.
func (o *Orchestrator) AddSource(ctx context.Context, src SourceInput) (SourceResult, error) {
	if strings.TrimSpace(src.Name) == "" {
		return SourceResult{}, fmt.Errorf("ingest: source name required")
	}
	result := SourceResult{SourceName: src.Name}
	defer func() { o.totals.AddReport(result.Usage) }()

	var content *string
	if strings.TrimSpace(src.Content) != "" {
		content = &src.Content
	}
	sourceUUID, err := o.nodes.UpsertSource(ctx, src.Name, content, src.Metadata, o.now())
	if err != nil {
		return result, err
	}
	result.SourceUUID = sourceUUID

	if content != nil {
		vecs, embedUse, err := o.embedder.Embed(ctx, []string{*content})
		result.Usage.Embedding.Add(embedUse)
		if err != nil {
			return result, fmt.Errorf("ingest: embed source content: %w", err)
		}
		if _, err := o.nodes.SetEmbedding(ctx, sourceUUID, "content_embedding", vecs[0], false); err != nil {
			return result, err
		}
	}

	// Chunk numbers are 1-based; chunk 1 has no NEXT_CHUNK predecessor.
	nextChunkNumber := 1
	for i, doc := range src.Documents {
		switch doc.NodeType {
		case NodeTypeProduct:
			if err := o.ingestProduct(ctx, &result, sourceUUID, doc); err != nil {
				o.log.Warn("product ingestion failed, skipping item",
					"source", src.Name, "index", i, "error", err.Error())
				result.Skipped++
			}
		case NodeTypeChunk, "":
			number := nextChunkNumber
			if doc.ChunkNumber != nil {
				number = *doc.ChunkNumber
			}
			nextChunkNumber = number + 1
			prev := previousChunkContent(src.Documents, i)
			if err := o.ingestChunk(ctx, &result, sourceUUID, src.Name, doc, number, prev); err != nil {
				o.log.Warn("chunk ingestion failed, skipping item",
					"source", src.Name, "index", i, "error", err.Error())
				result.Skipped++
			}
		default:
			o.log.Warn("unknown node_type, skipping item",
				"source", src.Name, "index", i, "node_type", doc.NodeType)
			result.Skipped++
		}
	}
	return result, nil
}

func previousChunkContent(docs []Document, i int) string {
	for j := i - 1; j >= 0; j-- {
		if docs[j].NodeType == NodeTypeChunk || docs[j].NodeType == "" {
			return docs[j].Content
		}
	}
	return ""
}

func (o *Orchestrator) ingestChunk(ctx context.Context, result *SourceResult, sourceUUID, sourceName string, doc Document, number int, prevContent string) error {
	chunkUUID := doc.UUID
	if chunkUUID == "" {
		chunkUUID = graph.ChunkUUID(sourceUUID, number)
	}
	if _, err := o.nodes.UpsertChunk(ctx, chunkUUID, doc.Content, sourceUUID, sourceName, doc.Name, &number, doc.Metadata, o.now()); err != nil {
		return err
	}
	result.Chunks++

	extracted, llmUse, err := o.extractor.Entities(ctx, sourceName, doc.Content, prevContent)
	result.Usage.LLM.Add(llmUse)
	if err != nil {
		return err
	}

	resolved := make(map[string]resolver.Resolution, len(extracted))
	canonical := make([]extraction.ExtractedEntity, 0, len(extracted))
	for _, ent := range extracted {
		res, spend, err := o.resolver.ResolveEntity(ctx, ent, o.now)
		result.Usage.Merge(spend)
		if err != nil {
			o.log.Warn("entity resolution failed, skipping mention",
				"entity", ent.Name, "error", err.Error())
			continue
		}
		if res.WasCreated {
			result.Entities++
		}
		// Created and renamed entities both need the stored vector to match
		// the current name.
		if (res.WasCreated || res.Renamed) && len(res.NameEmbedding) > 0 {
			if _, err := o.nodes.SetEmbedding(ctx, res.UUID, "name_embedding", res.NameEmbedding, false); err != nil {
				return err
			}
		}
		if err := o.linkMention(ctx, result, chunkUUID, res, ent.Description); err != nil {
			return err
		}
		key := strings.ToLower(strings.TrimSpace(res.Name))
		resolved[key] = res
		resolved[strings.ToLower(strings.TrimSpace(ent.Name))] = res
		canonical = append(canonical, extraction.ExtractedEntity{
			Name:        res.Name,
			Label:       res.Label,
			Description: ent.Description,
		})
	}

	if len(canonical) >= 2 {
		if err := o.ingestRelationships(ctx, result, chunkUUID, doc.Content, canonical, resolved); err != nil {
			return err
		}
	}

	vecs, embedUse, err := o.embedder.Embed(ctx, []string{doc.Content})
	result.Usage.Embedding.Add(embedUse)
	if err != nil {
		return fmt.Errorf("embed chunk content: %w", err)
	}
	_, err = o.nodes.SetEmbedding(ctx, chunkUUID, "content_embedding", vecs[0], false)
	return err
}

// linkMention creates the MENTIONS edge and, when a fact sentence exists,
// embeds it onto the edge.
func (o *Orchestrator) linkMention(ctx context.Context, result *SourceResult, chunkUUID string, res resolver.Resolution, description string) error {
	var fact *string
	if strings.TrimSpace(description) != "" {
		fact = &description
	}
	var relUUID string
	var err error
	if res.NodeType == "Product" {
		relUUID, err = o.nodes.LinkChunkToProduct(ctx, chunkUUID, res.UUID, fact, o.now())
	} else {
		relUUID, err = o.nodes.LinkChunkToEntity(ctx, chunkUUID, res.UUID, fact, o.now())
	}
	if err != nil {
		return err
	}
	if fact == nil || relUUID == "" {
		return nil
	}
	vecs, embedUse, err := o.embedder.Embed(ctx, []string{*fact})
	result.Usage.Embedding.Add(embedUse)
	if err != nil {
		return fmt.Errorf("embed mention fact: %w", err)
	}
	_, err = o.nodes.SetEmbedding(ctx, relUUID, "fact_embedding", vecs[0], true)
	return err
}

func (o *Orchestrator) ingestRelationships(ctx context.Context, result *SourceResult, chunkUUID, chunkContent string, canonical []extraction.ExtractedEntity, resolved map[string]resolver.Resolution) error {
	rels, llmUse, err := o.extractor.Relationships(ctx, chunkContent, canonical)
	result.Usage.LLM.Add(llmUse)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		return nil
	}

	facts := make([]string, 0, len(rels))
	relUUIDs := make([]string, 0, len(rels))
	for _, rel := range rels {
		src, srcOK := resolved[strings.ToLower(rel.SourceName)]
		dst, dstOK := resolved[strings.ToLower(rel.TargetName)]
		if !srcOK || !dstOK || src.UUID == dst.UUID {
			continue
		}
		relUUID, err := o.nodes.UpsertRelationship(ctx, src.UUID, dst.UUID, rel.RelationLabel, rel.FactSentence, chunkUUID, o.now(), graph.NewUUID())
		if err != nil {
			return err
		}
		result.Relationships++
		facts = append(facts, rel.FactSentence)
		relUUIDs = append(relUUIDs, relUUID)
	}
	if len(facts) == 0 {
		return nil
	}

	vecs, embedUse, err := o.embedder.Embed(ctx, facts)
	result.Usage.Embedding.Add(embedUse)
	if err != nil {
		return fmt.Errorf("embed relationship facts: %w", err)
	}
	for i, relUUID := range relUUIDs {
		if _, err := o.nodes.SetEmbedding(ctx, relUUID, "fact_embedding", vecs[i], true); err != nil {
			return err
		}
	}
	return nil
}

// productNameKeys are checked in order against the product JSON object.
var productNameKeys = []string{"productName", "title", "item_name", "name"}

func (o *Orchestrator) ingestProduct(ctx context.Context, result *SourceResult, sourceUUID string, doc Document) error {
	record := map[string]any{}
	if doc.ContentType == "" || strings.EqualFold(doc.ContentType, ContentTypeJSON) {
		if err := json.Unmarshal([]byte(doc.Content), &record); err != nil {
			// Unparseable product JSON degrades to a plain-text description;
			// the name then has to come from the document or its metadata.
			o.log.Warn("product content is not a JSON object, treating it as the description",
				"error", err.Error())
			record = map[string]any{}
		}
	}

	name := ""
	for _, key := range productNameKeys {
		if v, ok := record[key].(string); ok && strings.TrimSpace(v) != "" {
			name = strings.TrimSpace(v)
			delete(record, key)
			break
		}
	}
	if name == "" {
		name = strings.TrimSpace(doc.Name)
	}
	if name == "" {
		for _, key := range productNameKeys {
			if v, ok := doc.Metadata[key].(string); ok && strings.TrimSpace(v) != "" {
				name = strings.TrimSpace(v)
				break
			}
		}
	}
	if name == "" {
		return fmt.Errorf("product has no name (checked %s)", strings.Join(productNameKeys, ", "))
	}

	// Metadata wins over parsed record keys on collision; reserved fields are
	// pulled out of the merged bag so both paths treat them the same.
	dynProps := record
	for k, v := range doc.Metadata {
		dynProps[k] = v
	}
	var price *float64
	if v, ok := dynProps["price"]; ok {
		if f, ok := toFloat(v); ok {
			price = &f
		}
		delete(dynProps, "price")
	}
	var sku, category *string
	if v, ok := dynProps["sku"].(string); ok {
		sku = &v
		delete(dynProps, "sku")
	}
	if v, ok := dynProps["category"].(string); ok {
		category = &v
		delete(dynProps, "category")
	}
	for _, key := range productNameKeys {
		if v, ok := dynProps[key].(string); ok && strings.TrimSpace(v) == name {
			delete(dynProps, key)
		}
	}

	matchedEntityUUID, spend, err := o.resolver.MatchProductToEntity(ctx, name, doc.Content)
	result.Usage.Merge(spend)
	if err != nil {
		return err
	}

	productUUID := doc.UUID
	if productUUID == "" {
		productUUID = graph.ProductUUID(name)
	}
	if matchedEntityUUID != "" {
		promoted, counts, err := o.nodes.PromoteEntityToProduct(ctx, matchedEntityUUID, productUUID, name, doc.Content, price, sku, category, dynProps, o.now())
		if err != nil {
			return err
		}
		productUUID = promoted
		result.Promotions++
		o.log.Info("promoted entity to product",
			"product", name,
			"entity_uuid", matchedEntityUUID,
			"mentions_moved", counts.MentionsMoved,
			"relates_to_moved", counts.IncomingMoved+counts.OutgoingMoved)
	} else {
		if _, err := o.nodes.UpsertProduct(ctx, productUUID, name, doc.Content, price, sku, category, dynProps, o.now()); err != nil {
			return err
		}
	}
	if _, err := o.nodes.LinkProductToSource(ctx, productUUID, sourceUUID, o.now()); err != nil {
		return err
	}
	result.Products++

	vecs, embedUse, err := o.embedder.Embed(ctx, []string{name, doc.Content})
	result.Usage.Embedding.Add(embedUse)
	if err != nil {
		return fmt.Errorf("embed product: %w", err)
	}
	if _, err := o.nodes.SetEmbedding(ctx, productUUID, "name_embedding", vecs[0], false); err != nil {
		return err
	}
	_, err = o.nodes.SetEmbedding(ctx, productUUID, "content_embedding", vecs[1], false)
	return err
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
