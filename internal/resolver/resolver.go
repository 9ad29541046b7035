// Package resolver decides whether newly extracted entities and products
// refer to things already in the graph.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dbczarnota/graphforrag/internal/extraction"
	"github.com/dbczarnota/graphforrag/internal/extraction/prompts"
	"github.com/dbczarnota/graphforrag/internal/graph"
	"github.com/dbczarnota/graphforrag/internal/platform/envutil"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

const (
	// Candidates below this cosine score are not worth an LLM call.
	defaultSimilarityThreshold = 0.85
	defaultCandidateLimit      = 5
	mentionFactLimit           = 5
)

// Embedder is the embedding surface this package needs from the provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error)
}

// LLM is the structured-output surface this package needs from the provider.
type LLM interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error)
}

// Resolution is the outcome of resolving one extracted entity.
type Resolution struct {
	UUID          string
	Name          string
	Label         string
	NodeType      string // "Entity" or "Product"
	WasCreated    bool
	Renamed       bool      // existing node took the canonical name
	NameEmbedding []float32 // set when a fresh name embedding was computed
}

type Resolver struct {
	nodes     *graph.NodeManager
	embedder  Embedder
	llm       LLM
	threshold float64
	limit     int
	log       *logger.Logger
}

func New(nodes *graph.NodeManager, embedder Embedder, llm LLM, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		nodes:     nodes,
		embedder:  embedder,
		llm:       llm,
		threshold: envutil.Float("RESOLVER_SIMILARITY_THRESHOLD", defaultSimilarityThreshold),
		limit:     envutil.Int("RESOLVER_TOP_K", defaultCandidateLimit),
		log:       log.With("component", "Resolver"),
	}
}

type candidateView struct {
	UUID  string   `json:"uuid"`
	Name  string   `json:"name"`
	Label string   `json:"label"`
	Facts []string `json:"known_facts"`
}

type dedupDecision struct {
	IsDuplicate   bool   `json:"is_duplicate"`
	DuplicateUUID string `json:"duplicate_uuid"`
	CanonicalName string `json:"canonical_name"`
}

// ResolveEntity maps one extracted entity onto the graph. It embeds the
// entity name, searches existing Entity and Product name embeddings, and
// asks the model to confirm identity when close candidates exist. A model
// failure falls back to creating a new entity rather than failing the chunk.
func (r *Resolver) ResolveEntity(ctx context.Context, ent extraction.ExtractedEntity, now graph.Clock) (Resolution, usage.Report, error) {
	var spend usage.Report

	vectors, embedUse, err := r.embedder.Embed(ctx, []string{ent.Name})
	spend.Embedding.Add(embedUse)
	if err != nil {
		return Resolution{}, spend, fmt.Errorf("resolver: embed entity name %q: %w", ent.Name, err)
	}
	nameVec := vectors[0]

	candidates, err := r.vectorCandidates(ctx, nameVec)
	if err != nil {
		return Resolution{}, spend, err
	}

	if len(candidates) > 0 {
		decision, llmUse, decErr := r.dedupDecision(ctx, ent, candidates)
		spend.LLM.Add(llmUse)
		if decErr != nil {
			r.log.Warn("dedup decision failed, creating new entity", "entity", ent.Name, "error", decErr.Error())
		} else if decision.IsDuplicate {
			res, embedUse, ok := r.applyDuplicate(ctx, decision, candidates, now)
			spend.Embedding.Add(embedUse)
			if ok {
				return res, spend, nil
			}
			r.log.Warn("dedup decision referenced unknown candidate, creating new entity",
				"entity", ent.Name, "duplicate_uuid", decision.DuplicateUUID)
		}
	}

	merged, err := r.createEntity(ctx, ent, now)
	if err != nil {
		return Resolution{}, spend, err
	}
	merged.NameEmbedding = nameVec
	return merged, spend, nil
}

func (r *Resolver) vectorCandidates(ctx context.Context, nameVec []float32) ([]graph.Candidate, error) {
	entityCands, err := r.nodes.VectorCandidates(ctx, graph.IdxEntityNameVec, nameVec, r.limit, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("resolver: entity candidates: %w", err)
	}
	productCands, err := r.nodes.VectorCandidates(ctx, graph.IdxProductNameVec, nameVec, r.limit, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("resolver: product candidates: %w", err)
	}
	merged := append(entityCands, productCands...)
	// Entity and product lists each arrive score-ordered; the merge must be
	// re-ordered before the top-K cut so neither kind starves the other.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, c := range merged {
		if seen[c.UUID] {
			continue
		}
		seen[c.UUID] = true
		out = append(out, c)
	}
	if len(out) > r.limit {
		out = out[:r.limit]
	}
	return out, nil
}

func (r *Resolver) dedupDecision(ctx context.Context, ent extraction.ExtractedEntity, candidates []graph.Candidate) (dedupDecision, usage.LLM, error) {
	var use usage.LLM
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		facts, err := r.nodes.MentionFacts(ctx, c.UUID, mentionFactLimit)
		if err != nil {
			return dedupDecision{}, use, fmt.Errorf("resolver: mention facts for %s: %w", c.UUID, err)
		}
		views = append(views, candidateView{UUID: c.UUID, Name: c.Name, Label: c.Label, Facts: facts})
	}
	candidatesJSON, err := json.Marshal(views)
	if err != nil {
		return dedupDecision{}, use, err
	}

	built, err := prompts.Build(prompts.PromptEntityDedup, prompts.Input{
		EntityName:        ent.Name,
		EntityLabel:       ent.Label,
		EntityDescription: ent.Description,
		CandidatesJSON:    string(candidatesJSON),
	})
	if err != nil {
		return dedupDecision{}, use, err
	}
	raw, callUse, err := r.llm.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
	use.Add(callUse)
	if err != nil {
		return dedupDecision{}, use, err
	}
	var decision dedupDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return dedupDecision{}, use, fmt.Errorf("resolver: malformed dedup decision: %w", err)
	}
	return decision, use, nil
}

// applyDuplicate resolves a duplicate verdict against the candidate list and
// renames the canonical node when the model proposed a fuller name. A rename
// re-embeds the new name so the stored vector keeps matching it.
func (r *Resolver) applyDuplicate(ctx context.Context, decision dedupDecision, candidates []graph.Candidate, now graph.Clock) (Resolution, usage.Embedding, bool) {
	var embedSpend usage.Embedding
	for _, c := range candidates {
		if c.UUID != decision.DuplicateUUID {
			continue
		}
		res := Resolution{UUID: c.UUID, Name: c.Name, Label: c.Label, NodeType: c.NodeType}
		canonical := strings.TrimSpace(decision.CanonicalName)
		if canonical != "" && canonical != c.Name && c.NodeType == "Entity" {
			if err := r.nodes.UpdateEntityName(ctx, c.UUID, canonical, now()); err != nil {
				r.log.Warn("canonical rename failed, keeping existing name",
					"uuid", c.UUID, "name", canonical, "error", err.Error())
			} else {
				res.Name = canonical
				res.Renamed = true
				vecs, embedUse, embErr := r.embedder.Embed(ctx, []string{canonical})
				embedSpend.Add(embedUse)
				if embErr != nil {
					r.log.Warn("canonical name embedding failed, keeping stored vector",
						"uuid", c.UUID, "name", canonical, "error", embErr.Error())
				} else {
					res.NameEmbedding = vecs[0]
				}
			}
		}
		return res, embedSpend, true
	}
	return Resolution{}, embedSpend, false
}

func (r *Resolver) createEntity(ctx context.Context, ent extraction.ExtractedEntity, now graph.Clock) (Resolution, error) {
	normalized := graph.NormalizeName(ent.Name)
	entityUUID := graph.EntityUUID(normalized, ent.Label)
	merged, err := r.nodes.MergeOrCreateEntity(ctx, entityUUID, ent.Name, normalized, ent.Label, now())
	if err != nil {
		return Resolution{}, fmt.Errorf("resolver: create entity %q: %w", ent.Name, err)
	}
	return Resolution{
		UUID:       merged.UUID,
		Name:       merged.Name,
		Label:      merged.Label,
		NodeType:   "Entity",
		WasCreated: merged.WasCreated,
	}, nil
}

type productMatchDecision struct {
	IsMatch           bool   `json:"is_match"`
	MatchedEntityUUID string `json:"matched_entity_uuid"`
}

// MatchProductToEntity checks whether an incoming product record corresponds
// to an existing Entity node, which would be promoted to a Product. Only
// Entity candidates count; an existing Product is handled by the regular
// uuid upsert. Returns the matched entity uuid, or "" when no match.
func (r *Resolver) MatchProductToEntity(ctx context.Context, productName string, productJSON string) (string, usage.Report, error) {
	var spend usage.Report

	vectors, embedUse, err := r.embedder.Embed(ctx, []string{productName})
	spend.Embedding.Add(embedUse)
	if err != nil {
		return "", spend, fmt.Errorf("resolver: embed product name %q: %w", productName, err)
	}

	candidates, err := r.nodes.VectorCandidates(ctx, graph.IdxEntityNameVec, vectors[0], r.limit, r.threshold)
	if err != nil {
		return "", spend, fmt.Errorf("resolver: product match candidates: %w", err)
	}
	if len(candidates) == 0 {
		return "", spend, nil
	}

	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		facts, err := r.nodes.MentionFacts(ctx, c.UUID, mentionFactLimit)
		if err != nil {
			return "", spend, fmt.Errorf("resolver: mention facts for %s: %w", c.UUID, err)
		}
		views = append(views, candidateView{UUID: c.UUID, Name: c.Name, Label: c.Label, Facts: facts})
	}
	candidatesJSON, err := json.Marshal(views)
	if err != nil {
		return "", spend, err
	}

	built, err := prompts.Build(prompts.PromptProductMatch, prompts.Input{
		ProductName:    productName,
		ProductJSON:    productJSON,
		CandidatesJSON: string(candidatesJSON),
	})
	if err != nil {
		return "", spend, err
	}
	raw, callUse, err := r.llm.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
	spend.LLM.Add(callUse)
	if err != nil {
		r.log.Warn("product match failed, treating as new product", "product", productName, "error", err.Error())
		return "", spend, nil
	}
	var decision productMatchDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		r.log.Warn("product match returned malformed JSON, treating as new product", "product", productName, "error", err.Error())
		return "", spend, nil
	}
	if !decision.IsMatch {
		return "", spend, nil
	}
	for _, c := range candidates {
		if c.UUID == decision.MatchedEntityUUID {
			return c.UUID, spend, nil
		}
	}
	r.log.Warn("product match referenced unknown candidate, treating as new product",
		"product", productName, "matched_uuid", decision.MatchedEntityUUID)
	return "", spend, nil
}
