// Package extraction turns chunk text into graph-ready entities and
// relationships via structured LLM calls.
package extraction

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dbczarnota/graphforrag/internal/extraction/prompts"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

// LLM is the structured-output surface this package needs from the model
// provider.
type LLM interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, usage.LLM, error)
}

// ExtractedEntity is one entity mention pulled out of a chunk.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ExtractedRelationship is one fact between two already-resolved entities.
type ExtractedRelationship struct {
	SourceName    string `json:"source_entity_name"`
	TargetName    string `json:"target_entity_name"`
	RelationLabel string `json:"relation_label"`
	FactSentence  string `json:"fact_sentence"`
}

// Extractor runs the entity and relationship extraction prompts.
type Extractor struct {
	llm LLM
	log *logger.Logger
}

func NewExtractor(llm LLM, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{llm: llm, log: log.With("component", "Extractor")}
}

type entityExtractPayload struct {
	Entities []ExtractedEntity `json:"entities"`
}

// Entities extracts entity mentions from chunkContent. prevContent is the
// preceding chunk of the same source, passed as context only; it may be
// empty. Model failures degrade to an empty result so one bad chunk never
// fails an ingestion run.
func (e *Extractor) Entities(ctx context.Context, sourceName, chunkContent, prevContent string) ([]ExtractedEntity, usage.LLM, error) {
	var use usage.LLM
	if strings.TrimSpace(chunkContent) == "" {
		return nil, use, nil
	}
	built, err := prompts.Build(prompts.PromptEntityExtract, prompts.Input{
		SourceName:       sourceName,
		ChunkContent:     chunkContent,
		PrevChunkContent: prevContent,
	})
	if err != nil {
		return nil, use, err
	}
	raw, callUse, err := e.llm.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
	use.Add(callUse)
	if err != nil {
		e.log.Warn("entity extraction failed, skipping chunk", "source", sourceName, "error", err.Error())
		return nil, use, nil
	}
	var payload entityExtractPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		e.log.Warn("entity extraction returned malformed JSON, skipping chunk", "source", sourceName, "error", err.Error())
		return nil, use, nil
	}
	out := payload.Entities[:0]
	for _, ent := range payload.Entities {
		ent.Name = strings.TrimSpace(ent.Name)
		ent.Label = strings.TrimSpace(ent.Label)
		if ent.Name == "" || ent.Label == "" {
			continue
		}
		out = append(out, ent)
	}
	return out, use, nil
}

type relationshipExtractPayload struct {
	Relationships []ExtractedRelationship `json:"relationships"`
}

// Relationships extracts facts between the given resolved entities from
// chunkContent. Endpoint names outside the known set, and self-loops, are
// dropped. Model failures degrade to an empty result.
func (e *Extractor) Relationships(ctx context.Context, chunkContent string, known []ExtractedEntity) ([]ExtractedRelationship, usage.LLM, error) {
	var use usage.LLM
	if strings.TrimSpace(chunkContent) == "" || len(known) < 2 {
		return nil, use, nil
	}
	entitiesJSON, err := json.Marshal(known)
	if err != nil {
		return nil, use, err
	}
	built, err := prompts.Build(prompts.PromptRelationshipExtract, prompts.Input{
		ChunkContent: chunkContent,
		EntitiesJSON: string(entitiesJSON),
	})
	if err != nil {
		return nil, use, err
	}
	raw, callUse, err := e.llm.GenerateJSON(ctx, built.System, built.User, built.SchemaName, built.Schema)
	use.Add(callUse)
	if err != nil {
		e.log.Warn("relationship extraction failed, skipping chunk", "error", err.Error())
		return nil, use, nil
	}
	var payload relationshipExtractPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		e.log.Warn("relationship extraction returned malformed JSON, skipping chunk", "error", err.Error())
		return nil, use, nil
	}

	knownNames := make(map[string]bool, len(known))
	for _, ent := range known {
		knownNames[strings.ToLower(strings.TrimSpace(ent.Name))] = true
	}
	out := payload.Relationships[:0]
	for _, rel := range payload.Relationships {
		rel.SourceName = strings.TrimSpace(rel.SourceName)
		rel.TargetName = strings.TrimSpace(rel.TargetName)
		rel.RelationLabel = strings.TrimSpace(rel.RelationLabel)
		rel.FactSentence = strings.TrimSpace(rel.FactSentence)
		if rel.SourceName == "" || rel.TargetName == "" || rel.RelationLabel == "" || rel.FactSentence == "" {
			continue
		}
		if strings.EqualFold(rel.SourceName, rel.TargetName) {
			continue
		}
		if !knownNames[strings.ToLower(rel.SourceName)] || !knownNames[strings.ToLower(rel.TargetName)] {
			continue
		}
		out = append(out, rel)
	}
	return out, use, nil
}
