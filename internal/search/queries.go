package search

import (
	"strings"

	"github.com/dbczarnota/graphforrag/internal/graph"
)

// Kind names used in configs, results, and context snippets.
const (
	KindChunks        = "chunks"
	KindSources       = "sources"
	KindEntities      = "entities"
	KindProducts      = "products"
	KindRelationships = "relationships"
	KindMentions      = "mentions"
)

// Method source tags attached to every UNION ALL branch.
const (
	MethodKeyword       = "keyword"
	MethodVector        = "vector"
	MethodVectorName    = "vector_name"
	MethodVectorContent = "vector_content"
	MethodCypher        = "cypher"
)

// branch is one UNION ALL arm of a per-kind search query.
type branch struct {
	method string
	cypher string
	vector bool // needs $embedding / $vec_limit / $min_score
}

func nodeKeywordBranch(index, label, nameExpr, contentExpr string) branch {
	return branch{
		method: MethodKeyword,
		cypher: "CALL db.index.fulltext.queryNodes('" + index + "', $q, {limit: $kw_limit}) YIELD node, score\n" +
			"RETURN node.uuid AS uuid, " + nameExpr + " AS name, " + contentExpr + " AS content, " +
			"score, '" + MethodKeyword + "' AS method_source, '" + label + "' AS node_type",
	}
}

func nodeVectorBranch(method, index, label, nameExpr, contentExpr string) branch {
	return branch{
		method: method,
		vector: true,
		cypher: "CALL db.index.vector.queryNodes('" + index + "', $vec_limit, $embedding) YIELD node, score\n" +
			"WHERE score >= $min_score\n" +
			"RETURN node.uuid AS uuid, " + nameExpr + " AS name, " + contentExpr + " AS content, " +
			"score, '" + method + "' AS method_source, '" + label + "' AS node_type",
	}
}

func relKeywordBranch(index, relType, nameExpr, contentExpr string) branch {
	return branch{
		method: MethodKeyword,
		cypher: "CALL db.index.fulltext.queryRelationships('" + index + "', $q, {limit: $kw_limit}) YIELD relationship, score\n" +
			"RETURN relationship.uuid AS uuid, " + nameExpr + " AS name, " + contentExpr + " AS content, " +
			"score, '" + MethodKeyword + "' AS method_source, '" + relType + "' AS node_type",
	}
}

func relVectorBranch(index, relType, nameExpr, contentExpr string) branch {
	return branch{
		method: MethodVector,
		vector: true,
		cypher: "CALL db.index.vector.queryRelationships('" + index + "', $vec_limit, $embedding) YIELD relationship, score\n" +
			"WHERE score >= $min_score\n" +
			"RETURN relationship.uuid AS uuid, " + nameExpr + " AS name, " + contentExpr + " AS content, " +
			"score, '" + MethodVector + "' AS method_source, '" + relType + "' AS node_type",
	}
}

// kindBranches returns every possible branch for a kind; the builder keeps
// only the enabled ones.
func kindBranches(kind string) []branch {
	switch kind {
	case KindChunks:
		return []branch{
			nodeKeywordBranch(graph.IdxChunkContentFT, "Chunk", "coalesce(node.name, '')", "coalesce(node.content, '')"),
			nodeVectorBranch(MethodVector, graph.IdxChunkContentVec, "Chunk", "coalesce(node.name, '')", "coalesce(node.content, '')"),
		}
	case KindSources:
		return []branch{
			nodeKeywordBranch(graph.IdxSourceContentFT, "Source", "node.name", "coalesce(node.content, '')"),
			nodeVectorBranch(MethodVector, graph.IdxSourceContentVec, "Source", "node.name", "coalesce(node.content, '')"),
		}
	case KindEntities:
		return []branch{
			nodeKeywordBranch(graph.IdxEntityNameFT, "Entity", "node.name", "coalesce(node.description, '')"),
			nodeVectorBranch(MethodVector, graph.IdxEntityNameVec, "Entity", "node.name", "coalesce(node.description, '')"),
		}
	case KindProducts:
		return []branch{
			nodeKeywordBranch(graph.IdxProductNameFT, "Product", "node.name", "coalesce(node.content, '')"),
			nodeVectorBranch(MethodVectorName, graph.IdxProductNameVec, "Product", "node.name", "coalesce(node.content, '')"),
			nodeVectorBranch(MethodVectorContent, graph.IdxProductContentVec, "Product", "node.name", "coalesce(node.content, '')"),
		}
	case KindRelationships:
		return []branch{
			relKeywordBranch(graph.IdxRelatesToFactFT, "RELATES_TO", "coalesce(relationship.relation_label, '')", "coalesce(relationship.fact_sentence, '')"),
			relVectorBranch(graph.IdxRelatesToFactVec, "RELATES_TO", "coalesce(relationship.relation_label, '')", "coalesce(relationship.fact_sentence, '')"),
		}
	case KindMentions:
		// MENTIONS facts have no full-text index; vector only.
		return []branch{
			relVectorBranch(graph.IdxMentionsFactVec, "MENTIONS", "'MENTIONS'", "coalesce(relationship.fact_sentence, '')"),
		}
	}
	return nil
}

// buildKindQuery assembles the UNION ALL query for a kind from its enabled
// methods. Returns ok=false when no method applies.
func buildKindQuery(kind string, cfg KindConfig, haveEmbedding bool) (string, bool) {
	parts := []string{}
	for _, b := range kindBranches(kind) {
		if b.vector {
			if !cfg.Vector.Enabled || !haveEmbedding {
				continue
			}
		} else if !cfg.Keyword.Enabled {
			continue
		}
		parts = append(parts, b.cypher)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\nUNION ALL\n"), true
}

// sourceReferencesQuery resolves the source names backing a set of chunk and
// product uuids, for provenance reporting.
const sourceReferencesQuery = `
MATCH (n)-[:BELONGS_TO_SOURCE]->(s:Source)
WHERE n.uuid IN $uuids
RETURN DISTINCT s.name AS name
ORDER BY name`
