package graph

// Parameterized query catalog. Every write the node manager performs maps to
// exactly one of these statements.

const upsertSourceQuery = `
MERGE (s:Source {name: $name})
ON CREATE SET s.uuid = $uuid, s.created_at = $ts
SET s.content = coalesce($content, s.content),
    s.updated_at = $ts,
    s += $props
RETURN s.uuid AS uuid`

const upsertChunkQuery = `
MATCH (src:Source {uuid: $source_uuid})
MERGE (c:Chunk {uuid: $uuid})
ON CREATE SET c.created_at = $ts, c.mention_count = 0
SET c.content = $content,
    c.name = $name,
    c.source_description = $source_name,
    c.updated_at = $ts,
    c += $props
FOREACH (_ IN CASE WHEN $number IS NULL THEN [] ELSE [1] END |
  SET c.chunk_number = $number)
MERGE (c)-[:BELONGS_TO_SOURCE]->(src)
WITH c, src
OPTIONAL MATCH (prev:Chunk {chunk_number: $number - 1})-[:BELONGS_TO_SOURCE]->(src)
FOREACH (p IN CASE WHEN $number IS NULL OR $number <= 1 OR prev IS NULL THEN [] ELSE [prev] END |
  MERGE (p)-[:NEXT_CHUNK]->(c))
RETURN c.uuid AS uuid`

const upsertProductQuery = `
MERGE (p:Product {uuid: $uuid})
ON CREATE SET p.created_at = $ts
SET p.name = $name,
    p.content = $content,
    p.price = coalesce($price, p.price),
    p.sku = coalesce($sku, p.sku),
    p.category = coalesce($category, p.category),
    p.updated_at = $ts,
    p += $props
RETURN p.uuid AS uuid`

const linkProductToSourceQuery = `
MATCH (p:Product {uuid: $product_uuid})
MATCH (s:Source {uuid: $source_uuid})
MERGE (p)-[r:BELONGS_TO_SOURCE]->(s)
ON CREATE SET r.uuid = $rel_uuid, r.created_at = $ts
RETURN r.uuid AS uuid`

// Mention links carry their own identity and the evidencing sentence.
const linkChunkToEntityQuery = `
MATCH (c:Chunk {uuid: $chunk_uuid})
MATCH (e:Entity {uuid: $target_uuid})
MERGE (c)-[r:MENTIONS]->(e)
ON CREATE SET r.uuid = $rel_uuid, r.created_at = $ts
SET r.last_seen_at = $ts,
    r.fact_sentence = coalesce($fact_sentence, r.fact_sentence)
RETURN r.uuid AS uuid`

const linkChunkToProductQuery = `
MATCH (c:Chunk {uuid: $chunk_uuid})
MATCH (p:Product {uuid: $target_uuid})
MERGE (c)-[r:MENTIONS]->(p)
ON CREATE SET r.uuid = $rel_uuid, r.created_at = $ts
SET r.last_seen_at = $ts,
    r.fact_sentence = coalesce($fact_sentence, r.fact_sentence)
RETURN r.uuid AS uuid`

const mergeOrCreateEntityQuery = `
MERGE (e:Entity {normalized_name: $normalized_name, label: $label})
ON CREATE SET e.uuid = $uuid, e.name = $name, e.created_at = $ts
SET e.updated_at = $ts
RETURN e.uuid AS uuid,
       e.name AS name,
       e.label AS label,
       e.created_at = $ts AS was_created`

const updateEntityNameQuery = `
MATCH (e:Entity {uuid: $uuid})
SET e.name = $name, e.updated_at = $ts
RETURN e.uuid AS uuid`

const upsertRelationshipQuery = `
MATCH (a:Entity|Product {uuid: $src_uuid})
MATCH (b:Entity|Product {uuid: $dst_uuid})
MERGE (a)-[r:RELATES_TO {relation_label: $relation_label, fact_sentence: $fact_sentence}]->(b)
ON CREATE SET r.uuid = $rel_uuid, r.created_at = $ts, r.source_chunk_uuid = $chunk_uuid
SET r.last_seen_at = $ts
RETURN r.uuid AS uuid`

const setNodeEmbeddingQuery = `
MATCH (n {uuid: $uuid})
CALL db.create.setNodeVectorProperty(n, $property, $vector)
RETURN count(n) AS updated`

const setRelationshipEmbeddingQuery = `
MATCH ()-[r {uuid: $uuid}]->()
CALL db.create.setRelationshipVectorProperty(r, $property, $vector)
RETURN count(r) AS updated`

// Relationship copies use CREATE, not MERGE, so parallel facts between the
// same pair keep their multiplicity.
const promoteEntityToProductQuery = `
MATCH (e:Entity {uuid: $entity_uuid})
CREATE (p:Product {uuid: $product_uuid})
SET p.name = $name,
    p.content = $content,
    p.price = $price,
    p.sku = $sku,
    p.category = $category,
    p.created_at = $ts,
    p.updated_at = $ts,
    p += $props
WITH e, p
CALL {
  WITH e, p
  MATCH (src)-[r:MENTIONS]->(e)
  CREATE (src)-[nr:MENTIONS]->(p)
  SET nr = properties(r)
  DELETE r
  RETURN count(*) AS mentions_moved
}
CALL {
  WITH e, p
  MATCH (src)-[r:RELATES_TO]->(e)
  CREATE (src)-[nr:RELATES_TO]->(p)
  SET nr = properties(r)
  DELETE r
  RETURN count(*) AS incoming_moved
}
CALL {
  WITH e, p
  MATCH (e)-[r:RELATES_TO]->(dst)
  CREATE (p)-[nr:RELATES_TO]->(dst)
  SET nr = properties(r)
  DELETE r
  RETURN count(*) AS outgoing_moved
}
DETACH DELETE e
RETURN p.uuid AS uuid, mentions_moved, incoming_moved, outgoing_moved`

const deleteOrphanedEntitiesQuery = `
MATCH (e:Entity)
WHERE NOT EXISTS { MATCH ()-[:MENTIONS]->(e) }
  AND NOT EXISTS { MATCH (e)-[:RELATES_TO]-() }
DETACH DELETE e
RETURN count(e) AS deleted`

// --- source deletion cascade (run inside one WriteTx) ---

const cascadeGatherQuery = `
MATCH (s:Source {uuid: $uuid})
OPTIONAL MATCH (c:Chunk)-[:BELONGS_TO_SOURCE]->(s)
OPTIONAL MATCH (p:Product)-[:BELONGS_TO_SOURCE]->(s)
RETURN collect(DISTINCT c.uuid) AS chunk_uuids,
       collect(DISTINCT p.uuid) AS product_uuids`

const cascadeNeighborEntitiesQuery = `
MATCH (origin) WHERE origin.uuid IN $origins
MATCH (origin)-[:MENTIONS|RELATES_TO]-(e:Entity)
RETURN collect(DISTINCT e.uuid) AS entity_uuids`

const cascadeDeleteRelatesToQuery = `
MATCH ()-[r:RELATES_TO]->()
WHERE r.source_chunk_uuid IN $chunk_uuids
DELETE r
RETURN count(r) AS deleted`

const cascadeDeleteMentionsQuery = `
MATCH (o)-[r:MENTIONS]->()
WHERE o.uuid IN $origins
DELETE r
RETURN count(r) AS deleted`

const cascadeDeleteOrphanCandidatesQuery = `
MATCH (e:Entity)
WHERE e.uuid IN $candidates
  AND NOT EXISTS { MATCH ()-[:MENTIONS]->(e) }
  AND NOT EXISTS { MATCH (e)-[:RELATES_TO]-() }
DETACH DELETE e
RETURN count(e) AS deleted`

const cascadeReferencedProductsQuery = `
MATCH (p:Product)
WHERE p.uuid IN $product_uuids
  AND (EXISTS { MATCH ()-[:MENTIONS]->(p) } OR EXISTS { MATCH (p)-[:RELATES_TO]-() })
RETURN p.uuid AS uuid, p.name AS name, p.category AS category`

const cascadeDemoteProductQuery = `
MATCH (p:Product {uuid: $product_uuid})
MERGE (e:Entity {normalized_name: $normalized_name, label: $label})
ON CREATE SET e.uuid = $entity_uuid, e.name = $name, e.created_at = $ts
SET e.updated_at = $ts
WITH p, e
CALL {
  WITH p, e
  MATCH (src)-[r:MENTIONS]->(p)
  CREATE (src)-[nr:MENTIONS]->(e)
  SET nr = properties(r)
  DELETE r
  RETURN count(*) AS mentions_moved
}
CALL {
  WITH p, e
  MATCH (src)-[r:RELATES_TO]->(p)
  CREATE (src)-[nr:RELATES_TO]->(e)
  SET nr = properties(r)
  DELETE r
  RETURN count(*) AS incoming_moved
}
CALL {
  WITH p, e
  MATCH (p)-[r:RELATES_TO]->(dst)
  CREATE (e)-[nr:RELATES_TO]->(dst)
  SET nr = properties(r)
  DELETE r
  RETURN count(*) AS outgoing_moved
}
DETACH DELETE p
RETURN e.uuid AS entity_uuid, mentions_moved + incoming_moved + outgoing_moved AS moved`

const cascadeDeleteProductsQuery = `
MATCH (p:Product)
WHERE p.uuid IN $product_uuids
DETACH DELETE p
RETURN count(p) AS deleted`

const cascadeDeleteChunksQuery = `
MATCH (c:Chunk)
WHERE c.uuid IN $chunk_uuids
DETACH DELETE c
RETURN count(c) AS deleted`

const cascadeDeleteSourceQuery = `
MATCH (s:Source {uuid: $uuid})
DETACH DELETE s
RETURN count(s) AS deleted`

// --- retrieval support ---

const vectorCandidatesQuery = `
CALL db.index.vector.queryNodes($index, $k, $embedding) YIELD node, score
WHERE score >= $min_score
RETURN node.uuid AS uuid,
       node.name AS name,
       coalesce(node.label, head(labels(node))) AS label,
       head(labels(node)) AS node_type,
       score
ORDER BY score DESC`

const mentionFactsQuery = `
MATCH ()-[r:MENTIONS]->(n {uuid: $uuid})
WHERE r.fact_sentence IS NOT NULL
RETURN r.fact_sentence AS fact
LIMIT $limit`
