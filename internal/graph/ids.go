package graph

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Fixed namespaces so the same logical identity always hashes to the same
// uuid across processes and re-ingestions.
var (
	sourceNamespace  = uuid.MustParse("5fbb574c-9a1c-4d8a-9f83-387d3aaa6f21")
	entityNamespace  = uuid.MustParse("d3b0c4e2-7a61-4c55-8f0a-6f2f6f9f4b0d")
	chunkNamespace   = uuid.MustParse("1e6a9c3d-82f4-4f6b-b0c7-2a5d4e8f91a3")
	productNamespace = uuid.MustParse("8b4d2f70-3c1e-4a92-9e5f-6d0a7b3c8e14")
)

// SourceUUID derives the deterministic uuid of a Source from its name.
func SourceUUID(name string) string {
	return uuid.NewSHA1(sourceNamespace, []byte(strings.TrimSpace(name))).String()
}

// EntityUUID derives the deterministic uuid of an Entity from its identity
// key (normalized_name, label).
func EntityUUID(normalizedName, label string) string {
	return uuid.NewSHA1(entityNamespace, []byte(normalizedName+"|"+label)).String()
}

// ChunkUUID derives the deterministic uuid of a Chunk from its source and
// position, so re-ingesting a source updates chunks in place instead of
// duplicating them.
func ChunkUUID(sourceUUID string, number int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(sourceUUID+"|"+strconv.Itoa(number))).String()
}

// ProductUUID derives the deterministic uuid of a Product from its
// normalized canonical name.
func ProductUUID(name string) string {
	return uuid.NewSHA1(productNamespace, []byte(NormalizeName(name))).String()
}

// NormalizeName lowercases and whitespace-collapses an entity name. The
// result is half of the Entity identity key.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// NewUUID returns a random v4 uuid for relationships and ad-hoc nodes.
func NewUUID() string {
	return uuid.NewString()
}
