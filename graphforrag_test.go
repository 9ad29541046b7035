package graphforrag

import (
	"testing"

	"github.com/dbczarnota/graphforrag/internal/graph"
)

func TestSourceUUID_IsTheGraphKey(t *testing.T) {
	// DeleteSource takes the uuid the cascade is keyed on; SourceUUID must
	// derive exactly that value from a source name.
	if SourceUUID("manual.pdf") != graph.SourceUUID("manual.pdf") {
		t.Fatalf("SourceUUID diverges from the stored source key")
	}
	if SourceUUID("manual.pdf") != SourceUUID("manual.pdf") {
		t.Fatalf("SourceUUID is not deterministic")
	}
	if SourceUUID("a") == SourceUUID("b") {
		t.Fatalf("distinct names collided")
	}
}
