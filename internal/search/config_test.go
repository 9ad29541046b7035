package search

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Chunks.Enabled || !cfg.Entities.Enabled || !cfg.Products.Enabled {
		t.Fatalf("default kinds not enabled: %+v", cfg)
	}
	if cfg.Sources.Enabled || cfg.Relationships.Enabled || cfg.Mentions.Enabled {
		t.Fatalf("unexpected kinds enabled by default")
	}
	if !cfg.Chunks.UseRRF || cfg.Chunks.RRFK != DefaultRRFK {
		t.Fatalf("chunk fusion defaults wrong: %+v", cfg.Chunks)
	}
	if cfg.Chunks.Vector.MinScore != DefaultMinScore {
		t.Fatalf("vector min score = %v", cfg.Chunks.Vector.MinScore)
	}
	if cfg.MultiQuery.Enabled {
		t.Fatalf("multi-query should be off by default")
	}
	if cfg.OverallLimit != DefaultOverallLimit {
		t.Fatalf("overall limit = %d", cfg.OverallLimit)
	}
}

func TestLoadConfigYAML_SparseDocGetsDefaults(t *testing.T) {
	cfg, err := LoadConfigYAML([]byte(`
chunks:
  enabled: true
  vector:
    enabled: true
    limit: 25
multi_query:
  enabled: true
  query_count: 5
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Chunks.Enabled {
		t.Fatalf("chunks not enabled")
	}
	if cfg.Chunks.Vector.Limit != 25 {
		t.Fatalf("explicit vector limit lost: %d", cfg.Chunks.Vector.Limit)
	}
	if cfg.Chunks.Keyword.Limit != DefaultMethodLimit {
		t.Fatalf("keyword limit not defaulted: %d", cfg.Chunks.Keyword.Limit)
	}
	if cfg.Chunks.RRFK != DefaultRRFK {
		t.Fatalf("rrf_k not defaulted: %d", cfg.Chunks.RRFK)
	}
	if cfg.MultiQuery.QueryCount != 5 {
		t.Fatalf("query_count = %d", cfg.MultiQuery.QueryCount)
	}
	if cfg.OverallLimit != DefaultOverallLimit {
		t.Fatalf("overall limit not defaulted: %d", cfg.OverallLimit)
	}
}

func TestLoadConfigYAML_Malformed(t *testing.T) {
	if _, err := LoadConfigYAML([]byte("chunks: [not a mapping")); err == nil {
		t.Fatalf("malformed YAML accepted")
	}
}
