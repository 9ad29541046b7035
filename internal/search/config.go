// Package search implements hybrid retrieval over the graph: per-kind
// keyword+vector queries, RRF fusion, multi-query expansion, and
// LLM-generated Cypher.
package search

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultRRFK          = 60
	DefaultMethodLimit   = 10
	DefaultKindLimit     = 10
	DefaultOverallLimit  = 20
	DefaultMinScore      = 0.7
	DefaultQueryCount    = 3
	defaultSnippetRunes  = 300
	defaultFanOutWorkers = 8
)

// MethodConfig controls one retrieval method (keyword or vector) within a
// node kind.
type MethodConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Limit    int     `yaml:"limit"`     // per-method fetch limit before fusion
	MinScore float64 `yaml:"min_score"` // vector only; keyword ignores it
}

// KindConfig controls retrieval for one node kind.
type KindConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Keyword    MethodConfig `yaml:"keyword"`
	Vector     MethodConfig `yaml:"vector"`
	Limit      int          `yaml:"limit"`       // results kept after fusion
	MinResults int          `yaml:"min_results"` // keep at least this many even past Limit
	RRFK       int          `yaml:"rrf_k"`
	UseRRF     bool         `yaml:"use_rrf"` // false = dedup by best score instead
}

// MultiQueryConfig controls LLM query expansion.
type MultiQueryConfig struct {
	Enabled         bool `yaml:"enabled"`
	QueryCount      int  `yaml:"query_count"`
	IncludeOriginal bool `yaml:"include_original"`
}

// CypherConfig controls the LLM-to-Cypher channel.
type CypherConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the full search configuration tree.
type Config struct {
	Chunks        KindConfig       `yaml:"chunks"`
	Sources       KindConfig       `yaml:"sources"`
	Entities      KindConfig       `yaml:"entities"`
	Products      KindConfig       `yaml:"products"`
	Relationships KindConfig       `yaml:"relationships"`
	Mentions      KindConfig       `yaml:"mentions"`
	MultiQuery    MultiQueryConfig `yaml:"multi_query"`
	Cypher        CypherConfig     `yaml:"cypher"`
	OverallLimit  int              `yaml:"overall_limit"`
	SnippetRunes  int              `yaml:"snippet_runes"`
}

// DefaultConfig returns the configuration used when the caller passes none:
// chunk, entity and product search on, hybrid, RRF fusion.
func DefaultConfig() Config {
	cfg := Config{
		Chunks:   enabledKind(),
		Entities: enabledKind(),
		Products: enabledKind(),
		MultiQuery: MultiQueryConfig{
			Enabled:         false,
			QueryCount:      DefaultQueryCount,
			IncludeOriginal: true,
		},
		OverallLimit: DefaultOverallLimit,
		SnippetRunes: defaultSnippetRunes,
	}
	cfg.ApplyDefaults()
	return cfg
}

func enabledKind() KindConfig {
	return KindConfig{
		Enabled: true,
		Keyword: MethodConfig{Enabled: true},
		Vector:  MethodConfig{Enabled: true},
		UseRRF:  true,
	}
}

// ApplyDefaults fills zero values in place so a sparse YAML or literal
// config behaves sensibly.
func (c *Config) ApplyDefaults() {
	for _, k := range []*KindConfig{&c.Chunks, &c.Sources, &c.Entities, &c.Products, &c.Relationships, &c.Mentions} {
		k.applyDefaults()
	}
	if c.MultiQuery.QueryCount <= 0 {
		c.MultiQuery.QueryCount = DefaultQueryCount
	}
	if c.OverallLimit <= 0 {
		c.OverallLimit = DefaultOverallLimit
	}
	if c.SnippetRunes <= 0 {
		c.SnippetRunes = defaultSnippetRunes
	}
}

func (k *KindConfig) applyDefaults() {
	if k.Keyword.Limit <= 0 {
		k.Keyword.Limit = DefaultMethodLimit
	}
	if k.Vector.Limit <= 0 {
		k.Vector.Limit = DefaultMethodLimit
	}
	if k.Vector.MinScore <= 0 {
		k.Vector.MinScore = DefaultMinScore
	}
	if k.Limit <= 0 {
		k.Limit = DefaultKindLimit
	}
	if k.RRFK <= 0 {
		k.RRFK = DefaultRRFK
	}
}

// LoadConfigYAML parses a YAML document into a Config with defaults applied.
func LoadConfigYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("search: parse config YAML: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
