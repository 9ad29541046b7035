// Package graph owns the store contract, the Cypher catalog, and the node,
// schema and deletion managers built on top of it.
package graph

import (
	"context"
	"time"
)

// Clock supplies timestamps so tests can pin them.
type Clock func() time.Time

// Tx is the statement surface available inside a single write transaction.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Executor is the opaque transactional executor of parameterized graph
// queries. neo4jdb.Client implements it; tests use fakes.
type Executor interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	WriteTx(ctx context.Context, fn func(tx Tx) error) error
}
