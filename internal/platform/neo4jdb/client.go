package neo4jdb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dbczarnota/graphforrag/internal/platform/envutil"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
)

// Client wraps the shared Neo4j driver. Sessions are opened per call and
// never shared across goroutines.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string

	queryTimeout time.Duration
	maxRetries   int
	log          *logger.Logger
}

func New(uri, user, password, database string, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("neo4jdb: uri required")
	}
	if strings.TrimSpace(user) == "" {
		user = "neo4j"
	}

	connectTimeout := time.Duration(envutil.Int("NEO4J_TIMEOUT_SECONDS", 10)) * time.Second
	maxPool := envutil.Int("NEO4J_MAX_POOL_SIZE", 50)

	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = connectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:       driver,
		Database:     strings.TrimSpace(database),
		queryTimeout: time.Duration(envutil.Int("NEO4J_QUERY_TIMEOUT_SECONDS", 60)) * time.Second,
		maxRetries:   envutil.Int("NEO4J_MAX_RETRIES", 3),
		log:          log.With("client", "Neo4jDB"),
	}, nil
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, fmt.Errorf("neo4jdb: NEO4J_URI required")
	}
	return New(
		uri,
		os.Getenv("NEO4J_USER"),
		os.Getenv("NEO4J_PASSWORD"),
		os.Getenv("NEO4J_DATABASE"),
		log,
	)
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

// Read runs a single read query and materializes the rows.
func (c *Client) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runAndCollect(ctx, tx, cypher, params)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: read: %w", err)
	}
	return rows.([]map[string]any), nil
}

// Write runs a single write query and materializes the rows. Transient
// failures (lost connection, leader switch, deadlock) are retried with
// backoff on top of the driver's own transaction retry.
func (c *Client) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rows, err := c.writeOnce(ctx, cypher, params)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !neo4j.IsRetryable(err) || attempt == c.maxRetries {
			break
		}
		c.log.Warn("write retrying", "attempt", attempt+1, "error", err.Error())
		time.Sleep(backoff)
		backoff *= 2
	}
	return nil, fmt.Errorf("neo4jdb: write: %w", lastErr)
}

func (c *Client) writeOnce(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	rows, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runAndCollect(ctx, tx, cypher, params)
	})
	if err != nil {
		return nil, err
	}
	return rows.([]map[string]any), nil
}

// Tx is the statement surface visible inside WriteTx.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

type managedTx struct {
	tx neo4j.ManagedTransaction
}

func (m managedTx) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return runAndCollect(ctx, m.tx, cypher, params)
}

// WriteTx runs fn inside one managed write transaction. Any error from fn
// rolls the whole transaction back.
func (c *Client) WriteTx(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(managedTx{tx: tx})
	})
	if err != nil {
		return fmt.Errorf("neo4jdb: write tx: %w", err)
	}
	return nil
}

func runAndCollect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]map[string]any, error) {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for _, key := range rec.Keys {
			v, _ := rec.Get(key)
			row[key] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
