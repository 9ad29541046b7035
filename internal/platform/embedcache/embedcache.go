// Package embedcache caches embedding vectors in Redis, keyed by a hash of
// the input text and model. It wraps any Embedder; cache failures degrade
// to the underlying provider.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dbczarnota/graphforrag/internal/platform/envutil"
	"github.com/dbczarnota/graphforrag/internal/platform/logger"
	"github.com/dbczarnota/graphforrag/usage"
)

// Embedder matches the provider surface being wrapped.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error)
}

type Cache struct {
	inner Embedder
	rdb   *redis.Client
	model string // part of the key so model changes never serve stale vectors
	ttl   time.Duration
	log   *logger.Logger
}

// New wraps inner with a Redis cache at addr. model namespaces the keys.
func New(inner Embedder, addr, password, model string, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       envutil.Int("REDIS_DB", 0),
	})
	ttl := time.Duration(envutil.Int("EMBED_CACHE_TTL_SECONDS", 86400)) * time.Second
	return &Cache{inner: inner, rdb: rdb, model: model, ttl: ttl, log: log.With("component", "EmbedCache")}
}

// NewFromEnv returns the wrapped embedder when REDIS_ADDR is set, or inner
// unchanged when it is not.
func NewFromEnv(inner Embedder, model string, log *logger.Logger) Embedder {
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return inner
	}
	return New(inner, addr, envutil.Str("REDIS_PASSWORD", ""), model, log)
}

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "gfr:embed:" + hex.EncodeToString(sum[:])
}

// Embed serves cached vectors where possible and calls the inner embedder
// only for the misses. Redis errors are logged and treated as misses.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, usage.Embedding, error) {
	var use usage.Embedding
	if len(texts) == 0 {
		return [][]float32{}, use, nil
	}

	out := make([][]float32, len(texts))
	missIdx := []int{}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("cache read failed, passing through", "error", err.Error())
		cached = make([]any, len(texts))
	}
	for i := range texts {
		raw, _ := cached[i].(string)
		if raw == "" {
			missIdx = append(missIdx, i)
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}
	if len(missIdx) == 0 {
		return out, use, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	vecs, innerUse, err := c.inner.Embed(ctx, missTexts)
	use.Add(innerUse)
	if err != nil {
		return nil, use, err
	}
	if len(vecs) != len(missIdx) {
		return nil, use, fmt.Errorf("embedcache: inner embedder returned %d vectors for %d inputs", len(vecs), len(missIdx))
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		encoded, err := json.Marshal(vecs[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], encoded, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("cache write failed, continuing", "error", err.Error())
	}
	return out, use, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
