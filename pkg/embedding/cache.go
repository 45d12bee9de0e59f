package embedding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"baria-go/pkg/hash"
	"baria-go/pkg/log"
)

// Cache stores vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// RedisCache keeps vectors as JSON strings in Redis.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Cached puts a Cache in front of an Embedder. Cache failures are logged
// and fall through to the wrapped embedder.
type Cached struct {
	next     Embedder
	cache    Cache
	model    string
	ttl      time.Duration
	onLookup func(hit bool)
}

// NewCached wraps next. onLookup may be nil.
func NewCached(next Embedder, cache Cache, model string, ttl time.Duration, onLookup func(hit bool)) *Cached {
	return &Cached{next: next, cache: cache, model: model, ttl: ttl, onLookup: onLookup}
}

func (c *Cached) Dimensions() int { return c.next.Dimensions() }

func (c *Cached) key(text string) string {
	return "baria:embedding:" + c.model + ":" + hash.Content(text)
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, t := range texts {
		vec, ok, err := c.cache.Get(ctx, c.key(t))
		if err != nil {
			log.Warnf("[EmbeddingCache] get failed, falling back to model: %v", err)
		}
		if ok && len(vec) == c.Dimensions() {
			out[i] = vec
		} else {
			missing = append(missing, t)
			missingAt = append(missingAt, i)
		}
		if c.onLookup != nil {
			c.onLookup(ok)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missingAt[j]] = vec
		if err := c.cache.Set(ctx, c.key(missing[j]), vec, c.ttl); err != nil {
			log.Warnf("[EmbeddingCache] set failed: %v", err)
		}
	}
	return out, nil
}
