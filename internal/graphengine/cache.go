package graphengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedPathLookup wraps an Engine with a Redis read-through cache in front
// of QueryFileByPath: the same file path suffix recurs across many
// sub-patches within a batch, and the underlying range query is pure
// (same suffix, same CPG snapshot -> same ids), so a cache miss is always
// safe to fall through to the wrapped Engine.
type CachedPathLookup struct {
	Engine
	Redis *redis.Client
	TTL   time.Duration
}

// NewCachedPathLookup wraps engine with a cache at addr. ttl defaults to 5
// minutes when <= 0.
func NewCachedPathLookup(engine Engine, addr string, ttl time.Duration) *CachedPathLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedPathLookup{
		Engine: engine,
		Redis:  redis.NewClient(&redis.Options{Addr: addr}),
		TTL:    ttl,
	}
}

func cacheKey(suffix string) string {
	return "patchlink:fileByPath:" + suffix
}

func (c *CachedPathLookup) QueryFileByPath(ctx context.Context, suffix string) ([]string, error) {
	key := cacheKey(suffix)

	if raw, err := c.Redis.Get(ctx, key).Result(); err == nil {
		var ids []string
		if jsonErr := json.Unmarshal([]byte(raw), &ids); jsonErr == nil {
			return ids, nil
		}
		log.Printf("[GraphEngine] cache entry for %q unparseable, falling through", suffix)
	} else if err != redis.Nil {
		log.Printf("[GraphEngine] cache read failed for %q, falling through: %v", suffix, err)
	}

	ids, err := c.Engine.QueryFileByPath(ctx, suffix)
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(ids); jsonErr == nil {
		if setErr := c.Redis.Set(ctx, key, encoded, c.TTL).Err(); setErr != nil {
			log.Printf("[GraphEngine] cache write failed for %q: %v", suffix, setErr)
		}
	}
	return ids, nil
}

// Invalidate drops the cached entry for suffix, for callers that mutate the
// CPG out of band and know a previous lookup is now stale.
func (c *CachedPathLookup) Invalidate(ctx context.Context, suffix string) error {
	if err := c.Redis.Del(ctx, cacheKey(suffix)).Err(); err != nil {
		return fmt.Errorf("graphengine: invalidate %q: %w", suffix, err)
	}
	return nil
}
