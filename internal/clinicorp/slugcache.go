package clinicorp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// SlugCache memoizes slug-to-numeric code_link resolutions in redis so
// repeated calendar lookups for the same clinic skip the secondary upstream
// call. Nil-safe: a nil cache misses every read and drops every write.
type SlugCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewSlugCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *SlugCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlugCache{rdb: rdb, ttl: ttl, logger: logger}
}

func slugCacheKey(subscriberID, slug string) string {
	return fmt.Sprintf("clinicorp:codelink:%s:%s", subscriberID, slug)
}

func (c *SlugCache) Get(ctx context.Context, subscriberID, slug string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, slugCacheKey(subscriberID, slug)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("slug cache read failed", "error", err)
		}
		return "", false
	}
	return val, val != ""
}

func (c *SlugCache) Set(ctx context.Context, subscriberID, slug, numeric string) {
	if c == nil || numeric == "" {
		return
	}
	if err := c.rdb.Set(ctx, slugCacheKey(subscriberID, slug), numeric, c.ttl).Err(); err != nil {
		c.logger.Warn("slug cache write failed", "error", err)
	}
}
