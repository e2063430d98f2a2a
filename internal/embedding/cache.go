package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/pkg/logx"
)

const (
	cacheKeyPrefix = "embed:"
	// DefaultCacheTTL bounds how long a cached vector is reused.
	DefaultCacheTTL = 24 * time.Hour
)

// Cache memoizes an Embedder in Redis, keyed by a hash of the input text.
// Redis errors are logged and bypass the cache.
type Cache struct {
	next   Embedder
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCache wraps next with a Redis-backed cache.
func NewCache(next Embedder, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{next: next, client: client, ttl: ttl, log: logx.Component("embedding")}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text, computing and storing it on a miss.
func (c *Cache) Embed(ctx context.Context, text string) ([]float64, error) {
	key := cacheKey(text)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float64
		if jsonErr := json.Unmarshal(raw, &vec); jsonErr == nil && len(vec) > 0 {
			return vec, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding corrupt cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(vec)
	if err == nil {
		if setErr := c.client.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.log.Warn().Err(setErr).Str("key", key).Msg("cache write failed")
		}
	}
	return vec, nil
}
