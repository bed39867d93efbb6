package score

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// RedisCachedSource wraps another source with a Redis-backed TTL cache so
// multiple gateway instances share resolved scores. Cache failures are
// non-critical: a Redis error on read or write falls through to the inner
// source, because a broken cache must degrade to slower lookups, not to
// different decisions.
type RedisCachedSource struct {
	inner  domain.ScoreSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCachedSource wraps inner with a Redis cache holding entries for ttl.
func NewRedisCachedSource(inner domain.ScoreSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCachedSource {
	return &RedisCachedSource{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Resolve serves from Redis when fresh, otherwise consults the inner source
// and caches a successful result.
func (c *RedisCachedSource) Resolve(ctx context.Context, subject string) (int, error) {
	key := "score:" + subject

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if score, parseErr := strconv.Atoi(cached); parseErr == nil {
			return clamp(score), nil
		}
		// Unparseable cache entry; drop it and resolve fresh.
		_ = c.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		c.logger.Warn("Score cache read failed, resolving directly", "error", err)
	}

	score, err := c.inner.Resolve(ctx, subject)
	if err != nil {
		return 0, err
	}

	if setErr := c.client.Set(ctx, key, score, c.ttl).Err(); setErr != nil {
		c.logger.Warn("Score cache write failed", "error", setErr)
	}

	return score, nil
}
