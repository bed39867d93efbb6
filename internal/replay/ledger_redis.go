package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// RedisLedger is a replay guard for multi-instance deployments. SET NX with a
// per-key TTL gives the same atomic check-then-insert the in-memory ledger
// provides, shared across gateway instances.
//
// Any Redis failure is reported as a replay: an unreachable ledger must never
// let a token be accepted twice.
type RedisLedger struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisLedger creates a ledger backed by the given Redis client.
func NewRedisLedger(client *redis.Client, logger *slog.Logger) *RedisLedger {
	return &RedisLedger{client: client, logger: logger}
}

// CheckAndRecord records tokenID with a TTL matching its remaining validity.
// The key is written only if absent, so a replay never extends the entry.
func (l *RedisLedger) CheckAndRecord(ctx context.Context, tokenID string, expiresAt time.Time) (domain.ReplayOutcome, error) {
	if tokenID == "" || len(tokenID) > maxTokenIDLength {
		return domain.ReplayOutcomeReplay, domain.ErrMalformedToken
	}

	ttl := time.Until(expiresAt)
	if ttl < minRetention {
		ttl = minRetention
	}

	stored, err := l.client.SetNX(ctx, "replay:"+tokenID, 1, ttl).Result()
	if err != nil {
		l.logger.Error("Redis replay check failed, treating as replay", "error", err)
		return domain.ReplayOutcomeReplay, err
	}
	if !stored {
		return domain.ReplayOutcomeReplay, nil
	}
	return domain.ReplayOutcomeFresh, nil
}

// Size is not tracked for the Redis ledger; counting keys per request would
// be a full keyspace scan.
func (l *RedisLedger) Size() int {
	return -1
}
