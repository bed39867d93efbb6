package governance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript runs the token bucket refill-then-deduct atomically inside
// Redis, so concurrent gateway instances share one budget per scope.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = current unix timestamp (seconds, fractional)
// ARGV[4] = state TTL in seconds
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return allowed
`)

// RedisRateLimiter is a Redis-backed admission limiter for multi-instance
// deployments. Any Redis failure is a denial; an unreachable budget store must
// not become an unmetered gateway.
type RedisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.RWMutex
	config RateLimiterConfig
}

// NewRedisRateLimiter creates a limiter backed by the given Redis client.
func NewRedisRateLimiter(client *redis.Client, config RateLimiterConfig, logger *slog.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, logger: logger, config: config}
}

// Configure updates the limiter with new parameters. The shared bucket state
// lives in Redis; the next acquisition for each scope applies the new rate and
// capacity.
func (rl *RedisRateLimiter) Configure(config RateLimiterConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.config = config
}

// TryAcquire attempts to take one token for the given scope.
func (rl *RedisRateLimiter) TryAcquire(ctx context.Context, scope string) bool {
	rl.mu.RLock()
	config := rl.config
	rl.mu.RUnlock()

	rate := float64(config.RequestsPerMinute) / 60.0
	// State expires after the time a drained bucket needs to refill fully,
	// with a one-minute floor.
	ttl := int(float64(config.BurstSize)/rate) + 1
	if ttl < 60 {
		ttl = 60
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := rateLimitScript.Run(ctx, rl.client,
		[]string{"ratelimit:" + scope},
		rate, config.BurstSize, now, ttl,
	).Int64()
	if err != nil {
		rl.logger.Error("Redis rate limit check failed, denying", "scope", scope, "error", err)
		return false
	}

	return res == 1
}
