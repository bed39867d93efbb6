package governance

import (
	"context"
	"sync"
	"time"
)

// GlobalScope is the scope used when the gateway enforces one shared budget
// across all callers.
const GlobalScope = "global"

// RateLimiterConfig defines the bucket parameters for one scope.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// RateLimiter implements token bucket admission limiting per scope. Buckets
// are created lazily on first acquisition for a scope; every scope gets an
// independent bucket so unrelated keys never serialize on one lock.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	config  RateLimiterConfig
}

// NewRateLimiter creates a rate limiter with the provided configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*tokenBucket),
	}
	rl.Configure(config)
	return rl
}

// Configure updates the limiter with new parameters. Existing buckets keep
// their accumulated tokens, capped at the new capacity, so a reload never
// grants a free burst.
func (rl *RateLimiter) Configure(config RateLimiterConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.config = config
	for _, bucket := range rl.buckets {
		bucket.configure(config.RequestsPerMinute, config.BurstSize)
	}
}

// TryAcquire attempts to take one token for the given scope. A cancelled
// context counts as a denial: the caller is gone and admitting work for it
// would only consume budget.
func (rl *RateLimiter) TryAcquire(ctx context.Context, scope string) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	rl.mu.RLock()
	bucket, exists := rl.buckets[scope]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		bucket, exists = rl.buckets[scope]
		if !exists {
			bucket = newTokenBucket(rl.config.RequestsPerMinute, rl.config.BurstSize)
			rl.buckets[scope] = bucket
		}
		rl.mu.Unlock()
	}

	return bucket.take()
}

// Stats returns current bucket state for all scopes.
func (rl *RateLimiter) Stats() map[string]RateLimitStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	stats := make(map[string]RateLimitStats, len(rl.buckets))
	for scope, bucket := range rl.buckets {
		stats[scope] = bucket.stats()
	}
	return stats
}

// RateLimitStats exposes current state of a rate limit bucket.
type RateLimitStats struct {
	RequestsPerMinute int     `json:"requestsPerMinute"`
	BurstSize         int     `json:"burstSize"`
	Available         float64 `json:"available"`
	LastRefillTime    string  `json:"lastRefillTime"`
}

// tokenBucket implements a token bucket algorithm for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64   // tokens per second
	capacity   float64   // maximum burst size
	tokens     float64   // current available tokens
	lastRefill time.Time // last time tokens were refilled
}

// newTokenBucket creates a token bucket with the specified per-minute rate and
// capacity. The bucket starts full.
func newTokenBucket(rpm, burstSize int) *tokenBucket {
	if rpm <= 0 {
		rpm = 100
	}
	if burstSize <= 0 {
		burstSize = rpm
	}

	return &tokenBucket{
		rate:       float64(rpm) / 60.0,
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		lastRefill: time.Now(),
	}
}

// configure updates the bucket's rate and capacity.
func (tb *tokenBucket) configure(rpm, burstSize int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if rpm <= 0 {
		rpm = 100
	}
	if burstSize <= 0 {
		burstSize = rpm
	}

	tb.rate = float64(rpm) / 60.0
	tb.capacity = float64(burstSize)

	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// take refills then attempts to consume one token, as a single critical
// section. Returns true if a token was available.
func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}

	return false
}

// refill adds tokens to the bucket based on elapsed time, capped at capacity.
// Refill is monotonic: a clock that appears to run backwards adds nothing.
func (tb *tokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
	}
	tb.lastRefill = now
}

// stats returns current statistics for this bucket.
func (tb *tokenBucket) stats() RateLimitStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	return RateLimitStats{
		RequestsPerMinute: int(tb.rate * 60.0),
		BurstSize:         int(tb.capacity),
		Available:         tb.tokens,
		LastRefillTime:    tb.lastRefill.Format(time.RFC3339),
	}
}
