package score

import (
	"context"
	"errors"
	"fmt"

	"github.com/insightbridge/insightbridge/internal/governance"
	"github.com/insightbridge/insightbridge/pkg/domain"
)

// BreakerSource shields a backend source with a circuit breaker. While the
// circuit is open, resolutions fail fast as unavailable scores instead of
// piling timeouts onto a struggling backend. The downstream outcome is the
// same fail-closed denial either way.
type BreakerSource struct {
	inner   domain.ScoreSource
	breaker *governance.CircuitBreaker
}

// NewBreakerSource wraps inner with the given circuit breaker.
func NewBreakerSource(inner domain.ScoreSource, breaker *governance.CircuitBreaker) *BreakerSource {
	return &BreakerSource{inner: inner, breaker: breaker}
}

// Resolve executes the inner resolution under breaker protection.
func (b *BreakerSource) Resolve(ctx context.Context, subject string) (int, error) {
	var score int
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		score, innerErr = b.inner.Resolve(ctx, subject)
		return innerErr
	})
	if err != nil {
		if errors.Is(err, governance.ErrCircuitOpen) {
			return 0, fmt.Errorf("%w: %v", domain.ErrScoreUnavailable, err)
		}
		return 0, err
	}
	return score, nil
}
