package domain

import (
	"context"
	"time"
)

// TokenVerifier validates the structural and cryptographic correctness of a
// presented token and extracts its claims. Implementations must be pure
// functions of their input and the supplied clock reading: verifying the same
// token twice with the same now yields identical results.
type TokenVerifier interface {
	Verify(raw string, now time.Time) (*Claims, error)
}

// AdmissionLimiter enforces a request-rate budget per scope. A false return is
// an expected outcome, not an error; the engine maps it to
// RATE_LIMIT_EXCEEDED. Implementations must make refill-then-deduct atomic per
// scope so that two concurrent callers never both succeed on the last token.
type AdmissionLimiter interface {
	TryAcquire(ctx context.Context, scope string) bool
}

// ReplayOutcome is the result of a replay-guard check.
type ReplayOutcome int

const (
	// ReplayOutcomeFresh means the token identifier has not been seen within
	// its validity window and is now recorded.
	ReplayOutcomeFresh ReplayOutcome = iota
	// ReplayOutcomeReplay means the identifier was already recorded and has
	// not yet expired. Storage failures also surface as this outcome.
	ReplayOutcomeReplay
)

// ReplayGuard detects reuse of a token identifier within its validity window.
// CheckAndRecord is an atomic check-then-insert: for two concurrent calls with
// the same unexpired identifier, at most one observes Fresh. A replay never
// refreshes the recorded expiry.
type ReplayGuard interface {
	CheckAndRecord(ctx context.Context, tokenID string, expiresAt time.Time) (ReplayOutcome, error)

	// Size reports the current number of live ledger entries, for health
	// reporting. Implementations that cannot count cheaply may return -1.
	Size() int
}

// ScoreSource resolves the trust score for a subject from a
// receiver-controlled system. Implementations must fail closed: on any
// retrieval failure they return 0 together with the error, and the engine
// classifies that 0 as a denial. The score never originates from token claims.
type ScoreSource interface {
	Resolve(ctx context.Context, subject string) (int, error)
}

// EventEmitter records the immutable outcome of each decision and each
// internal error. Emission failures must never influence the decision.
type EventEmitter interface {
	EmitDecision(ctx context.Context, event DecisionEvent)
	EmitError(ctx context.Context, event ErrorEvent)
}
