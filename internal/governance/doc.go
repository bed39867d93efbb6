// Package governance coordinates runtime safety controls for the gateway:
// admission rate limiting for the decision pipeline and circuit breaking for
// the trust score backend.
//
// The limiter is the pipeline's first gate. Its denial is an expected outcome
// the decision engine maps to RATE_LIMIT_EXCEEDED, never an error, and every
// refill-then-deduct step is atomic per scope so concurrent requests cannot
// overdraw the budget.
package governance
