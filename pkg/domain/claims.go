package domain

import "time"

// Claims holds the verified, trusted subset of a presented token.
//
// The struct is intentionally narrow. It has no field capable of carrying a
// score or any other reputation datum, which makes the trust boundary between
// attacker-supplied token content and receiver-controlled scoring structural
// rather than conventional: code holding a *Claims simply cannot read a score
// out of it.
type Claims struct {
	// Subject is the opaque identifier the token was issued for.
	Subject string

	// TokenID is the unique, unguessable identifier of this token instance,
	// used for replay detection.
	TokenID string

	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}
