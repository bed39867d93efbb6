package domain

import "errors"

// Common domain errors
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrReplayDetected   = errors.New("token replay detected")
	ErrLedgerFull       = errors.New("replay ledger at capacity")
	ErrScoreUnavailable = errors.New("trust score unavailable")
	ErrConfigInvalid    = errors.New("invalid configuration")
)

// DenyReasonForError translates a verification error into its deny reason.
// Unrecognized errors collapse to MALFORMED_TOKEN rather than INTERNAL_ERROR:
// anything a verifier rejects is by definition a property of the presented
// token, and the most restrictive structural reason applies.
func DenyReasonForError(err error) DenyReason {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpiredToken
	case errors.Is(err, ErrTokenNotYetValid):
		return ReasonNotYetValid
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	default:
		return ReasonMalformedToken
	}
}

// ErrorResponse defines the standard JSON error model returned by the HTTP
// surface. It intentionally avoids exposing sensitive details while providing
// a stable machine-readable code.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
