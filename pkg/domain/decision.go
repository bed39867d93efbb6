package domain

import "time"

// Decision is the enforcement verdict produced by the decision engine.
type Decision string

const (
	DecisionAllow   Decision = "ALLOW"
	DecisionMonitor Decision = "MONITOR"
	DecisionDeny    Decision = "DENY"
)

// DenyReason explains why a request was denied. The set is closed: the engine
// is the only place that maps component failures onto these values.
type DenyReason string

const (
	ReasonMalformedToken    DenyReason = "MALFORMED_TOKEN"
	ReasonInvalidSignature  DenyReason = "INVALID_SIGNATURE"
	ReasonExpiredToken      DenyReason = "EXPIRED_TOKEN"
	ReasonNotYetValid       DenyReason = "NOT_YET_VALID"
	ReasonReplayDetected    DenyReason = "REPLAY_DETECTED"
	ReasonRateLimitExceeded DenyReason = "RATE_LIMIT_EXCEEDED"
	ReasonLowScore          DenyReason = "LOW_SCORE"
	ReasonInternalError     DenyReason = "INTERNAL_ERROR"
)

// DecisionRecord is the immutable output of one pipeline evaluation.
//
// Reason is nil when the decision is ALLOW. Score is nil when the pipeline
// exited before a score was resolved (for example a malformed token never
// reaches the score source); it is set to 0 when score resolution itself
// failed, so that a forced DENY still reports the value the engine acted on.
type DecisionRecord struct {
	Decision  Decision    `json:"decision"`
	Reason    *DenyReason `json:"reason"`
	Score     *int        `json:"score"`
	RequestID string      `json:"requestId"`
	Timestamp time.Time   `json:"timestamp"`
}

// ValidateRequest is the inbound payload for a validation call.
type ValidateRequest struct {
	Token     string `json:"token"`
	RequestID string `json:"requestId,omitempty"`
}

// Thresholds holds the score boundaries used to classify a resolved score.
// Invariant: 0 <= Monitor <= Allow <= 100. Validated at configuration load.
type Thresholds struct {
	Allow   int
	Monitor int
}

// Classify maps a trust score onto a verdict. Scores at or above Allow pass,
// scores at or above Monitor are let through under observation, everything
// below Monitor is denied.
func (t Thresholds) Classify(score int) Decision {
	switch {
	case score >= t.Allow:
		return DecisionAllow
	case score >= t.Monitor:
		return DecisionMonitor
	default:
		return DecisionDeny
	}
}
