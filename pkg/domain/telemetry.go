package domain

import "time"

// EventVersion identifies the telemetry schema carried by emitted events.
const EventVersion = "1.0.0"

// Event type names as they appear on the wire.
const (
	EventTypeDecision = "gateway.decision.made"
	EventTypeError    = "gateway.error"
)

// DecisionEvent is the structured record emitted once per completed decision.
// SubjectHash is a one-way hash of the subject identifier; the raw subject and
// the raw token never appear in telemetry.
type DecisionEvent struct {
	Version     string      `json:"version"`
	EventType   string      `json:"event_type"`
	RequestID   string      `json:"request_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Decision    Decision    `json:"decision"`
	Reason      *DenyReason `json:"reason,omitempty"`
	Score       *int        `json:"score,omitempty"`
	SubjectHash string      `json:"subject_hash,omitempty"`
	LatencyMs   int64       `json:"latency_ms"`
}

// ErrorEvent is the structured record emitted for an internal fault.
type ErrorEvent struct {
	Version      string    `json:"version"`
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
}
