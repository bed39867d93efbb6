package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// HashSubject returns the one-way hash under which a subject identifier may
// appear in telemetry. The clear-text subject never leaves the pipeline.
func HashSubject(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:])
}

// Emitter records decision and error events as structured log records and
// feeds the metrics collectors. Emission never fails the caller: a decision
// that cannot be recorded is still a decision.
type Emitter struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewEmitter creates an emitter writing through the given logger and metrics.
// A nil metrics value disables metric recording.
func NewEmitter(logger *slog.Logger, metrics *Metrics) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger, metrics: metrics}
}

// EmitDecision records one completed decision.
func (e *Emitter) EmitDecision(ctx context.Context, event domain.DecisionEvent) {
	attrs := []slog.Attr{
		slog.String("version", event.Version),
		slog.String("event_type", event.EventType),
		slog.String("request_id", event.RequestID),
		slog.Time("timestamp", event.Timestamp),
		slog.String("decision", string(event.Decision)),
		slog.Int64("latency_ms", event.LatencyMs),
	}
	if event.Reason != nil {
		attrs = append(attrs, slog.String("reason", string(*event.Reason)))
	}
	if event.Score != nil {
		attrs = append(attrs, slog.Int("score", *event.Score))
	}
	if event.SubjectHash != "" {
		attrs = append(attrs, slog.String("subject_hash", event.SubjectHash))
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "Decision made", attrs...)

	if e.metrics != nil {
		e.metrics.RecordDecision(event)
	}
	RecordDecisionMetrics(ctx, event)
}

// EmitError records one internal fault.
func (e *Emitter) EmitError(ctx context.Context, event domain.ErrorEvent) {
	e.logger.LogAttrs(ctx, slog.LevelError, "Gateway error",
		slog.String("version", event.Version),
		slog.String("event_type", event.EventType),
		slog.String("request_id", event.RequestID),
		slog.Time("timestamp", event.Timestamp),
		slog.String("error_type", event.ErrorType),
		slog.String("error_message", event.ErrorMessage),
	)

	if e.metrics != nil {
		e.metrics.RecordError(event.ErrorType)
	}
}
