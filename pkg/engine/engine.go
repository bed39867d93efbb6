package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/insightbridge/insightbridge/internal/governance"
	"github.com/insightbridge/insightbridge/pkg/domain"
	"github.com/insightbridge/insightbridge/pkg/policy"
	"github.com/insightbridge/insightbridge/pkg/telemetry"
)

// Deps holds the collaborators the engine composes. All fields except
// Classifier and Logger are required.
type Deps struct {
	Verifier domain.TokenVerifier
	Limiter  domain.AdmissionLimiter
	Replay   domain.ReplayGuard
	Scores   domain.ScoreSource
	Emitter  domain.EventEmitter

	// Classifier evaluates the score thresholds through the policy engine.
	// When nil, the engine falls back to the pure threshold comparison.
	Classifier *policy.Classifier

	Thresholds domain.Thresholds
	Logger     *slog.Logger

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine evaluates validation requests. Safe for concurrent use; it threads
// all per-request state through the call stack and shares only its injected
// collaborators.
type Engine struct {
	verifier   domain.TokenVerifier
	limiter    domain.AdmissionLimiter
	replay     domain.ReplayGuard
	scores     domain.ScoreSource
	emitter    domain.EventEmitter
	classifier *policy.Classifier
	logger     *slog.Logger
	now        func() time.Time

	thresholds atomic.Pointer[domain.Thresholds]
}

// New constructs an Engine from its dependencies.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		verifier:   deps.Verifier,
		limiter:    deps.Limiter,
		replay:     deps.Replay,
		scores:     deps.Scores,
		emitter:    deps.Emitter,
		classifier: deps.Classifier,
		logger:     logger,
		now:        now,
	}
	t := deps.Thresholds
	e.thresholds.Store(&t)
	return e
}

// SetThresholds swaps the score thresholds, used by configuration hot reload.
// In-flight requests keep the thresholds they started with.
func (e *Engine) SetThresholds(t domain.Thresholds) {
	e.thresholds.Store(&t)
}

// Thresholds returns the currently active thresholds.
func (e *Engine) Thresholds() domain.Thresholds {
	return *e.thresholds.Load()
}

// Decide runs the full pipeline for one request and always returns a
// completed record: any panic below the engine boundary is converted to
// DENY(INTERNAL_ERROR), never propagated and never defaulted to ALLOW.
func (e *Engine) Decide(ctx context.Context, rawToken, requestID string) (record domain.DecisionRecord) {
	start := e.now()

	var subject string
	var emitted bool
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Decision pipeline panic", "request_id", requestID, "panic", fmt.Sprint(r))
			// A completed record stays as produced: a panic during emission
			// must not rewrite the decision.
			if record.Decision == "" {
				record = e.deny(domain.ReasonInternalError, nil, requestID, start)
			}
			// The emitter itself may be what panicked; a second failure here
			// must not escape the engine boundary.
			defer func() { _ = recover() }()
			e.emitError(ctx, requestID, start, "panic", fmt.Sprint(r))
			if !emitted {
				emitted = true
				e.emit(ctx, record, subject, start)
			}
		}
	}()

	emitRecord := func(rec domain.DecisionRecord) {
		emitted = true
		e.emit(ctx, rec, subject, start)
	}

	// Cheapest, most deterministic gates run first so an attacker cannot
	// induce load on the score backend with garbage tokens.
	if !e.limiter.TryAcquire(ctx, governance.GlobalScope) {
		record = e.deny(domain.ReasonRateLimitExceeded, nil, requestID, start)
		emitRecord(record)
		return record
	}

	claims, err := e.verifier.Verify(rawToken, start)
	if err != nil {
		record = e.deny(domain.DenyReasonForError(err), nil, requestID, start)
		emitRecord(record)
		return record
	}
	subject = claims.Subject

	outcome, err := e.replay.CheckAndRecord(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		e.logger.Warn("Replay guard degraded", "request_id", requestID, "error", err)
	}
	if outcome != domain.ReplayOutcomeFresh {
		record = e.deny(domain.ReasonReplayDetected, nil, requestID, start)
		emitRecord(record)
		return record
	}

	score, err := e.scores.Resolve(ctx, claims.Subject)
	if err != nil {
		// The single most important fail-closed contract: an unresolvable
		// score is a zero score, and zero is a denial.
		score = 0
		record = e.deny(domain.ReasonLowScore, &score, requestID, start)
		emitRecord(record)
		return record
	}

	decision, err := e.classify(ctx, score)
	if err != nil {
		e.logger.Error("Score classification failed", "request_id", requestID, "error", err)
		record = e.deny(domain.ReasonInternalError, nil, requestID, start)
		e.emitError(ctx, requestID, start, "classifier", err.Error())
		emitRecord(record)
		return record
	}

	record = domain.DecisionRecord{
		Decision:  decision,
		Score:     &score,
		RequestID: requestID,
		Timestamp: start.UTC(),
	}
	if decision == domain.DecisionDeny {
		reason := domain.ReasonLowScore
		record.Reason = &reason
	}

	emitRecord(record)
	return record
}

func (e *Engine) classify(ctx context.Context, score int) (domain.Decision, error) {
	thresholds := *e.thresholds.Load()
	if e.classifier != nil {
		return e.classifier.Classify(ctx, score, thresholds)
	}
	return thresholds.Classify(score), nil
}

func (e *Engine) deny(reason domain.DenyReason, score *int, requestID string, start time.Time) domain.DecisionRecord {
	return domain.DecisionRecord{
		Decision:  domain.DecisionDeny,
		Reason:    &reason,
		Score:     score,
		RequestID: requestID,
		Timestamp: start.UTC(),
	}
}

func (e *Engine) emit(ctx context.Context, record domain.DecisionRecord, subject string, start time.Time) {
	event := domain.DecisionEvent{
		Version:   domain.EventVersion,
		EventType: domain.EventTypeDecision,
		RequestID: record.RequestID,
		Timestamp: record.Timestamp,
		Decision:  record.Decision,
		Reason:    record.Reason,
		Score:     record.Score,
		LatencyMs: e.now().Sub(start).Milliseconds(),
	}
	if subject != "" {
		event.SubjectHash = telemetry.HashSubject(subject)
	}
	e.emitter.EmitDecision(ctx, event)
}

func (e *Engine) emitError(ctx context.Context, requestID string, start time.Time, errorType, message string) {
	e.emitter.EmitError(ctx, domain.ErrorEvent{
		Version:      domain.EventVersion,
		EventType:    domain.EventTypeError,
		RequestID:    requestID,
		Timestamp:    start.UTC(),
		ErrorType:    errorType,
		ErrorMessage: message,
	})
}
