package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

func TestHashSubject(t *testing.T) {
	h := HashSubject("agent-1")

	assert.Len(t, h, 64, "sha-256 hex digest")
	assert.Equal(t, h, HashSubject("agent-1"), "hashing is deterministic")
	assert.NotEqual(t, h, HashSubject("agent-2"))
	assert.NotContains(t, h, "agent")
}

func TestEmitDecisionLogsStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	emitter := NewEmitter(logger, nil)

	reason := domain.ReasonExpiredToken
	score := 42
	emitter.EmitDecision(context.Background(), domain.DecisionEvent{
		Version:     domain.EventVersion,
		EventType:   domain.EventTypeDecision,
		RequestID:   "req-1",
		Timestamp:   time.Now().UTC(),
		Decision:    domain.DecisionDeny,
		Reason:      &reason,
		Score:       &score,
		SubjectHash: HashSubject("agent-1"),
		LatencyMs:   3,
	})

	var logged map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logged))
	assert.Equal(t, "gateway.decision.made", logged["event_type"])
	assert.Equal(t, "1.0.0", logged["version"])
	assert.Equal(t, "DENY", logged["decision"])
	assert.Equal(t, "EXPIRED_TOKEN", logged["reason"])
	assert.Equal(t, float64(42), logged["score"])
	assert.NotContains(t, buf.String(), "agent-1")
}

func TestMetricsRecordDecision(t *testing.T) {
	metrics := NewMetrics()
	reason := domain.ReasonLowScore

	metrics.RecordDecision(domain.DecisionEvent{Decision: domain.DecisionDeny, Reason: &reason, LatencyMs: 5})
	metrics.RecordDecision(domain.DecisionEvent{Decision: domain.DecisionAllow})
	metrics.RecordError("panic")
	metrics.SetLedgerSize(7)
	metrics.SetLedgerSize(-1) // distributed backend, no count available

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `gateway_decisions_total{decision="DENY",reason="LOW_SCORE"} 1`)
	assert.Contains(t, body, `gateway_decisions_total{decision="ALLOW",reason=""} 1`)
	assert.Contains(t, body, `gateway_errors_total{error_type="panic"} 1`)
	assert.Contains(t, body, `gateway_replay_ledger_entries 7`)
}
