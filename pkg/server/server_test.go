package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightbridge/insightbridge/internal/replay"
	"github.com/insightbridge/insightbridge/internal/score"
	"github.com/insightbridge/insightbridge/pkg/domain"
	"github.com/insightbridge/insightbridge/pkg/engine"
	"github.com/insightbridge/insightbridge/pkg/telemetry"
	"github.com/insightbridge/insightbridge/pkg/token"
)

type serverFixture struct {
	handler http.Handler
	signer  *token.Signer
	ledger  *replay.Ledger
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	private, public, err := token.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	signer, err := token.NewSigner(private, "RS256")
	require.NoError(t, err)
	verifier, err := token.NewVerifier(public, "RS256", 30*time.Second)
	require.NoError(t, err)

	ledger := replay.NewLedger(0, time.Minute)
	t.Cleanup(func() { _ = ledger.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := telemetry.NewMetrics()

	eng := engine.New(engine.Deps{
		Verifier:   verifier,
		Limiter:    allowAllLimiter{},
		Replay:     ledger,
		Scores:     score.NewStaticSource(map[string]int{"agent-1": 85, "agent-2": 30, "agent-3": 60}),
		Emitter:    telemetry.NewEmitter(logger, metrics),
		Thresholds: domain.Thresholds{Allow: 70, Monitor: 50},
		Logger:     logger,
	})

	srv := New(Config{
		Engine:  eng,
		Replay:  ledger,
		Metrics: metrics,
		Logger:  logger,
		Version: "test",
	})

	return &serverFixture{handler: srv.Routes(), signer: signer, ledger: ledger}
}

type allowAllLimiter struct{}

func (allowAllLimiter) TryAcquire(context.Context, string) bool { return true }

func (f *serverFixture) validate(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) domain.DecisionRecord {
	t.Helper()
	var record domain.DecisionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	return record
}

func TestValidateAllow(t *testing.T) {
	f := newServerFixture(t)

	raw, err := f.signer.Mint(token.MintOptions{Subject: "agent-1", TTL: time.Hour})
	require.NoError(t, err)

	rec := f.validate(t, `{"token":"`+raw+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	record := decodeRecord(t, rec)
	assert.Equal(t, domain.DecisionAllow, record.Decision)
	require.NotNil(t, record.Score)
	assert.Equal(t, 85, *record.Score)
	assert.NotEmpty(t, record.RequestID)
}

func TestValidateDenyIsStill200(t *testing.T) {
	f := newServerFixture(t)

	rec := f.validate(t, `{"token":"garbage"}`)
	require.Equal(t, http.StatusOK, rec.Code, "a DENY decision is a successful evaluation, not an HTTP error")

	record := decodeRecord(t, rec)
	assert.Equal(t, domain.DecisionDeny, record.Decision)
	require.NotNil(t, record.Reason)
	assert.Equal(t, domain.ReasonMalformedToken, *record.Reason)
}

func TestValidateReplayedToken(t *testing.T) {
	f := newServerFixture(t)

	raw, err := f.signer.Mint(token.MintOptions{Subject: "agent-1", TTL: time.Hour})
	require.NoError(t, err)

	rec := f.validate(t, `{"token":"`+raw+`"}`)
	assert.Equal(t, domain.DecisionAllow, decodeRecord(t, rec).Decision)

	rec = f.validate(t, `{"token":"`+raw+`"}`)
	record := decodeRecord(t, rec)
	assert.Equal(t, domain.DecisionDeny, record.Decision)
	require.NotNil(t, record.Reason)
	assert.Equal(t, domain.ReasonReplayDetected, *record.Reason)
}

func TestValidateMissingToken(t *testing.T) {
	f := newServerFixture(t)

	rec := f.validate(t, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MISSING_TOKEN", resp.Code)
}

func TestValidateBadJSON(t *testing.T) {
	f := newServerFixture(t)

	rec := f.validate(t, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateRequestIDPropagation(t *testing.T) {
	f := newServerFixture(t)

	t.Run("from_body", func(t *testing.T) {
		rec := f.validate(t, `{"token":"garbage","requestId":"req-body"}`)
		assert.Equal(t, "req-body", decodeRecord(t, rec).RequestID)
	})

	t.Run("from_header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(`{"token":"garbage"}`))
		req.Header.Set(RequestIDHeader, "req-header")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-header", decodeRecord(t, rec).RequestID)
	})

	t.Run("generated", func(t *testing.T) {
		rec := f.validate(t, `{"token":"garbage"}`)
		assert.NotEmpty(t, decodeRecord(t, rec).RequestID)
	})
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.Contains(t, resp, "replay_ledger_entries")
}

type uncountableLedger struct{}

func (uncountableLedger) CheckAndRecord(context.Context, string, time.Time) (domain.ReplayOutcome, error) {
	return domain.ReplayOutcomeFresh, nil
}

func (uncountableLedger) Size() int { return -1 }

func TestHealthzOmitsUncountableLedger(t *testing.T) {
	srv := New(Config{
		Replay: uncountableLedger{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "replay_ledger_entries")
}

func TestHealthzReportsBackendState(t *testing.T) {
	probe := func(context.Context) error { return nil }
	srv := New(Config{CheckBackend: probe, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	get := func() map[string]any {
		req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleHealth(rec, req)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := get()
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "connected", resp["backend"])

	srv.checkBackend = func(context.Context) error { return context.DeadlineExceeded }
	resp = get()
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "unreachable", resp["backend"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	// Generate one decision so the counters exist.
	f.validate(t, `{"token":"garbage"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_decisions_total")
}

func TestValidateScenarios(t *testing.T) {
	f := newServerFixture(t)

	mint := func(t *testing.T, opts token.MintOptions) string {
		t.Helper()
		raw, err := f.signer.Mint(opts)
		require.NoError(t, err)
		return raw
	}

	t.Run("expired_token", func(t *testing.T) {
		raw := mint(t, token.MintOptions{Subject: "agent-1", TTL: -time.Hour})
		record := decodeRecord(t, f.validate(t, `{"token":"`+raw+`"}`))
		assert.Equal(t, domain.DecisionDeny, record.Decision)
		require.NotNil(t, record.Reason)
		assert.Equal(t, domain.ReasonExpiredToken, *record.Reason)
	})

	t.Run("not_yet_valid_token", func(t *testing.T) {
		raw := mint(t, token.MintOptions{Subject: "agent-1", TTL: 2 * time.Hour, NotBeforeOffset: time.Hour})
		record := decodeRecord(t, f.validate(t, `{"token":"`+raw+`"}`))
		assert.Equal(t, domain.DecisionDeny, record.Decision)
		require.NotNil(t, record.Reason)
		assert.Equal(t, domain.ReasonNotYetValid, *record.Reason)
	})

	t.Run("high_score_allows", func(t *testing.T) {
		raw := mint(t, token.MintOptions{Subject: "agent-1", TTL: time.Hour})
		record := decodeRecord(t, f.validate(t, `{"token":"`+raw+`"}`))
		assert.Equal(t, domain.DecisionAllow, record.Decision)
		require.NotNil(t, record.Score)
		assert.Equal(t, 85, *record.Score)
	})

	t.Run("middling_score_monitors", func(t *testing.T) {
		raw := mint(t, token.MintOptions{Subject: "agent-3", TTL: time.Hour})
		record := decodeRecord(t, f.validate(t, `{"token":"`+raw+`"}`))
		assert.Equal(t, domain.DecisionMonitor, record.Decision)
		assert.Nil(t, record.Reason)
		require.NotNil(t, record.Score)
		assert.Equal(t, 60, *record.Score)
	})

	t.Run("low_score_denies", func(t *testing.T) {
		raw := mint(t, token.MintOptions{Subject: "agent-2", TTL: time.Hour})
		record := decodeRecord(t, f.validate(t, `{"token":"`+raw+`"}`))
		assert.Equal(t, domain.DecisionDeny, record.Decision)
		require.NotNil(t, record.Reason)
		assert.Equal(t, domain.ReasonLowScore, *record.Reason)
		require.NotNil(t, record.Score)
		assert.Equal(t, 30, *record.Score)
	})

	t.Run("unknown_subject_denies_with_zero_score", func(t *testing.T) {
		raw := mint(t, token.MintOptions{Subject: "stranger", TTL: time.Hour})
		record := decodeRecord(t, f.validate(t, `{"token":"`+raw+`"}`))
		assert.Equal(t, domain.DecisionDeny, record.Decision)
		require.NotNil(t, record.Reason)
		assert.Equal(t, domain.ReasonLowScore, *record.Reason)
		require.NotNil(t, record.Score)
		assert.Equal(t, 0, *record.Score)
	})
}

func TestValidateMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/validate", http.NoBody)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
