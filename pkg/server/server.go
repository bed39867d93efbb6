// Package server exposes the gateway's HTTP surface: the validation endpoint,
// health reporting, and Prometheus exposition.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/insightbridge/insightbridge/pkg/domain"
	"github.com/insightbridge/insightbridge/pkg/engine"
	"github.com/insightbridge/insightbridge/pkg/telemetry"
)

// maxRequestBody bounds the /validate request body.
const maxRequestBody = 64 * 1024

// RequestIDHeader carries a caller-supplied correlation identifier.
const RequestIDHeader = "X-Request-ID"

// Server handles the gateway's HTTP endpoints.
type Server struct {
	engine       *engine.Engine
	replay       domain.ReplayGuard
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	version      string
	started      time.Time
	checkBackend func(context.Context) error
}

// Config holds the server's collaborators.
type Config struct {
	Engine  *engine.Engine
	Replay  domain.ReplayGuard
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
	Version string

	// CheckBackend probes the shared backend (Redis) for health reporting.
	// Nil means no external backend is configured.
	CheckBackend func(context.Context) error
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:       cfg.Engine,
		replay:       cfg.Replay,
		metrics:      cfg.Metrics,
		logger:       logger,
		version:      cfg.Version,
		started:      time.Now(),
		checkBackend: cfg.CheckBackend,
	}
}

// Routes returns the handler for all gateway endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /validate", s.handleValidate)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON", "")
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = r.Header.Get(RequestIDHeader)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if req.Token == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "token is required", requestID)
		return
	}

	record := s.engine.Decide(r.Context(), req.Token, requestID)

	if s.metrics != nil && s.replay != nil {
		s.metrics.SetLedgerSize(s.replay.Size())
	}

	s.writeJSON(w, http.StatusOK, record)
}

type healthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	ReplayEntries *int      `json:"replay_ledger_entries,omitempty"`
	Backend       string    `json:"backend,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Timestamp:     time.Now().UTC(),
	}
	// Backends that cannot count their entries report a negative size; the
	// field is omitted rather than published as a bogus gauge.
	if s.replay != nil {
		if size := s.replay.Size(); size >= 0 {
			resp.ReplayEntries = &size
		}
	}
	if s.checkBackend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.checkBackend(ctx); err != nil {
			// Degraded, not down: the decision pipeline keeps answering, every
			// backend failure just denies.
			resp.Status = "degraded"
			resp.Backend = "unreachable"
			s.logger.Warn("Health backend probe failed", "error", err)
		} else {
			resp.Backend = "connected"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	s.writeJSON(w, status, domain.ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}
