// Package api exposes the collector's HTTP surface: OTLP ingestion, live
// streaming, session and trace queries, schema control, and monitoring.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/spanhouse/spanhouse/pkg/aggregate"
	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/ingest"
	"github.com/spanhouse/spanhouse/pkg/live"
	"github.com/spanhouse/spanhouse/pkg/schema"
	"github.com/spanhouse/spanhouse/pkg/storage"
	"github.com/spanhouse/spanhouse/pkg/telemetry"
)

// Server bundles all HTTP handlers behind a single mux.
type Server struct {
	handler  *ingest.Handler
	registry *ingest.ServiceRegistry
	sessions *aggregate.SessionAggregator
	traces   *aggregate.TraceAggregator
	store    storage.TelemetryStore
	sse      *live.SSEHandler
	planner  *schema.Planner
	executor *schema.Executor
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewServer wires the handlers. metrics may be nil in tests.
func NewServer(
	handler *ingest.Handler,
	registry *ingest.ServiceRegistry,
	sessions *aggregate.SessionAggregator,
	traces *aggregate.TraceAggregator,
	store storage.TelemetryStore,
	sse *live.SSEHandler,
	planner *schema.Planner,
	executor *schema.Executor,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler:  handler,
		registry: registry,
		sessions: sessions,
		traces:   traces,
		store:    store,
		sse:      sse,
		planner:  planner,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
	}
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// OTLP ingestion
	mux.Handle("POST /v1/traces", s.wrap("/v1/traces", s.handleExportTraces))
	mux.Handle("POST /v1/metrics", s.wrap("/v1/metrics", s.handleExportMetrics))
	mux.Handle("POST /v1/logs", s.wrap("/v1/logs", s.handleExportLogs))

	// Live streaming
	mux.Handle("GET /api/v1/live", s.wrap("/api/v1/live", s.sse.ServeAll))
	mux.Handle("GET /api/v1/live/spans", s.wrap("/api/v1/live/spans", s.sse.ServeSignal(live.SignalSpans)))
	mux.Handle("GET /api/v1/live/metrics", s.wrap("/api/v1/live/metrics", s.sse.ServeSignal(live.SignalMetrics)))
	mux.Handle("GET /api/v1/live/logs", s.wrap("/api/v1/live/logs", s.sse.ServeSignal(live.SignalLogs)))

	// Sessions and traces
	mux.Handle("GET /api/v1/sessions", s.wrap("/api/v1/sessions", s.handleListSessions))
	mux.Handle("GET /api/v1/sessions/stats", s.wrap("/api/v1/sessions/stats", s.handleSessionStats))
	mux.Handle("GET /api/v1/sessions/{id}", s.wrap("/api/v1/sessions/{id}", s.handleGetSession))
	mux.Handle("GET /api/v1/traces/{id}", s.wrap("/api/v1/traces/{id}", s.handleGetTrace))

	// Schema control
	mux.Handle("POST /api/v1/schema/promotions", s.wrap("/api/v1/schema/promotions", s.handlePlanPromotion))
	mux.Handle("GET /api/v1/schema/promotions", s.wrap("/api/v1/schema/promotions", s.handleListPromotions))
	mux.Handle("GET /api/v1/schema/promotions/{id}", s.wrap("/api/v1/schema/promotions/{id}", s.handleGetPromotion))
	mux.Handle("POST /api/v1/schema/promotions/{id}/apply", s.wrap("/api/v1/schema/promotions/{id}/apply", s.handleApplyPromotion))

	// Monitoring
	mux.Handle("GET /api/v1/services", s.wrap("/api/v1/services", s.handleListServices))
	mux.Handle("GET /api/v1/stats", s.wrap("/api/v1/stats", s.handleStats))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return otelhttp.NewHandler(mux, "collector.http")
}

func (s *Server) wrap(endpoint string, handler http.HandlerFunc) http.Handler {
	if s.metrics == nil {
		return handler
	}
	return s.metrics.Middleware(endpoint, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError maps domain errors to status codes and the stable error body.
// Internal detail stays in the log, never in the response.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, domain.ErrUnsupportedContentType):
		status, code = http.StatusBadRequest, "UNSUPPORTED_CONTENT_TYPE"
	case errors.Is(err, domain.ErrDecode):
		status, code = http.StatusBadRequest, "DECODE_ERROR"
	case errors.Is(err, domain.ErrUnsupportedChangeType):
		status, code = http.StatusBadRequest, "UNSUPPORTED_CHANGE_TYPE"
	case errors.Is(err, domain.ErrDestructiveDDL):
		status, code = http.StatusBadRequest, "DESTRUCTIVE_DDL_REJECTED"
	case errors.Is(err, domain.ErrInvalidIdentifier):
		status, code = http.StatusBadRequest, "INVALID_IDENTIFIER"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusConflict, "INVALID_STATE"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL"
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, status, domain.ErrorResponse{Code: code, Message: "internal error"})
		return
	}
	s.writeJSON(w, status, domain.ErrorResponse{Code: code, Message: err.Error()})
}
