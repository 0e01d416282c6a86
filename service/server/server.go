package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/slotrelay/service/db"
	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/relay"
	"github.com/brojonat/slotrelay/service/temporal"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunStore is the read side of the report store.
type RunStore interface {
	ListRuns(ctx context.Context, params db.ListRunsParams) ([]*relay.BulkReport, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*relay.BulkReport, error)
	ListComparisons(ctx context.Context, params db.ListComparisonsParams) ([]*relay.ComparisonResult, error)
}

// BenchStarter starts bench workflows. *temporal.Client implements it.
type BenchStarter interface {
	StartBulkBench(ctx context.Context, input temporal.BulkBenchWorkflowInput) (string, string, error)
	StartComparison(ctx context.Context, input temporal.ComparisonWorkflowInput) (string, string, error)
	DescribeWorkflow(ctx context.Context, workflowID string) (*temporal.WorkflowStatus, error)
}

// Server represents the HTTP server for browsing bench results and starting benches.
type Server struct {
	addr      string
	store     RunStore
	bench     BenchStarter
	stream    *StatsStream
	endpoints map[string]bool
	renderer  *TemplateRenderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// endpoints lists the endpoint names benches may target.
// The bench starter is optional - if nil, bench endpoints won't be available.
// The stream is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, store RunStore, bench BenchStarter, stream *StatsStream, endpoints []string, m *metrics.Metrics, logger *slog.Logger) *Server {
	known := make(map[string]bool, len(endpoints))
	for _, name := range endpoints {
		known[name] = true
	}
	return &Server{
		addr:      addr,
		store:     store,
		bench:     bench,
		stream:    stream,
		endpoints: known,
		metrics:   m,
		logger:    logger,
	}
}

// WithTemplates adds the HTML dashboard using embedded templates.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler. Start serves it; tests can mount it directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Results
	route("GET /api/v1/runs", "list_runs", handleListRuns(s.store, s.logger))
	route("GET /api/v1/runs/{run_id}", "get_run", handleGetRun(s.store, s.logger))
	route("GET /api/v1/comparisons", "list_comparisons", handleListComparisons(s.store, s.logger))

	// Bench workflows (if a Temporal client is configured)
	if s.bench != nil {
		route("POST /api/v1/bench/bulk", "start_bulk_bench", handleStartBulkBench(s.bench, s.endpoints, s.logger))
		route("POST /api/v1/bench/compare", "start_comparison", handleStartComparison(s.bench, s.endpoints, s.logger))
		route("GET /api/v1/workflows/{workflow_id}", "workflow_status", handleGetWorkflowStatus(s.bench, s.logger))
	} else {
		s.logger.Warn("temporal client not configured, bench endpoints disabled")
	}

	// SSE streaming endpoints (if NATS is configured)
	if s.stream != nil {
		route("GET /api/v1/stream/stats/{endpoint}", "stream_stats", handleStreamStats(s.stream, s.logger))
		route("GET /api/v1/stream/stats", "stream_stats", handleStreamStats(s.stream, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("stats stream not configured, streaming endpoints disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /{$}", handleDashboardPage(s.renderer, s.store))
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// SSE responses stay open; WriteTimeout would cut them off.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close the stream first (disconnects all SSE clients)
	if s.stream != nil {
		s.stream.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
