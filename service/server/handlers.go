package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/slotrelay/service/db"
	"github.com/brojonat/slotrelay/service/temporal"
	"github.com/google/uuid"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - bench requests are tiny
	maxEndpointLength  = 100
	maxTxCount         = 1000
	maxRuns            = 100
	maxRounds          = 1000
	maxInterval        = 24 * time.Hour
	defaultListLimit   = 100
	maxListLimit       = 1000
)

// handleListRuns returns a handler that lists bulk run summaries.
// GET /api/v1/runs?endpoint=NAME&limit=N&offset=N
func handleListRuns(store RunStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit, offset, err := parsePagination(query.Get("limit"), query.Get("offset"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		endpoint := query.Get("endpoint")
		if endpoint != "" {
			if err := validateEndpointName(endpoint); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		runs, err := store.ListRuns(r.Context(), db.ListRunsParams{
			Endpoint: endpoint,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			logger.Error("failed to list runs", "endpoint", endpoint, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("runs listed", "endpoint", endpoint, "count", len(runs))

		writeJSON(w, map[string]interface{}{
			"runs":   runs,
			"count":  len(runs),
			"limit":  limit,
			"offset": offset,
		}, http.StatusOK)
	})
}

// handleGetRun returns a handler that retrieves one run with its per-transaction results.
// GET /api/v1/runs/{run_id}
func handleGetRun(store RunStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(r.PathValue("run_id"))
		if err != nil {
			writeError(w, "invalid run_id: must be a UUID", http.StatusBadRequest)
			return
		}

		report, err := store.GetRun(r.Context(), runID)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get run", "run_id", runID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, report, http.StatusOK)
	})
}

// handleListComparisons returns a handler that lists comparison rounds.
// GET /api/v1/comparisons?run_id=UUID&limit=N
func handleListComparisons(store RunStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit, _, err := parsePagination(query.Get("limit"), "")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		params := db.ListComparisonsParams{Limit: limit}
		if raw := query.Get("run_id"); raw != "" {
			runID, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, "invalid run_id: must be a UUID", http.StatusBadRequest)
				return
			}
			params.RunID = &runID
		}

		comparisons, err := store.ListComparisons(r.Context(), params)
		if err != nil {
			logger.Error("failed to list comparisons", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"comparisons": comparisons,
			"count":       len(comparisons),
		}, http.StatusOK)
	})
}

// handleStartBulkBench returns a handler that starts a BulkBenchWorkflow.
// POST /api/v1/bench/bulk
func handleStartBulkBench(bench BenchStarter, known map[string]bool, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Endpoint string `json:"endpoint"`
			TxCount  int    `json:"tx_count"`
			Runs     int    `json:"runs"`
			Interval string `json:"interval"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		if err := validateKnownEndpoint(req.Endpoint, known); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.TxCount < 1 || req.TxCount > maxTxCount {
			writeError(w, fmt.Sprintf("tx_count must be between 1 and %d", maxTxCount), http.StatusBadRequest)
			return
		}
		if req.Runs == 0 {
			req.Runs = 1
		}
		if req.Runs < 1 || req.Runs > maxRuns {
			writeError(w, fmt.Sprintf("runs must be between 1 and %d", maxRuns), http.StatusBadRequest)
			return
		}
		interval, err := parseInterval(req.Interval)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		workflowID, runID, err := bench.StartBulkBench(r.Context(), temporal.BulkBenchWorkflowInput{
			Endpoint: req.Endpoint,
			TxCount:  req.TxCount,
			Runs:     req.Runs,
			Interval: interval,
		})
		if err != nil {
			logger.Error("failed to start bulk bench", "endpoint", req.Endpoint, "error", err)
			writeError(w, "failed to start bulk bench", http.StatusInternalServerError)
			return
		}

		logger.Info("bulk bench started",
			"endpoint", req.Endpoint,
			"tx_count", req.TxCount,
			"runs", req.Runs,
			"workflow_id", workflowID,
		)

		writeJSON(w, map[string]string{
			"workflow_id": workflowID,
			"run_id":      runID,
			"status_url":  "/api/v1/workflows/" + workflowID,
		}, http.StatusAccepted)
	})
}

// handleStartComparison returns a handler that starts a ComparisonWorkflow.
// POST /api/v1/bench/compare
func handleStartComparison(bench BenchStarter, known map[string]bool, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EndpointA string `json:"endpoint_a"`
			EndpointB string `json:"endpoint_b"`
			Rounds    int    `json:"rounds"`
			Interval  string `json:"interval"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		if err := validateKnownEndpoint(req.EndpointA, known); err != nil {
			writeError(w, "endpoint_a: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateKnownEndpoint(req.EndpointB, known); err != nil {
			writeError(w, "endpoint_b: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.EndpointA == req.EndpointB {
			writeError(w, "endpoint_a and endpoint_b must differ", http.StatusBadRequest)
			return
		}
		if req.Rounds == 0 {
			req.Rounds = 1
		}
		if req.Rounds < 1 || req.Rounds > maxRounds {
			writeError(w, fmt.Sprintf("rounds must be between 1 and %d", maxRounds), http.StatusBadRequest)
			return
		}
		interval, err := parseInterval(req.Interval)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		workflowID, runID, err := bench.StartComparison(r.Context(), temporal.ComparisonWorkflowInput{
			EndpointA: req.EndpointA,
			EndpointB: req.EndpointB,
			Rounds:    req.Rounds,
			Interval:  interval,
		})
		if err != nil {
			logger.Error("failed to start comparison",
				"endpoint_a", req.EndpointA,
				"endpoint_b", req.EndpointB,
				"error", err,
			)
			writeError(w, "failed to start comparison", http.StatusInternalServerError)
			return
		}

		logger.Info("comparison started",
			"endpoint_a", req.EndpointA,
			"endpoint_b", req.EndpointB,
			"rounds", req.Rounds,
			"workflow_id", workflowID,
		)

		writeJSON(w, map[string]string{
			"workflow_id": workflowID,
			"run_id":      runID,
			"status_url":  "/api/v1/workflows/" + workflowID,
		}, http.StatusAccepted)
	})
}

// handleGetWorkflowStatus returns a handler that reports a bench workflow's status.
// GET /api/v1/workflows/{workflow_id}
func handleGetWorkflowStatus(bench BenchStarter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workflowID := r.PathValue("workflow_id")
		if workflowID == "" || len(workflowID) > 255 {
			writeError(w, "invalid workflow_id", http.StatusBadRequest)
			return
		}

		status, err := bench.DescribeWorkflow(r.Context(), workflowID)
		if err != nil {
			logger.Debug("failed to describe workflow", "workflow_id", workflowID, "error", err)
			writeError(w, "workflow not found", http.StatusNotFound)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// decodeBody decodes a size-limited JSON body, writing the error response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Debug("failed to decode request", "error", err)
		if strings.Contains(err.Error(), "http: request body too large") {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// parsePagination parses limit (default 100, max 1000) and offset (default 0).
func parsePagination(limitStr, offsetStr string) (int32, int32, error) {
	limit := int32(defaultListLimit)
	if limitStr != "" {
		var parsedLimit int
		if _, err := fmt.Sscanf(limitStr, "%d", &parsedLimit); err != nil {
			return 0, 0, errorf("invalid limit parameter: must be an integer")
		}
		if parsedLimit < 1 {
			return 0, 0, errorf("limit must be at least 1")
		}
		if parsedLimit > maxListLimit {
			return 0, 0, errorf("limit cannot exceed %d", maxListLimit)
		}
		limit = int32(parsedLimit)
	}

	offset := int32(0)
	if offsetStr != "" {
		var parsedOffset int
		if _, err := fmt.Sscanf(offsetStr, "%d", &parsedOffset); err != nil {
			return 0, 0, errorf("invalid offset parameter: must be an integer")
		}
		if parsedOffset < 0 {
			return 0, 0, errorf("offset cannot be negative")
		}
		offset = int32(parsedOffset)
	}

	return limit, offset, nil
}

// parseInterval parses an optional pause between runs. Empty means no pause.
func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errorf("invalid interval: %v", err)
	}
	if d < 0 || d > maxInterval {
		return 0, errorf("interval must be between 0 and %v", maxInterval)
	}
	return d, nil
}

// validateEndpointName validates an endpoint name for format.
func validateEndpointName(name string) error {
	if name == "" {
		return errorf("endpoint is required")
	}

	if len(name) > maxEndpointLength {
		return errorf("endpoint too long: maximum length is %d characters", maxEndpointLength)
	}

	// Check for null bytes and control characters
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in endpoint: control characters not allowed")
		}
	}

	return nil
}

// validateKnownEndpoint validates the name and checks it is configured.
func validateKnownEndpoint(name string, known map[string]bool) error {
	if err := validateEndpointName(name); err != nil {
		return err
	}
	if !known[name] {
		return errorf("unknown endpoint %q", name)
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
