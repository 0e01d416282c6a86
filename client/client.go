// Package client talks to the slotrelay HTTP API and to external stats services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/google/uuid"
)

// Client is the HTTP client for the slotrelay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new server client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListRunsOptions filters ListRuns. Zero values use server defaults.
type ListRunsOptions struct {
	Endpoint string
	Limit    int
	Offset   int
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil, nil)
}

// ListRuns retrieves bulk run summaries, most recent first.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOptions) ([]*relay.BulkReport, error) {
	q := url.Values{}
	if opts.Endpoint != "" {
		q.Set("endpoint", opts.Endpoint)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var resp struct {
		Runs []*relay.BulkReport `json:"runs"`
	}
	if err := c.getJSON(ctx, "/api/v1/runs", q, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("listed runs", "count", len(resp.Runs))
	return resp.Runs, nil
}

// GetRun retrieves one run with its per-transaction results.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (*relay.BulkReport, error) {
	var report relay.BulkReport
	if err := c.getJSON(ctx, "/api/v1/runs/"+url.PathEscape(runID.String()), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListComparisons retrieves comparison rounds, optionally for one run.
func (c *Client) ListComparisons(ctx context.Context, runID *uuid.UUID, limit int) ([]*relay.ComparisonResult, error) {
	q := url.Values{}
	if runID != nil {
		q.Set("run_id", runID.String())
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Comparisons []*relay.ComparisonResult `json:"comparisons"`
	}
	if err := c.getJSON(ctx, "/api/v1/comparisons", q, &resp); err != nil {
		return nil, err
	}
	return resp.Comparisons, nil
}

// BulkBenchRequest asks the server to start a series of bulk runs.
type BulkBenchRequest struct {
	Endpoint string `json:"endpoint"`
	TxCount  int    `json:"tx_count"`
	Runs     int    `json:"runs,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// ComparisonRequest asks the server to start a multi-round comparison.
type ComparisonRequest struct {
	EndpointA string `json:"endpoint_a"`
	EndpointB string `json:"endpoint_b"`
	Rounds    int    `json:"rounds,omitempty"`
	Interval  string `json:"interval,omitempty"`
}

// WorkflowStarted identifies a workflow the server started.
type WorkflowStarted struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
}

// WorkflowStatus mirrors the server's workflow status response.
type WorkflowStatus struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
}

// StartBulkBench starts a bulk bench workflow on the server.
func (c *Client) StartBulkBench(ctx context.Context, req BulkBenchRequest) (*WorkflowStarted, error) {
	var started WorkflowStarted
	if err := c.postJSON(ctx, "/api/v1/bench/bulk", req, &started); err != nil {
		return nil, err
	}
	c.logger.Debug("bulk bench started", "workflow_id", started.WorkflowID)
	return &started, nil
}

// StartComparison starts a comparison workflow on the server.
func (c *Client) StartComparison(ctx context.Context, req ComparisonRequest) (*WorkflowStarted, error) {
	var started WorkflowStarted
	if err := c.postJSON(ctx, "/api/v1/bench/compare", req, &started); err != nil {
		return nil, err
	}
	c.logger.Debug("comparison started", "workflow_id", started.WorkflowID)
	return &started, nil
}

// GetWorkflowStatus retrieves the status of a bench workflow.
func (c *Client) GetWorkflowStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	var status WorkflowStatus
	if err := c.getJSON(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
