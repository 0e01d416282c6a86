package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/slotrelay/service/db"
	"github.com/brojonat/slotrelay/service/relay"
	"github.com/brojonat/slotrelay/service/temporal"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListRuns(ctx context.Context, params db.ListRunsParams) ([]*relay.BulkReport, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*relay.BulkReport), args.Error(1)
}

func (m *MockStore) GetRun(ctx context.Context, runID uuid.UUID) (*relay.BulkReport, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.BulkReport), args.Error(1)
}

func (m *MockStore) ListComparisons(ctx context.Context, params db.ListComparisonsParams) ([]*relay.ComparisonResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*relay.ComparisonResult), args.Error(1)
}

type MockBenchStarter struct {
	mock.Mock
}

func (m *MockBenchStarter) StartBulkBench(ctx context.Context, input temporal.BulkBenchWorkflowInput) (string, string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockBenchStarter) StartComparison(ctx context.Context, input temporal.ComparisonWorkflowInput) (string, string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockBenchStarter) DescribeWorkflow(ctx context.Context, workflowID string) (*temporal.WorkflowStatus, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*temporal.WorkflowStatus), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(store RunStore, bench BenchStarter) http.Handler {
	return New(":0", store, bench, nil, []string{"rpc-a", "rpc-b"}, nil, testLogger()).Handler()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp["error"]
}

func TestListRuns(t *testing.T) {
	store := &MockStore{}
	runID := uuid.New()
	store.On("ListRuns", mock.Anything, db.ListRunsParams{Endpoint: "rpc-a", Limit: 5, Offset: 10}).
		Return([]*relay.BulkReport{{RunID: runID, Endpoint: "rpc-a"}}, nil)

	req := httptest.NewRequest("GET", "/api/v1/runs?endpoint=rpc-a&limit=5&offset=10", nil)
	w := httptest.NewRecorder()
	newTestServer(store, nil).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Runs  []*relay.BulkReport `json:"runs"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, runID, resp.Runs[0].RunID)
	store.AssertExpectations(t)
}

func TestListRuns_Defaults(t *testing.T) {
	store := &MockStore{}
	store.On("ListRuns", mock.Anything, db.ListRunsParams{Limit: 100}).Return([]*relay.BulkReport{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	newTestServer(store, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestListRuns_BadPagination(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		contains string
	}{
		{name: "non-numeric limit", query: "limit=abc", contains: "invalid limit"},
		{name: "zero limit", query: "limit=0", contains: "at least 1"},
		{name: "limit too large", query: "limit=5000", contains: "cannot exceed"},
		{name: "negative offset", query: "offset=-1", contains: "cannot be negative"},
		{name: "control characters in endpoint", query: "endpoint=rpc%00a", contains: "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/runs?"+tt.query, nil)
			w := httptest.NewRecorder()
			newTestServer(&MockStore{}, nil).ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeError(t, w), tt.contains)
		})
	}
}

func TestListRuns_StoreError(t *testing.T) {
	store := &MockStore{}
	store.On("ListRuns", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	newTestServer(store, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeError(t, w))
}

func TestGetRun(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name           string
		path           string
		setup          func(*MockStore)
		expectedStatus int
	}{
		{
			name: "found",
			path: "/api/v1/runs/" + runID.String(),
			setup: func(s *MockStore) {
				s.On("GetRun", mock.Anything, runID).Return(&relay.BulkReport{
					RunID:   runID,
					Results: []relay.TxResult{{Index: 0, Record: relay.Timeout(time.Second)}},
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not found",
			path: "/api/v1/runs/" + runID.String(),
			setup: func(s *MockStore) {
				s.On("GetRun", mock.Anything, runID).Return(nil, db.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid id",
			path:           "/api/v1/runs/not-a-uuid",
			setup:          func(s *MockStore) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{}
			tt.setup(store)

			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			newTestServer(store, nil).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			store.AssertExpectations(t)
		})
	}
}

func TestListComparisons_FilterByRun(t *testing.T) {
	store := &MockStore{}
	runID := uuid.New()
	store.On("ListComparisons", mock.Anything, mock.MatchedBy(func(p db.ListComparisonsParams) bool {
		return p.RunID != nil && *p.RunID == runID && p.Limit == 20
	})).Return([]*relay.ComparisonResult{{RunID: runID, Round: 1}}, nil)

	req := httptest.NewRequest("GET", "/api/v1/comparisons?run_id="+runID.String()+"&limit=20", nil)
	w := httptest.NewRecorder()
	newTestServer(store, nil).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Comparisons []*relay.ComparisonResult `json:"comparisons"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Comparisons, 1)
	assert.Equal(t, 1, resp.Comparisons[0].Round)
}

func TestListComparisons_InvalidRunID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/comparisons?run_id=nope", nil)
	w := httptest.NewRecorder()
	newTestServer(&MockStore{}, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartBulkBench(t *testing.T) {
	bench := &MockBenchStarter{}
	bench.On("StartBulkBench", mock.Anything, temporal.BulkBenchWorkflowInput{
		Endpoint: "rpc-a",
		TxCount:  10,
		Runs:     3,
		Interval: 30 * time.Second,
	}).Return("bulk-bench-rpc-a-1", "run-1", nil)

	body := `{"endpoint":"rpc-a","tx_count":10,"runs":3,"interval":"30s"}`
	req := httptest.NewRequest("POST", "/api/v1/bench/bulk", strings.NewReader(body))
	w := httptest.NewRecorder()
	newTestServer(&MockStore{}, bench).ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "bulk-bench-rpc-a-1", resp["workflow_id"])
	assert.Equal(t, "/api/v1/workflows/bulk-bench-rpc-a-1", resp["status_url"])
	bench.AssertExpectations(t)
}

func TestStartBulkBench_PathologicalInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{
			name:     "extremely large request body",
			body:     `{"endpoint":"` + strings.Repeat("A", 2*1024*1024) + `"}`,
			contains: "request body too large",
		},
		{name: "malformed JSON", body: `{"endpoint":`, contains: "invalid request body"},
		{name: "empty JSON object", body: `{}`, contains: "endpoint is required"},
		{name: "unknown endpoint", body: `{"endpoint":"rpc-z","tx_count":1}`, contains: "unknown endpoint"},
		{name: "endpoint too long", body: `{"endpoint":"` + strings.Repeat("a", 500) + `","tx_count":1}`, contains: "endpoint too long"},
		{name: "zero tx_count", body: `{"endpoint":"rpc-a"}`, contains: "tx_count must be between"},
		{name: "tx_count too large", body: `{"endpoint":"rpc-a","tx_count":100000}`, contains: "tx_count must be between"},
		{name: "negative runs", body: `{"endpoint":"rpc-a","tx_count":1,"runs":-1}`, contains: "runs must be between"},
		{name: "bad interval", body: `{"endpoint":"rpc-a","tx_count":1,"interval":"soon"}`, contains: "invalid interval"},
		{name: "negative interval", body: `{"endpoint":"rpc-a","tx_count":1,"interval":"-5s"}`, contains: "interval must be between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bench := &MockBenchStarter{}
			req := httptest.NewRequest("POST", "/api/v1/bench/bulk", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			newTestServer(&MockStore{}, bench).ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeError(t, w), tt.contains)
			bench.AssertNotCalled(t, "StartBulkBench", mock.Anything, mock.Anything)
		})
	}
}

func TestStartBulkBench_TemporalError(t *testing.T) {
	bench := &MockBenchStarter{}
	bench.On("StartBulkBench", mock.Anything, mock.Anything).Return("", "", errors.New("temporal unavailable"))

	req := httptest.NewRequest("POST", "/api/v1/bench/bulk", strings.NewReader(`{"endpoint":"rpc-a","tx_count":1}`))
	w := httptest.NewRecorder()
	newTestServer(&MockStore{}, bench).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartComparison(t *testing.T) {
	bench := &MockBenchStarter{}
	bench.On("StartComparison", mock.Anything, temporal.ComparisonWorkflowInput{
		EndpointA: "rpc-a",
		EndpointB: "rpc-b",
		Rounds:    1,
	}).Return("compare-rpc-a-rpc-b-1", "run-1", nil)

	req := httptest.NewRequest("POST", "/api/v1/bench/compare", strings.NewReader(`{"endpoint_a":"rpc-a","endpoint_b":"rpc-b"}`))
	w := httptest.NewRecorder()
	newTestServer(&MockStore{}, bench).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	bench.AssertExpectations(t)
}

func TestStartComparison_SameEndpoint(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/bench/compare", strings.NewReader(`{"endpoint_a":"rpc-a","endpoint_b":"rpc-a"}`))
	w := httptest.NewRecorder()
	newTestServer(&MockStore{}, &MockBenchStarter{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "must differ")
}

func TestBenchRoutesDisabledWithoutTemporal(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/bench/bulk", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	newTestServer(&MockStore{}, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetWorkflowStatus(t *testing.T) {
	bench := &MockBenchStarter{}
	bench.On("DescribeWorkflow", mock.Anything, "bulk-bench-rpc-a-1").Return(&temporal.WorkflowStatus{
		WorkflowID: "bulk-bench-rpc-a-1",
		Type:       "BulkBenchWorkflow",
		Status:     "Running",
	}, nil)
	bench.On("DescribeWorkflow", mock.Anything, "missing").Return(nil, errors.New("not found"))

	handler := newTestServer(&MockStore{}, bench)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/workflows/bulk-bench-rpc-a-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status temporal.WorkflowStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "Running", status.Status)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/workflows/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndCORS(t *testing.T) {
	handler := newTestServer(&MockStore{}, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/v1/runs", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDashboardPage(t *testing.T) {
	store := &MockStore{}
	runID := uuid.New()
	store.On("ListRuns", mock.Anything, db.ListRunsParams{Limit: dashboardRows}).
		Return([]*relay.BulkReport{{RunID: runID, Endpoint: "rpc-a", Counts: relay.Counts{Sent: 4, Confirmed: 4}}}, nil)
	store.On("ListComparisons", mock.Anything, db.ListComparisonsParams{Limit: dashboardRows}).
		Return([]*relay.ComparisonResult{}, nil)

	srv := New(":0", store, nil, nil, nil, nil, testLogger())
	require.NoError(t, srv.WithTemplates())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runID.String())
	assert.Contains(t, w.Body.String(), "no comparisons yet")
}
