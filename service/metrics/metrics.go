package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the relay.
// It is passed explicitly to every component that records metrics; components
// treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	// RPC
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec
	rpcRateLimited  *prometheus.CounterVec

	// Dispatch
	sendOutcomesTotal *prometheus.CounterVec
	slotsPassed       *prometheus.HistogramVec
	alignAttempts     *prometheus.HistogramVec
	alignFailures     *prometheus.CounterVec

	// Confirmation
	confirmationLatency *prometheus.HistogramVec
	confirmationTotal   *prometheus.CounterVec
	pollRounds          *prometheus.HistogramVec
	statusQueryFailures *prometheus.CounterVec
	consistencyFaults   prometheus.Counter

	// Comparison
	compensationDelay *prometheus.HistogramVec
	landedSlotDelta   *prometheus.HistogramVec

	// Stats sinks
	sinkPublishesTotal *prometheus.CounterVec
	sinkPublishLatency *prometheus.HistogramVec

	// Workflows
	workflowDuration *prometheus.HistogramVec
	activityDuration *prometheus.HistogramVec

	// Database
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rpc_calls_total",
				Help: "Total number of RPC calls by method, status and endpoint",
			},
			[]string{"method", "status", "endpoint"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"method", "endpoint"},
		),
		rpcRateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rpc_rate_limit_hits_total",
				Help: "Total number of RPC responses rejected with 429",
			},
			[]string{"endpoint"},
		),

		sendOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_send_outcomes_total",
				Help: "Transaction submissions by endpoint and outcome kind",
			},
			[]string{"endpoint", "kind"},
		),
		slotsPassed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_slots_passed_during_send",
				Help:    "Slot advances observed while a bulk burst was being submitted",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
			[]string{"endpoint"},
		),
		alignAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_slot_align_iterations",
				Help:    "Slot queries needed to catch a slot boundary",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100, 500},
			},
			[]string{"endpoint"},
		),
		alignFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_slot_align_failures_total",
				Help: "Slot alignments that exhausted their iteration budget",
			},
			[]string{"endpoint"},
		),

		confirmationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_confirmation_latency_seconds",
				Help:    "Time from start of polling to observed confirmation",
				Buckets: []float64{0.2, 0.4, 0.8, 1.2, 1.6, 2.4, 3.2, 5, 10, 20},
			},
			[]string{"endpoint", "level"},
		),
		confirmationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_confirmations_total",
				Help: "Terminal confirmation records by endpoint and kind",
			},
			[]string{"endpoint", "kind"},
		),
		pollRounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_confirmation_poll_rounds",
				Help:    "Polling rounds used to drain a batch",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
			},
			[]string{"endpoint"},
		),
		statusQueryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_status_query_failures_total",
				Help: "Status queries that failed and were retried on the next round",
			},
			[]string{"endpoint"},
		),
		consistencyFaults: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_consistency_faults_total",
				Help: "Internal tracking invariant violations",
			},
		),

		compensationDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_compensation_delay_seconds",
				Help:    "Delay applied before dispatch to offset round-trip asymmetry",
				Buckets: []float64{0, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"endpoint"},
		),
		landedSlotDelta: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_landed_slot_delta",
				Help:    "Landed slot minus sent slot for compared transactions",
				Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 16, 32},
			},
			[]string{"endpoint"},
		),

		sinkPublishesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_stats_sink_publishes_total",
				Help: "Stats reports forwarded to external sinks",
			},
			[]string{"sink", "status"},
		),
		sinkPublishLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_stats_sink_publish_duration_seconds",
				Help:    "Duration of stats sink publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"sink"},
		),

		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_workflow_duration_seconds",
				Help:    "Duration of benchmark workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"workflow", "status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_activity_duration_seconds",
				Help:    "Duration of benchmark activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
	}
}

// RPC metric helpers

// RecordRPCCall records an RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.rpcCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.rpcRateLimited.WithLabelValues(endpoint).Inc()
}

// Dispatch metric helpers

// RecordSendOutcome records one submission result. kind is "accepted" or a send error kind.
func (m *Metrics) RecordSendOutcome(endpoint, kind string) {
	m.sendOutcomesTotal.WithLabelValues(endpoint, kind).Inc()
}

// RecordSlotsPassed records how many slots advanced during a bulk burst.
func (m *Metrics) RecordSlotsPassed(endpoint string, slots uint64) {
	m.slotsPassed.WithLabelValues(endpoint).Observe(float64(slots))
}

// RecordSlotAlignment records the outcome of a slot alignment attempt.
func (m *Metrics) RecordSlotAlignment(endpoint string, iterations int, err error) {
	if err != nil {
		m.alignFailures.WithLabelValues(endpoint).Inc()
		return
	}
	m.alignAttempts.WithLabelValues(endpoint).Observe(float64(iterations))
}

// Confirmation metric helpers

// RecordConfirmation records a successful confirmation and its latency.
func (m *Metrics) RecordConfirmation(endpoint, level string, seconds float64) {
	m.confirmationLatency.WithLabelValues(endpoint, level).Observe(seconds)
	m.confirmationTotal.WithLabelValues(endpoint, "success").Inc()
}

// RecordConfirmationTimeouts records signatures that never reached the threshold.
func (m *Metrics) RecordConfirmationTimeouts(endpoint string, count int) {
	m.confirmationTotal.WithLabelValues(endpoint, "timeout").Add(float64(count))
}

// RecordPollRounds records the rounds used to drain a batch.
func (m *Metrics) RecordPollRounds(endpoint string, rounds int) {
	m.pollRounds.WithLabelValues(endpoint).Observe(float64(rounds))
}

// RecordStatusQueryFailure records a status query that will be retried.
func (m *Metrics) RecordStatusQueryFailure(endpoint string) {
	m.statusQueryFailures.WithLabelValues(endpoint).Inc()
}

// RecordConsistencyFault records an internal invariant violation.
func (m *Metrics) RecordConsistencyFault() {
	m.consistencyFaults.Inc()
}

// Comparison metric helpers

// RecordCompensationDelay records the hold-back applied to one endpoint.
func (m *Metrics) RecordCompensationDelay(endpoint string, seconds float64) {
	m.compensationDelay.WithLabelValues(endpoint).Observe(seconds)
}

// RecordLandedSlotDelta records how many slots after sending a transaction landed.
func (m *Metrics) RecordLandedSlotDelta(endpoint string, delta uint64) {
	m.landedSlotDelta.WithLabelValues(endpoint).Observe(float64(delta))
}

// Stats sink metric helpers

// RecordSinkPublish records one publish to an external stats sink.
func (m *Metrics) RecordSinkPublish(sink, status string, duration float64) {
	m.sinkPublishesTotal.WithLabelValues(sink, status).Inc()
	m.sinkPublishLatency.WithLabelValues(sink).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(workflow, status string, duration float64) {
	m.workflowDuration.WithLabelValues(workflow, status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
