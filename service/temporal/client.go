package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"go.temporal.io/sdk/client"
)

// Client starts bench workflows and manages recurring bench schedules.
type Client struct {
	client    client.Client
	taskQueue string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClient creates a new Temporal client. If metrics is nil, no workflow
// metrics are recorded.
func NewClient(host, namespace, taskQueue string, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return NewClientFromSDK(c, taskQueue, m, logger), nil
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(c client.Client, taskQueue string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		metrics:   m,
		logger:    logger,
	}
}

// StartBulkBench starts a BulkBenchWorkflow and returns its workflow and run IDs.
func (c *Client) StartBulkBench(ctx context.Context, input BulkBenchWorkflowInput) (string, string, error) {
	id := fmt.Sprintf("bulk-bench-%s-%d", input.Endpoint, time.Now().UnixNano())
	return c.start(ctx, id, BulkBenchWorkflow, input)
}

// StartComparison starts a ComparisonWorkflow and returns its workflow and run IDs.
func (c *Client) StartComparison(ctx context.Context, input ComparisonWorkflowInput) (string, string, error) {
	id := fmt.Sprintf("compare-%s-%s-%d", input.EndpointA, input.EndpointB, time.Now().UnixNano())
	return c.start(ctx, id, ComparisonWorkflow, input)
}

func (c *Client) start(ctx context.Context, id string, workflowFn interface{}, input interface{}) (string, string, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, workflowFn, input)
	if err != nil {
		c.logger.Error("failed to start workflow", "workflow_id", id, "error", err)
		return "", "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.Info("workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), run.GetRunID(), nil
}

// Await blocks until the workflow finishes and decodes its result into out.
// workflowName labels the duration metric.
func (c *Client) Await(ctx context.Context, workflowName, workflowID, runID string, out interface{}) error {
	start := time.Now()
	err := c.client.GetWorkflow(ctx, workflowID, runID).Get(ctx, out)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordWorkflowDuration(workflowName, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("workflow %q failed: %w", workflowID, err)
	}
	return nil
}

// WorkflowStatus is a point-in-time view of a workflow execution.
type WorkflowStatus struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
}

// DescribeWorkflow returns the status of the latest run of a workflow.
func (c *Client) DescribeWorkflow(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	resp, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to describe workflow %q: %w", workflowID, err)
	}

	info := resp.GetWorkflowExecutionInfo()
	status := &WorkflowStatus{
		WorkflowID: info.GetExecution().GetWorkflowId(),
		RunID:      info.GetExecution().GetRunId(),
		Type:       info.GetType().GetName(),
		Status:     info.GetStatus().String(),
	}
	if info.GetStartTime() != nil {
		status.StartTime = info.GetStartTime().AsTime()
	}
	if info.GetCloseTime() != nil {
		closed := info.GetCloseTime().AsTime()
		status.CloseTime = &closed
	}
	return status, nil
}

// CreateBulkBenchSchedule creates a schedule that starts a BulkBenchWorkflow every interval.
func (c *Client) CreateBulkBenchSchedule(ctx context.Context, input BulkBenchWorkflowInput, every time.Duration) (string, error) {
	id := scheduleID(input.Endpoint)

	c.logger.Debug("creating bulk bench schedule",
		"endpoint", input.Endpoint,
		"schedule_id", id,
		"interval", every,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: every}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "bulk-bench-" + input.Endpoint,
			Workflow:  BulkBenchWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{input},
		},
		Memo: map[string]interface{}{
			"endpoint":   input.Endpoint,
			"tx_count":   input.TxCount,
			"created_by": "slotrelay",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("bulk bench schedule created",
		"endpoint", input.Endpoint,
		"schedule_id", id,
		"interval", every,
	)
	return id, nil
}

// DeleteBulkBenchSchedule deletes the schedule for an endpoint.
func (c *Client) DeleteBulkBenchSchedule(ctx context.Context, endpoint string) error {
	id := scheduleID(endpoint)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("bulk bench schedule deleted", "schedule_id", id)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// scheduleID generates the schedule ID for an endpoint's recurring bulk bench.
func scheduleID(endpoint string) string {
	return "bulk-bench-" + endpoint
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
