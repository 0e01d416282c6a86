package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/relay"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Bench     BenchRunner
	Endpoints []relay.Endpoint
	TxFactory relay.TxFactory
	Metrics   *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	// Bench runs hammer the RPC endpoints; keep concurrency low so runs don't
	// skew each other's slot measurements.
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     2,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(BulkBenchWorkflow)
	w.RegisterWorkflow(ComparisonWorkflow)
	logger.Info("registered workflows", "workflows", []string{"BulkBenchWorkflow", "ComparisonWorkflow"})

	activities := NewActivities(
		config.Bench,
		EndpointsByName(config.Endpoints...),
		config.TxFactory,
		config.Metrics,
		logger,
	)

	w.RegisterActivity(activities.RunBulkBench)
	w.RegisterActivity(activities.CompareRound)

	logger.Info("registered activities",
		"activities", []string{"RunBulkBench", "CompareRound"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// EndpointsByName indexes endpoints by their Name.
func EndpointsByName(endpoints ...relay.Endpoint) map[string]relay.Endpoint {
	out := make(map[string]relay.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		if ep != nil {
			out[ep.Name()] = ep
		}
	}
	return out
}

// Start begins processing workflows and activities.
// This method blocks until an interrupt signal is received or an error occurs.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
