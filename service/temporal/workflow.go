package temporal

import (
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/google/uuid"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// BulkBenchWorkflowInput configures a series of bulk runs against one endpoint.
type BulkBenchWorkflowInput struct {
	Endpoint string        `json:"endpoint"`
	TxCount  int           `json:"tx_count"`
	Runs     int           `json:"runs"`
	Interval time.Duration `json:"interval"` // pause between runs
}

// BulkBenchWorkflowResult aggregates every run in the series.
type BulkBenchWorkflowResult struct {
	Endpoint   string               `json:"endpoint"`
	Runs       []RunBulkBenchResult `json:"runs"`
	Totals     relay.Counts         `json:"totals"`
	FailedRuns int                  `json:"failed_runs"`
	Errors     []string             `json:"errors,omitempty"`
}

// ComparisonWorkflowInput configures a multi-round endpoint comparison.
type ComparisonWorkflowInput struct {
	EndpointA string        `json:"endpoint_a"`
	EndpointB string        `json:"endpoint_b"`
	Rounds    int           `json:"rounds"`
	Interval  time.Duration `json:"interval"` // pause between rounds
}

// ComparisonWorkflowResult tallies round winners.
type ComparisonWorkflowResult struct {
	RunID        string               `json:"run_id"`
	Rounds       []CompareRoundResult `json:"rounds"`
	WinsA        int                  `json:"wins_a"`
	WinsB        int                  `json:"wins_b"`
	Ties         int                  `json:"ties"`
	NoResult     int                  `json:"no_result"`
	FailedRounds int                  `json:"failed_rounds"`
}

// ErrAllRunsFailed is returned when no run or round of a workflow succeeded.
var ErrAllRunsFailed = errors.New("every run failed")

func benchActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeSendFailed, ErrTypeConsistencyFault, ErrTypeUnknownEndpoint},
		},
	}
}

// BulkBenchWorkflow runs Runs bulk send-and-confirm rounds against one endpoint,
// pausing Interval between them. A failed run is recorded and the series
// continues; the workflow fails only if every run failed.
func BulkBenchWorkflow(ctx workflow.Context, input BulkBenchWorkflowInput) (*BulkBenchWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("BulkBenchWorkflow started", "endpoint", input.Endpoint, "runs", input.Runs)

	runs := max(input.Runs, 1)
	result := &BulkBenchWorkflowResult{Endpoint: input.Endpoint}
	ctx = workflow.WithActivityOptions(ctx, benchActivityOptions())

	for i := 0; i < runs; i++ {
		if i > 0 && input.Interval > 0 {
			if err := workflow.Sleep(ctx, input.Interval); err != nil {
				return result, err
			}
		}

		var run *RunBulkBenchResult
		err := workflow.ExecuteActivity(ctx, a.RunBulkBench, RunBulkBenchInput{
			Endpoint: input.Endpoint,
			TxCount:  input.TxCount,
		}).Get(ctx, &run)
		if err != nil {
			logger.Warn("bulk run failed", "run", i+1, "error", err)
			result.FailedRuns++
			result.Errors = append(result.Errors, fmt.Sprintf("run %d: %v", i+1, err))
			continue
		}

		result.Runs = append(result.Runs, *run)
		result.Totals.Sent += run.Counts.Sent
		result.Totals.Failed += run.Counts.Failed
		result.Totals.Confirmed += run.Counts.Confirmed
		result.Totals.TimedOut += run.Counts.TimedOut
	}

	logger.Info("BulkBenchWorkflow completed",
		"endpoint", input.Endpoint,
		"succeeded", len(result.Runs),
		"failed", result.FailedRuns,
		"confirmed", result.Totals.Confirmed,
	)

	if len(result.Runs) == 0 {
		return result, fmt.Errorf("%w: %d bulk runs against %s", ErrAllRunsFailed, result.FailedRuns, input.Endpoint)
	}
	return result, nil
}

// ComparisonWorkflow races the two endpoints for Rounds rounds under one run ID.
// Failed rounds are counted and skipped.
func ComparisonWorkflow(ctx workflow.Context, input ComparisonWorkflowInput) (*ComparisonWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ComparisonWorkflow started",
		"endpoint_a", input.EndpointA,
		"endpoint_b", input.EndpointB,
		"rounds", input.Rounds,
	)

	var runID string
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return uuid.NewString()
	}).Get(&runID); err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	rounds := max(input.Rounds, 1)
	result := &ComparisonWorkflowResult{RunID: runID}
	ctx = workflow.WithActivityOptions(ctx, benchActivityOptions())

	for round := 1; round <= rounds; round++ {
		if round > 1 && input.Interval > 0 {
			if err := workflow.Sleep(ctx, input.Interval); err != nil {
				return result, err
			}
		}

		var rr *CompareRoundResult
		err := workflow.ExecuteActivity(ctx, a.CompareRound, CompareRoundInput{
			EndpointA: input.EndpointA,
			EndpointB: input.EndpointB,
			RunID:     runID,
			Round:     round,
		}).Get(ctx, &rr)
		if err != nil {
			logger.Warn("comparison round failed", "round", round, "error", err)
			result.FailedRounds++
			continue
		}

		result.Rounds = append(result.Rounds, *rr)
		switch rr.Winner {
		case "a":
			result.WinsA++
		case "b":
			result.WinsB++
		case "tie":
			result.Ties++
		default:
			result.NoResult++
		}
	}

	logger.Info("ComparisonWorkflow completed",
		"run_id", runID,
		"wins_a", result.WinsA,
		"wins_b", result.WinsB,
		"ties", result.Ties,
		"failed_rounds", result.FailedRounds,
	)

	if len(result.Rounds) == 0 {
		return result, fmt.Errorf("%w: %d comparison rounds", ErrAllRunsFailed, result.FailedRounds)
	}
	return result, nil
}
