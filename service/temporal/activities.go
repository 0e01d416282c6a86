package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/relay"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Application error types that are never retried. Retrying a fail-fast send
// would resend the accepted transactions; a consistency fault is a bug.
const (
	ErrTypeSendFailed       = "SendFailed"
	ErrTypeConsistencyFault = "ConsistencyFault"
	ErrTypeUnknownEndpoint  = "UnknownEndpoint"
	ErrTypeSaveFailed       = "SaveFailed"
)

// RunBulkBenchInput contains parameters for the RunBulkBench activity.
type RunBulkBenchInput struct {
	Endpoint string `json:"endpoint"`
	TxCount  int    `json:"tx_count"`
}

// RunBulkBenchResult summarizes one bulk run. The full report lives in the store.
type RunBulkBenchResult struct {
	RunID       string        `json:"run_id"`
	Endpoint    string        `json:"endpoint"`
	Counts      relay.Counts  `json:"counts"`
	SlotsPassed uint64        `json:"slots_passed"`
	Rounds      int           `json:"rounds"`
	PollElapsed time.Duration `json:"poll_elapsed"`
}

// CompareRoundInput contains parameters for the CompareRound activity.
type CompareRoundInput struct {
	EndpointA string `json:"endpoint_a"`
	EndpointB string `json:"endpoint_b"`
	RunID     string `json:"run_id"`
	Round     int    `json:"round"`
}

// CompareRoundResult summarizes one comparison round.
type CompareRoundResult struct {
	Round       int    `json:"round"`
	Winner      string `json:"winner"`
	SlotSentA   uint64 `json:"slot_sent_a"`
	SlotLandedA uint64 `json:"slot_landed_a"`
	SlotSentB   uint64 `json:"slot_sent_b"`
	SlotLandedB uint64 `json:"slot_landed_b"`
}

// BenchRunner is the part of relay.Bench the activities drive.
// This allows for easy mocking in tests.
type BenchRunner interface {
	SendAndConfirmBulk(ctx context.Context, ep relay.Endpoint, txs []*solanago.Transaction) (*relay.BulkReport, error)
	CompareRound(ctx context.Context, epA, epB relay.Endpoint, runID uuid.UUID, round int, newTx relay.TxFactory) (*relay.ComparisonResult, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	bench     BenchRunner
	endpoints map[string]relay.Endpoint
	newTx     relay.TxFactory
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// endpoints is keyed by relay.Endpoint.Name. If metrics is nil, no metrics
// will be recorded.
func NewActivities(
	bench BenchRunner,
	endpoints map[string]relay.Endpoint,
	newTx relay.TxFactory,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		bench:     bench,
		endpoints: endpoints,
		newTx:     newTx,
		metrics:   m,
		logger:    logger,
	}
}

// RunBulkBench builds TxCount fresh transactions and runs one bulk
// send-and-confirm against the endpoint.
func (a *Activities) RunBulkBench(ctx context.Context, input RunBulkBenchInput) (_ *RunBulkBenchResult, err error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("RunBulkBench", time.Since(start).Seconds(), err)
		}
	}()

	ep, err := a.endpoint(input.Endpoint)
	if err != nil {
		return nil, err
	}
	if input.TxCount < 1 {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("tx_count must be at least 1, got %d", input.TxCount), "InvalidInput", nil)
	}

	a.logger.DebugContext(ctx, "building bulk transactions",
		"endpoint", input.Endpoint,
		"count", input.TxCount,
	)

	txs := make([]*solanago.Transaction, 0, input.TxCount)
	for i := 0; i < input.TxCount; i++ {
		tx, err := a.newTx(ctx, ep)
		if err != nil {
			return nil, fmt.Errorf("failed to build transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	report, err := a.bench.SendAndConfirmBulk(ctx, ep, txs)
	if err != nil && report != nil && errors.Is(err, relay.ErrSaveFailed) {
		// The transactions are already on chain; rerunning would send a new batch.
		a.logger.ErrorContext(ctx, "bulk bench completed but was not saved",
			"endpoint", input.Endpoint,
			"run_id", report.RunID.String(),
			"error", err,
		)
		err = nil
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "bulk bench failed",
			"endpoint", input.Endpoint,
			"error", err,
		)
		return nil, classify(err)
	}

	a.logger.InfoContext(ctx, "bulk bench completed",
		"endpoint", input.Endpoint,
		"run_id", report.RunID.String(),
		"confirmed", report.Counts.Confirmed,
		"timed_out", report.Counts.TimedOut,
	)

	return &RunBulkBenchResult{
		RunID:       report.RunID.String(),
		Endpoint:    report.Endpoint,
		Counts:      report.Counts,
		SlotsPassed: report.SlotsPassed,
		Rounds:      report.Rounds,
		PollElapsed: report.PollElapsed,
	}, nil
}

// CompareRound races one fresh transaction per endpoint and saves the round.
func (a *Activities) CompareRound(ctx context.Context, input CompareRoundInput) (_ *CompareRoundResult, err error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("CompareRound", time.Since(start).Seconds(), err)
		}
	}()

	epA, err := a.endpoint(input.EndpointA)
	if err != nil {
		return nil, err
	}
	epB, err := a.endpoint(input.EndpointB)
	if err != nil {
		return nil, err
	}
	runID, err := uuid.Parse(input.RunID)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid run id %q", input.RunID), "InvalidInput", err)
	}

	res, err := a.bench.CompareRound(ctx, epA, epB, runID, input.Round, a.newTx)
	if err != nil && res != nil && errors.Is(err, relay.ErrSaveFailed) {
		a.logger.ErrorContext(ctx, "comparison round completed but was not saved",
			"run_id", input.RunID,
			"round", input.Round,
			"error", err,
		)
		err = nil
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "comparison round failed",
			"run_id", input.RunID,
			"round", input.Round,
			"error", err,
		)
		return nil, classify(err)
	}

	result := &CompareRoundResult{
		Round:       input.Round,
		Winner:      res.Winner(),
		SlotSentA:   res.A.SlotSent,
		SlotLandedA: res.A.SlotLanded,
		SlotSentB:   res.B.SlotSent,
		SlotLandedB: res.B.SlotLanded,
	}

	a.logger.InfoContext(ctx, "comparison round completed",
		"run_id", input.RunID,
		"round", input.Round,
		"winner", result.Winner,
	)
	return result, nil
}

func (a *Activities) endpoint(name string) (relay.Endpoint, error) {
	ep, ok := a.endpoints[name]
	if !ok {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown endpoint %q", name), ErrTypeUnknownEndpoint, nil)
	}
	return ep, nil
}

// classify marks errors that must not be retried.
func classify(err error) error {
	switch {
	case errors.Is(err, relay.ErrSendFailed):
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeSendFailed, err)
	case errors.Is(err, relay.ErrConsistencyFault):
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeConsistencyFault, err)
	case errors.Is(err, relay.ErrSaveFailed):
		return temporalsdk.NewNonRetryableApplicationError(err.Error(), ErrTypeSaveFailed, err)
	}
	return err
}
