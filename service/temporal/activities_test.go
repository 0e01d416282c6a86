package temporal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/slotrelay/service/relay"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// MockBench mocks BenchRunner.
type MockBench struct {
	mock.Mock
}

func (m *MockBench) SendAndConfirmBulk(ctx context.Context, ep relay.Endpoint, txs []*solanago.Transaction) (*relay.BulkReport, error) {
	args := m.Called(ctx, ep, txs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.BulkReport), args.Error(1)
}

func (m *MockBench) CompareRound(ctx context.Context, epA, epB relay.Endpoint, runID uuid.UUID, round int, newTx relay.TxFactory) (*relay.ComparisonResult, error) {
	args := m.Called(ctx, epA, epB, runID, round)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.ComparisonResult), args.Error(1)
}

// namedEndpoint satisfies relay.Endpoint; only Name is used by the activities.
type namedEndpoint struct {
	relay.Endpoint
	name string
}

func (e *namedEndpoint) Name() string { return e.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func countingFactory(built *int) relay.TxFactory {
	return func(ctx context.Context, ep relay.Endpoint) (*solanago.Transaction, error) {
		*built++
		var sig solanago.Signature
		sig[0] = byte(*built)
		return &solanago.Transaction{Signatures: []solanago.Signature{sig}}, nil
	}
}

func newTestActivities(bench BenchRunner, factory relay.TxFactory) (*Activities, relay.Endpoint, relay.Endpoint) {
	epA := &namedEndpoint{name: "rpc-a"}
	epB := &namedEndpoint{name: "rpc-b"}
	return NewActivities(bench, EndpointsByName(epA, epB), factory, nil, discardLogger()), epA, epB
}

func TestRunBulkBench(t *testing.T) {
	bench := &MockBench{}
	built := 0
	acts, epA, _ := newTestActivities(bench, countingFactory(&built))

	runID := uuid.New()
	bench.On("SendAndConfirmBulk", mock.Anything, epA, mock.MatchedBy(func(txs []*solanago.Transaction) bool {
		return len(txs) == 3
	})).Return(&relay.BulkReport{
		RunID:       runID,
		Endpoint:    "rpc-a",
		SlotsPassed: 1,
		Rounds:      2,
		Counts:      relay.Counts{Sent: 3, Confirmed: 3},
	}, nil)

	result, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "rpc-a", TxCount: 3})

	require.NoError(t, err)
	assert.Equal(t, runID.String(), result.RunID)
	assert.Equal(t, 3, result.Counts.Confirmed)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, 3, built)
	bench.AssertExpectations(t)
}

func TestRunBulkBench_UnknownEndpoint(t *testing.T) {
	built := 0
	acts, _, _ := newTestActivities(&MockBench{}, countingFactory(&built))

	_, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "nope", TxCount: 1})

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeUnknownEndpoint, appErr.Type())
	assert.True(t, appErr.NonRetryable())
	assert.Zero(t, built)
}

func TestRunBulkBench_InvalidCount(t *testing.T) {
	built := 0
	acts, _, _ := newTestActivities(&MockBench{}, countingFactory(&built))

	_, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "rpc-a", TxCount: 0})

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestRunBulkBench_SendFailureIsNonRetryable(t *testing.T) {
	bench := &MockBench{}
	built := 0
	acts, _, _ := newTestActivities(bench, countingFactory(&built))

	bench.On("SendAndConfirmBulk", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &relay.SendFailedError{Failed: 1, Total: 2})

	_, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "rpc-a", TxCount: 2})

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeSendFailed, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestRunBulkBench_TransientErrorIsRetryable(t *testing.T) {
	bench := &MockBench{}
	built := 0
	acts, _, _ := newTestActivities(bench, countingFactory(&built))

	bench.On("SendAndConfirmBulk", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, relay.ErrSlotDetectionTimeout)

	_, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "rpc-a", TxCount: 1})

	assert.ErrorIs(t, err, relay.ErrSlotDetectionTimeout)
	var appErr *temporalsdk.ApplicationError
	assert.False(t, errors.As(err, &appErr))
}

func TestRunBulkBench_SaveFailureReturnsSummary(t *testing.T) {
	bench := &MockBench{}
	built := 0
	acts, _, _ := newTestActivities(bench, countingFactory(&built))

	runID := uuid.New()
	bench.On("SendAndConfirmBulk", mock.Anything, mock.Anything, mock.Anything).Return(&relay.BulkReport{
		RunID:    runID,
		Endpoint: "rpc-a",
		Counts:   relay.Counts{Sent: 2, Confirmed: 2},
	}, fmt.Errorf("%w: bulk report: %w", relay.ErrSaveFailed, errors.New("connection reset")))

	result, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "rpc-a", TxCount: 2})

	require.NoError(t, err)
	assert.Equal(t, runID.String(), result.RunID)
	assert.Equal(t, 2, result.Counts.Confirmed)
	bench.AssertNumberOfCalls(t, "SendAndConfirmBulk", 1)
}

func TestClassify_SaveFailureIsNonRetryable(t *testing.T) {
	err := classify(fmt.Errorf("%w: comparison round 1: %w", relay.ErrSaveFailed, errors.New("timeout")))

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeSaveFailed, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestRunBulkBench_FactoryError(t *testing.T) {
	boom := errors.New("no blockhash")
	acts, _, _ := newTestActivities(&MockBench{}, func(ctx context.Context, ep relay.Endpoint) (*solanago.Transaction, error) {
		return nil, boom
	})

	_, err := acts.RunBulkBench(context.Background(), RunBulkBenchInput{Endpoint: "rpc-a", TxCount: 2})

	assert.ErrorIs(t, err, boom)
}

func TestCompareRound(t *testing.T) {
	bench := &MockBench{}
	built := 0
	acts, epA, epB := newTestActivities(bench, countingFactory(&built))

	runID := uuid.New()
	var sig solanago.Signature
	sig[0] = 1
	bench.On("CompareRound", mock.Anything, epA, epB, runID, 4).Return(&relay.ComparisonResult{
		RunID: runID,
		Round: 4,
		A:     relay.LandingResult{Endpoint: "rpc-a", Signature: sig, SlotSent: 100, SlotLanded: 102},
		B:     relay.LandingResult{},
	}, nil)

	result, err := acts.CompareRound(context.Background(), CompareRoundInput{
		EndpointA: "rpc-a",
		EndpointB: "rpc-b",
		RunID:     runID.String(),
		Round:     4,
	})

	require.NoError(t, err)
	assert.Equal(t, "a", result.Winner)
	assert.Equal(t, uint64(102), result.SlotLandedA)
	assert.Zero(t, result.SlotLandedB)
	bench.AssertExpectations(t)
}

func TestCompareRound_SaveFailureReturnsResult(t *testing.T) {
	bench := &MockBench{}
	built := 0
	acts, epA, epB := newTestActivities(bench, countingFactory(&built))

	runID := uuid.New()
	bench.On("CompareRound", mock.Anything, epA, epB, runID, 2).Return(&relay.ComparisonResult{
		RunID: runID,
		Round: 2,
		A:     relay.LandingResult{Endpoint: "rpc-a", SlotSent: 100, SlotLanded: 101},
		B:     relay.LandingResult{Endpoint: "rpc-b", SlotSent: 100, SlotLanded: 101},
	}, fmt.Errorf("%w: comparison round 2: %w", relay.ErrSaveFailed, errors.New("connection reset")))

	result, err := acts.CompareRound(context.Background(), CompareRoundInput{
		EndpointA: "rpc-a",
		EndpointB: "rpc-b",
		RunID:     runID.String(),
		Round:     2,
	})

	require.NoError(t, err)
	assert.Equal(t, "tie", result.Winner)
}

func TestCompareRound_InvalidRunID(t *testing.T) {
	built := 0
	acts, _, _ := newTestActivities(&MockBench{}, countingFactory(&built))

	_, err := acts.CompareRound(context.Background(), CompareRoundInput{
		EndpointA: "rpc-a",
		EndpointB: "rpc-b",
		RunID:     "not-a-uuid",
		Round:     1,
	})

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestEndpointsByName(t *testing.T) {
	got := EndpointsByName(&namedEndpoint{name: "x"}, nil, &namedEndpoint{name: "y"})
	assert.Len(t, got, 2)
	assert.Equal(t, "y", got["y"].Name())
}
