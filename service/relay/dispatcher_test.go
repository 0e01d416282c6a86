package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(DefaultSubmitOpts(), nil, testLogger())
}

func TestDispatch_AllAccepted(t *testing.T) {
	ep := &fakeEndpoint{name: "a", slots: []uint64{100, 102}}
	txs := testTxs(4)

	res, err := newTestDispatcher().Dispatch(context.Background(), ep, txs, nil)

	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)
	for i, o := range res.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, testSig(i), o.Signature)
		assert.True(t, o.Accepted())
	}
	assert.Equal(t, 4, res.Accepted)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, uint64(100), res.SlotSent)
	assert.Equal(t, uint64(102), res.SlotAfterSend)
	assert.Equal(t, uint64(2), res.SlotsPassed)
	assert.Equal(t, testSigs(4), res.Signatures())
	assert.ElementsMatch(t, testSigs(4), ep.submitted)
}

func TestDispatch_UsesAlignedSlot(t *testing.T) {
	ep := &fakeEndpoint{name: "a", slots: []uint64{51}}
	aligned := uint64(50)

	res, err := newTestDispatcher().Dispatch(context.Background(), ep, testTxs(2), &aligned)

	require.NoError(t, err)
	assert.Equal(t, uint64(50), res.SlotSent)
	assert.Equal(t, uint64(1), res.SlotsPassed)
	// only the post-burst slot query
	assert.Equal(t, 1, ep.SlotCalls())
}

func TestDispatch_FailFast(t *testing.T) {
	txs := testTxs(5)
	rejected := &SendError{Kind: SendErrorInsufficientFunds, Err: errors.New("insufficient funds for fee")}
	ep := &fakeEndpoint{
		name:   "a",
		slots:  []uint64{100, 100},
		reject: map[solana.Signature]error{testSig(2): rejected},
	}

	res, err := newTestDispatcher().Dispatch(context.Background(), ep, txs, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendFailed))

	var sendErr *SendFailedError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, 1, sendErr.Failed)
	assert.Equal(t, 5, sendErr.Total)
	require.Len(t, sendErr.Outcomes, 5)
	assert.Equal(t, rejected, sendErr.Outcomes[2].Err)
	assert.Equal(t, testSig(2), sendErr.Outcomes[2].Signature)

	require.NotNil(t, res)
	assert.Equal(t, 4, res.Accepted)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Signatures(), 4)
}

func TestDispatch_UnclassifiedErrorBecomesUnknown(t *testing.T) {
	ep := &fakeEndpoint{
		name:   "a",
		slots:  []uint64{7},
		reject: map[solana.Signature]error{testSig(0): errors.New("connection reset")},
	}

	_, err := newTestDispatcher().Dispatch(context.Background(), ep, testTxs(1), nil)

	var sendErr *SendFailedError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, SendErrorUnknown, sendErr.Outcomes[0].Err.Kind)
}

func TestDispatch_UnsignedTransaction(t *testing.T) {
	ep := &fakeEndpoint{name: "a", slots: []uint64{7}}
	txs := append(testTxs(2), &solana.Transaction{})

	_, err := newTestDispatcher().Dispatch(context.Background(), ep, txs, nil)

	assert.ErrorIs(t, err, ErrUnsignedTransaction)
	assert.Empty(t, ep.submitted)
	assert.Equal(t, 0, ep.SlotCalls())
}

func TestDispatch_SlotQueryBeforeSendFails(t *testing.T) {
	ep := &fakeEndpoint{name: "a"}

	_, err := newTestDispatcher().Dispatch(context.Background(), ep, testTxs(2), nil)

	assert.ErrorIs(t, err, errSlotQuery)
	assert.Empty(t, ep.submitted)
}
