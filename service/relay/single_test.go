package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitSingle_TimeoutReturnsSentinel(t *testing.T) {
	ep := &fakeEndpoint{
		name: "a",
		status: func(call int, req []solana.Signature) ([]*Status, error) {
			time.Sleep(time.Millisecond)
			return make([]*Status, len(req)), nil
		},
	}
	deadline := 500 * time.Millisecond

	start := time.Now()
	res, err := newTestPoller(fastPollerConfig()).AwaitSingle(context.Background(), ep, testSig(0), 10, deadline)

	require.NoError(t, err)
	assert.True(t, res.IsZero())
	assert.Equal(t, LandingResult{}, res)
	assert.GreaterOrEqual(t, time.Since(start), deadline)
	assert.Greater(t, ep.StatusCalls(), 1)
}

func TestAwaitSingle_Confirmed(t *testing.T) {
	sig := testSig(0)
	ep := &fakeEndpoint{
		name:   "a",
		status: confirmFrom(3, 0),
		landed: map[solana.Signature]uint64{sig: 12},
	}

	res, err := newTestPoller(fastPollerConfig()).AwaitSingle(context.Background(), ep, sig, 10, time.Second)

	require.NoError(t, err)
	assert.False(t, res.IsZero())
	assert.Equal(t, "a", res.Endpoint)
	assert.Equal(t, sig, res.Signature)
	assert.Equal(t, uint64(10), res.SlotSent)
	assert.Equal(t, uint64(12), res.SlotLanded)
	assert.Greater(t, res.SendDuration, time.Duration(0))
	assert.Equal(t, 3, ep.StatusCalls())
}

func TestAwaitSingle_StatusErrorsAreRetried(t *testing.T) {
	sig := testSig(0)
	confirmed := confirmFrom(1, 0)
	ep := &fakeEndpoint{
		name: "a",
		status: func(call int, req []solana.Signature) ([]*Status, error) {
			if call < 3 {
				return nil, errors.New("timeout")
			}
			return confirmed(call, req)
		},
		landed: map[solana.Signature]uint64{sig: 5},
	}

	res, err := newTestPoller(fastPollerConfig()).AwaitSingle(context.Background(), ep, sig, 4, time.Second)

	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.SlotLanded)
}

func TestAwaitSingle_FetchFailure(t *testing.T) {
	fetchErr := errors.New("transaction not found")
	ep := &fakeEndpoint{name: "a", status: confirmFrom(1, 0), fetchErr: fetchErr}

	res, err := newTestPoller(fastPollerConfig()).AwaitSingle(context.Background(), ep, testSig(0), 4, time.Second)

	assert.ErrorIs(t, err, fetchErr)
	assert.True(t, res.IsZero())
}
