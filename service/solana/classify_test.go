package solana

import (
	"errors"
	"testing"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/stretchr/testify/assert"
)

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		msg  string
		want relay.SendErrorKind
	}{
		{"Transaction simulation failed: This transaction has already been processed", relay.SendErrorAlreadyProcessed},
		{"Transaction simulation failed: Blockhash not found", relay.SendErrorBlockhashNotFound},
		{"Transaction simulation failed: Insufficient funds for fee", relay.SendErrorInsufficientFunds},
		{"Transaction results in an account (0) with insufficient funds for rent", relay.SendErrorInsufficientFunds},
		{"Transaction did not pass signature verification", relay.SendErrorFatal},
		{"Account in use", relay.SendErrorRetryable},
		{"Error processing Instruction 0: custom program error: 0x1", relay.SendErrorRetryable},
		{"HTTP status code: 429 Too Many Requests", relay.SendErrorRetryable},
		{"Node is behind by 42 slots", relay.SendErrorRetryable},
		{"something nobody has seen before", relay.SendErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := errors.New(tt.msg)
			got := ClassifySendError(err)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, err)
		})
	}
}

func TestClassifySendError_Nil(t *testing.T) {
	assert.Nil(t, ClassifySendError(nil))
}
