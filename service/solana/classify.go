package solana

import (
	"regexp"

	"github.com/brojonat/slotrelay/service/relay"
)

// Error messages returned by the transaction processor, see
// https://github.com/anza-xyz/agave/blob/master/sdk/src/transaction/error.rs
var (
	errAccountInUse               = regexp.MustCompile(`Account in use`)
	errAccountLoadedTwice         = regexp.MustCompile(`Account loaded twice`)
	errAccountNotFound            = regexp.MustCompile(`Attempt to debit an account but found no record of a prior credit\.`)
	errProgramAccountNotFound     = regexp.MustCompile(`Attempt to load a program that does not exist`)
	errInsufficientFundsForFee    = regexp.MustCompile(`Insufficient funds for fee`)
	errInsufficientFundsForRent   = regexp.MustCompile(`Transaction results in an account \(\d+\) with insufficient funds for rent`)
	errAlreadyProcessed           = regexp.MustCompile(`This transaction has already been processed`)
	errBlockhashNotFound          = regexp.MustCompile(`Blockhash not found`)
	errInstructionError           = regexp.MustCompile(`Error processing Instruction \d+: .+`)
	errSignatureFailure           = regexp.MustCompile(`Transaction did not pass signature verification`)
	errSanitizeFailure            = regexp.MustCompile(`Transaction failed to sanitize accounts offsets correctly`)
	errClusterMaintenance         = regexp.MustCompile(`Transactions are currently disabled due to cluster maintenance`)
	errWouldExceedMaxBlockCost    = regexp.MustCompile(`Transaction would exceed max Block Cost Limit`)
	errWouldExceedMaxAccountCost  = regexp.MustCompile(`Transaction would exceed max account limit within the block`)
	errDuplicateInstruction       = regexp.MustCompile(`Transaction contains a duplicate instruction \(\d+\) that is not allowed`)
	errUnsupportedVersion         = regexp.MustCompile(`Transaction version is unsupported`)
	errTooManyAccountLocks        = regexp.MustCompile(`Transaction locked too many accounts`)
	errRateLimited                = regexp.MustCompile(`429|Too Many Requests`)
	errNodeUnhealthy              = regexp.MustCompile(`Node is (behind|unhealthy)`)
	errInvalidAccountForFee       = regexp.MustCompile(`This account may not be used to pay transaction fees`)
	errInvalidProgramForExecution = regexp.MustCompile(`This program may not be used for executing instructions`)
)

// patterns are checked in order; the first match wins.
var patterns = []struct {
	re   *regexp.Regexp
	kind relay.SendErrorKind
}{
	{errAlreadyProcessed, relay.SendErrorAlreadyProcessed},
	{errBlockhashNotFound, relay.SendErrorBlockhashNotFound},
	{errInsufficientFundsForFee, relay.SendErrorInsufficientFunds},
	{errInsufficientFundsForRent, relay.SendErrorInsufficientFunds},
	{errProgramAccountNotFound, relay.SendErrorFatal},
	{errSignatureFailure, relay.SendErrorFatal},
	{errSanitizeFailure, relay.SendErrorFatal},
	{errDuplicateInstruction, relay.SendErrorFatal},
	{errUnsupportedVersion, relay.SendErrorFatal},
	{errInvalidAccountForFee, relay.SendErrorFatal},
	{errAccountInUse, relay.SendErrorRetryable},
	{errAccountLoadedTwice, relay.SendErrorRetryable},
	{errAccountNotFound, relay.SendErrorRetryable},
	{errInstructionError, relay.SendErrorRetryable},
	{errClusterMaintenance, relay.SendErrorRetryable},
	{errWouldExceedMaxBlockCost, relay.SendErrorRetryable},
	{errWouldExceedMaxAccountCost, relay.SendErrorRetryable},
	{errTooManyAccountLocks, relay.SendErrorRetryable},
	{errInvalidProgramForExecution, relay.SendErrorRetryable},
	{errRateLimited, relay.SendErrorRetryable},
	{errNodeUnhealthy, relay.SendErrorRetryable},
}

// ClassifySendError maps an RPC send error to a relay.SendError.
// Unrecognized messages are classified as unknown.
func ClassifySendError(err error) *relay.SendError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, p := range patterns {
		if p.re.MatchString(msg) {
			return &relay.SendError{Kind: p.kind, Err: err}
		}
	}
	return &relay.SendError{Kind: relay.SendErrorUnknown, Err: err}
}
