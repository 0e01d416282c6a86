package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrSendFailed is returned by bulk dispatch when at least one submission was rejected.
	ErrSendFailed = errors.New("transaction send failed")

	// ErrSlotDetectionTimeout is returned when no clean one-slot advance was observed within the iteration budget.
	ErrSlotDetectionTimeout = errors.New("slot detection timed out")

	// ErrConsistencyFault signals broken tracking logic. It is never a network condition.
	ErrConsistencyFault = errors.New("confirmation tracking consistency fault")

	// ErrUnsignedTransaction is returned for transactions that carry no signature.
	ErrUnsignedTransaction = errors.New("transaction has no signature")

	// ErrSaveFailed wraps a report store error after the benchmark itself completed.
	// The result accompanying it is complete and valid.
	ErrSaveFailed = errors.New("failed to save benchmark result")
)

// SendErrorKind classifies why an endpoint refused a submission.
type SendErrorKind string

const (
	SendErrorRetryable         SendErrorKind = "retryable"
	SendErrorFatal             SendErrorKind = "fatal"
	SendErrorInsufficientFunds SendErrorKind = "insufficient_funds"
	SendErrorAlreadyProcessed  SendErrorKind = "already_processed"
	SendErrorBlockhashNotFound SendErrorKind = "blockhash_not_found"
	SendErrorUnknown           SendErrorKind = "unknown"
)

// SendError is a classified submission failure.
type SendError struct {
	Kind SendErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// AsSendError returns err as a *SendError, classifying it as unknown when the
// endpoint did not classify it already.
func AsSendError(err error) *SendError {
	if err == nil {
		return nil
	}
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: SendErrorUnknown, Err: err}
}

// SendFailedError reports a fail-fast bulk dispatch. Outcomes holds every
// submission result in input order, including the accepted ones.
type SendFailedError struct {
	Failed   int
	Total    int
	Outcomes []SendOutcome
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("%v: %d of %d transactions failed to send", ErrSendFailed, e.Failed, e.Total)
}

func (e *SendFailedError) Unwrap() error {
	return ErrSendFailed
}

func consistencyFault(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistencyFault, fmt.Sprintf(format, args...))
}
