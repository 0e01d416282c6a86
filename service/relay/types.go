// Package relay dispatches signed transactions to RPC endpoints and tracks their
// confirmation by polling. It knows nothing about how transactions are built or
// signed; callers hand it finished *solana.Transaction values.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
)

// Endpoint is the set of RPC capabilities the relay needs from a ledger node.
// service/solana.Client is the production implementation.
type Endpoint interface {
	// Name identifies the endpoint in logs, metrics and reports.
	Name() string
	CurrentSlot(ctx context.Context) (uint64, error)
	Health(ctx context.Context) error
	Submit(ctx context.Context, tx *solana.Transaction, opts SubmitOpts) (solana.Signature, error)
	// StatusOf returns one entry per requested signature, in request order.
	// A nil entry means the endpoint has not seen the signature yet.
	StatusOf(ctx context.Context, sigs []solana.Signature) ([]*Status, error)
	FetchLandedSlot(ctx context.Context, sig solana.Signature) (uint64, error)
}

// SubmitOpts controls endpoint-side handling of a submission.
type SubmitOpts struct {
	SkipPreflight bool
	MaxRetries    uint
}

// DefaultSubmitOpts disables preflight and lets the endpoint retransmit three times.
func DefaultSubmitOpts() SubmitOpts {
	return SubmitOpts{SkipPreflight: true, MaxRetries: 3}
}

// Status is an endpoint's view of one signature.
type Status struct {
	Slot  uint64
	Level rpc.ConfirmationStatusType
}

func levelRank(level rpc.ConfirmationStatusType) int {
	switch level {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether the status has reached at least threshold.
func (s *Status) Satisfies(threshold rpc.ConfirmationStatusType) bool {
	if s == nil {
		return false
	}
	return levelRank(s.Level) >= levelRank(threshold)
}

// SendOutcome is the immediate result of submitting one transaction.
type SendOutcome struct {
	Index     int              `json:"index"`
	Signature solana.Signature `json:"signature"`
	Err       *SendError       `json:"error,omitempty"`
}

// Accepted reports whether the endpoint took the transaction.
func (o SendOutcome) Accepted() bool {
	return o.Err == nil
}

// RecordKind is the terminal classification of a tracked transaction.
type RecordKind string

const (
	RecordSuccess   RecordKind = "success"
	RecordTimeout   RecordKind = "timeout"
	RecordSendError RecordKind = "send_error"
)

// ConfirmationRecord is the resolved fate of one signature. Which fields are
// meaningful depends on Kind.
type ConfirmationRecord struct {
	Kind          RecordKind                 `json:"kind"`
	SlotSent      uint64                     `json:"slot_sent,omitempty"`
	SlotConfirmed uint64                     `json:"slot_confirmed,omitempty"`
	Level         rpc.ConfirmationStatusType `json:"level,omitempty"`
	Elapsed       time.Duration              `json:"elapsed,omitempty"`
	SendErr       *SendError                 `json:"send_error,omitempty"`
}

func Success(slotSent, slotConfirmed uint64, level rpc.ConfirmationStatusType, elapsed time.Duration) ConfirmationRecord {
	return ConfirmationRecord{
		Kind:          RecordSuccess,
		SlotSent:      slotSent,
		SlotConfirmed: slotConfirmed,
		Level:         level,
		Elapsed:       elapsed,
	}
}

func Timeout(elapsed time.Duration) ConfirmationRecord {
	return ConfirmationRecord{Kind: RecordTimeout, Elapsed: elapsed}
}

func SendFailure(err *SendError) ConfirmationRecord {
	return ConfirmationRecord{Kind: RecordSendError, SendErr: err}
}

// SlotSnapshot is one observation of an endpoint's current slot.
type SlotSnapshot struct {
	Slot       uint64    `json:"slot"`
	ObservedAt time.Time `json:"observed_at"`
}

// TxResult is the aggregated outcome for one input transaction.
type TxResult struct {
	Index     int                `json:"index"`
	Signature solana.Signature   `json:"signature"`
	Record    ConfirmationRecord `json:"record"`
}

// Counts summarizes a batch.
type Counts struct {
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Confirmed int `json:"confirmed"`
	TimedOut  int `json:"timed_out"`
}

// BulkReport is the full result of one send-and-confirm run against a single endpoint.
type BulkReport struct {
	RunID         uuid.UUID     `json:"run_id"`
	Endpoint      string        `json:"endpoint"`
	StartedAt     time.Time     `json:"started_at"`
	SlotSent      uint64        `json:"slot_sent"`
	SlotAfterSend uint64        `json:"slot_after_send"`
	SlotsPassed   uint64        `json:"slots_passed"`
	Counts        Counts        `json:"counts"`
	Rounds        int           `json:"rounds"`
	SendElapsed   time.Duration `json:"send_elapsed"`
	PollElapsed   time.Duration `json:"poll_elapsed"`
	Results       []TxResult    `json:"results"`
}

// LandingResult is the outcome of one comparison leg. The zero value means
// "no result": the leg timed out or failed.
type LandingResult struct {
	Endpoint     string           `json:"endpoint"`
	Signature    solana.Signature `json:"signature"`
	SlotSent     uint64           `json:"slot_sent"`
	SlotLanded   uint64           `json:"slot_landed"`
	SendDuration time.Duration    `json:"send_duration"`
}

// IsZero reports whether r is the "no result" sentinel.
func (r LandingResult) IsZero() bool {
	return r.Signature == (solana.Signature{}) && r.SlotSent == 0 && r.SlotLanded == 0 && r.SendDuration == 0
}

// ComparisonResult is one round of the two-endpoint race.
type ComparisonResult struct {
	RunID     uuid.UUID     `json:"run_id"`
	Round     int           `json:"round"`
	StartedAt time.Time     `json:"started_at"`
	A         LandingResult `json:"a"`
	B         LandingResult `json:"b"`
	RTTA      time.Duration `json:"rtt_a"`
	RTTB      time.Duration `json:"rtt_b"`
	DelayA    time.Duration `json:"delay_a"`
	DelayB    time.Duration `json:"delay_b"`
}

// Winner names the endpoint whose transaction landed in the earlier slot:
// "a", "b", "tie" when both landed in the same slot, or "none".
func (r *ComparisonResult) Winner() string {
	landedA, landedB := !r.A.IsZero(), !r.B.IsZero()
	switch {
	case landedA && landedB:
		switch {
		case r.A.SlotLanded < r.B.SlotLanded:
			return "a"
		case r.B.SlotLanded < r.A.SlotLanded:
			return "b"
		}
		return "tie"
	case landedA:
		return "a"
	case landedB:
		return "b"
	}
	return "none"
}

type sendErrorJSON struct {
	Kind    SendErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// MarshalJSON flattens the wrapped error to its message so reports can be
// stored and shipped between processes.
func (e *SendError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(sendErrorJSON{Kind: e.Kind, Message: msg})
}

func (e *SendError) UnmarshalJSON(data []byte) error {
	var v sendErrorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	e.Kind = v.Kind
	e.Err = errors.New(v.Message)
	return nil
}
