package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

// Dispatcher submits batches of signed transactions to one endpoint concurrently.
type Dispatcher struct {
	opts    SubmitOpts
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(opts SubmitOpts, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{opts: opts, logger: logger, metrics: m}
}

// DispatchResult describes one burst.
type DispatchResult struct {
	Outcomes      []SendOutcome // input order
	SlotSent      uint64
	SlotAfterSend uint64
	SlotsPassed   uint64
	Accepted      int
	Failed        int
	Elapsed       time.Duration
}

// Signatures returns the accepted signatures in input order.
func (r *DispatchResult) Signatures() []solana.Signature {
	sigs := make([]solana.Signature, 0, r.Accepted)
	for _, o := range r.Outcomes {
		if o.Accepted() {
			sigs = append(sigs, o.Signature)
		}
	}
	return sigs
}

// Dispatch fires every transaction at ep without waiting for confirmation.
// slotSent is the slot to report as the send slot; when nil the endpoint is
// queried right before the burst. If any submission fails, the result is
// returned together with a *SendFailedError and nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, ep Endpoint, txs []*solana.Transaction, slotSent *uint64) (*DispatchResult, error) {
	for i, tx := range txs {
		if tx == nil || len(tx.Signatures) == 0 || tx.Signatures[0] == (solana.Signature{}) {
			return nil, fmt.Errorf("transaction %d: %w", i, ErrUnsignedTransaction)
		}
	}

	result := &DispatchResult{Outcomes: make([]SendOutcome, len(txs))}

	if slotSent != nil {
		result.SlotSent = *slotSent
	} else {
		slot, err := ep.CurrentSlot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read slot before send: %w", err)
		}
		result.SlotSent = slot
	}

	start := time.Now()
	var g errgroup.Group
	for i, tx := range txs {
		g.Go(func() error {
			outcome := SendOutcome{Index: i, Signature: tx.Signatures[0]}
			sig, err := ep.Submit(ctx, tx, d.opts)
			if err != nil {
				outcome.Err = AsSendError(err)
			} else if sig != (solana.Signature{}) {
				outcome.Signature = sig
			}
			// each goroutine owns exactly one slot of the slice
			result.Outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()
	result.Elapsed = time.Since(start)

	after, err := ep.CurrentSlot(ctx)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to read slot after send",
			"endpoint", ep.Name(),
			"error", err,
		)
	} else {
		result.SlotAfterSend = after
		if after > result.SlotSent {
			result.SlotsPassed = after - result.SlotSent
		}
	}

	for _, o := range result.Outcomes {
		kind := "accepted"
		if o.Accepted() {
			result.Accepted++
			d.logger.DebugContext(ctx, "tx sent", "endpoint", ep.Name(), "signature", o.Signature.String())
		} else {
			result.Failed++
			kind = string(o.Err.Kind)
			d.logger.InfoContext(ctx, "tx failed to send",
				"endpoint", ep.Name(),
				"signature", o.Signature.String(),
				"kind", o.Err.Kind,
				"error", o.Err.Err,
			)
		}
		if d.metrics != nil {
			d.metrics.RecordSendOutcome(ep.Name(), kind)
		}
	}
	if d.metrics != nil && err == nil {
		d.metrics.RecordSlotsPassed(ep.Name(), result.SlotsPassed)
	}

	d.logger.InfoContext(ctx, "burst submitted",
		"endpoint", ep.Name(),
		"sent", result.Accepted,
		"failed", result.Failed,
		"elapsed_ms", result.Elapsed.Milliseconds(),
		"slot_sent", result.SlotSent,
		"slots_passed", result.SlotsPassed,
	)

	if result.Failed > 0 {
		d.logger.WarnContext(ctx, "some transactions failed to send",
			"endpoint", ep.Name(),
			"failed", result.Failed,
			"total", len(txs),
		)
		return result, &SendFailedError{Failed: result.Failed, Total: len(txs), Outcomes: result.Outcomes}
	}
	return result, nil
}
