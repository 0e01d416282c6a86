package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/slotrelay/service/poll"
	"github.com/gagliardetto/solana-go"
)

// AwaitSingle busy-polls the status of one signature until it reaches the
// threshold or timeout elapses. A timeout yields the zero LandingResult and a
// nil error. On confirmation the landed slot is fetched from the transaction
// record, and SendDuration covers the time from the call to confirmation.
func (p *Poller) AwaitSingle(ctx context.Context, ep Endpoint, sig solana.Signature, slotSent uint64, timeout time.Duration) (LandingResult, error) {
	start := time.Now()
	var confirmedAfter time.Duration

	out, err := poll.Run(ctx, poll.Config{
		Schedule: poll.Busy(),
		Deadline: timeout,
	}, func(ctx context.Context, round int) (bool, error) {
		statuses, err := ep.StatusOf(ctx, []solana.Signature{sig})
		if err != nil {
			p.logger.DebugContext(ctx, "status query failed, retrying",
				"endpoint", ep.Name(),
				"signature", sig.String(),
				"error", err,
			)
			if p.metrics != nil {
				p.metrics.RecordStatusQueryFailure(ep.Name())
			}
			return false, nil
		}
		if len(statuses) == 0 || !statuses[0].Satisfies(p.cfg.Threshold) {
			return false, nil
		}
		confirmedAfter = time.Since(start)
		return true, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrDeadlineExceeded) {
			p.logger.InfoContext(ctx, "transaction not confirmed before timeout",
				"endpoint", ep.Name(),
				"signature", sig.String(),
				"timeout_ms", timeout.Milliseconds(),
				"polls", out.Rounds,
			)
			if p.metrics != nil {
				p.metrics.RecordConfirmationTimeouts(ep.Name(), 1)
			}
			return LandingResult{}, nil
		}
		return LandingResult{}, fmt.Errorf("failed to await confirmation of %s: %w", sig, err)
	}

	landed, err := ep.FetchLandedSlot(ctx, sig)
	if err != nil {
		return LandingResult{}, fmt.Errorf("failed to fetch landed slot for %s: %w", sig, err)
	}

	if p.metrics != nil {
		p.metrics.RecordConfirmation(ep.Name(), string(p.cfg.Threshold), confirmedAfter.Seconds())
		if landed >= slotSent {
			p.metrics.RecordLandedSlotDelta(ep.Name(), landed-slotSent)
		}
	}

	return LandingResult{
		Endpoint:     ep.Name(),
		Signature:    sig,
		SlotSent:     slotSent,
		SlotLanded:   landed,
		SendDuration: confirmedAfter,
	}, nil
}
