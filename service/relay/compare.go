package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/slotrelay/service/poll"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TxFactory builds a fresh signed transaction destined for ep.
type TxFactory func(ctx context.Context, ep Endpoint) (*solana.Transaction, error)

// CompareConfirmationSlot races txA against epA and txB against epB. Each leg
// sleeps its compensation delay, records the current slot, submits and waits
// for confirmation. A failed or timed-out leg yields the zero LandingResult
// rather than failing the comparison.
func (b *Bench) CompareConfirmationSlot(ctx context.Context, epA, epB Endpoint, txA, txB *solana.Transaction) (*ComparisonResult, error) {
	rttA, err := MeasureRoundTrip(ctx, epA)
	if err != nil {
		return nil, err
	}
	rttB, err := MeasureRoundTrip(ctx, epB)
	if err != nil {
		return nil, err
	}
	delayA, delayB := Compensate(rttA, rttB)

	b.logger.DebugContext(ctx, "latency compensation",
		"endpoint_a", epA.Name(),
		"endpoint_b", epB.Name(),
		"rtt_a_ms", rttA.Milliseconds(),
		"rtt_b_ms", rttB.Milliseconds(),
		"delay_a_us", delayA.Microseconds(),
		"delay_b_us", delayB.Microseconds(),
	)
	if b.metrics != nil {
		b.metrics.RecordCompensationDelay(epA.Name(), delayA.Seconds())
		b.metrics.RecordCompensationDelay(epB.Name(), delayB.Seconds())
	}

	result := &ComparisonResult{
		RunID:     uuid.New(),
		Round:     1,
		StartedAt: time.Now(),
		RTTA:      rttA,
		RTTB:      rttB,
		DelayA:    delayA,
		DelayB:    delayB,
	}

	var g errgroup.Group
	g.Go(func() error {
		result.A = b.leg(ctx, epA, txA, delayA)
		return nil
	})
	g.Go(func() error {
		result.B = b.leg(ctx, epB, txB, delayB)
		return nil
	})
	_ = g.Wait()

	b.logger.InfoContext(ctx, "comparison round finished",
		"endpoint_a", epA.Name(),
		"endpoint_b", epB.Name(),
		"a_slot", result.A.SlotLanded,
		"b_slot", result.B.SlotLanded,
	)

	for _, leg := range []LandingResult{result.A, result.B} {
		if stat, ok := StatFromLanding(leg); ok {
			b.forward(ctx, stat)
		}
	}
	return result, nil
}

func (b *Bench) leg(ctx context.Context, ep Endpoint, tx *solana.Transaction, delay time.Duration) LandingResult {
	fail := func(stage string, err error) LandingResult {
		b.logger.ErrorContext(ctx, "comparison leg failed",
			"endpoint", ep.Name(),
			"stage", stage,
			"error", err,
		)
		return LandingResult{}
	}

	if tx == nil || len(tx.Signatures) == 0 {
		return fail("validate", ErrUnsignedTransaction)
	}
	if err := poll.Sleep(ctx, delay); err != nil {
		return fail("delay", err)
	}
	slotSent, err := ep.CurrentSlot(ctx)
	if err != nil {
		return fail("slot", err)
	}
	sig, err := ep.Submit(ctx, tx, b.cfg.Submit)
	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordSendOutcome(ep.Name(), string(AsSendError(err).Kind))
		}
		return fail("submit", err)
	}
	if b.metrics != nil {
		b.metrics.RecordSendOutcome(ep.Name(), "accepted")
	}
	res, err := b.poller.AwaitSingle(ctx, ep, sig, slotSent, b.cfg.ConfirmTimeout)
	if err != nil {
		return fail("confirm", err)
	}
	return res
}

// RunComparisonRounds runs rounds comparisons with fresh transactions from
// newTx each round. All rounds share one run ID.
func (b *Bench) RunComparisonRounds(ctx context.Context, epA, epB Endpoint, rounds int, newTx TxFactory) ([]*ComparisonResult, error) {
	return b.RunComparisonRoundsWithin(ctx, epA, epB, rounds, 0, newTx)
}

// RunComparisonRoundsWithin is RunComparisonRounds with a time budget: once
// budget has elapsed no further round is started, but a round already in
// flight runs to completion. The first round always runs. A zero budget
// means no limit.
func (b *Bench) RunComparisonRoundsWithin(ctx context.Context, epA, epB Endpoint, rounds int, budget time.Duration, newTx TxFactory) ([]*ComparisonResult, error) {
	runID := uuid.New()
	results := make([]*ComparisonResult, 0, rounds)
	start := time.Now()

	for round := 1; round <= rounds; round++ {
		if budget > 0 && round > 1 && time.Since(start) >= budget {
			b.logger.InfoContext(ctx, "comparison time budget spent, skipping remaining rounds",
				"run_id", runID,
				"completed", len(results),
				"requested", rounds,
				"budget", budget,
			)
			break
		}
		res, err := b.CompareRound(ctx, epA, epB, runID, round, newTx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// CompareRound builds one transaction per endpoint, races them and saves the
// result under runID and round when a report store is set.
func (b *Bench) CompareRound(ctx context.Context, epA, epB Endpoint, runID uuid.UUID, round int, newTx TxFactory) (*ComparisonResult, error) {
	txA, err := newTx(ctx, epA)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction for %s: %w", epA.Name(), err)
	}
	txB, err := newTx(ctx, epB)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction for %s: %w", epB.Name(), err)
	}

	res, err := b.CompareConfirmationSlot(ctx, epA, epB, txA, txB)
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", round, err)
	}
	res.RunID = runID
	res.Round = round

	if b.store != nil {
		if err := b.store.SaveComparison(ctx, res); err != nil {
			return res, fmt.Errorf("%w: comparison round %d: %w", ErrSaveFailed, round, err)
		}
	}
	return res, nil
}
