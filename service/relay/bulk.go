package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// SendAndConfirmBulk optionally waits for a fresh slot, fires txs at ep, polls
// the accepted signatures to a terminal state and aggregates the results.
// Any send failure aborts before polling with a *SendFailedError.
func (b *Bench) SendAndConfirmBulk(ctx context.Context, ep Endpoint, txs []*solana.Transaction) (*BulkReport, error) {
	report := &BulkReport{
		RunID:     uuid.New(),
		Endpoint:  ep.Name(),
		StartedAt: time.Now(),
	}
	logger := b.logger.With("run_id", report.RunID.String(), "endpoint", ep.Name())

	var slotSent *uint64
	if b.cfg.AlignToSlot {
		snap, err := b.aligner.AlignToSlotStart(ctx, ep)
		if err != nil {
			return nil, err
		}
		slotSent = &snap.Slot
	}

	sent, err := b.dispatcher.Dispatch(ctx, ep, txs, slotSent)
	if err != nil {
		return nil, err
	}
	report.SlotSent = sent.SlotSent
	report.SlotAfterSend = sent.SlotAfterSend
	report.SlotsPassed = sent.SlotsPassed
	report.SendElapsed = sent.Elapsed

	batch, err := b.poller.AwaitBatch(ctx, ep, sent.Signatures(), sent.SlotSent)
	if err != nil {
		return nil, err
	}
	report.Rounds = batch.Rounds
	report.PollElapsed = batch.Elapsed

	results, err := Aggregate(sent.Outcomes, batch.Records)
	if err != nil {
		logger.ErrorContext(ctx, "failed to aggregate results", "error", err)
		if b.metrics != nil {
			b.metrics.RecordConsistencyFault()
		}
		return nil, err
	}
	report.Results = results
	report.Counts = Summarize(results)

	logger.InfoContext(ctx, "bulk run finished",
		"sent", report.Counts.Sent,
		"failed", report.Counts.Failed,
		"confirmed", report.Counts.Confirmed,
		"timed_out", report.Counts.TimedOut,
		"rounds", report.Rounds,
	)

	b.forward(ctx, StatsFromReport(report)...)

	if b.store != nil {
		if err := b.store.SaveBulkReport(ctx, report); err != nil {
			return report, fmt.Errorf("%w: bulk report %s: %w", ErrSaveFailed, report.RunID, err)
		}
	}
	return report, nil
}
