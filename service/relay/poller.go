package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/poll"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// PollerConfig controls confirmation polling.
type PollerConfig struct {
	Interval  time.Duration // batch round N ends N*Interval after polling starts
	MaxRounds int
	Threshold rpc.ConfirmationStatusType
}

// DefaultPollerConfig samples roughly twice per slot for up to 100 rounds and
// treats "confirmed" or better as landed.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:  200 * time.Millisecond,
		MaxRounds: 100,
		Threshold: rpc.ConfirmationStatusConfirmed,
	}
}

// Poller tracks submitted signatures until they reach the confirmation threshold.
type Poller struct {
	cfg     PollerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPoller(cfg PollerConfig, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if cfg.Threshold == "" {
		cfg.Threshold = rpc.ConfirmationStatusConfirmed
	}
	return &Poller{cfg: cfg, logger: logger, metrics: m}
}

// BatchOutcome is the result of draining a batch.
type BatchOutcome struct {
	Records   map[solana.Signature]ConfirmationRecord
	Rounds    int
	Elapsed   time.Duration
	Confirmed int
	TimedOut  int
}

// AwaitBatch polls ep with one status query per round for all still-pending
// signatures. Signatures that never reach the threshold within MaxRounds get a
// Timeout record stamped with the total polling time. A failed status query is
// retried on the next round. Every returned outcome has exactly one record per
// input signature.
func (p *Poller) AwaitBatch(ctx context.Context, ep Endpoint, sigs []solana.Signature, slotSent uint64) (*BatchOutcome, error) {
	t, err := newTracker(sigs)
	if err != nil {
		p.fault(ctx, ep, err)
		return nil, err
	}
	if len(sigs) == 0 {
		return &BatchOutcome{Records: map[solana.Signature]ConfirmationRecord{}}, nil
	}

	start := time.Now()
	out, err := poll.Run(ctx, poll.Config{
		Schedule:  poll.Linear(p.cfg.Interval),
		MaxRounds: p.cfg.MaxRounds,
	}, func(ctx context.Context, round int) (bool, error) {
		if err := t.Check(); err != nil {
			return false, err
		}

		pending := t.Pending()
		p.logger.DebugContext(ctx, "requesting status for remaining batch",
			"endpoint", ep.Name(),
			"remaining", len(pending),
			"round", round,
		)

		statuses, err := ep.StatusOf(ctx, pending)
		if err != nil {
			p.logger.WarnContext(ctx, "status query failed, retrying next round",
				"endpoint", ep.Name(),
				"round", round,
				"error", err,
			)
			if p.metrics != nil {
				p.metrics.RecordStatusQueryFailure(ep.Name())
			}
			return false, nil
		}
		elapsed := time.Since(start)

		n := len(pending)
		if len(statuses) != n {
			p.logger.WarnContext(ctx, "status response length mismatch",
				"endpoint", ep.Name(),
				"requested", n,
				"received", len(statuses),
			)
			n = min(n, len(statuses))
		}

		for i := 0; i < n; i++ {
			st := statuses[i]
			if !st.Satisfies(p.cfg.Threshold) {
				continue
			}
			if err := t.Resolve(pending[i], Success(slotSent, st.Slot, st.Level, elapsed)); err != nil {
				return false, err
			}
			if p.metrics != nil {
				p.metrics.RecordConfirmation(ep.Name(), string(st.Level), elapsed.Seconds())
			}
		}

		return t.PendingCount() == 0, nil
	})

	switch {
	case err == nil:
		p.logger.InfoContext(ctx, "all transactions confirmed",
			"endpoint", ep.Name(),
			"rounds", out.Rounds,
			"elapsed_ms", out.Elapsed.Milliseconds(),
		)
	case errors.Is(err, poll.ErrRoundsExhausted):
		total := time.Since(start)
		remaining := t.Pending()
		p.logger.InfoContext(ctx, "timed out waiting for confirmations",
			"endpoint", ep.Name(),
			"rounds", out.Rounds,
			"remaining", len(remaining),
		)
		for _, sig := range remaining {
			if err := t.Resolve(sig, Timeout(total)); err != nil {
				p.fault(ctx, ep, err)
				return nil, err
			}
		}
		if p.metrics != nil {
			p.metrics.RecordConfirmationTimeouts(ep.Name(), len(remaining))
		}
	case errors.Is(err, ErrConsistencyFault):
		p.fault(ctx, ep, err)
		return nil, err
	default:
		return nil, fmt.Errorf("failed to await confirmations: %w", err)
	}

	if err := t.Check(); err != nil {
		p.fault(ctx, ep, err)
		return nil, err
	}
	records, err := t.Records()
	if err != nil {
		p.fault(ctx, ep, err)
		return nil, err
	}

	result := &BatchOutcome{
		Records: records,
		Rounds:  out.Rounds,
		Elapsed: time.Since(start),
	}
	for _, rec := range records {
		switch rec.Kind {
		case RecordSuccess:
			result.Confirmed++
		case RecordTimeout:
			result.TimedOut++
		}
	}
	if p.metrics != nil {
		p.metrics.RecordPollRounds(ep.Name(), out.Rounds)
	}
	return result, nil
}

func (p *Poller) fault(ctx context.Context, ep Endpoint, err error) {
	p.logger.ErrorContext(ctx, "confirmation tracking fault",
		"endpoint", ep.Name(),
		"error", err,
	)
	if p.metrics != nil {
		p.metrics.RecordConsistencyFault()
	}
}
