package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/poll"
)

// AlignConfig controls slot boundary detection.
type AlignConfig struct {
	Step          time.Duration // round i ends i*Step after alignment starts
	MaxIterations int
}

// DefaultAlignConfig polls every 30ms*i for up to 500 iterations.
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{Step: 30 * time.Millisecond, MaxIterations: 500}
}

// Aligner catches the moment an endpoint's slot counter advances by exactly one.
type Aligner struct {
	cfg     AlignConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAligner(cfg AlignConfig, m *metrics.Metrics, logger *slog.Logger) *Aligner {
	return &Aligner{cfg: cfg, logger: logger, metrics: m}
}

// AlignToSlotStart polls ep until two consecutive observations differ by exactly
// one and returns the newer one. Lagging (jump > 1) and stalled (equal) readings
// keep polling; a failed slot query discards the previous reading.
func (a *Aligner) AlignToSlotStart(ctx context.Context, ep Endpoint) (SlotSnapshot, error) {
	var (
		last    uint64
		hasLast bool
		found   SlotSnapshot
	)

	out, err := poll.Run(ctx, poll.Config{
		Schedule:  poll.Linear(a.cfg.Step),
		MaxRounds: a.cfg.MaxIterations,
	}, func(ctx context.Context, round int) (bool, error) {
		slot, err := ep.CurrentSlot(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "slot query failed during alignment",
				"endpoint", ep.Name(),
				"iteration", round,
				"error", err,
			)
			hasLast = false
			return false, nil
		}

		if hasLast && slot == last+1 {
			found = SlotSnapshot{Slot: slot, ObservedAt: time.Now()}
			return true, nil
		}
		last, hasLast = slot, true
		return false, nil
	})

	if a.metrics != nil {
		a.metrics.RecordSlotAlignment(ep.Name(), out.Rounds, err)
	}

	if err != nil {
		if errors.Is(err, poll.ErrRoundsExhausted) {
			return SlotSnapshot{}, fmt.Errorf("%w: no clean slot advance on %s after %d iterations",
				ErrSlotDetectionTimeout, ep.Name(), out.Rounds)
		}
		return SlotSnapshot{}, fmt.Errorf("failed to align to slot start: %w", err)
	}

	a.logger.DebugContext(ctx, "aligned to slot start",
		"endpoint", ep.Name(),
		"slot", found.Slot,
		"iterations", out.Rounds,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return found, nil
}
