package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
)

// BenchConfig groups the knobs of both benchmark modes.
type BenchConfig struct {
	Align          AlignConfig
	Submit         SubmitOpts
	Poller         PollerConfig
	AlignToSlot    bool          // bulk mode: wait for a fresh slot before the burst
	ConfirmTimeout time.Duration // comparison mode: per-leg confirmation deadline
}

// DefaultBenchConfig mirrors the constants the relay has always used.
func DefaultBenchConfig() BenchConfig {
	return BenchConfig{
		Align:          DefaultAlignConfig(),
		Submit:         DefaultSubmitOpts(),
		Poller:         DefaultPollerConfig(),
		AlignToSlot:    true,
		ConfirmTimeout: 60 * time.Second,
	}
}

// Bench wires the aligner, dispatcher and poller into the bulk and comparison
// pipelines and forwards their results to the stats sink and report store.
type Bench struct {
	cfg        BenchConfig
	aligner    *Aligner
	dispatcher *Dispatcher
	poller     *Poller
	sink       StatsSink   // may be nil
	store      ReportStore // may be nil
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBench creates a Bench. sink and store are optional.
func NewBench(cfg BenchConfig, sink StatsSink, store ReportStore, m *metrics.Metrics, logger *slog.Logger) *Bench {
	return &Bench{
		cfg:        cfg,
		aligner:    NewAligner(cfg.Align, m, logger),
		dispatcher: NewDispatcher(cfg.Submit, m, logger),
		poller:     NewPoller(cfg.Poller, m, logger),
		sink:       sink,
		store:      store,
		logger:     logger,
		metrics:    m,
	}
}

// Aligner exposes the bench's slot aligner for standalone use.
func (b *Bench) Aligner() *Aligner { return b.aligner }

func (b *Bench) forward(ctx context.Context, stats ...ConfirmedStat) {
	if b.sink == nil {
		return
	}
	for _, stat := range stats {
		if err := b.sink.Submit(ctx, stat); err != nil {
			b.logger.WarnContext(ctx, "failed to submit stats",
				"sink", b.sink.Name(),
				"signature", stat.Signature.String(),
				"error", err,
			)
		}
	}
}
