package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// ConfirmedStat is the report handed to external stats sinks. Only confirmed
// transactions become stats; timeouts are never forwarded.
type ConfirmedStat struct {
	Endpoint   string           `json:"endpoint"`
	Signature  solana.Signature `json:"signature"`
	SlotSent   uint64           `json:"slot_sent"`
	SlotLanded uint64           `json:"slot_landed"`
	Elapsed    time.Duration    `json:"elapsed"`
	Success    bool             `json:"success"`
	Mode       string           `json:"mode"` // "bulk" or "compare"
	ReportedAt time.Time        `json:"reported_at"`
}

// StatsSink accepts confirmed-transaction stats.
type StatsSink interface {
	Name() string
	Submit(ctx context.Context, stat ConfirmedStat) error
}

// ReportStore persists finished runs.
type ReportStore interface {
	SaveBulkReport(ctx context.Context, report *BulkReport) error
	SaveComparison(ctx context.Context, result *ComparisonResult) error
}

// StatFromLanding converts a comparison leg. ok is false for the "no result" sentinel.
func StatFromLanding(r LandingResult) (stat ConfirmedStat, ok bool) {
	if r.IsZero() {
		return ConfirmedStat{}, false
	}
	return ConfirmedStat{
		Endpoint:   r.Endpoint,
		Signature:  r.Signature,
		SlotSent:   r.SlotSent,
		SlotLanded: r.SlotLanded,
		Elapsed:    r.SendDuration,
		Success:    true,
		Mode:       "compare",
		ReportedAt: time.Now(),
	}, true
}

// StatsFromReport returns one stat per confirmed transaction in report.
func StatsFromReport(report *BulkReport) []ConfirmedStat {
	var stats []ConfirmedStat
	now := time.Now()
	for _, r := range report.Results {
		if r.Record.Kind != RecordSuccess {
			continue
		}
		stats = append(stats, ConfirmedStat{
			Endpoint:   report.Endpoint,
			Signature:  r.Signature,
			SlotSent:   r.Record.SlotSent,
			SlotLanded: r.Record.SlotConfirmed,
			Elapsed:    r.Record.Elapsed,
			Success:    true,
			Mode:       "bulk",
			ReportedAt: now,
		})
	}
	return stats
}

// MultiSink broadcasts each stat to every configured sink. With no sinks
// configured every stat is dropped.
type MultiSink struct {
	sinks   []StatsSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewMultiSink(m *metrics.Metrics, logger *slog.Logger, sinks ...StatsSink) *MultiSink {
	var live []StatsSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &MultiSink{sinks: live, logger: logger, metrics: m}
}

func (s *MultiSink) Name() string { return "multi" }

// Len returns the number of configured sinks.
func (s *MultiSink) Len() int { return len(s.sinks) }

// Submit delivers stat to every sink and joins their errors.
func (s *MultiSink) Submit(ctx context.Context, stat ConfirmedStat) error {
	var errs []error
	for _, sink := range s.sinks {
		start := time.Now()
		err := sink.Submit(ctx, stat)
		status := "success"
		if err != nil {
			status = "error"
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
		if s.metrics != nil {
			s.metrics.RecordSinkPublish(sink.Name(), status, time.Since(start).Seconds())
		}
	}
	return errors.Join(errs...)
}
