package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/relay"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a run or comparison does not exist.
var ErrNotFound = errors.New("not found")

// Store persists bench runs and comparison rounds in Postgres.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

var _ relay.ReportStore = (*Store)(nil)

// Migrate creates any missing tables. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ListRunsParams contains filter and pagination parameters.
type ListRunsParams struct {
	Endpoint string // empty means all endpoints
	Limit    int32
	Offset   int32
}

// ListComparisonsParams contains filter and pagination parameters.
type ListComparisonsParams struct {
	RunID *uuid.UUID // nil means all runs
	Limit int32
}

// SaveBulkReport writes the run and every per-transaction result in one transaction.
func (s *Store) SaveBulkReport(ctx context.Context, report *relay.BulkReport) (err error) {
	defer s.observe("insert", "bench_runs", time.Now(), &err)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bench_runs (
				run_id, endpoint, started_at, slot_sent, slot_after_send, slots_passed,
				sent, failed, confirmed, timed_out, rounds, send_elapsed, poll_elapsed
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			report.RunID, report.Endpoint, report.StartedAt,
			int64(report.SlotSent), int64(report.SlotAfterSend), int64(report.SlotsPassed),
			report.Counts.Sent, report.Counts.Failed, report.Counts.Confirmed, report.Counts.TimedOut,
			report.Rounds, pgIntervalFromDuration(report.SendElapsed), pgIntervalFromDuration(report.PollElapsed),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, r := range report.Results {
			row := txResultRowFromDomain(r)
			batch.Queue(`
				INSERT INTO bench_tx_results (
					run_id, idx, signature, kind, slot_sent, slot_confirmed,
					confirmation_level, elapsed, error_kind, error_message
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				report.RunID, r.Index, r.Signature.String(), string(r.Record.Kind),
				row.slotSent, row.slotConfirmed, row.level, row.elapsed, row.errKind, row.errMessage,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert tx results: %w", err)
		}
		return nil
	})
}

// SaveComparison writes one comparison round.
func (s *Store) SaveComparison(ctx context.Context, result *relay.ComparisonResult) (err error) {
	defer s.observe("insert", "comparisons", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO comparisons (
			run_id, round, started_at,
			endpoint_a, signature_a, slot_sent_a, slot_landed_a, send_duration_a,
			endpoint_b, signature_b, slot_sent_b, slot_landed_b, send_duration_b,
			rtt_a, rtt_b, delay_a, delay_b
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		result.RunID, result.Round, result.StartedAt,
		result.A.Endpoint, pgtextFromSignature(result.A.Signature), int64(result.A.SlotSent), int64(result.A.SlotLanded), pgIntervalFromDuration(result.A.SendDuration),
		result.B.Endpoint, pgtextFromSignature(result.B.Signature), int64(result.B.SlotSent), int64(result.B.SlotLanded), pgIntervalFromDuration(result.B.SendDuration),
		pgIntervalFromDuration(result.RTTA), pgIntervalFromDuration(result.RTTB),
		pgIntervalFromDuration(result.DelayA), pgIntervalFromDuration(result.DelayB),
	)
	if err != nil {
		return fmt.Errorf("failed to insert comparison: %w", err)
	}
	return nil
}

const runColumns = `run_id, endpoint, started_at, slot_sent, slot_after_send, slots_passed,
	sent, failed, confirmed, timed_out, rounds, send_elapsed, poll_elapsed`

// ListRuns returns run summaries, most recent first. Results are not loaded.
func (s *Store) ListRuns(ctx context.Context, params ListRunsParams) (_ []*relay.BulkReport, err error) {
	defer s.observe("select", "bench_runs", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM bench_runs
		WHERE ($1::text = '' OR endpoint = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`,
		params.Endpoint, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	reports := make([]*relay.BulkReport, 0)
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// GetRun returns one run with its per-transaction results in input order.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (_ *relay.BulkReport, err error) {
	defer s.observe("select", "bench_runs", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM bench_runs WHERE run_id = $1`, runID)
	report, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, err
	}

	report.Results, err = s.listTxResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) listTxResults(ctx context.Context, runID uuid.UUID) ([]relay.TxResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT idx, signature, kind, slot_sent, slot_confirmed, confirmation_level,
			elapsed, error_kind, error_message
		FROM bench_tx_results
		WHERE run_id = $1
		ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tx results: %w", err)
	}
	defer rows.Close()

	results := make([]relay.TxResult, 0)
	for rows.Next() {
		var (
			idx       int
			signature string
			kind      string
			row       txResultRow
		)
		if err := rows.Scan(&idx, &signature, &kind, &row.slotSent, &row.slotConfirmed,
			&row.level, &row.elapsed, &row.errKind, &row.errMessage); err != nil {
			return nil, fmt.Errorf("failed to scan tx result: %w", err)
		}
		sig, err := solana.SignatureFromBase58(signature)
		if err != nil {
			return nil, fmt.Errorf("invalid stored signature %q: %w", signature, err)
		}
		results = append(results, relay.TxResult{
			Index:     idx,
			Signature: sig,
			Record:    row.toDomain(relay.RecordKind(kind)),
		})
	}
	return results, rows.Err()
}

// ListComparisons returns comparison rounds, most recent first.
func (s *Store) ListComparisons(ctx context.Context, params ListComparisonsParams) (_ []*relay.ComparisonResult, err error) {
	defer s.observe("select", "comparisons", time.Now(), &err)

	var runFilter pgtype.UUID
	if params.RunID != nil {
		runFilter = pgtype.UUID{Bytes: *params.RunID, Valid: true}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, round, started_at,
			endpoint_a, signature_a, slot_sent_a, slot_landed_a, send_duration_a,
			endpoint_b, signature_b, slot_sent_b, slot_landed_b, send_duration_b,
			rtt_a, rtt_b, delay_a, delay_b
		FROM comparisons
		WHERE ($1::uuid IS NULL OR run_id = $1)
		ORDER BY started_at DESC, round DESC
		LIMIT $2`,
		runFilter, params.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comparisons: %w", err)
	}
	defer rows.Close()

	results := make([]*relay.ComparisonResult, 0)
	for rows.Next() {
		var (
			r                          relay.ComparisonResult
			sigA, sigB                 pgtype.Text
			sentA, landedA             int64
			sentB, landedB             int64
			durA, durB                 pgtype.Interval
			rttA, rttB, delayA, delayB pgtype.Interval
		)
		if err := rows.Scan(&r.RunID, &r.Round, &r.StartedAt,
			&r.A.Endpoint, &sigA, &sentA, &landedA, &durA,
			&r.B.Endpoint, &sigB, &sentB, &landedB, &durB,
			&rttA, &rttB, &delayA, &delayB); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		if r.A.Signature, err = signatureFromPgtext(sigA); err != nil {
			return nil, err
		}
		if r.B.Signature, err = signatureFromPgtext(sigB); err != nil {
			return nil, err
		}
		r.A.SlotSent, r.A.SlotLanded, r.A.SendDuration = uint64(sentA), uint64(landedA), durationFromPgInterval(durA)
		r.B.SlotSent, r.B.SlotLanded, r.B.SendDuration = uint64(sentB), uint64(landedB), durationFromPgInterval(durB)
		r.RTTA, r.RTTB = durationFromPgInterval(rttA), durationFromPgInterval(rttB)
		r.DelayA, r.DelayB = durationFromPgInterval(delayA), durationFromPgInterval(delayB)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// DeleteRunsOlderThan removes runs (and their results) started before cutoff.
func (s *Store) DeleteRunsOlderThan(ctx context.Context, cutoff time.Time) (_ int64, err error) {
	defer s.observe("delete", "bench_runs", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM bench_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) observe(operation, table string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), *err)
}

func scanRun(row pgx.Row) (*relay.BulkReport, error) {
	var (
		r                           relay.BulkReport
		slotSent, slotAfter, passed int64
		sendElapsed, pollElapsed    pgtype.Interval
	)
	err := row.Scan(&r.RunID, &r.Endpoint, &r.StartedAt, &slotSent, &slotAfter, &passed,
		&r.Counts.Sent, &r.Counts.Failed, &r.Counts.Confirmed, &r.Counts.TimedOut,
		&r.Rounds, &sendElapsed, &pollElapsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.SlotSent, r.SlotAfterSend, r.SlotsPassed = uint64(slotSent), uint64(slotAfter), uint64(passed)
	r.SendElapsed = durationFromPgInterval(sendElapsed)
	r.PollElapsed = durationFromPgInterval(pollElapsed)
	return &r, nil
}

// txResultRow holds the nullable columns of bench_tx_results.
type txResultRow struct {
	slotSent      pgtype.Int8
	slotConfirmed pgtype.Int8
	level         pgtype.Text
	elapsed       pgtype.Interval
	errKind       pgtype.Text
	errMessage    pgtype.Text
}

func txResultRowFromDomain(r relay.TxResult) txResultRow {
	rec := r.Record
	var row txResultRow
	switch rec.Kind {
	case relay.RecordSuccess:
		row.slotSent = pgtype.Int8{Int64: int64(rec.SlotSent), Valid: true}
		row.slotConfirmed = pgtype.Int8{Int64: int64(rec.SlotConfirmed), Valid: true}
		row.level = pgtype.Text{String: string(rec.Level), Valid: true}
		row.elapsed = pgIntervalFromDuration(rec.Elapsed)
	case relay.RecordTimeout:
		row.elapsed = pgIntervalFromDuration(rec.Elapsed)
	case relay.RecordSendError:
		if rec.SendErr != nil {
			row.errKind = pgtype.Text{String: string(rec.SendErr.Kind), Valid: true}
			if rec.SendErr.Err != nil {
				row.errMessage = pgtype.Text{String: rec.SendErr.Err.Error(), Valid: true}
			}
		}
	}
	return row
}

func (row txResultRow) toDomain(kind relay.RecordKind) relay.ConfirmationRecord {
	switch kind {
	case relay.RecordSuccess:
		return relay.Success(uint64(row.slotSent.Int64), uint64(row.slotConfirmed.Int64),
			rpc.ConfirmationStatusType(row.level.String), durationFromPgInterval(row.elapsed))
	case relay.RecordTimeout:
		return relay.Timeout(durationFromPgInterval(row.elapsed))
	default:
		return relay.SendFailure(&relay.SendError{
			Kind: relay.SendErrorKind(row.errKind.String),
			Err:  errors.New(row.errMessage.String),
		})
	}
}

func pgtextFromSignature(sig solana.Signature) pgtype.Text {
	if sig == (solana.Signature{}) {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: sig.String(), Valid: true}
}

func signatureFromPgtext(t pgtype.Text) (solana.Signature, error) {
	if !t.Valid {
		return solana.Signature{}, nil
	}
	sig, err := solana.SignatureFromBase58(t.String)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid stored signature %q: %w", t.String, err)
	}
	return sig, nil
}

func pgIntervalFromDuration(d time.Duration) pgtype.Interval {
	return pgtype.Interval{
		Microseconds: d.Microseconds(),
		Valid:        true,
	}
}

func durationFromPgInterval(i pgtype.Interval) time.Duration {
	if !i.Valid {
		return 0
	}
	return time.Duration(i.Microseconds) * time.Microsecond
}
