package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var errSlotQuery = errors.New("slot query failed")

// fakeEndpoint implements Endpoint for tests. Behaviour is configured up front;
// call counts are recorded so tests can check what was (not) invoked.
type fakeEndpoint struct {
	mu sync.Mutex

	name string

	// CurrentSlot walks slots; once exhausted it keeps returning the last value.
	// A zero entry in slots is returned as errSlotQuery.
	slots     []uint64
	slotIdx   int
	slotCalls int

	healthDelay time.Duration
	healthErr   error

	reject    map[solana.Signature]error
	submitted []solana.Signature

	// status answers each StatusOf call; call numbers start at 1.
	status      func(call int, sigs []solana.Signature) ([]*Status, error)
	statusCalls int

	landed   map[solana.Signature]uint64
	fetchErr error
}

func (f *fakeEndpoint) Name() string { return f.name }

func (f *fakeEndpoint) CurrentSlot(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotCalls++
	if len(f.slots) == 0 {
		return 0, errSlotQuery
	}
	var slot uint64
	if f.slotIdx < len(f.slots) {
		slot = f.slots[f.slotIdx]
		f.slotIdx++
	} else {
		slot = f.slots[len(f.slots)-1]
	}
	if slot == 0 {
		return 0, errSlotQuery
	}
	return slot, nil
}

func (f *fakeEndpoint) Health(ctx context.Context) error {
	time.Sleep(f.healthDelay)
	return f.healthErr
}

func (f *fakeEndpoint) Submit(ctx context.Context, tx *solana.Transaction, opts SubmitOpts) (solana.Signature, error) {
	sig := tx.Signatures[0]
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.reject[sig]; ok {
		return solana.Signature{}, err
	}
	f.submitted = append(f.submitted, sig)
	return sig, nil
}

func (f *fakeEndpoint) StatusOf(ctx context.Context, sigs []solana.Signature) ([]*Status, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	f.mu.Unlock()
	if f.status == nil {
		return make([]*Status, len(sigs)), nil
	}
	return f.status(call, sigs)
}

func (f *fakeEndpoint) FetchLandedSlot(ctx context.Context, sig solana.Signature) (uint64, error) {
	if f.fetchErr != nil {
		return 0, f.fetchErr
	}
	return f.landed[sig], nil
}

func (f *fakeEndpoint) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeEndpoint) SlotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slotCalls
}

// confirmFrom reports every requested signature as confirmed at slot from call
// number `from` onwards, and unseen before that.
func confirmFrom(from int, slot uint64) func(int, []solana.Signature) ([]*Status, error) {
	return func(call int, sigs []solana.Signature) ([]*Status, error) {
		out := make([]*Status, len(sigs))
		if call < from {
			return out, nil
		}
		for i := range sigs {
			out[i] = &Status{Slot: slot, Level: rpc.ConfirmationStatusConfirmed}
		}
		return out, nil
	}
}

func testSig(i int) solana.Signature {
	var sig solana.Signature
	sig[0] = byte(i + 1)
	sig[63] = 0xAB
	return sig
}

func testTxs(n int) []*solana.Transaction {
	txs := make([]*solana.Transaction, n)
	for i := range txs {
		txs[i] = &solana.Transaction{Signatures: []solana.Signature{testSig(i)}}
	}
	return txs
}

func testSigs(n int) []solana.Signature {
	sigs := make([]solana.Signature, n)
	for i := range sigs {
		sigs[i] = testSig(i)
	}
	return sigs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:  time.Millisecond,
		MaxRounds: 10,
		Threshold: rpc.ConfirmationStatusConfirmed,
	}
}

// recordingSink collects submitted stats.
type recordingSink struct {
	mu    sync.Mutex
	stats []ConfirmedStat
	err   error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Submit(ctx context.Context, stat ConfirmedStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stat)
	return s.err
}

// memoryStore keeps saved reports in memory.
type memoryStore struct {
	reports     []*BulkReport
	comparisons []*ComparisonResult
	err         error
}

func (s *memoryStore) SaveBulkReport(ctx context.Context, report *BulkReport) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}

func (s *memoryStore) SaveComparison(ctx context.Context, result *ComparisonResult) error {
	if s.err != nil {
		return s.err
	}
	s.comparisons = append(s.comparisons, result)
	return nil
}
