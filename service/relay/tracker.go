package relay

import (
	"github.com/gagliardetto/solana-go"
)

type trackState uint8

const (
	statePending trackState = iota
	stateResolved
)

type trackedTx struct {
	state  trackState
	record ConfirmationRecord
}

// tracker holds every signature of a batch in one map. Resolving flips an
// entry's tag in place, so an entry can never be in both the pending and the
// resolved view. It is owned by a single polling loop and is not safe for
// concurrent use.
type tracker struct {
	entries  map[solana.Signature]*trackedTx
	order    []solana.Signature
	pending  int
	resolved int
}

func newTracker(sigs []solana.Signature) (*tracker, error) {
	t := &tracker{
		entries: make(map[solana.Signature]*trackedTx, len(sigs)),
		order:   make([]solana.Signature, 0, len(sigs)),
	}
	for _, sig := range sigs {
		if _, dup := t.entries[sig]; dup {
			return nil, consistencyFault("duplicate signature %s in batch", sig)
		}
		t.entries[sig] = &trackedTx{state: statePending}
		t.order = append(t.order, sig)
		t.pending++
	}
	return t, nil
}

// Pending returns the signatures still awaiting resolution, in input order.
func (t *tracker) Pending() []solana.Signature {
	out := make([]solana.Signature, 0, t.pending)
	for _, sig := range t.order {
		if t.entries[sig].state == statePending {
			out = append(out, sig)
		}
	}
	return out
}

func (t *tracker) PendingCount() int { return t.pending }

func (t *tracker) ResolvedCount() int { return t.resolved }

// Resolve moves sig from pending to resolved with rec.
func (t *tracker) Resolve(sig solana.Signature, rec ConfirmationRecord) error {
	e, ok := t.entries[sig]
	if !ok {
		return consistencyFault("resolve of untracked signature %s", sig)
	}
	if e.state == stateResolved {
		return consistencyFault("signature %s resolved twice", sig)
	}
	e.state = stateResolved
	e.record = rec
	t.pending--
	t.resolved++
	return nil
}

// Check verifies that pending plus resolved still equals the tracked total.
func (t *tracker) Check() error {
	var pending, resolved int
	for _, e := range t.entries {
		switch e.state {
		case statePending:
			pending++
		case stateResolved:
			resolved++
		}
	}
	if pending != t.pending || resolved != t.resolved || pending+resolved != len(t.order) {
		return consistencyFault("pending %d + resolved %d != tracked %d (counters %d/%d)",
			pending, resolved, len(t.order), t.pending, t.resolved)
	}
	return nil
}

// Records returns the resolved records. It fails if anything is still pending.
func (t *tracker) Records() (map[solana.Signature]ConfirmationRecord, error) {
	if t.pending != 0 {
		return nil, consistencyFault("%d signatures still pending", t.pending)
	}
	out := make(map[solana.Signature]ConfirmationRecord, len(t.entries))
	for sig, e := range t.entries {
		out[sig] = e.record
	}
	return out, nil
}
