package relay

import (
	"github.com/gagliardetto/solana-go"
)

// Aggregate folds send outcomes and confirmation records into one result per
// input transaction, in input order. Failed sends carry their send error;
// accepted sends must have a record or the call fails with ErrConsistencyFault.
func Aggregate(outcomes []SendOutcome, records map[solana.Signature]ConfirmationRecord) ([]TxResult, error) {
	results := make([]TxResult, 0, len(outcomes))
	used := 0
	for i, o := range outcomes {
		r := TxResult{Index: i, Signature: o.Signature}
		if !o.Accepted() {
			r.Record = SendFailure(o.Err)
			results = append(results, r)
			continue
		}

		rec, ok := records[o.Signature]
		if !ok {
			return nil, consistencyFault("accepted signature %s has no confirmation record", o.Signature)
		}
		if rec.Kind != RecordSuccess && rec.Kind != RecordTimeout {
			return nil, consistencyFault("accepted signature %s has non-terminal record kind %q", o.Signature, rec.Kind)
		}
		r.Record = rec
		results = append(results, r)
		used++
	}
	if used != len(records) {
		return nil, consistencyFault("%d confirmation records for %d accepted sends", len(records), used)
	}
	return results, nil
}

// Summarize counts results by classification.
func Summarize(results []TxResult) Counts {
	var c Counts
	for _, r := range results {
		switch r.Record.Kind {
		case RecordSendError:
			c.Failed++
			continue
		case RecordSuccess:
			c.Confirmed++
		case RecordTimeout:
			c.TimedOut++
		}
		c.Sent++
	}
	return c
}
