package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Replay recomputes before and after quantities of one key's history from
// zero. The input must be ordered oldest first; stored quantities are ignored.
func Replay(records []Transaction) []Transaction {
	out := make([]Transaction, len(records))
	running := decimal.Zero
	for i, rec := range records {
		rec.BeforeQuantity = running
		rec.AfterQuantity = rec.Type.Apply(running, rec.Quantity)
		running = rec.AfterQuantity
		out[i] = rec
	}
	return out
}

// VerifyChain checks stored before and after quantities against a replay
// from zero and returns the replayed final quantity.
func VerifyChain(records []Transaction) (decimal.Decimal, error) {
	replayed := Replay(records)
	final := decimal.Zero
	for i, rec := range records {
		if i > 0 && rec.Key() != records[i-1].Key() {
			return decimal.Zero, fmt.Errorf("%w: history mixes %s and %s", ErrChainBroken, records[i-1].Key(), rec.Key())
		}
		want := replayed[i]
		if !rec.BeforeQuantity.Equal(want.BeforeQuantity) {
			return decimal.Zero, &ChainBreakError{TransactionID: rec.ID, Field: "before_quantity", Stored: rec.BeforeQuantity, Replayed: want.BeforeQuantity}
		}
		if !rec.AfterQuantity.Equal(want.AfterQuantity) {
			return decimal.Zero, &ChainBreakError{TransactionID: rec.ID, Field: "after_quantity", Stored: rec.AfterQuantity, Replayed: want.AfterQuantity}
		}
		if want.AfterQuantity.IsNegative() {
			return decimal.Zero, &ChainBreakError{TransactionID: rec.ID, Field: "after_quantity", Stored: rec.AfterQuantity, Replayed: want.AfterQuantity}
		}
		final = want.AfterQuantity
	}
	return final, nil
}
