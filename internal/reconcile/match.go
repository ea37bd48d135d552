package reconcile

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-sync/internal/ledger"
	"github.com/dvloznov/receipt-sync/internal/receipt"
)

const (
	// DefaultPayeeName is the ledger payee the store's debits are booked under.
	DefaultPayeeName = "Supervalu"

	// DefaultWindowDays is how long after the purchase day the bank may post
	// the debit.
	DefaultWindowDays = 7
)

// Options tunes matching.
type Options struct {
	PayeeName  string
	WindowDays int
	// Location is the calendar the receipt's purchase day is taken in.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.PayeeName == "" {
		o.PayeeName = DefaultPayeeName
	}
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// purchaseDay is the calendar day of the receipt in loc.
func purchaseDay(r *receipt.Receipt, loc *time.Location) civil.Date {
	return civil.DateOf(r.Date.In(loc))
}

// isCandidate applies the payee, sign, amount and date-window tests.
func isCandidate(r *receipt.Receipt, tx *ledger.Transaction, opts Options) bool {
	if tx.Deleted || tx.PayeeName != opts.PayeeName || !tx.Amount.IsOutflow() {
		return false
	}
	if tx.Amount != r.Paid.Neg() {
		return false
	}

	day := purchaseDay(r, opts.Location)
	if tx.Date.Before(day) || tx.Date.After(day.AddDays(opts.WindowDays)) {
		return false
	}
	return true
}

// FindMatch returns the first transaction, in ledger order, that the receipt
// could have been charged as, or nil. consumed holds IDs already claimed this
// run and may be nil.
func FindMatch(r *receipt.Receipt, txs []*ledger.Transaction, consumed map[string]bool, opts Options) *ledger.Transaction {
	opts = opts.withDefaults()
	for _, tx := range txs {
		if consumed[tx.ID] {
			continue
		}
		if isCandidate(r, tx, opts) {
			return tx
		}
	}
	return nil
}
