// Package reconcile matches receipts to ledger transactions and turns each
// match into an itemized update.
package reconcile

import (
	"github.com/dvloznov/receipt-sync/internal/ledger"
	"github.com/dvloznov/receipt-sync/internal/receipt"
)

// Status records what happened to one receipt.
type Status string

const (
	StatusUpdated          Status = "updated"
	StatusUnmatched        Status = "unmatched"
	StatusAlreadyItemized  Status = "already_itemized"
	StatusAlreadyAnnotated Status = "already_annotated"
	StatusDegenerate       Status = "degenerate"
)

// Outcome is the per-receipt result of a run.
type Outcome struct {
	ReceiptID     string       `json:"receipt_id"`
	Status        Status       `json:"status"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Allocations   []Allocation `json:"allocations,omitempty"`
}

// Plan is everything a run intends to write.
type Plan struct {
	Updates  []ledger.Update `json:"updates"`
	Outcomes []Outcome       `json:"outcomes"`
}

// Count returns how many outcomes have status s.
func (p *Plan) Count(s Status) int {
	n := 0
	for _, o := range p.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Eligible reports whether tx may be rewritten from r. A transaction that is
// already split is never re-split, and a single-item receipt never overwrites
// an existing memo.
func Eligible(r *receipt.Receipt, tx *ledger.Transaction) Status {
	if len(tx.Subtransactions) > 0 {
		return StatusAlreadyItemized
	}
	if len(r.Items) == 1 && tx.Memo != "" {
		return StatusAlreadyAnnotated
	}
	return StatusUpdated
}

// BuildUpdate turns allocations into the update for tx: a memo for a single
// item, one split per item otherwise.
func BuildUpdate(tx *ledger.Transaction, allocations []Allocation) ledger.Update {
	update := ledger.Update{TransactionID: tx.ID}

	if len(allocations) == 1 {
		memo := receipt.Describe(allocations[0].Item)
		update.Memo = &memo
		return update
	}

	update.Splits = make([]ledger.Split, 0, len(allocations))
	for _, a := range allocations {
		update.Splits = append(update.Splits, ledger.Split{
			Amount:     a.Amount,
			PayeeID:    tx.PayeeID,
			PayeeName:  tx.PayeeName,
			CategoryID: tx.CategoryID,
			Memo:       receipt.Describe(a.Item),
		})
	}
	return update
}

// Reconcile processes receipts in order against txs. Each transaction is
// claimed by at most one receipt, including when the claiming receipt is then
// rejected by the eligibility guard. Neither receipts nor txs are modified.
func Reconcile(receipts []*receipt.Receipt, txs []*ledger.Transaction, opts Options) *Plan {
	opts = opts.withDefaults()
	plan := &Plan{}
	consumed := make(map[string]bool)

	for _, r := range receipts {
		outcome := Outcome{ReceiptID: r.ID}

		tx := FindMatch(r, txs, consumed, opts)
		if tx == nil {
			outcome.Status = StatusUnmatched
			plan.Outcomes = append(plan.Outcomes, outcome)
			continue
		}
		consumed[tx.ID] = true
		outcome.TransactionID = tx.ID

		if outcome.Status = Eligible(r, tx); outcome.Status != StatusUpdated {
			plan.Outcomes = append(plan.Outcomes, outcome)
			continue
		}

		allocations, err := Apportion(r.Items, tx.Amount)
		if err != nil {
			outcome.Status = StatusDegenerate
			plan.Outcomes = append(plan.Outcomes, outcome)
			continue
		}

		outcome.Allocations = allocations
		plan.Outcomes = append(plan.Outcomes, outcome)
		plan.Updates = append(plan.Updates, BuildUpdate(tx, allocations))
	}

	return plan
}
