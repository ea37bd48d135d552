// Package ledger models the budgeting service's transactions as seen by the
// reconciliation engine, and the commands the engine issues against them.
package ledger

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-sync/internal/money"
)

// Transaction is one bank-reported record in the budget. Amount follows the
// money.Milliunits sign convention: spending is negative.
type Transaction struct {
	ID              string
	Date            civil.Date
	Amount          money.Milliunits
	PayeeID         string
	PayeeName       string
	CategoryID      string
	Memo            string
	Subtransactions []Split
	Deleted         bool
}

// Split is one itemized portion of a transaction.
type Split struct {
	Amount     money.Milliunits `json:"amount"`
	PayeeID    string           `json:"payee_id,omitempty"`
	PayeeName  string           `json:"payee_name,omitempty"`
	CategoryID string           `json:"category_id,omitempty"`
	Memo       string           `json:"memo,omitempty"`
}

// Update is a replacement command for a single transaction. Exactly one of
// Memo or Splits is set; Splits replaces any existing subtransactions wholesale.
type Update struct {
	TransactionID string  `json:"transaction_id"`
	Memo          *string `json:"memo,omitempty"`
	Splits        []Split `json:"splits,omitempty"`
}

// SplitTotal sums the split amounts of u.
func (u Update) SplitTotal() money.Milliunits {
	var total money.Milliunits
	for _, s := range u.Splits {
		total += s.Amount
	}
	return total
}

// Store is the budgeting service as the sync sees it: one read of the budget's
// transactions and one bulk write of updates.
type Store interface {
	// ListTransactions returns every transaction of the budget, in the
	// service's order.
	ListTransactions(ctx context.Context, budgetID string) ([]*Transaction, error)

	// UpdateTransactions applies all updates in a single call.
	UpdateTransactions(ctx context.Context, budgetID string, updates []Update) error
}
