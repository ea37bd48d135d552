// Package receipt converts raw loyalty-portal baskets into canonical receipts.
package receipt

import (
	"fmt"
	"time"

	"github.com/dvloznov/receipt-sync/internal/money"
)

// Item is one distinct purchased product on a receipt.
type Item struct {
	Name      string           `json:"name"`
	UnitPrice money.Milliunits `json:"unit_price"` // price of a single unit, never signed
	Quantity  int              `json:"quantity"`
}

// LineTotal is UnitPrice * Quantity, unsigned.
func (i Item) LineTotal() money.Milliunits {
	return i.UnitPrice * money.Milliunits(i.Quantity)
}

// Describe renders the item the way it appears in a ledger memo: the bare
// name for a single unit, "3x Milk" otherwise.
func Describe(item Item) string {
	if item.Quantity == 1 {
		return item.Name
	}
	return fmt.Sprintf("%dx %s", item.Quantity, item.Name)
}

// Receipt is one in-store purchase. Paid is what was actually charged after
// loyalty discounts and drives apportionment; Total is the pre-discount sum.
type Receipt struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Date      time.Time        `json:"date"`
	StoreName string           `json:"store_name"`
	Total     money.Milliunits `json:"total"`
	Paid      money.Milliunits `json:"paid"`
	Items     []Item           `json:"items"`
}
