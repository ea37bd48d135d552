package reconcile

import (
	"errors"
	"math"
	"sort"

	"github.com/dvloznov/receipt-sync/internal/money"
	"github.com/dvloznov/receipt-sync/internal/receipt"
)

// ErrZeroTotal is returned when a receipt's line totals sum to zero, leaving
// no ratio to scale by.
var ErrZeroTotal = errors.New("receipt line totals sum to zero")

// Allocation is the share of a transaction amount assigned to one item. Amount
// carries the ledger sign; the item's UnitPrice is left untouched.
type Allocation struct {
	Item   receipt.Item     `json:"item"`
	Amount money.Milliunits `json:"amount"`
}

// Apportion splits amount across items in proportion to each item's line
// total. Every item but the last is scaled by amount/rawTotal and rounded with
// roundHalfUp; the last takes the remainder, so the allocations always sum to
// amount exactly. The result is sorted by Amount ascending (stable).
func Apportion(items []receipt.Item, amount money.Milliunits) ([]Allocation, error) {
	allocations := make([]Allocation, len(items))

	var rawTotal money.Milliunits
	for i, item := range items {
		allocations[i] = Allocation{Item: item, Amount: -item.LineTotal()}
		rawTotal += allocations[i].Amount
	}
	if rawTotal == 0 {
		return nil, ErrZeroTotal
	}

	ratio := float64(amount) / float64(rawTotal)

	var allocated money.Milliunits
	last := len(allocations) - 1
	for i := range allocations {
		if i == last {
			// Same as |allocated| - |amount| while both are non-positive.
			allocations[i].Amount = amount - allocated
			break
		}
		allocations[i].Amount = money.Milliunits(roundHalfUp(float64(allocations[i].Amount) * ratio))
		allocated += allocations[i].Amount
	}

	sort.SliceStable(allocations, func(a, b int) bool {
		return allocations[a].Amount < allocations[b].Amount
	})

	return allocations, nil
}

// roundHalfUp rounds to the nearest integer with halves going toward +Inf,
// so -2.5 becomes -2 and 2.5 becomes 3.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
