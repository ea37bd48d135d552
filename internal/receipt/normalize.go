package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/receipt-sync/internal/money"
	"github.com/shopspring/decimal"
)

// RawBasket is a basket as returned by the loyalty portal, amounts still in
// major currency units and line items still embedded in the rendered view.
type RawBasket struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Date      string          `json:"date"`
	StoreName string          `json:"storeName"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	View      string          `json:"-"`
}

// dateLayouts are tried in order; layouts without a zone are read in the
// caller's location.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize converts a raw basket into a Receipt. Repeated rows with the
// same name collapse into one Item whose Quantity counts the rows and whose
// UnitPrice is the first price seen for that name.
func Normalize(basket RawBasket, loc *time.Location) (*Receipt, error) {
	if loc == nil {
		loc = time.UTC
	}

	date, err := ParseDate(basket.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("Normalize: basket %s: %w", basket.ID, err)
	}

	items, err := ParseItems(basket.View)
	if err != nil {
		return nil, fmt.Errorf("Normalize: basket %s: %w", basket.ID, err)
	}

	return &Receipt{
		ID:        basket.ID,
		Type:      basket.Type,
		Date:      date,
		StoreName: basket.StoreName,
		Total:     money.FromDecimal(basket.Total),
		Paid:      money.FromDecimal(basket.Paid),
		Items:     items,
	}, nil
}

// ParseItems extracts the deduplicated line items of a basket view.
func ParseItems(view string) ([]Item, error) {
	rows, err := ParseView(view)
	if err != nil {
		return nil, err
	}
	return groupRows(rows)
}

func groupRows(rows []Row) ([]Item, error) {
	items := make([]Item, 0, len(rows))
	index := make(map[string]int, len(rows))

	for _, row := range rows {
		if i, ok := index[row.Name]; ok {
			items[i].Quantity++
			continue
		}

		price, err := money.ParsePrice(row.Price)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", row.Name, err)
		}

		index[row.Name] = len(items)
		items = append(items, Item{Name: row.Name, UnitPrice: price, Quantity: 1})
	}

	return items, nil
}

// ParseDate reads a portal timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
