// Package money holds the integer currency representation shared by the
// receipt parser, the reconciliation engine and the ledger client.
package money

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Scale is the number of milliunits in one major currency unit.
const Scale = 1000

// Milliunits is a signed amount in thousandths of the major currency unit
// (€12.34 == 12340). Negative values are outflows (money spent), positive
// values are inflows, matching the ledger convention.
type Milliunits int64

// FromDecimal scales a major-unit decimal to milliunits, rounding half away
// from zero when the input carries more than three decimal places.
func FromDecimal(d decimal.Decimal) Milliunits {
	return Milliunits(d.Shift(3).Round(0).IntPart())
}

// ParseMajor parses a major-unit string such as "12.34" into milliunits.
func ParseMajor(s string) (Milliunits, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ParseMajor: invalid amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// ParsePrice parses store-rendered price text of the form "€12.34". A sign
// may precede the currency symbol, as in "-€1.00" for a discount row. The
// first rune after the sign is taken to be the currency symbol and dropped.
func ParsePrice(text string) (Milliunits, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("ParsePrice: empty price text")
	}

	body, negative := text, false
	switch body[0] {
	case '-':
		body, negative = body[1:], true
	case '+':
		body = body[1:]
	}
	if body == "" {
		return 0, fmt.Errorf("ParsePrice: %q: no amount", text)
	}

	_, size := utf8.DecodeRuneInString(body)
	m, err := ParseMajor(body[size:])
	if err != nil {
		return 0, fmt.Errorf("ParsePrice: %q: %w", text, err)
	}
	if negative {
		m = -m
	}
	return m, nil
}

// IsOutflow reports whether m represents spending under the ledger convention.
// Zero counts as an outflow, so a zero-amount debit can still be matched.
func (m Milliunits) IsOutflow() bool {
	return m <= 0
}

// Neg returns -m.
func (m Milliunits) Neg() Milliunits {
	return -m
}

// Decimal converts m back to a major-unit decimal.
func (m Milliunits) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -3)
}

// String renders m in major units with two decimals, e.g. "-42.17".
func (m Milliunits) String() string {
	return m.Decimal().StringFixed(2)
}
