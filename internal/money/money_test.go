package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text    string
		want    Milliunits
		wantErr bool
	}{
		{text: "€12.34", want: 12340},
		{text: "€0.99", want: 990},
		{text: "  €3  ", want: 3000},
		{text: "£1.5", want: 1500},
		{text: "$0.0015", want: 2},
		{text: "€", wantErr: true},
		{text: "", wantErr: true},
		{text: "€abc", wantErr: true},
		{text: "-€1.00", want: -1000},
		{text: "+€1.00", want: 1000},
		{text: "€-0.50", want: -500},
		{text: "-", wantErr: true},
		{text: "-€", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParsePrice(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromDecimal(t *testing.T) {
	assert.Equal(t, Milliunits(42170), FromDecimal(decimal.RequireFromString("42.17")))
	assert.Equal(t, Milliunits(-42170), FromDecimal(decimal.RequireFromString("-42.17")))
	assert.Equal(t, Milliunits(10000), FromDecimal(decimal.NewFromInt(10)))
}

func TestMilliunitsHelpers(t *testing.T) {
	m := Milliunits(-42170)

	assert.True(t, m.IsOutflow())
	assert.True(t, Milliunits(0).IsOutflow())
	assert.False(t, Milliunits(1).IsOutflow())
	assert.Equal(t, Milliunits(42170), m.Neg())
	assert.Equal(t, "-42.17", m.String())
	assert.Equal(t, "0.99", Milliunits(990).String())
}
