package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   int64
	}{
		{name: "whole", amount: "10.00", want: 1000},
		{name: "fractional", amount: "19.99", want: 1999},
		{name: "zero", amount: "0", want: 0},
		{name: "half rounds up", amount: "0.005", want: 1},
		{name: "below half rounds down", amount: "0.0049", want: 0},
		{name: "sub-cent prices", amount: "1.234", want: 123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMinorUnits_TotalOfSnapshot(t *testing.T) {
	items := []Item{item("a", "18.99"), item("b", "5.00"), item("c", "0.01")}

	total := Total(items)
	assert.True(t, total.Equal(decimal.RequireFromString("24.00")))

	minor, err := ToMinorUnits(total)
	require.NoError(t, err)
	assert.Equal(t, int64(2400), minor)
}

func TestToMinorUnits_Rejects(t *testing.T) {
	_, err := ToMinorUnits(decimal.RequireFromString("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToMinorUnits(decimal.RequireFromString("100000000000000000000"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, FromMinorUnits(2400).Equal(decimal.RequireFromString("24")))
}
