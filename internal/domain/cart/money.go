package cart

import (
	"math"

	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of decimal places between a currency unit and its minor unit.
const minorUnitExponent = 2

func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice)
	}
	return total
}

// ToMinorUnits converts a decimal amount to integer minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrInvalidAmount
	}
	minor := amount.Shift(minorUnitExponent).Round(0)
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExponent)
}
