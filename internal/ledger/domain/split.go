package domain

import (
	"github.com/shopspring/decimal"
)

// basisPointsPerWhole is 100% expressed in basis points.
const basisPointsPerWhole = 10000

// FeeRate is a platform fee expressed in basis points (1% = 100bps).
type FeeRate int64

// ParseFeePercent converts a percentage such as "5" or "2.75" into a FeeRate.
// Percentages outside [0, 100] or with more than two decimal places are rejected.
func ParseFeePercent(percent string) (FeeRate, error) {
	d, err := decimal.NewFromString(percent)
	if err != nil {
		return 0, ErrInvalidFeePercent
	}
	return FeeRateFromDecimal(d)
}

// FeeRateFromDecimal converts a decimal percentage into a FeeRate.
func FeeRateFromDecimal(percent decimal.Decimal) (FeeRate, error) {
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return 0, ErrInvalidFeePercent
	}

	bps := percent.Mul(decimal.NewFromInt(100))
	if !bps.IsInteger() {
		return 0, ErrInvalidFeePercent
	}

	return FeeRate(bps.IntPart()), nil
}

// Percent returns the rate as a decimal percentage.
func (r FeeRate) Percent() decimal.Decimal {
	return decimal.New(int64(r), -2)
}

// Split is the division of an escrowed amount between the hunter and the platform.
type Split struct {
	Escrow  int64
	Release int64
	Fee     int64
}

// SplitEscrow divides escrow into fee and release using integer arithmetic only.
// The fee rounds half up so the platform never under-collects, and
// Release + Fee always equals Escrow.
func SplitEscrow(escrow int64, rate FeeRate) (Split, error) {
	if escrow <= 0 {
		return Split{}, ErrInvalidAmount
	}
	if rate < 0 || rate > basisPointsPerWhole {
		return Split{}, ErrInvalidFeePercent
	}

	// Split escrow into whole and remainder parts to keep the product within int64
	// for any realistic amount.
	whole := escrow / basisPointsPerWhole
	rem := escrow % basisPointsPerWhole

	fee := whole*int64(rate) + (rem*int64(rate)+basisPointsPerWhole/2)/basisPointsPerWhole

	return Split{
		Escrow:  escrow,
		Release: escrow - fee,
		Fee:     fee,
	}, nil
}
