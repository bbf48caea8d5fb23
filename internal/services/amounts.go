package services

import (
	"math"

	"github.com/shopspring/decimal"
)

// maxWholeTokensPerBet caps a single stake
const maxWholeTokensPerBet = 1_000_000_000

// ToBaseUnits converts a token amount into base units. Amounts with more
// precision than the token supports, or that do not fit int64, are rejected.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (int64, error) {
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, withReason(ErrInvalidAmount, "more decimal places than the token supports")
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, withReason(ErrInvalidAmount, "amount out of range")
	}
	return shifted.IntPart(), nil
}

// FromBaseUnits converts base units back into a token amount for display
func FromBaseUnits(units int64, decimals int32) decimal.Decimal {
	return decimal.New(units, -decimals)
}

// MaxStake is the largest single bet in base units
func MaxStake(decimals int32) int64 {
	limit := decimal.NewFromInt(maxWholeTokensPerBet).Shift(decimals)
	if limit.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return math.MaxInt64
	}
	return limit.IntPart()
}

// clampInt64 converts a chain amount for storage
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
