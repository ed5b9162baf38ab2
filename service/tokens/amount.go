package tokens

import (
	"math"
)

const (
	// Decimals is the fixed precision of every mint created here.
	Decimals uint8 = 9

	// MintAccountSize is the size in bytes of an SPL token mint account.
	MintAccountSize uint64 = 82
)

var baseUnitsPerToken = math.Pow10(int(Decimals))

// ToBaseUnits scales a whole-unit amount by 10^Decimals.
func ToBaseUnits(amount float64) (uint64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, invalidInput("amount must be a finite number")
	}
	if amount <= 0 {
		return 0, invalidInput("amount must be positive, got %v", amount)
	}
	scaled := math.Round(amount * baseUnitsPerToken)
	if scaled < 1 {
		return 0, invalidInput("amount %v is below the smallest unit", amount)
	}
	if scaled >= math.MaxUint64 {
		return 0, invalidInput("amount %v is too large", amount)
	}
	return uint64(scaled), nil
}
