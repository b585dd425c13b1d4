package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balances and transfer amounts are fixed-point decimals with exactly two
// fractional digits. Example: "10.50" is fine, "10.505" is not.
const MoneyScale = 2

// CheckAmount validates a request amount: it must be present, carry at most
// two fractional digits, and must not be negative. Zero is allowed.
func CheckAmount(amount *decimal.Decimal) error {
	if amount == nil {
		return fmt.Errorf("%w: request doesn't contain the amount", ErrForbiddenOperation)
	}
	if amount.Exponent() < -MoneyScale {
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrBadRequest, MoneyScale)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: you can't transfer negative amount", ErrForbiddenOperation)
	}
	return nil
}

// MustMoney parses a scale-2 decimal literal. It is meant for fixtures and
// tests; it panics on malformed input.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("bad money literal %q: %v", s, err))
	}
	return d
}
