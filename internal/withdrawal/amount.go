package withdrawal

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ToBaseUnits scales a human amount by 10^decimals. Amounts with more
// fractional digits than the token has are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative", amount)
	}
	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %s overflows u256", amount)
	}
	return v, nil
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(raw *uint256.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw.ToBig(), -decimals)
}
