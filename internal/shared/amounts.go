package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Column limits for fixed-point storage.
var (
	// MaxQuantity is the exclusive upper bound of a NUMERIC(10,2) column.
	MaxQuantity = decimal.New(1, 8)
	// MaxAmount is the exclusive upper bound of a NUMERIC(15,2) column.
	MaxAmount = decimal.New(1, 13)
)

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// HasScale reports whether d needs no more than places fractional digits.
func HasScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// ValidateMagnitude checks a positive two-decimal value below limit.
func ValidateMagnitude(field string, d, limit decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidArgument, field)
	}
	if !HasScale(d, 2) {
		return fmt.Errorf("%w: %s allows at most 2 decimal places", ErrInvalidArgument, field)
	}
	if d.GreaterThanOrEqual(limit) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidArgument, field, limit.String())
	}
	return nil
}
