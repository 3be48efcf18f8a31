package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Bounds on money values. Amounts are stored in FLOAT columns, so anything
// float64 cannot hold finitely must be rejected before it reaches the store.
const (
	// MaxAmountLiteralLen bounds the textual form of an amount.
	MaxAmountLiteralLen = 64
	// MaxAmountScale bounds the decimal exponent of an amount in either
	// direction.
	MaxAmountScale = 32
)

// MaxAmount is the largest subtotal magnitude accepted; MaxTotal bounds the
// computed total.
var (
	MaxAmount = decimal.New(1, 15)
	MaxTotal  = decimal.New(1, 18)
)

var errAmountOutOfRange = errors.New("amount out of range")

// ParseAmount parses a decimal literal with bounded length and exponent.
// Unbounded exponents make later arithmetic on the value arbitrarily
// expensive.
func ParseAmount(s string) (decimal.Decimal, error) {
	if len(s) > MaxAmountLiteralLen {
		return decimal.Zero, errors.Wrapf(errAmountOutOfRange, "literal longer than %d bytes", MaxAmountLiteralLen)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := checkScale(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

func checkScale(v decimal.Decimal) error {
	if exp := v.Exponent(); exp > MaxAmountScale || exp < -MaxAmountScale {
		return errors.Wrapf(errAmountOutOfRange, "exponent %d", exp)
	}
	return nil
}

// checkAmount rejects values outside ±MaxAmount.
func checkAmount(field string, v decimal.Decimal) error {
	if err := checkScale(v); err != nil {
		return &ValidationError{Field: field, Reason: "is out of range"}
	}
	if v.Abs().GreaterThan(MaxAmount) {
		return &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("must be at most %s in magnitude", MaxAmount),
		}
	}
	return nil
}

// checkTotal rejects computed totals outside ±MaxTotal. Both factors have
// bounded exponents by the time it runs.
func checkTotal(total decimal.Decimal) error {
	if total.Abs().GreaterThan(MaxTotal) {
		return &ValidationError{
			Field:  "subtotal",
			Reason: fmt.Sprintf("gives a total above %s in magnitude", MaxTotal),
		}
	}
	return nil
}
