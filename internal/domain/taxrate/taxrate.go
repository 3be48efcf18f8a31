// Package taxrate defines the contract for sales-tax rate lookups and the
// classified failures a lookup can end with.
package taxrate

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind classifies a failed rate lookup.
type Kind string

const (
	// KindNoRateForZip means the rate service has no rate configured for
	// the zip code. It is a business outcome, not a transport fault.
	KindNoRateForZip Kind = "no_rate_for_zip"
	// KindMalformedRate means the service answered with a body that is not
	// a decimal number.
	KindMalformedRate Kind = "malformed_rate"
	// KindUpstream means the service answered with a non-success status
	// other than 404.
	KindUpstream Kind = "upstream_error"
	// KindUnreachable means the request never got an answer: connection
	// refused, DNS failure, timeout or cancellation.
	KindUnreachable Kind = "unreachable"
)

// LookupError is returned by Lookup implementations for every failed lookup.
type LookupError struct {
	Zip        string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("tax rate lookup for zip %q: %s", e.Zip, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}

// Limits on a rate literal. A rate is a short decimal fraction; anything
// longer or with a larger exponent is malformed.
const (
	MaxRateLiteralLen = 64
	MaxRateScale      = 32
)

// ParseRate parses a rate literal within MaxRateLiteralLen bytes and an
// exponent of at most ±MaxRateScale.
func ParseRate(s string) (decimal.Decimal, error) {
	if len(s) > MaxRateLiteralLen {
		return decimal.Zero, errors.Errorf("rate literal longer than %d bytes", MaxRateLiteralLen)
	}
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if exp := rate.Exponent(); exp > MaxRateScale || exp < -MaxRateScale {
		return decimal.Zero, errors.Errorf("rate exponent %d out of range", exp)
	}
	return rate, nil
}

// Lookup resolves the sales-tax rate for a shipping zip code.
type Lookup interface {
	Rate(ctx context.Context, zip string) (decimal.Decimal, error)
}
