package order

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Column limits of the orders table.
const (
	MaxShippingAddressLen = 1024
	MaxShippingZipLen     = 32
)

// Order is a customer order as accepted by the intake pipeline. OrderID is
// supplied by the caller and is not unique. Total is always computed from
// Subtotal and the tax rate for ShippingZip; a caller-supplied value is
// never trusted.
type Order struct {
	OrderID         int32
	ProductID       int32
	Quantity        int32
	Subtotal        decimal.Decimal
	ShippingAddress string
	ShippingZip     string
	Total           decimal.Decimal
}

// Validate checks the fields the store and the rate lookup depend on.
// Subtotal must stay within ±MaxAmount so it survives the FLOAT column.
func (o *Order) Validate() error {
	if o.ShippingZip == "" {
		return &ValidationError{Field: "shipping_zip", Reason: "is required"}
	}
	if !utf8.ValidString(o.ShippingZip) {
		return &ValidationError{Field: "shipping_zip", Reason: "must be valid UTF-8"}
	}
	if !utf8.ValidString(o.ShippingAddress) {
		return &ValidationError{Field: "shipping_address", Reason: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(o.ShippingZip); n > MaxShippingZipLen {
		return &ValidationError{
			Field:  "shipping_zip",
			Reason: fmt.Sprintf("must be at most %d characters, got %d", MaxShippingZipLen, n),
		}
	}
	if n := utf8.RuneCountInString(o.ShippingAddress); n > MaxShippingAddressLen {
		return &ValidationError{
			Field:  "shipping_address",
			Reason: fmt.Sprintf("must be at most %d characters, got %d", MaxShippingAddressLen, n),
		}
	}
	return checkAmount("subtotal", o.Subtotal)
}

func (o *Order) normalize() {
	o.ShippingZip = strings.TrimSpace(o.ShippingZip)
}

// TotalWithTax returns subtotal * (1 + rate).
func TotalWithTax(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromInt(1).Add(rate))
}

// Repository is the append-only order store.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, o *Order) error
	List(ctx context.Context) ([]Order, error)
}
