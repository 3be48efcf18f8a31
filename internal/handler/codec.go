package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-gateway/internal/domain/order"
)

// Required fields of a create-order payload, tracked as a bit set.
const (
	fieldOrderID uint8 = 1 << iota
	fieldProductID
	fieldQuantity
	fieldSubtotal
	fieldShippingAddress
	fieldShippingZip

	allFields = fieldOrderID | fieldProductID | fieldQuantity |
		fieldSubtotal | fieldShippingAddress | fieldShippingZip
)

var fieldNames = []struct {
	bit  uint8
	name string
}{
	{fieldOrderID, "order_id"},
	{fieldProductID, "product_id"},
	{fieldQuantity, "quantity"},
	{fieldSubtotal, "subtotal"},
	{fieldShippingAddress, "shipping_address"},
	{fieldShippingZip, "shipping_zip"},
}

// decodeOrder parses a create-order payload. A "total" field is accepted
// and discarded. Every failure is an *order.ValidationError.
func decodeOrder(data []byte) (order.Order, error) {
	var (
		o    order.Order
		seen uint8
	)

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return o, &order.ValidationError{Reason: "body must be a JSON object"}
	}

	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "order_id":
			o.OrderID, err = decodeInt32(d, "order_id")
			seen |= fieldOrderID
		case "product_id":
			o.ProductID, err = decodeInt32(d, "product_id")
			seen |= fieldProductID
		case "quantity":
			o.Quantity, err = decodeInt32(d, "quantity")
			seen |= fieldQuantity
		case "subtotal":
			o.Subtotal, err = decodeDecimal(d, "subtotal")
			seen |= fieldSubtotal
		case "shipping_address":
			o.ShippingAddress, err = decodeString(d, "shipping_address")
			seen |= fieldShippingAddress
		case "shipping_zip":
			o.ShippingZip, err = decodeString(d, "shipping_zip")
			seen |= fieldShippingZip
		default:
			// "total" included: it is always recomputed.
			if err := d.Skip(); err != nil {
				return &order.ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
			}
		}
		return err
	})
	if err != nil {
		var vErr *order.ValidationError
		if errors.As(err, &vErr) {
			return o, vErr
		}
		return o, &order.ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if d.Next() != jx.Invalid {
		return o, &order.ValidationError{Reason: "unexpected data after JSON object"}
	}

	if seen != allFields {
		for _, f := range fieldNames {
			if seen&f.bit == 0 {
				return o, &order.ValidationError{Field: f.name, Reason: "is required"}
			}
		}
	}
	return o, nil
}

// decodeInt32 accepts only plain integer literals: no fraction, no exponent.
func decodeInt32(d *jx.Decoder, field string) (int32, error) {
	if d.Next() != jx.Number {
		return 0, &order.ValidationError{Field: field, Reason: "must be a number"}
	}
	n, err := d.Num()
	if err != nil {
		return 0, &order.ValidationError{Field: field, Reason: "must be a number"}
	}
	v, err := strconv.ParseInt(string(n), 10, 32)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, &order.ValidationError{Field: field, Reason: "must fit in a 32-bit integer"}
		}
		return 0, &order.ValidationError{Field: field, Reason: "must be an integer"}
	}
	return int32(v), nil
}

func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	if d.Next() != jx.Number {
		return decimal.Zero, &order.ValidationError{Field: field, Reason: "must be a number"}
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, &order.ValidationError{Field: field, Reason: "must be a number"}
	}
	v, err := order.ParseAmount(string(n))
	if err != nil {
		return decimal.Zero, &order.ValidationError{Field: field, Reason: "is out of range"}
	}
	return v, nil
}

func decodeString(d *jx.Decoder, field string) (string, error) {
	if d.Next() != jx.String {
		return "", &order.ValidationError{Field: field, Reason: "must be a string"}
	}
	s, err := d.Str()
	if err != nil {
		return "", &order.ValidationError{Field: field, Reason: "must be a string"}
	}
	return s, nil
}

// encodeOrder writes o as a JSON object. Money fields are written as exact
// decimal literals.
func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int32(o.OrderID)
	e.FieldStart("product_id")
	e.Int32(o.ProductID)
	e.FieldStart("quantity")
	e.Int32(o.Quantity)
	e.FieldStart("subtotal")
	encodeDecimal(e, o.Subtotal)
	e.FieldStart("shipping_address")
	e.Str(o.ShippingAddress)
	e.FieldStart("shipping_zip")
	e.Str(o.ShippingZip)
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	e.ObjEnd()
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes {"status":"error","code":...,"message":...}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str("error")
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}
