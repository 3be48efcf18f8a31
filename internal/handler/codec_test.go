package handler

import (
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-gateway/internal/domain/order"
)

func TestDecodeOrder(t *testing.T) {
	o, err := decodeOrder([]byte(`{
		"shipping_zip": "94107",
		"order_id": 7, "product_id": -3, "quantity": 10,
		"subtotal": 12.340,
		"shipping_address": "1 Main St é",
		"total": "ignored"
	}`))
	require.NoError(t, err)

	assert.EqualValues(t, 7, o.OrderID)
	assert.EqualValues(t, -3, o.ProductID)
	assert.EqualValues(t, 10, o.Quantity)
	assert.True(t, decimal.RequireFromString("12.34").Equal(o.Subtotal))
	assert.Equal(t, "1 Main St é", o.ShippingAddress)
	assert.Equal(t, "94107", o.ShippingZip)
	assert.True(t, o.Total.IsZero())
}

func TestDecodeOrder_MissingFieldNamed(t *testing.T) {
	_, err := decodeOrder([]byte(`{"order_id":1,"product_id":1,"subtotal":1,"shipping_address":"","shipping_zip":"1"}`))

	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "quantity", vErr.Field)
	assert.ErrorIs(t, err, order.ErrInvalidPayload)
}

func TestDecodeOrder_NumberBounds(t *testing.T) {
	const base = `{"order_id":1,"product_id":42,"quantity":2,"subtotal":100.0,` +
		`"shipping_address":"1 Main St","shipping_zip":"94107"}`

	tests := []struct {
		name  string
		from  string
		to    string
		field string
	}{
		{name: "huge id exponent", from: `"order_id":1`, to: `"order_id":1e30000000`, field: "order_id"},
		{name: "huger id exponent", from: `"order_id":1`, to: `"order_id":1e300000000`, field: "order_id"},
		{name: "fractional id literal", from: `"order_id":1`, to: `"order_id":1.0`, field: "order_id"},
		{name: "exponent id literal", from: `"product_id":42`, to: `"product_id":1e2`, field: "product_id"},
		{name: "id above int32", from: `"quantity":2`, to: `"quantity":2147483648`, field: "quantity"},
		{name: "id below int32", from: `"quantity":2`, to: `"quantity":-2147483649`, field: "quantity"},
		{name: "huge subtotal exponent", from: `"subtotal":100.0`, to: `"subtotal":1e30000000`, field: "subtotal"},
		{name: "tiny subtotal exponent", from: `"subtotal":100.0`, to: `"subtotal":1e-30000000`, field: "subtotal"},
		{name: "subtotal beyond float64", from: `"subtotal":100.0`, to: `"subtotal":1e400`, field: "subtotal"},
		{name: "long subtotal literal", from: `"subtotal":100.0`, to: `"subtotal":1` + strings.Repeat("0", 80), field: "subtotal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := decodeOrder([]byte(strings.Replace(base, tt.from, tt.to, 1)))
			assert.Less(t, time.Since(start), time.Second)

			var vErr *order.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestDecodeOrder_Int32Limits(t *testing.T) {
	o, err := decodeOrder([]byte(`{"order_id":2147483647,"product_id":-2147483648,"quantity":0,` +
		`"subtotal":0,"shipping_address":"","shipping_zip":"1"}`))
	require.NoError(t, err)
	assert.EqualValues(t, 2147483647, o.OrderID)
	assert.EqualValues(t, -2147483648, o.ProductID)
}

func TestEncodeOrder(t *testing.T) {
	var e jx.Encoder
	encodeOrder(&e, order.Order{
		OrderID:         1,
		ProductID:       2,
		Quantity:        3,
		Subtotal:        decimal.RequireFromString("12.34"),
		ShippingAddress: `"quoted"`,
		ShippingZip:     "94107",
		Total:           decimal.RequireFromString("13.23465"),
	})

	assert.Equal(t,
		`{"order_id":1,"product_id":2,"quantity":3,"subtotal":12.34,`+
			`"shipping_address":"\"quoted\"","shipping_zip":"94107","total":13.23465}`,
		e.String(),
	)
}
