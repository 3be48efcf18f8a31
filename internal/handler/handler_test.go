package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-gateway/internal/domain/order"
	"github.com/xenking/order-gateway/internal/domain/taxrate"
	"github.com/xenking/order-gateway/internal/taxclient"
)

// --- Mock implementations ---

type stubIntake struct {
	mu        sync.Mutex
	createErr error
	listErr   error
	initErr   error
	orders    []order.Order
	creates   int
}

func (s *stubIntake) Create(_ context.Context, o order.Order) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	o.Total = o.Subtotal
	s.orders = append(s.orders, o)
	return &o, nil
}

func (s *stubIntake) List(context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]order.Order{}, s.orders...), nil
}

func (s *stubIntake) InitSchema(context.Context) error { return s.initErr }

// memRepo is an in-memory order.Repository.
type memRepo struct {
	mu      sync.Mutex
	rows    []order.Order
	inserts int
}

func (m *memRepo) EnsureSchema(context.Context) error { return nil }

func (m *memRepo) Insert(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	m.rows = append(m.rows, *o)
	return nil
}

func (m *memRepo) List(context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Order{}, m.rows...), nil
}

type malformedRates struct {
	mu    sync.Mutex
	calls int
}

func (m *malformedRates) Rate(_ context.Context, zip string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return decimal.Zero, &taxrate.LookupError{Zip: zip, Kind: taxrate.KindMalformedRate}
}

// --- Helpers ---

const validPayload = `{"order_id":1,"product_id":42,"quantity":2,"subtotal":100.0,` +
	`"shipping_address":"1 Main St","shipping_zip":"94107"}`

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var status, code string
	require.NoError(t, jx.DecodeStr(w.Body.String()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			status = s
			return err
		case "code":
			s, err := d.Str()
			code = s
			return err
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, "error", status)
	return code
}

// newRateServer answers like the external rate service: 0.0825 for 94107,
// 404 for anything else.
func newRateServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zip, _ := io.ReadAll(r.Body)
		if strings.TrimSpace(string(zip)) != "94107" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "0.0825")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// --- Tests ---

func TestRoutes(t *testing.T) {
	h := NewHandler(HandlerConfig{}, &stubIntake{})

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/init", http.StatusOK},
		{http.MethodGet, "/orders", http.StatusOK},
		{http.MethodOptions, "/init", http.StatusOK},
		{http.MethodOptions, "/create_order", http.StatusOK},
		{http.MethodOptions, "/orders", http.StatusOK},
		{http.MethodPost, "/orders", http.StatusNotFound},
		{http.MethodGet, "/create_order", http.StatusNotFound},
		{http.MethodGet, "/unknown", http.StatusNotFound},
		{http.MethodDelete, "/", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(h, tt.method, tt.path, "")
			assert.Equal(t, tt.status, w.Code)

			_, routed := h.FindRoute(httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status != http.StatusNotFound, routed)

			if tt.status == http.StatusNotFound {
				assert.Empty(t, w.Body.String())
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
			if tt.method == http.MethodOptions {
				assert.Empty(t, w.Body.String())
			}
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	h := NewHandler(HandlerConfig{}, &stubIntake{})

	for _, path := range []string{"/init", "/create_order", "/orders"} {
		w := serve(h, http.MethodOptions, path, "")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"), path)
		assert.Equal(t, "api,Keep-Alive,User-Agent,Content-Type", w.Header().Get("Access-Control-Allow-Headers"), path)
	}

	w := serve(h, http.MethodGet, "/orders", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoot(t *testing.T) {
	w := serve(NewHandler(HandlerConfig{}, &stubIntake{}), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "GET /init")
}

func TestInitSchema(t *testing.T) {
	w := serve(NewHandler(HandlerConfig{}, &stubIntake{}), http.MethodGet, "/init", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":true}`, w.Body.String())

	failing := &stubIntake{initErr: errors.Wrap(order.ErrPersistenceFailed, "create table")}
	w = serve(NewHandler(HandlerConfig{}, failing), http.MethodGet, "/init", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "persistence_failed", errorCode(t, w))
}

func TestCreateOrder_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "not json", body: "order please"},
		{name: "array", body: `[1,2]`},
		{name: "truncated", body: `{"order_id":1,`},
		{name: "missing zip", body: `{"order_id":1,"product_id":42,"quantity":2,"subtotal":1,"shipping_address":"a"}`},
		{name: "missing subtotal", body: `{"order_id":1,"product_id":42,"quantity":2,"shipping_address":"a","shipping_zip":"1"}`},
		{name: "string id", body: strings.Replace(validPayload, `"order_id":1`, `"order_id":"1"`, 1)},
		{name: "fractional quantity", body: strings.Replace(validPayload, `"quantity":2`, `"quantity":2.5`, 1)},
		{name: "id out of range", body: strings.Replace(validPayload, `"order_id":1`, `"order_id":2147483648`, 1)},
		{name: "string subtotal", body: strings.Replace(validPayload, `"subtotal":100.0`, `"subtotal":"100"`, 1)},
		{name: "numeric zip", body: strings.Replace(validPayload, `"shipping_zip":"94107"`, `"shipping_zip":94107`, 1)},
		{name: "null address", body: strings.Replace(validPayload, `"shipping_address":"1 Main St"`, `"shipping_address":null`, 1)},
		{name: "trailing object", body: validPayload + `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intake := &stubIntake{}
			w := serve(NewHandler(HandlerConfig{}, intake), http.MethodPost, "/create_order", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_payload", errorCode(t, w))
			assert.Zero(t, intake.creates)
		})
	}
}

func TestCreateOrder_BodyTooLarge(t *testing.T) {
	intake := &stubIntake{}
	h := NewHandler(HandlerConfig{MaxBodyBytes: 32}, intake)

	w := serve(h, http.MethodPost, "/create_order", validPayload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "too large")
	assert.Zero(t, intake.creates)
}

func TestCreateOrder_ExtraFieldsIgnored(t *testing.T) {
	intake := &stubIntake{}
	body := strings.Replace(validPayload, `{`, `{"total":1,"coupon":{"code":"X"},`, 1)

	w := serve(NewHandler(HandlerConfig{}, intake), http.MethodPost, "/create_order", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, intake.orders, 1)
	assert.Equal(t, "94107", intake.orders[0].ShippingZip)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "validation",
			err:    &order.ValidationError{Field: "shipping_zip", Reason: "is required"},
			status: http.StatusBadRequest,
			code:   "invalid_payload",
		},
		{
			name:   "no rate",
			err:    errors.Wrap(order.ErrNoRateForZip, "lookup"),
			status: http.StatusUnprocessableEntity,
			code:   "no_rate_for_zip",
		},
		{
			name:   "lookup unavailable",
			err:    errors.Wrap(order.ErrRateLookupUnavailable, "lookup"),
			status: http.StatusBadGateway,
			code:   "rate_lookup_unavailable",
		},
		{
			name:   "persistence",
			err:    errors.Wrap(order.ErrPersistenceFailed, "insert"),
			status: http.StatusServiceUnavailable,
			code:   "persistence_failed",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(HandlerConfig{}, &stubIntake{createErr: tt.err})
			w := serve(h, http.MethodPost, "/create_order", validPayload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestCreateOrder_ValidationMessage(t *testing.T) {
	h := NewHandler(HandlerConfig{}, &stubIntake{
		createErr: &order.ValidationError{Field: "shipping_zip", Reason: "is required"},
	})
	w := serve(h, http.MethodPost, "/create_order", validPayload)
	assert.JSONEq(t,
		`{"status":"error","code":"invalid_payload","message":"shipping_zip is required"}`,
		w.Body.String(),
	)
}

func TestListOrders(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		w := serve(NewHandler(HandlerConfig{}, &stubIntake{}), http.MethodGet, "/orders", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		intake := &stubIntake{listErr: errors.Wrap(order.ErrPersistenceFailed, "list")}
		w := serve(NewHandler(HandlerConfig{}, intake), http.MethodGet, "/orders", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "persistence_failed", errorCode(t, w))
	})
}

func TestEndToEnd(t *testing.T) {
	rates, err := taxclient.New(taxclient.Config{URL: newRateServer(t).URL, Timeout: time.Second})
	require.NoError(t, err)
	repo := &memRepo{}
	h := NewHandler(HandlerConfig{}, order.NewService(rates, repo))

	w := serve(h, http.MethodGet, "/init", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := strings.Replace(validPayload, `{`, `{"total":1,`, 1)
	w = serve(h, http.MethodPost, "/create_order", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	want := `{"order_id":1,"product_id":42,"quantity":2,"subtotal":100,` +
		`"shipping_address":"1 Main St","shipping_zip":"94107","total":108.25}`
	assert.JSONEq(t, want, w.Body.String())
	assert.Contains(t, w.Body.String(), `"total":108.25`)

	w = serve(h, http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[`+want+`]`, w.Body.String())

	t.Run("unknown zip is not stored", func(t *testing.T) {
		unknown := strings.Replace(validPayload, `"94107"`, `"00000"`, 1)
		w := serve(h, http.MethodPost, "/create_order", unknown)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "no_rate_for_zip", errorCode(t, w))
		assert.Equal(t, 1, repo.inserts)
	})
}

func TestEndToEnd_RateServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rates, err := taxclient.New(taxclient.Config{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	repo := &memRepo{}
	h := NewHandler(HandlerConfig{}, order.NewService(rates, repo))

	w := serve(h, http.MethodPost, "/create_order", validPayload)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "rate_lookup_unavailable", errorCode(t, w))
	assert.Zero(t, repo.inserts)
}

func TestCreateOrder_RejectedBeforeLookup(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "subtotal beyond float64", body: strings.Replace(validPayload, `"subtotal":100.0`, `"subtotal":1e400`, 1)},
		{name: "huge id exponent", body: strings.Replace(validPayload, `"order_id":1`, `"order_id":1e30000000`, 1)},
		{name: "non utf-8 address", body: strings.Replace(validPayload, `1 Main St`, "a\xff\xfeb", 1)},
		{name: "non utf-8 zip", body: strings.Replace(validPayload, `"94107"`, "\"94\xff107\"", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rates := &malformedRates{}
			repo := &memRepo{}
			h := NewHandler(HandlerConfig{}, order.NewService(rates, repo))

			start := time.Now()
			w := serve(h, http.MethodPost, "/create_order", tt.body)
			assert.Less(t, time.Since(start), time.Second)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_payload", errorCode(t, w))
			assert.Zero(t, rates.calls)
			assert.Zero(t, repo.inserts)
		})
	}
}

func TestEndToEnd_MalformedRate(t *testing.T) {
	rates := &malformedRates{}
	repo := &memRepo{}
	h := NewHandler(HandlerConfig{}, order.NewService(rates, repo))

	w := serve(h, http.MethodPost, "/create_order", validPayload)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, rates.calls)
	assert.Zero(t, repo.inserts)
}
