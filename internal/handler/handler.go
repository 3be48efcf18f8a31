// Package handler maps inbound method+path pairs onto the order intake
// service and encodes its results as JSON.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/order-gateway/internal/domain/order"
	"github.com/xenking/order-gateway/pkg/httpmiddleware"
)

// DefaultMaxBodyBytes bounds create-order request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Intake is the order intake workflow the handler drives.
type Intake interface {
	Create(ctx context.Context, o order.Order) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	InitSchema(ctx context.Context) error
}

var _ Intake = (*order.Service)(nil)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// CORS is applied to every routed response. Unrouted requests get a
	// bare 404.
	CORS httpmiddleware.CORSConfig
	// MaxBodyBytes limits the create-order body; zero selects
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

type route struct {
	method string
	path   string
}

// Handler routes requests to the intake service. Any method+path pair not
// in its table is answered with 404, including known paths with an
// unsupported method.
type Handler struct {
	intake       Intake
	maxBodyBytes int64
	routes       map[route]http.Handler
}

// NewHandler constructs a Handler over the given intake service.
func NewHandler(cfg HandlerConfig, intake Intake) *Handler {
	h := &Handler{
		intake:       intake,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}

	cors := httpmiddleware.CORS(cfg.CORS)
	handle := func(f http.HandlerFunc) http.Handler { return cors(f) }
	preflight := handle(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h.routes = map[route]http.Handler{
		{http.MethodGet, "/"}:                 handle(h.root),
		{http.MethodGet, "/init"}:             handle(h.initSchema),
		{http.MethodPost, "/create_order"}:    handle(h.createOrder),
		{http.MethodGet, "/orders"}:           handle(h.listOrders),
		{http.MethodOptions, "/init"}:         preflight,
		{http.MethodOptions, "/create_order"}: preflight,
		{http.MethodOptions, "/orders"}:       preflight,
	}
	return h
}

// ServeHTTP dispatches on the exact method and path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	next, ok := h.routes[route{r.Method, r.URL.Path}]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	next.ServeHTTP(w, r)
}

// FindRoute returns the route name for r, or false if r is not routed.
func (h *Handler) FindRoute(r *http.Request) (string, bool) {
	if _, ok := h.routes[route{r.Method, r.URL.Path}]; !ok {
		return "", false
	}
	return r.Method + " " + r.URL.Path, true
}

const instructions = "Try to GET /init such as: `curl localhost:8003/init`"

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(instructions))
}
