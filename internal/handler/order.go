package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-gateway/internal/domain/order"
)

// Messages returned with each failure code.
const (
	msgNoRateForZip          = "The zip code in the order does not have a corresponding sales tax rate."
	msgRateLookupUnavailable = "There is an unknown error from the sales tax rate lookup service."
	msgPersistenceFailed     = "The order store is unavailable."
	msgInternal              = "internal server error"
)

func (h *Handler) initSchema(w http.ResponseWriter, r *http.Request) {
	if err := h.intake.InitSchema(r.Context()); err != nil {
		h.writeIntakeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Bool(true)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeIntakeError(w, r, &order.ValidationError{Reason: "request body too large"})
			return
		}
		h.writeIntakeError(w, r, &order.ValidationError{Reason: "read request body: " + err.Error()})
		return
	}

	draft, err := decodeOrder(body)
	if err != nil {
		h.writeIntakeError(w, r, err)
		return
	}

	created, err := h.intake.Create(r.Context(), draft)
	if err != nil {
		h.writeIntakeError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("Order created",
		zap.Int32("order_id", created.OrderID),
		zap.String("shipping_zip", created.ShippingZip),
		zap.Stringer("total", created.Total),
	)

	var e jx.Encoder
	encodeOrder(&e, *created)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.intake.List(r.Context())
	if err != nil {
		h.writeIntakeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// writeIntakeError maps an intake failure onto a status code and a stable
// error code. Business outcomes are logged at info, dependency failures at
// warn.
func (h *Handler) writeIntakeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())
	code := order.Reason(err)

	switch code {
	case "invalid_payload":
		lg.Info("Rejected order payload", zap.Error(err))
		writeError(w, http.StatusBadRequest, code, validationMessage(err))
	case "no_rate_for_zip":
		lg.Info("No tax rate for zip", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, code, msgNoRateForZip)
	case "rate_lookup_unavailable":
		lg.Warn("Tax rate lookup failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, code, msgRateLookupUnavailable)
	case "persistence_failed":
		lg.Warn("Order store failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, code, msgPersistenceFailed)
	default:
		lg.Error("Unexpected intake error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, code, msgInternal)
	}
}

func validationMessage(err error) string {
	var vErr *order.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	return order.ErrInvalidPayload.Error()
}
