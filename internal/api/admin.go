package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
)

type orderResponse struct {
	ID        int64  `json:"id"`
	UserID    uint64 `json:"userId"`
	InvoiceID string `json:"invoiceId"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

func toOrderResponse(o orders.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		InvoiceID: o.InvoiceID,
		Amount:    o.Amount.StringFixed(2),
		Status:    string(o.Status),
	}
}

type orderAction func(ctx context.Context, orderID int64, adminID string) (orders.Order, bool, error)

// CancelOrderHandler handles POST /admin/orders/{orderId}/cancel
func (h *HandlerProvider) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	h.runOrderAction(w, r, h.svc.Orders.Cancel, "order is not pending")
}

// RefundOrderHandler handles POST /admin/orders/{orderId}/refund
func (h *HandlerProvider) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	h.runOrderAction(w, r, h.svc.Orders.Refund, "order is not paid")
}

func (h *HandlerProvider) runOrderAction(w http.ResponseWriter, r *http.Request, action orderAction, conflict string) {
	orderID, err := parseOrderIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid orderId in path")
		return
	}

	o, ok, err := action(r.Context(), orderID, adminIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}

		writeInternal(w, r, err)
		return
	}

	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": conflict,
			"order": toOrderResponse(o),
		})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
