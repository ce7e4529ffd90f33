package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	"github.com/f2re/sale-photosession-bot/internal/services/checkout"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
)

type packageResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
	Price   string `json:"price"`
}

// ListPackagesHandler handles GET /packages
func (h *HandlerProvider) ListPackagesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Checkout.ListPackages(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	resp := make([]packageResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, packageResponse{
			ID:      p.ID,
			Name:    p.Name,
			Credits: p.CreditsGranted,
			Price:   p.Price.StringFixed(2),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type purchaseRequest struct {
	PackageID int64  `json:"packageId"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// PurchaseHandler handles POST /users/{userId}/purchases
func (h *HandlerProvider) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	var req purchaseRequest

	err = decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.PackageID < 1 {
		writeError(w, http.StatusBadRequest, "packageId required")
		return
	}

	p, err := h.svc.Checkout.Purchase(r.Context(), userID, req.PackageID, gateway.Contact{
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrContactRequired):
			writeError(w, http.StatusBadRequest, "email or phone required")
		case errors.Is(err, packages.ErrPackageNotFound), errors.Is(err, checkout.ErrPackageInactive):
			writeError(w, http.StatusNotFound, "package not found")
		case errors.Is(err, users.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrRejected):
			writeError(w, http.StatusBadGateway, "payment provider unavailable")
		default:
			writeInternal(w, r, err)
		}

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"orderId":     p.OrderID,
		"invoiceId":   p.InvoiceID,
		"redirectUrl": p.RedirectURL,
		"amount":      p.Amount.StringFixed(2),
		"credits":     p.Credits,
	})
}

// CheckPaymentHandler handles POST /users/{userId}/purchases/{invoiceId}/check
func (h *HandlerProvider) CheckPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	res, err := h.svc.Checkout.CheckPayment(r.Context(), userID, chi.URLParam(r, "invoiceId"))
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrRejected):
			writeError(w, http.StatusBadGateway, "payment provider unavailable, try again later")
		default:
			writeInternal(w, r, err)
		}

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orderId":       res.OrderID,
		"invoiceId":     res.InvoiceID,
		"status":        string(res.OrderStatus),
		"gatewayStatus": string(res.GatewayStatus),
		"credited":      res.Credited,
	})
}

// PollResultHandler handles GET /payments/{invoiceId}/poll
func (h *HandlerProvider) PollResultHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := h.svc.Polls.Result(chi.URLParam(r, "invoiceId"))
	if !ok {
		writeError(w, http.StatusNotFound, "no poll task for invoice")
		return
	}

	resp := map[string]any{
		"invoiceId": res.InvoiceID,
		"outcome":   string(res.Outcome),
		"checks":    res.Checks,
		"startedAt": res.StartedAt,
	}
	if res.SupportHint != "" {
		resp["supportHint"] = res.SupportHint
	}
	if !res.FinishedAt.IsZero() {
		resp["finishedAt"] = res.FinishedAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// WebhookHandler handles POST /webhooks/yookassa. It always answers 200 so
// the provider never retries; missed payments are picked up by polling.
func (h *HandlerProvider) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("webhook body unreadable", "error", err)
		return
	}

	// A dropped provider connection must not roll back a confirmed payment.
	ctx := context.WithoutCancel(r.Context())

	st, err := h.svc.Webhooks.VerifyWebhook(ctx, raw)
	if err != nil {
		slog.Warn("webhook rejected", "error", err)
		return
	}

	if !st.Succeeded() {
		slog.Info("webhook ignored", "invoice_id", st.PaymentID, "status", string(st.Status))
		return
	}

	// Errors are logged by the engine; the order stays pending for the poller.
	_, _ = h.svc.Reconciler.Reconcile(ctx, st.PaymentID, reconcile.SourceWebhook)
}
