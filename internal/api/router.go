package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers all endpoints. Admin routes require an HS256 bearer
// token signed with adminSecret.
func NewRouter(svc Services, adminSecret string) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/packages", h.ListPackagesHandler)
	r.Get("/payments/{invoiceId}/poll", h.PollResultHandler)
	r.Post("/webhooks/yookassa", h.WebhookHandler)

	r.Post("/users", h.RegisterHandler)
	r.Route("/users/{userId}", func(r chi.Router) {
		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/referrals", h.GetReferralsHandler)
		r.Post("/generations", h.GenerateHandler)
		r.Post("/purchases", h.PurchaseHandler)
		r.Post("/purchases/{invoiceId}/check", h.CheckPaymentHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth([]byte(adminSecret)))
		r.Post("/orders/{orderId}/cancel", h.CancelOrderHandler)
		r.Post("/orders/{orderId}/refund", h.RefundOrderHandler)
	})

	return r
}
