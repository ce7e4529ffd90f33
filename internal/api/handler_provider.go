package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/generator"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	"github.com/f2re/sale-photosession-bot/internal/services/accounts"
	"github.com/f2re/sale-photosession-bot/internal/services/checkout"
	"github.com/f2re/sale-photosession-bot/internal/services/poller"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
	"github.com/f2re/sale-photosession-bot/internal/services/referral"
)

const maxBodyBytes = 1 << 20

type Accounts interface {
	Register(ctx context.Context, userID uint64, username, referralCode string) (accounts.Registration, error)
}

type Balances interface {
	Balance(ctx context.Context, userID uint64) (int64, error)
}

type Referrals interface {
	Stats(ctx context.Context, userID uint64) (referral.Stats, error)
}

type Generations interface {
	Generate(ctx context.Context, userID uint64, req generator.Request) (generator.Result, error)
}

type Checkout interface {
	ListPackages(ctx context.Context) ([]packages.Package, error)
	Purchase(ctx context.Context, userID uint64, packageID int64, contact gateway.Contact) (checkout.Purchase, error)
	CheckPayment(ctx context.Context, userID uint64, invoiceID string) (checkout.CheckResult, error)
}

type Polls interface {
	Result(invoiceID string) (poller.Result, bool)
}

type Reconciler interface {
	Reconcile(ctx context.Context, invoiceID string, source reconcile.Source) (*orders.Order, error)
}

type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, raw []byte) (gateway.PaymentStatus, error)
}

type AdminOrders interface {
	Cancel(ctx context.Context, orderID int64, adminID string) (orders.Order, bool, error)
	Refund(ctx context.Context, orderID int64, adminID string) (orders.Order, bool, error)
}

// Services is everything the HTTP layer talks to.
type Services struct {
	Accounts    Accounts
	Balances    Balances
	Referrals   Referrals
	Generations Generations
	Checkout    Checkout
	Polls       Polls
	Reconciler  Reconciler
	Webhooks    WebhookVerifier
	Orders      AdminOrders
}

// HandlerProvider exposes Services as HTTP handlers.
type HandlerProvider struct {
	svc Services
}

func NewHandler(svc Services) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	//nolint:errcheck
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

func parseUserIDFromPath(r *http.Request) (uint64, error) {
	return parsePositiveUint(chi.URLParam(r, "userId"), "userId")
}

func parseOrderIDFromPath(r *http.Request) (int64, error) {
	id, err := parsePositiveUint(chi.URLParam(r, "orderId"), "orderId")
	if err != nil {
		return 0, err
	}

	return int64(id), nil
}

func parsePositiveUint(raw, name string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}

	id, err := strconv.ParseUint(raw, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}

	if id == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}

	return id, nil
}
