package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/gateway/gatewaytest"
	"github.com/f2re/sale-photosession-bot/internal/generator"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	"github.com/f2re/sale-photosession-bot/internal/services/accounts"
	"github.com/f2re/sale-photosession-bot/internal/services/checkout"
	"github.com/f2re/sale-photosession-bot/internal/services/generation"
	"github.com/f2re/sale-photosession-bot/internal/services/poller"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
	"github.com/f2re/sale-photosession-bot/internal/services/referral"
)

const testSecret = "test-secret"

type fakeServices struct {
	mu sync.Mutex

	balanceErr   error
	generateErr  error
	purchaseErr  error
	checkErr     error
	reconcileErr error
	actionOK     bool
	actionErr    error

	reconciled    []reconcile.Source
	reconcileCtxs []error
	adminIDs      []string
}

func (f *fakeServices) Register(_ context.Context, id uint64, username, _ string) (accounts.Registration, error) {
	return accounts.Registration{
		User:    users.User{ID: id, Username: username, Credits: 2, ReferralCode: "ABCDEF12"},
		Created: true,
	}, nil
}

func (f *fakeServices) Balance(_ context.Context, _ uint64) (int64, error) {
	return 7, f.balanceErr
}

func (f *fakeServices) Stats(_ context.Context, _ uint64) (referral.Stats, error) {
	return referral.Stats{ReferralCode: "ABCDEF12", ReferralCount: 2, StartCredits: 1, PurchaseCredits: 3, TotalCredits: 4}, nil
}

func (f *fakeServices) Generate(_ context.Context, _ uint64, _ generator.Request) (generator.Result, error) {
	if f.generateErr != nil {
		return generator.Result{}, f.generateErr
	}

	return generator.Result{Images: []generator.Image{{URL: "https://img/1"}}}, nil
}

func (f *fakeServices) ListPackages(_ context.Context) ([]packages.Package, error) {
	return []packages.Package{{ID: 1, Name: "Starter", CreditsGranted: 10, Price: decimal.RequireFromString("299"), IsActive: true}}, nil
}

func (f *fakeServices) Purchase(_ context.Context, _ uint64, _ int64, _ gateway.Contact) (checkout.Purchase, error) {
	if f.purchaseErr != nil {
		return checkout.Purchase{}, f.purchaseErr
	}

	return checkout.Purchase{
		OrderID:     5,
		InvoiceID:   "pay-5",
		RedirectURL: "https://pay.example/pay-5",
		Amount:      decimal.RequireFromString("299"),
		Credits:     10,
	}, nil
}

func (f *fakeServices) CheckPayment(_ context.Context, _ uint64, invoiceID string) (checkout.CheckResult, error) {
	if f.checkErr != nil {
		return checkout.CheckResult{}, f.checkErr
	}

	return checkout.CheckResult{OrderID: 5, InvoiceID: invoiceID, OrderStatus: orders.StatusPaid, GatewayStatus: gateway.StatusSucceeded, Credited: true}, nil
}

func (f *fakeServices) Result(invoiceID string) (poller.Result, bool) {
	if invoiceID != "pay-5" {
		return poller.Result{}, false
	}

	return poller.Result{InvoiceID: invoiceID, Outcome: poller.OutcomeTimeout, Checks: 18, SupportHint: poller.SupportHint(invoiceID)}, true
}

func (f *fakeServices) Reconcile(ctx context.Context, invoiceID string, source reconcile.Source) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reconciled = append(f.reconciled, source)
	f.reconcileCtxs = append(f.reconcileCtxs, ctx.Err())

	return &orders.Order{InvoiceID: invoiceID}, f.reconcileErr
}

func (f *fakeServices) Cancel(_ context.Context, orderID int64, adminID string) (orders.Order, bool, error) {
	return f.action(orderID, adminID, orders.StatusCancelled)
}

func (f *fakeServices) Refund(_ context.Context, orderID int64, adminID string) (orders.Order, bool, error) {
	return f.action(orderID, adminID, orders.StatusRefunded)
}

func (f *fakeServices) action(orderID int64, adminID string, to orders.Status) (orders.Order, bool, error) {
	f.mu.Lock()
	f.adminIDs = append(f.adminIDs, adminID)
	f.mu.Unlock()

	if f.actionErr != nil {
		return orders.Order{}, false, f.actionErr
	}

	o := orders.Order{ID: orderID, UserID: 2, InvoiceID: "pay-5", Amount: decimal.RequireFromString("299"), Status: to}
	if !f.actionOK {
		o.Status = orders.StatusPaid
	}

	return o, f.actionOK, nil
}

func newTestRouter(f *fakeServices, gw *gatewaytest.Fake) http.Handler {
	return NewRouter(Services{
		Accounts:    f,
		Balances:    f,
		Referrals:   f,
		Generations: f,
		Checkout:    f,
		Polls:       f,
		Reconciler:  f,
		Webhooks:    gw,
		Orders:      f,
	}, testSecret)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)

	return rr, out
}

func adminToken(t *testing.T, secret string, sub string, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	return "Bearer " + tok
}

func TestRouter_UserEndpoints(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&fakeServices{}, gatewaytest.New())

	rr, body := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])

	rr, body = do(t, h, http.MethodPost, "/users", `{"id":10,"username":"alice","referralCode":"ABC"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "ABCDEF12", body["referralCode"])

	rr, _ = do(t, h, http.MethodPost, "/users", `{"id":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, h, http.MethodPost, "/users", `{"id":1,"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, h, http.MethodGet, "/users/10/balance", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 7, body["credits"])

	rr, _ = do(t, h, http.MethodGet, "/users/abc/balance", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, h, http.MethodGet, "/users/10/referrals", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 4, body["totalCredits"])

	rr, _ = do(t, h, http.MethodGet, "/packages", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"price":"299.00"`)
}

func TestRouter_BalanceUnknownUser(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&fakeServices{balanceErr: users.ErrUserNotFound}, gatewaytest.New())

	rr, _ := do(t, h, http.MethodGet, "/users/10/balance", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_GenerateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"busy", generation.ErrBusy, http.StatusConflict},
		{"no credits", generation.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"unknown user", users.ErrUserNotFound, http.StatusNotFound},
		{"generator down", generator.ErrUnavailable, http.StatusBadGateway},
		{"rejected input", generator.ErrBadRequest, http.StatusUnprocessableEntity},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestRouter(&fakeServices{generateErr: tt.err}, gatewaytest.New())

			rr, _ := do(t, h, http.MethodPost, "/users/3/generations", `{"imageUrl":"https://src/1"}`)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRouter_PurchaseAndCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"no contact", gateway.ErrContactRequired, http.StatusBadRequest},
		{"inactive package", checkout.ErrPackageInactive, http.StatusNotFound},
		{"gateway down", gateway.ErrUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestRouter(&fakeServices{purchaseErr: tt.err}, gatewaytest.New())

			rr, body := do(t, h, http.MethodPost, "/users/2/purchases", `{"packageId":1,"email":"a@b.c"}`)
			assert.Equal(t, tt.want, rr.Code)

			if tt.err == nil {
				assert.Equal(t, "pay-5", body["invoiceId"])
				assert.Equal(t, "299.00", body["amount"])
			}
		})
	}

	h := newTestRouter(&fakeServices{}, gatewaytest.New())

	rr, body := do(t, h, http.MethodPost, "/users/2/purchases/pay-5/check", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["credited"])
	assert.Equal(t, "paid", body["status"])

	h = newTestRouter(&fakeServices{checkErr: checkout.ErrNotOwner}, gatewaytest.New())

	rr, _ = do(t, h, http.MethodPost, "/users/2/purchases/pay-5/check", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_PollResult(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&fakeServices{}, gatewaytest.New())

	rr, body := do(t, h, http.MethodGet, "/payments/pay-5/poll", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "timeout", body["outcome"])
	assert.Contains(t, body["supportHint"], "pay-5")

	rr, _ = do(t, h, http.MethodGet, "/payments/nope/poll", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_WebhookAlwaysOK(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.Script("pay-ok", gatewaytest.Succeeded())
	gw.Script("pay-pending", gatewaytest.Pending())
	gw.Script("pay-down", gatewaytest.Failing())

	tests := []struct {
		name          string
		body          string
		reconcileErr  error
		wantReconcile bool
	}{
		{"garbage", `not json`, nil, false},
		{"no payment id", `{"object":{}}`, nil, false},
		{"pending payment", `{"object":{"id":"pay-pending"}}`, nil, false},
		{"gateway down", `{"object":{"id":"pay-down"}}`, nil, false},
		{"succeeded", `{"object":{"id":"pay-ok"}}`, nil, true},
		{"reconcile fails", `{"object":{"id":"pay-ok"}}`, assert.AnError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := &fakeServices{reconcileErr: tt.reconcileErr}
			h := newTestRouter(f, gw)

			rr, _ := do(t, h, http.MethodPost, "/webhooks/yookassa", tt.body)
			assert.Equal(t, http.StatusOK, rr.Code)

			f.mu.Lock()
			defer f.mu.Unlock()

			if tt.wantReconcile {
				assert.Equal(t, []reconcile.Source{reconcile.SourceWebhook}, f.reconciled)
			} else {
				assert.Empty(t, f.reconciled)
			}
		})
	}
}

func TestRouter_WebhookSurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	gw := gatewaytest.New()
	gw.Script("pay-gone", gatewaytest.Succeeded())

	f := &fakeServices{}
	h := newTestRouter(f, gw)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/yookassa", strings.NewReader(`{"object":{"id":"pay-gone"}}`))
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	f.mu.Lock()
	defer f.mu.Unlock()

	require.Equal(t, []reconcile.Source{reconcile.SourceWebhook}, f.reconciled)
	assert.NoError(t, f.reconcileCtxs[0], "reconcile must not inherit the request cancellation")
}

func TestRouter_AdminAuth(t *testing.T) {
	t.Parallel()

	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong secret", adminToken(t, "other", "admin-1", future), http.StatusUnauthorized},
		{"expired", adminToken(t, testSecret, "admin-1", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"no subject", adminToken(t, testSecret, "", future), http.StatusUnauthorized},
		{"valid", adminToken(t, testSecret, "admin-1", future), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := &fakeServices{actionOK: true}
			h := newTestRouter(f, gatewaytest.New())

			rr, _ := do(t, h, http.MethodPost, "/admin/orders/9/refund", "", "Authorization", tt.header)
			assert.Equal(t, tt.want, rr.Code)

			if tt.want == http.StatusOK {
				assert.Equal(t, []string{"admin-1"}, f.adminIDs)
			}
		})
	}
}

func TestRouter_AdminOrderActions(t *testing.T) {
	t.Parallel()

	auth := adminToken(t, testSecret, "admin-1", time.Now().Add(time.Hour))

	h := newTestRouter(&fakeServices{actionOK: true}, gatewaytest.New())
	rr, body := do(t, h, http.MethodPost, "/admin/orders/9/cancel", "", "Authorization", auth)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancelled", body["status"])

	h = newTestRouter(&fakeServices{actionOK: false}, gatewaytest.New())
	rr, body = do(t, h, http.MethodPost, "/admin/orders/9/cancel", "", "Authorization", auth)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "order is not pending", body["error"])

	h = newTestRouter(&fakeServices{actionErr: orders.ErrOrderNotFound}, gatewaytest.New())
	rr, _ = do(t, h, http.MethodPost, "/admin/orders/9/refund", "", "Authorization", auth)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = do(t, h, http.MethodPost, "/admin/orders/x/refund", "", "Authorization", auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
