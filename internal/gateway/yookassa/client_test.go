package yookassa

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/gateway"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New(config.GatewayConfig{
		BaseURL:        srv.URL,
		ShopID:         "shop",
		SecretKey:      "secret",
		ReturnURL:      "https://t.me/example_bot",
		Currency:       "RUB",
		RequestTimeout: 2 * time.Second,
		RatePerSecond:  100,
		RateBurst:      10,
	})
	c.newKey = func() string { return "key-1" }

	return c
}

func TestClient_CreateIntent(t *testing.T) {
	t.Parallel()

	var got map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotence-Key"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"id": "pay-1",
			"status": "pending",
			"paid": false,
			"amount": {"value": "299.00", "currency": "RUB"},
			"confirmation": {"type": "redirect", "confirmation_url": "https://yoomoney.ru/checkout/pay-1"}
		}`))
	})

	intent, err := c.CreateIntent(t.Context(), gateway.IntentRequest{
		Amount:      decimal.RequireFromString("299"),
		Description: "Starter: 10 credits",
		OrderRef:    "42",
		Contact:     gateway.Contact{Email: "user@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, gateway.Intent{
		PaymentID:   "pay-1",
		RedirectURL: "https://yoomoney.ru/checkout/pay-1",
		Status:      gateway.StatusPending,
	}, intent)

	assert.Equal(t, map[string]any{"value": "299.00", "currency": "RUB"}, got["amount"])
	assert.Equal(t, map[string]any{"order_id": "42"}, got["metadata"])
	assert.Equal(t, true, got["capture"])

	rcpt, ok := got["receipt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"email": "user@example.com"}, rcpt["customer"])
}

func TestClient_CreateIntent_ContactRequired(t *testing.T) {
	t.Parallel()

	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.CreateIntent(t.Context(), gateway.IntentRequest{Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, gateway.ErrContactRequired)
	assert.False(t, called)
}

func TestClient_GetStatus_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		want    gateway.PaymentStatus
	}{
		{
			name:   "succeeded",
			status: http.StatusOK,
			body:   `{"id":"pay-1","status":"succeeded","paid":true,"amount":{"value":"299.00","currency":"RUB"},"metadata":{"order_id":"42"}}`,
			want: gateway.PaymentStatus{
				PaymentID: "pay-1",
				Status:    gateway.StatusSucceeded,
				Paid:      true,
				Amount:    decimal.RequireFromString("299"),
				OrderRef:  "42",
			},
		},
		{name: "server_error_is_transient", status: http.StatusBadGateway, body: `{}`, wantErr: gateway.ErrUnavailable},
		{name: "throttled_is_transient", status: http.StatusTooManyRequests, body: `{}`, wantErr: gateway.ErrUnavailable},
		{name: "not_found_is_rejected", status: http.StatusNotFound, body: `{"code":"not_found","description":"no payment"}`, wantErr: gateway.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/payments/pay-1", r.URL.Path)
				assert.Empty(t, r.Header.Get("Idempotence-Key"))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := c.GetStatus(t.Context(), "pay-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Amount.Equal(got.Amount))
			got.Amount = tt.want.Amount
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_GetStatus_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c.cfg.RequestTimeout = 50 * time.Millisecond

	_, err := c.GetStatus(t.Context(), "pay-1")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestClient_VerifyWebhook_TrustsFetchedState(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// The API still reports pending whatever the notification claims.
		_, _ = w.Write([]byte(`{"id":"pay-1","status":"pending","paid":false,"amount":{"value":"10.00","currency":"RUB"}}`))
	})

	raw := `{"type":"notification","event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded","paid":true}}`

	st, err := c.VerifyWebhook(t.Context(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "pay-1", st.PaymentID)
	assert.Equal(t, gateway.StatusPending, st.Status)
	assert.False(t, st.Succeeded())
}

func TestClient_VerifyWebhook_Rejects(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected API call for an invalid notification: %s", r.URL.Path)
	})

	for _, raw := range []string{
		`not json`,
		`{"type":"something","event":"payment.succeeded","object":{"id":"pay-1"}}`,
		`{"type":"notification","event":"refund.succeeded","object":{"id":"r-1"}}`,
		`{"type":"notification","event":"payment.succeeded","object":{}}`,
	} {
		_, err := c.VerifyWebhook(t.Context(), []byte(raw))
		assert.ErrorIs(t, err, gateway.ErrInvalidWebhook, strings.TrimSpace(raw))
	}
}
