// Package yookassa implements gateway.Gateway against the YooKassa REST API v3.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/metrics"
)

var _ gateway.Gateway = (*Client)(nil)

type Client struct {
	cfg     config.GatewayConfig
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	newKey  func() string
}

func New(cfg config.GatewayConfig) *Client {
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		newKey:  uuid.NewString,
	}
}

type amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

func (a amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	}{a.Value.StringFixed(2), a.Currency})
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type receiptItem struct {
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	Amount         amount `json:"amount"`
	VatCode        int    `json:"vat_code"`
	PaymentMode    string `json:"payment_mode"`
	PaymentSubject string `json:"payment_subject"`
}

type customer struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type receipt struct {
	Customer customer      `json:"customer"`
	Items    []receiptItem `json:"items"`
}

type createPaymentRequest struct {
	Amount       amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Receipt      receipt           `json:"receipt"`
}

type payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       amount            `json:"amount"`
	Confirmation *confirmation     `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}

func (p payment) toStatus() gateway.PaymentStatus {
	return gateway.PaymentStatus{
		PaymentID: p.ID,
		Status:    gateway.Status(p.Status),
		Paid:      p.Paid,
		Amount:    p.Amount.Value,
		OrderRef:  p.Metadata["order_id"],
	}
}

// Description is capped by the API at 128 characters.
const maxDescription = 128

func (c *Client) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	if req.Contact.Empty() {
		return gateway.Intent{}, gateway.ErrContactRequired
	}

	desc := req.Description
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription])
	}

	price := amount{Value: req.Amount, Currency: c.cfg.Currency}

	body := createPaymentRequest{
		Amount: price,
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: c.cfg.ReturnURL,
		},
		Capture:     true,
		Description: desc,
		Metadata:    map[string]string{"order_id": req.OrderRef},
		Receipt: receipt{
			Customer: customer{Email: req.Contact.Email, Phone: req.Contact.Phone},
			Items: []receiptItem{{
				Description:    desc,
				Quantity:       "1",
				Amount:         price,
				VatCode:        1,
				PaymentMode:    "full_payment",
				PaymentSubject: "service",
			}},
		},
	}

	var p payment

	err := c.do(ctx, "create", http.MethodPost, "/payments", body, &p)
	if err != nil {
		return gateway.Intent{}, fmt.Errorf("create payment: %w", err)
	}

	intent := gateway.Intent{
		PaymentID: p.ID,
		Status:    gateway.Status(p.Status),
	}
	if p.Confirmation != nil {
		intent.RedirectURL = p.Confirmation.ConfirmationURL
	}

	return intent, nil
}

func (c *Client) GetStatus(ctx context.Context, paymentID string) (gateway.PaymentStatus, error) {
	if paymentID == "" {
		return gateway.PaymentStatus{}, fmt.Errorf("get payment: %w: empty payment id", gateway.ErrRejected)
	}

	var p payment

	err := c.do(ctx, "status", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &p)
	if err != nil {
		return gateway.PaymentStatus{}, fmt.Errorf("get payment %s: %w", paymentID, err)
	}

	return p.toStatus(), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, gateway.ErrUnavailable):
			result = "unavailable"
		case err != nil:
			result = "rejected"
		}
		metrics.GatewayRequestsTotal.WithLabelValues(op, result).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	err = c.limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: rate limit: %w", gateway.ErrUnavailable, err)
	}

	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	req.SetBasicAuth(c.cfg.ShopID, c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotence-Key", c.newKey())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", gateway.ErrUnavailable, err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status=%d", gateway.ErrUnavailable, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr)

		return fmt.Errorf("%w: status=%d code=%s: %s", gateway.ErrRejected, resp.StatusCode, apiErr.Code, apiErr.Description)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
