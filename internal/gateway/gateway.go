// Package gateway defines the payment provider boundary used by checkout,
// polling and the webhook endpoint.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable marks transient failures (network, timeouts, 5xx, 429).
	// Callers retry only through the poll schedule or a new manual check.
	ErrUnavailable     = errors.New("payment gateway unavailable")
	ErrRejected        = errors.New("payment gateway rejected request")
	ErrContactRequired = errors.New("email or phone required for receipt")
	ErrInvalidWebhook  = errors.New("invalid webhook notification")
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusWaitingForCapture Status = "waiting_for_capture"
	StatusSucceeded         Status = "succeeded"
	StatusCanceled          Status = "canceled"
)

type Contact struct {
	Email string
	Phone string
}

func (c Contact) Empty() bool {
	return c.Email == "" && c.Phone == ""
}

type IntentRequest struct {
	Amount      decimal.Decimal
	Description string
	// OrderRef is our order id, echoed back in the payment metadata.
	OrderRef string
	Contact  Contact
}

type Intent struct {
	PaymentID   string
	RedirectURL string
	Status      Status
}

type PaymentStatus struct {
	PaymentID string
	Status    Status
	Paid      bool
	Amount    decimal.Decimal
	OrderRef  string
}

// Succeeded reports a captured payment: status succeeded and paid.
func (p PaymentStatus) Succeeded() bool {
	return p.Status == StatusSucceeded && p.Paid
}

func (p PaymentStatus) Canceled() bool {
	return p.Status == StatusCanceled
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetStatus(ctx context.Context, paymentID string) (PaymentStatus, error)
	// VerifyWebhook authenticates a raw notification and returns the payment
	// state it refers to, or ErrInvalidWebhook.
	VerifyWebhook(ctx context.Context, raw []byte) (PaymentStatus, error)
}
