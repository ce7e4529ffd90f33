package yookassa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/f2re/sale-photosession-bot/internal/gateway"
)

type notification struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object payment `json:"object"`
}

// VerifyWebhook parses a notification and re-reads the payment from the API.
// Only the fetched state is returned, so a forged body can at most trigger a
// status lookup for an existing payment id.
func (c *Client) VerifyWebhook(ctx context.Context, raw []byte) (gateway.PaymentStatus, error) {
	var n notification

	err := json.Unmarshal(raw, &n)
	if err != nil {
		return gateway.PaymentStatus{}, fmt.Errorf("%w: %w", gateway.ErrInvalidWebhook, err)
	}

	if n.Type != "notification" || !strings.HasPrefix(n.Event, "payment.") || n.Object.ID == "" {
		return gateway.PaymentStatus{}, fmt.Errorf("%w: type=%q event=%q", gateway.ErrInvalidWebhook, n.Type, n.Event)
	}

	st, err := c.GetStatus(ctx, n.Object.ID)
	if err != nil {
		return gateway.PaymentStatus{}, fmt.Errorf("refetch payment: %w", err)
	}

	return st, nil
}
