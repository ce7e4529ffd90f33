// Package gatewaytest provides a scripted in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/f2re/sale-photosession-bot/internal/gateway"
)

// Step is one scripted GetStatus answer.
type Step struct {
	Status gateway.Status
	Paid   bool
	Err    error
}

func Pending() Step   { return Step{Status: gateway.StatusPending} }
func Succeeded() Step { return Step{Status: gateway.StatusSucceeded, Paid: true} }
func Canceled() Step  { return Step{Status: gateway.StatusCanceled} }
func Failing() Step   { return Step{Err: gateway.ErrUnavailable} }

type Fake struct {
	mu sync.Mutex

	// CreateErr, when set, is returned by every CreateIntent call.
	CreateErr error

	created []gateway.IntentRequest
	scripts map[string][]Step
	calls   map[string]int
	nextID  int
}

func New() *Fake {
	return &Fake{
		scripts: make(map[string][]Step),
		calls:   make(map[string]int),
	}
}

// Script sets the answers for paymentID. Each GetStatus call consumes one
// step; the last step repeats forever.
func (f *Fake) Script(paymentID string, steps ...Step) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scripts[paymentID] = steps
}

func (f *Fake) Calls(paymentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[paymentID]
}

func (f *Fake) Created() []gateway.IntentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]gateway.IntentRequest(nil), f.created...)
}

func (f *Fake) CreateIntent(_ context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.Contact.Empty() {
		return gateway.Intent{}, gateway.ErrContactRequired
	}

	if f.CreateErr != nil {
		return gateway.Intent{}, f.CreateErr
	}

	f.nextID++
	id := fmt.Sprintf("fake-pay-%d", f.nextID)

	f.created = append(f.created, req)
	if _, ok := f.scripts[id]; !ok {
		f.scripts[id] = []Step{Pending()}
	}

	return gateway.Intent{
		PaymentID:   id,
		RedirectURL: "https://pay.example/" + id,
		Status:      gateway.StatusPending,
	}, nil
}

func (f *Fake) GetStatus(_ context.Context, paymentID string) (gateway.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[paymentID]++

	steps, ok := f.scripts[paymentID]
	if !ok || len(steps) == 0 {
		return gateway.PaymentStatus{}, fmt.Errorf("%w: unknown payment %s", gateway.ErrRejected, paymentID)
	}

	step := steps[0]
	if len(steps) > 1 {
		f.scripts[paymentID] = steps[1:]
	}

	if step.Err != nil {
		return gateway.PaymentStatus{}, step.Err
	}

	return gateway.PaymentStatus{
		PaymentID: paymentID,
		Status:    step.Status,
		Paid:      step.Paid,
	}, nil
}

// VerifyWebhook accepts {"object":{"id":...}} and answers with the scripted state.
func (f *Fake) VerifyWebhook(ctx context.Context, raw []byte) (gateway.PaymentStatus, error) {
	var n struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	}

	err := json.Unmarshal(raw, &n)
	if err != nil || n.Object.ID == "" {
		return gateway.PaymentStatus{}, gateway.ErrInvalidWebhook
	}

	return f.GetStatus(ctx, n.Object.ID)
}
