// Package checkout implements the user-facing purchase triggers: listing the
// catalog, opening a payment intent and the manual "I paid" check.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	ordersvc "github.com/f2re/sale-photosession-bot/internal/services/orders"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
)

var (
	ErrPackageInactive = errors.New("package is not available")
	// ErrNotOwner hides orders of other users behind a not-found answer.
	ErrNotOwner = fmt.Errorf("%w: not owned by user", orders.ErrOrderNotFound)
)

// Provisional invoice ids hold the unique slot until the gateway answers.
const provisionalPrefix = "pending-"

type PollStarter interface {
	Start(invoiceID string, userID uint64) bool
}

type Reconciler interface {
	Reconcile(ctx context.Context, invoiceID string, source reconcile.Source) (*orders.Order, error)
}

type Purchase struct {
	OrderID     int64
	InvoiceID   string
	RedirectURL string
	Amount      decimal.Decimal
	Credits     int64
}

type CheckResult struct {
	OrderID       int64
	InvoiceID     string
	OrderStatus   orders.Status
	GatewayStatus gateway.Status
	// Credited is true only for the call that actually reconciled the order.
	Credited bool
}

type Service struct {
	packages packages.Packages
	orders   *ordersvc.OrderService
	gw       gateway.Gateway
	poller   PollStarter
	rec      Reconciler

	checks singleflight.Group
}

func New(pkgs packages.Packages, orderSvc *ordersvc.OrderService, gw gateway.Gateway, poller PollStarter, rec Reconciler) *Service {
	return &Service{
		packages: pkgs,
		orders:   orderSvc,
		gw:       gw,
		poller:   poller,
		rec:      rec,
	}
}

func (s *Service) ListPackages(ctx context.Context) ([]packages.Package, error) {
	list, err := s.packages.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	return list, nil
}

// Purchase opens a payment intent for packageID and starts polling it.
func (s *Service) Purchase(ctx context.Context, userID uint64, packageID int64, contact gateway.Contact) (Purchase, error) {
	if contact.Empty() {
		return Purchase{}, gateway.ErrContactRequired
	}

	pkg, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return Purchase{}, fmt.Errorf("get package: %w", err)
	}

	if !pkg.IsActive {
		return Purchase{}, ErrPackageInactive
	}

	order, err := s.orders.Create(ctx, userID, pkg.ID, provisionalPrefix+uuid.NewString(), pkg.Price)
	if err != nil {
		return Purchase{}, err
	}

	log := slog.With("order_id", order.ID, "user_id", userID)

	intent, err := s.gw.CreateIntent(ctx, gateway.IntentRequest{
		Amount:      pkg.Price,
		Description: fmt.Sprintf("%s: %d credits", pkg.Name, pkg.CreditsGranted),
		OrderRef:    strconv.FormatInt(order.ID, 10),
		Contact:     contact,
	})
	if err != nil {
		s.fail(ctx, log, order.ID)
		return Purchase{}, fmt.Errorf("create payment intent: %w", err)
	}

	log = log.With("invoice_id", intent.PaymentID)

	attached, err := s.orders.AttachInvoice(ctx, order.ID, intent.PaymentID)
	if err != nil {
		log.Error("attach invoice failed, payment cannot be matched", "error", err)
		s.fail(ctx, log, order.ID)

		return Purchase{}, err
	}

	if !s.poller.Start(intent.PaymentID, userID) {
		log.Warn("payment poll not started")
	}

	log.Info("payment intent created", "package_id", pkg.ID, "amount", pkg.Price.StringFixed(2))

	return Purchase{
		OrderID:     attached.ID,
		InvoiceID:   attached.InvoiceID,
		RedirectURL: intent.RedirectURL,
		Amount:      pkg.Price,
		Credits:     pkg.CreditsGranted,
	}, nil
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, orderID int64) {
	_, err := s.orders.MarkFailed(context.WithoutCancel(ctx), orderID)
	if err != nil {
		log.Error("mark order failed", "error", err)
	}
}

// CheckPayment asks the gateway once and reconciles on success. Concurrent
// checks of one invoice share a single gateway call.
func (s *Service) CheckPayment(ctx context.Context, userID uint64, invoiceID string) (CheckResult, error) {
	order, err := s.orders.GetByInvoice(ctx, invoiceID)
	if err != nil {
		return CheckResult{}, err
	}

	if order.UserID != userID {
		return CheckResult{}, ErrNotOwner
	}

	if order.Status != orders.StatusPending {
		return CheckResult{
			OrderID:     order.ID,
			InvoiceID:   invoiceID,
			OrderStatus: order.Status,
		}, nil
	}

	v, err, _ := s.checks.Do(invoiceID, func() (any, error) {
		return s.check(context.WithoutCancel(ctx), order)
	})
	if err != nil {
		return CheckResult{}, err
	}

	return v.(CheckResult), nil
}

func (s *Service) check(ctx context.Context, order orders.Order) (CheckResult, error) {
	res := CheckResult{
		OrderID:     order.ID,
		InvoiceID:   order.InvoiceID,
		OrderStatus: order.Status,
	}

	st, err := s.gw.GetStatus(ctx, order.InvoiceID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("get payment status: %w", err)
	}

	res.GatewayStatus = st.Status

	if !st.Succeeded() {
		return res, nil
	}

	paid, err := s.rec.Reconcile(ctx, order.InvoiceID, reconcile.SourceManual)
	if err != nil {
		return CheckResult{}, err
	}

	if paid != nil {
		res.Credited = true
		res.OrderStatus = paid.Status
		return res, nil
	}

	// Another channel won the race; report what it left behind.
	current, err := s.orders.GetByInvoice(ctx, order.InvoiceID)
	if err != nil {
		return CheckResult{}, err
	}

	res.OrderStatus = current.Status

	return res, nil
}
