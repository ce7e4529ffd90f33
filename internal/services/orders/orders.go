package orders

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	pgorders "github.com/f2re/sale-photosession-bot/internal/repos/orders/postgres"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	pgpackages "github.com/f2re/sale-photosession-bot/internal/repos/packages/postgres"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	pgusers "github.com/f2re/sale-photosession-bot/internal/repos/users/postgres"
	"github.com/f2re/sale-photosession-bot/internal/services/credits"
)

type OrderService struct {
	db       *sql.DB
	orders   orders.Orders
	packages packages.Packages
	users    users.Users
	credits  *credits.Guard
}

func New(db *sql.DB, guard *credits.Guard) *OrderService {
	return &OrderService{
		db:       db,
		orders:   pgorders.New(db),
		packages: pgpackages.New(db),
		users:    pgusers.New(db),
		credits:  guard,
	}
}

// Create stores a new pending order. invoiceID must be unique.
func (s *OrderService) Create(ctx context.Context, userID uint64, packageID int64, invoiceID string, amount decimal.Decimal) (orders.Order, error) {
	var created orders.Order

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.users.Exists(tx, userID)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}

		created, err = s.orders.Insert(tx, orders.Order{
			UserID:    userID,
			PackageID: packageID,
			InvoiceID: invoiceID,
			Amount:    amount,
		})
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		return nil
	})
	if err != nil {
		return orders.Order{}, fmt.Errorf("create order: %w", err)
	}

	return created, nil
}

// Cancel moves a pending order to cancelled. ok is false, with the current
// order and no error, when the order is not pending.
func (s *OrderService) Cancel(ctx context.Context, orderID int64, adminID string) (order orders.Order, ok bool, err error) {
	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := s.orders.GetByIDForUpdate(tx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		order = o
		if o.Status != orders.StatusPending {
			return nil
		}

		order, err = s.orders.Transition(tx, orderID, orders.StatusPending, orders.StatusCancelled)
		if err != nil {
			return fmt.Errorf("transition: %w", err)
		}

		ok = true

		return nil
	})
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("cancel order: %w", err)
	}

	log := slog.With("order_id", orderID, "admin_id", adminID, "status", string(order.Status))
	if ok {
		log.Info("order cancelled")
	} else {
		log.Warn("cancel rejected: order not pending")
	}

	return order, ok, nil
}

// Refund reverses a paid order: it deducts the package credits, clamped at
// zero, and marks the order refunded. Referral rewards already paid out are
// kept. ok is false when the order is not paid.
func (s *OrderService) Refund(ctx context.Context, orderID int64, adminID string) (order orders.Order, ok bool, err error) {
	var balance, deducted int64

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := s.orders.GetByIDForUpdate(tx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		order = o
		if o.Status != orders.StatusPaid {
			return nil
		}

		pkg, err := s.packages.GetTx(tx, o.PackageID)
		if err != nil {
			return fmt.Errorf("get package: %w", err)
		}

		deducted = pkg.CreditsGranted

		balance, err = s.credits.DeductClampedTx(tx, o.UserID, deducted)
		if err != nil {
			return fmt.Errorf("deduct credits: %w", err)
		}

		order, err = s.orders.Transition(tx, orderID, orders.StatusPaid, orders.StatusRefunded)
		if err != nil {
			return fmt.Errorf("transition: %w", err)
		}

		ok = true

		return nil
	})
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("refund order: %w", err)
	}

	log := slog.With("order_id", orderID, "admin_id", adminID, "user_id", order.UserID, "status", string(order.Status))
	if ok {
		log.Info("order refunded", "credits", deducted, "balance", balance)
	} else {
		log.Warn("refund rejected: order not paid")
	}

	return order, ok, nil
}

// AttachInvoice swaps the provisional invoice id for the gateway payment id.
func (s *OrderService) AttachInvoice(ctx context.Context, orderID int64, invoiceID string) (orders.Order, error) {
	var o orders.Order

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		o, err = s.orders.AttachInvoice(tx, orderID, invoiceID)
		return err
	})
	if err != nil {
		return orders.Order{}, fmt.Errorf("attach invoice: %w", err)
	}

	return o, nil
}

// MarkFailed closes a pending order whose payment intent could not be created.
func (s *OrderService) MarkFailed(ctx context.Context, orderID int64) (orders.Order, error) {
	var o orders.Order

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		o, err = s.orders.Transition(tx, orderID, orders.StatusPending, orders.StatusFailed)
		return err
	})
	if err != nil {
		return orders.Order{}, fmt.Errorf("mark failed: %w", err)
	}

	return o, nil
}

func (s *OrderService) Get(ctx context.Context, orderID int64) (orders.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

func (s *OrderService) GetByInvoice(ctx context.Context, invoiceID string) (orders.Order, error) {
	o, err := s.orders.GetByInvoice(ctx, invoiceID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("get order by invoice: %w", err)
	}

	return o, nil
}
