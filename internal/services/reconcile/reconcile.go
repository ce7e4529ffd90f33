// Package reconcile turns a confirmed gateway payment into credits exactly once.
//
// Webhook deliveries, background polls and manual "I paid" checks all call
// Engine.Reconcile with nothing but the payment id. They race freely; the
// pending -> paid status guard, evaluated under a row lock, picks a single
// winner and every other call becomes a logged no-op.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/metrics"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	pgorders "github.com/f2re/sale-photosession-bot/internal/repos/orders/postgres"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	pgpackages "github.com/f2re/sale-photosession-bot/internal/repos/packages/postgres"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	pgusers "github.com/f2re/sale-photosession-bot/internal/repos/users/postgres"
	"github.com/f2re/sale-photosession-bot/internal/services/credits"
	"github.com/f2re/sale-photosession-bot/internal/services/referral"
)

// Source names the channel that observed the successful payment.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceManual  Source = "manual"
)

type Engine struct {
	db       *sql.DB
	orders   orders.Orders
	packages packages.Packages
	users    users.Users
	credits  *credits.Guard
	referral *referral.Cascade
}

func New(db *sql.DB, guard *credits.Guard, cascade *referral.Cascade) *Engine {
	return &Engine{
		db:       db,
		orders:   pgorders.New(db),
		packages: pgpackages.New(db),
		users:    pgusers.New(db),
		credits:  guard,
		referral: cascade,
	}
}

type outcome struct {
	order   *orders.Order
	granted int64
	reward  int64
	skipped string
	status  orders.Status
}

// Reconcile marks the order behind invoiceID as paid, grants the package
// credits and runs the referral purchase reward, all in one transaction.
//
// It returns the paid order when this call did the work and nil when there
// was nothing to do (unknown invoice or order no longer pending). On error
// nothing is committed and the order stays pending for the next delivery.
func (e *Engine) Reconcile(ctx context.Context, invoiceID string, source Source) (*orders.Order, error) {
	log := slog.With("invoice_id", invoiceID, "source", string(source))

	var out outcome

	err := pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		out = outcome{}

		o, err := e.orders.GetByInvoiceForUpdate(tx, invoiceID)
		if err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				out.skipped = "unknown_invoice"
				return nil
			}

			return fmt.Errorf("lock order: %w", err)
		}

		if o.Status != orders.StatusPending {
			out.skipped = "not_pending"
			out.status = o.Status
			return nil
		}

		pkg, err := e.packages.GetTx(tx, o.PackageID)
		if err != nil {
			return fmt.Errorf("get package: %w", err)
		}

		paid, err := e.orders.MarkPaid(tx, o.ID)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}

		err = e.credits.GrantTx(tx, paid.UserID, pkg.CreditsGranted)
		if err != nil {
			return fmt.Errorf("grant credits: %w", err)
		}

		buyer, err := e.users.GetForUpdate(tx, paid.UserID)
		if err != nil {
			return fmt.Errorf("get buyer: %w", err)
		}

		reward, err := e.referral.RewardPurchaseTx(tx, paid, buyer, pkg.CreditsGranted)
		if err != nil {
			return fmt.Errorf("referral cascade: %w", err)
		}

		out.order = &paid
		out.granted = pkg.CreditsGranted
		out.reward = reward

		return nil
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(source), "error").Inc()
		log.Error("reconciliation failed, order left pending", "error", err)

		return nil, fmt.Errorf("reconcile %s: %w", invoiceID, err)
	}

	if out.order == nil {
		metrics.ReconcileTotal.WithLabelValues(string(source), "duplicate").Inc()

		switch {
		case out.skipped == "unknown_invoice":
			log.Warn("reconciliation skipped: unknown invoice")
		case out.status == orders.StatusPaid || out.status == orders.StatusRefunded:
			log.Info("reconciliation skipped: already reconciled", "status", string(out.status))
		default:
			// The gateway reports success for an order we no longer consider payable.
			log.Warn("reconciliation skipped: order not pending", "status", string(out.status))
		}

		return nil, nil
	}

	metrics.ReconcileTotal.WithLabelValues(string(source), "granted").Inc()
	metrics.CreditsGrantedTotal.WithLabelValues("purchase").Add(float64(out.granted))
	if out.reward > 0 {
		metrics.CreditsGrantedTotal.WithLabelValues("referral_purchase").Add(float64(out.reward))
	}

	log.Info("order reconciled",
		"order_id", out.order.ID,
		"user_id", out.order.UserID,
		"credits", out.granted,
		"referral_reward", out.reward,
	)

	return out.order, nil
}
