package orders

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
)

// MarkPaid flips a pending order to paid and stamps paid_at. paid_at is only
// ever written here, so it is set exactly once.
func (r *ordersRepo) MarkPaid(tx *sql.Tx, id int64) (orders.Order, error) {
	o, err := scanOrder(tx.QueryRow(`
		UPDATE orders
		SET status = $2, paid_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+orderColumns,
		id, orders.StatusPaid, orders.StatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrStaleStatus
		}

		return orders.Order{}, fmt.Errorf("mark paid: %w", err)
	}

	return o, nil
}

func (r *ordersRepo) Transition(tx *sql.Tx, id int64, from, to orders.Status) (orders.Order, error) {
	if !orders.CanTransition(from, to) {
		return orders.Order{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, from, to)
	}

	if to == orders.StatusPaid {
		return r.MarkPaid(tx, id)
	}

	o, err := scanOrder(tx.QueryRow(`
		UPDATE orders
		SET status = $2
		WHERE id = $1
		  AND status = $3
		RETURNING `+orderColumns,
		id, to, from))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrStaleStatus
		}

		return orders.Order{}, fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}

	return o, nil
}

// AttachInvoice replaces the provisional invoice id with the gateway payment id.
func (r *ordersRepo) AttachInvoice(tx *sql.Tx, id int64, invoiceID string) (orders.Order, error) {
	o, err := scanOrder(tx.QueryRow(`
		UPDATE orders
		SET invoice_id = $2
		WHERE id = $1
		  AND status = $3
		RETURNING `+orderColumns,
		id, invoiceID, orders.StatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrStaleStatus
		}

		if pgutils.IsUniqueViolation(err, "orders_invoice_id_key") {
			return orders.Order{}, orders.ErrDuplicateInvoice
		}

		return orders.Order{}, fmt.Errorf("attach invoice: %w", err)
	}

	return o, nil
}
