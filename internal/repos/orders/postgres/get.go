package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
)

func (r *ordersRepo) GetByID(ctx context.Context, id int64) (orders.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))

	return o, mapGetErr(err, "get order")
}

func (r *ordersRepo) GetByInvoice(ctx context.Context, invoiceID string) (orders.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE invoice_id = $1
	`, invoiceID))

	return o, mapGetErr(err, "get order by invoice")
}

func (r *ordersRepo) GetByIDForUpdate(tx *sql.Tx, id int64) (orders.Order, error) {
	o, err := scanOrder(tx.QueryRow(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id))

	return o, mapGetErr(err, "lock order")
}

func (r *ordersRepo) GetByInvoiceForUpdate(tx *sql.Tx, invoiceID string) (orders.Order, error) {
	o, err := scanOrder(tx.QueryRow(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE invoice_id = $1
		FOR UPDATE
	`, invoiceID))

	return o, mapGetErr(err, "lock order by invoice")
}

func mapGetErr(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return orders.ErrOrderNotFound
	}

	return fmt.Errorf("%s: %w", op, err)
}
