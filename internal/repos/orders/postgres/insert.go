package orders

import (
	"database/sql"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
)

// Insert stores a new pending order. Status and timestamps of o are ignored.
func (r *ordersRepo) Insert(tx *sql.Tx, o orders.Order) (orders.Order, error) {
	created, err := scanOrder(tx.QueryRow(`
		INSERT INTO orders (user_id, package_id, invoice_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orderColumns,
		o.UserID, o.PackageID, o.InvoiceID, o.Amount, orders.StatusPending))
	if err != nil {
		if pgutils.IsUniqueViolation(err, "orders_invoice_id_key") {
			return orders.Order{}, orders.ErrDuplicateInvoice
		}

		return orders.Order{}, fmt.Errorf("insert order: %w", err)
	}

	return created, nil
}
