package orders

import (
	"database/sql"

	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
)

var _ orders.Orders = (*ordersRepo)(nil)

type ordersRepo struct{ db *sql.DB }

func New(db *sql.DB) *ordersRepo {
	return &ordersRepo{db: db}
}

const orderColumns = `id, user_id, package_id, invoice_id, amount, status, created_at, paid_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var (
		o      orders.Order
		status string
		paidAt sql.NullTime
	)

	err := row.Scan(&o.ID, &o.UserID, &o.PackageID, &o.InvoiceID, &o.Amount, &status, &o.CreatedAt, &paidAt)
	if err != nil {
		return orders.Order{}, err
	}

	o.Status = orders.Status(status)
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}

	return o, nil
}
