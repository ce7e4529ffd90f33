package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateInvoice  = errors.New("duplicate invoice id")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleStatus means the row was no longer in the expected source status.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled, StatusFailed},
	StatusPaid:    {StatusRefunded},
}

// CanTransition reports whether from -> to is an edge of the order lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type Order struct {
	ID        int64
	UserID    uint64
	PackageID int64
	InvoiceID string
	Amount    decimal.Decimal
	Status    Status
	CreatedAt time.Time
	PaidAt    *time.Time
}

type Orders interface {
	Insert(tx *sql.Tx, o Order) (Order, error)
	GetByID(ctx context.Context, id int64) (Order, error)
	GetByInvoice(ctx context.Context, invoiceID string) (Order, error)
	GetByIDForUpdate(tx *sql.Tx, id int64) (Order, error)
	GetByInvoiceForUpdate(tx *sql.Tx, invoiceID string) (Order, error)
	MarkPaid(tx *sql.Tx, id int64) (Order, error)
	Transition(tx *sql.Tx, id int64, from, to Status) (Order, error)
	AttachInvoice(tx *sql.Tx, id int64, invoiceID string) (Order, error)
}
