package packages

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrPackageNotFound = errors.New("package not found")

type Package struct {
	ID             int64
	Name           string
	CreditsGranted int64
	Price          decimal.Decimal
	IsActive       bool
}

type Packages interface {
	Get(ctx context.Context, id int64) (Package, error)
	GetTx(tx *sql.Tx, id int64) (Package, error)
	ListActive(ctx context.Context) ([]Package, error)
	Sync(tx *sql.Tx, catalog []Package) (SyncResult, error)
}

type SyncResult struct {
	Upserted    int
	Deactivated int
}
