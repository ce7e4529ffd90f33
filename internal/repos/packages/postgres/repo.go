package packages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
)

var _ packages.Packages = (*packagesRepo)(nil)

type packagesRepo struct{ db *sql.DB }

func New(db *sql.DB) *packagesRepo {
	return &packagesRepo{db: db}
}

const packageColumns = `id, name, credits_granted, price, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (packages.Package, error) {
	var p packages.Package

	err := row.Scan(&p.ID, &p.Name, &p.CreditsGranted, &p.Price, &p.IsActive)

	return p, err
}

func (r *packagesRepo) Get(ctx context.Context, id int64) (packages.Package, error) {
	p, err := scanPackage(r.db.QueryRowContext(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return packages.Package{}, packages.ErrPackageNotFound
		}

		return packages.Package{}, fmt.Errorf("get package: %w", err)
	}

	return p, nil
}

func (r *packagesRepo) GetTx(tx *sql.Tx, id int64) (packages.Package, error) {
	p, err := scanPackage(tx.QueryRow(`
		SELECT `+packageColumns+`
		FROM packages
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return packages.Package{}, packages.ErrPackageNotFound
		}

		return packages.Package{}, fmt.Errorf("get package: %w", err)
	}

	return p, nil
}

func (r *packagesRepo) ListActive(ctx context.Context) ([]packages.Package, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE is_active
		ORDER BY price, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []packages.Package

	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}

		out = append(out, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate packages: %w", err)
	}

	return out, nil
}
