package packages

import (
	"database/sql"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
)

// Sync upserts every catalog entry keyed by (name, credits_granted) and
// deactivates packages missing from the catalog. Rows are never deleted
// because orders reference them.
func (r *packagesRepo) Sync(tx *sql.Tx, catalog []packages.Package) (packages.SyncResult, error) {
	var res packages.SyncResult

	keep := make([]int64, 0, len(catalog))

	for _, p := range catalog {
		var id int64

		err := tx.QueryRow(`
			INSERT INTO packages (name, credits_granted, price, is_active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name, credits_granted)
			DO UPDATE SET price = EXCLUDED.price, is_active = EXCLUDED.is_active
			RETURNING id
		`, p.Name, p.CreditsGranted, p.Price, p.IsActive).Scan(&id)
		if err != nil {
			return packages.SyncResult{}, fmt.Errorf("upsert package %q: %w", p.Name, err)
		}

		keep = append(keep, id)
		res.Upserted++
	}

	out, err := tx.Exec(`
		UPDATE packages
		SET is_active = FALSE
		WHERE is_active
		  AND NOT (id = ANY($1))
	`, keep)
	if err != nil {
		return packages.SyncResult{}, fmt.Errorf("deactivate packages: %w", err)
	}

	affected, err := out.RowsAffected()
	if err != nil {
		return packages.SyncResult{}, fmt.Errorf("rows affected: %w", err)
	}

	res.Deactivated = int(affected)

	return res, nil
}
