package users

import (
	"database/sql"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/repos/users"
)

// SetReferrer links userID to referrerID only if no referrer is set yet.
func (r *usersRepo) SetReferrer(tx *sql.Tx, userID, referrerID uint64) error {
	res, err := tx.Exec(`
		UPDATE users
		SET referred_by_id = $2
		WHERE id = $1
		  AND referred_by_id IS NULL
	`, userID, referrerID)
	if err != nil {
		return fmt.Errorf("set referrer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return users.ErrAlreadyReferred
	}

	return nil
}

func (r *usersRepo) IncrementReferralCount(tx *sql.Tx, userID uint64) error {
	_, err := tx.Exec(`
		UPDATE users
		SET referral_count = referral_count + 1
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("increment referral count: %w", err)
	}

	return nil
}
