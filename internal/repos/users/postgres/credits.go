package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/repos/users"
)

func (r *usersRepo) GetCredits(ctx context.Context, userID uint64) (int64, error) {
	var credits int64

	err := r.db.QueryRowContext(ctx, `
		SELECT credits
		FROM users
		WHERE id = $1
	`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, users.ErrUserNotFound
		}

		return 0, fmt.Errorf("get credits: %w", err)
	}

	return credits, nil
}

func (r *usersRepo) LockAndGetCredits(tx *sql.Tx, userID uint64) (int64, error) {
	var credits int64

	err := tx.QueryRow(`
		SELECT credits
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("lock/get credits: %w", users.ErrUserNotFound)
		}

		return 0, fmt.Errorf("lock/get credits: %w", err)
	}

	return credits, nil
}

func (r *usersRepo) IncreaseCredits(tx *sql.Tx, userID uint64, amount int64) error {
	res, err := tx.Exec(`
		UPDATE users
		SET credits = credits + $2
		WHERE id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("increase credits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return users.ErrUserNotFound
	}

	return nil
}

func (r *usersRepo) DecreaseCredits(tx *sql.Tx, userID uint64, amount int64) error {
	res, err := tx.Exec(`
		UPDATE users
		SET credits = credits - $2
		WHERE id = $1
		  AND credits >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("decrease credits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return users.ErrInsufficientCredits
	}

	return nil
}

// DeductClamped subtracts amount but never goes below zero. It returns the new balance.
func (r *usersRepo) DeductClamped(tx *sql.Tx, userID uint64, amount int64) (int64, error) {
	var credits int64

	err := tx.QueryRow(`
		UPDATE users
		SET credits = GREATEST(credits - $2, 0)
		WHERE id = $1
		RETURNING credits
	`, userID, amount).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, users.ErrUserNotFound
		}

		return 0, fmt.Errorf("deduct clamped: %w", err)
	}

	return credits, nil
}
