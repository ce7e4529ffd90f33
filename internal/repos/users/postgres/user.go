package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
)

func (r *usersRepo) Exists(tx *sql.Tx, userID uint64) error {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return users.ErrUserNotFound
	}

	return nil
}

func (r *usersRepo) Get(ctx context.Context, userID uint64) (users.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}

		return users.User{}, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

func (r *usersRepo) GetForUpdate(tx *sql.Tx, userID uint64) (users.User, error) {
	u, err := scanUser(tx.QueryRow(`
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}

		return users.User{}, fmt.Errorf("lock user: %w", err)
	}

	return u, nil
}

func (r *usersRepo) GetByReferralCode(ctx context.Context, code string) (users.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE referral_code = $1
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}

		return users.User{}, fmt.Errorf("get user by referral code: %w", err)
	}

	return u, nil
}

// Create inserts u. An existing row with the same id is returned unchanged.
func (r *usersRepo) Create(tx *sql.Tx, u users.User) (users.User, error) {
	created, err := scanUser(tx.QueryRow(`
		INSERT INTO users (id, username, credits, referral_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+userColumns,
		u.ID, u.Username, u.Credits, u.ReferralCode))
	if err == nil {
		return created, nil
	}

	if pgutils.IsUniqueViolation(err, "users_referral_code_key") {
		return users.User{}, users.ErrReferralCodeTaken
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return users.User{}, fmt.Errorf("insert user: %w", err)
	}

	existing, err := scanUser(tx.QueryRow(`
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, u.ID))
	if err != nil {
		return users.User{}, fmt.Errorf("get existing user: %w", err)
	}

	return existing, nil
}

func (r *usersRepo) SetUsername(tx *sql.Tx, userID uint64, username string) error {
	res, err := tx.Exec(`
		UPDATE users
		SET username = $2
		WHERE id = $1
	`, userID, username)
	if err != nil {
		return fmt.Errorf("set username: %w", err)
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
