// Package credits is the reservation guard around a user's credit balance.
//
// Every mutation locks the user row (SELECT ... FOR UPDATE) before touching
// the balance, so concurrent reservations serialize in the database and the
// balance can never go negative, regardless of how many API replicas run.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	pgusers "github.com/f2re/sale-photosession-bot/internal/repos/users/postgres"
)

var ErrInvalidAmount = errors.New("amount must be >= 1")

type Guard struct {
	db    *sql.DB
	users users.Users
}

func New(db *sql.DB) *Guard {
	return &Guard{
		db:    db,
		users: pgusers.New(db),
	}
}

// Reserve takes one credit. It returns false, without mutating anything,
// when the balance is already zero.
func (g *Guard) Reserve(ctx context.Context, userID uint64) (bool, error) {
	reserved := false

	err := pgutils.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		balance, err := g.users.LockAndGetCredits(tx, userID)
		if err != nil {
			return fmt.Errorf("lock and get credits: %w", err)
		}

		if balance < 1 {
			return nil
		}

		err = g.users.DecreaseCredits(tx, userID, 1)
		if err != nil {
			return fmt.Errorf("decrease credits: %w", err)
		}

		reserved = true

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reserve credit: %w", err)
	}

	return reserved, nil
}

// Rollback returns a previously reserved credit.
func (g *Guard) Rollback(ctx context.Context, userID uint64) error {
	err := g.Grant(ctx, userID, 1)
	if err != nil {
		return fmt.Errorf("rollback credit: %w", err)
	}

	return nil
}

func (g *Guard) Grant(ctx context.Context, userID uint64, amount int64) error {
	return pgutils.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		return g.GrantTx(tx, userID, amount)
	})
}

// GrantTx adds amount inside the caller's transaction.
func (g *Guard) GrantTx(tx *sql.Tx, userID uint64, amount int64) error {
	if amount < 1 {
		return fmt.Errorf("grant %d: %w", amount, ErrInvalidAmount)
	}

	_, err := g.users.LockAndGetCredits(tx, userID)
	if err != nil {
		return fmt.Errorf("lock and get credits: %w", err)
	}

	err = g.users.IncreaseCredits(tx, userID, amount)
	if err != nil {
		return fmt.Errorf("increase credits: %w", err)
	}

	return nil
}

// DeductClamped removes up to amount credits and returns the new balance.
func (g *Guard) DeductClamped(ctx context.Context, userID uint64, amount int64) (int64, error) {
	var balance int64

	err := pgutils.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		var err error
		balance, err = g.DeductClampedTx(tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

func (g *Guard) DeductClampedTx(tx *sql.Tx, userID uint64, amount int64) (int64, error) {
	if amount < 1 {
		return 0, fmt.Errorf("deduct %d: %w", amount, ErrInvalidAmount)
	}

	_, err := g.users.LockAndGetCredits(tx, userID)
	if err != nil {
		return 0, fmt.Errorf("lock and get credits: %w", err)
	}

	balance, err := g.users.DeductClamped(tx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("deduct clamped: %w", err)
	}

	return balance, nil
}

// Balance returns the user's credits (no locks; suitable for read endpoints).
func (g *Guard) Balance(ctx context.Context, userID uint64) (int64, error) {
	balance, err := g.users.GetCredits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get credits: %w", err)
	}

	return balance, nil
}
