package users

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUserNotFound        = errors.New("user not found")
	ErrReferralCodeTaken   = errors.New("referral code taken")
	ErrAlreadyReferred     = errors.New("user already referred")
)

type User struct {
	ID            uint64
	Username      string
	Credits       int64
	ReferredByID  *uint64
	ReferralCode  string
	ReferralCount int64
	CreatedAt     time.Time
}

type Users interface {
	Exists(tx *sql.Tx, userID uint64) error
	Get(ctx context.Context, userID uint64) (User, error)
	GetForUpdate(tx *sql.Tx, userID uint64) (User, error)
	GetByReferralCode(ctx context.Context, code string) (User, error)
	Create(tx *sql.Tx, u User) (User, error)
	SetUsername(tx *sql.Tx, userID uint64, username string) error

	GetCredits(ctx context.Context, userID uint64) (int64, error)
	LockAndGetCredits(tx *sql.Tx, userID uint64) (int64, error)
	IncreaseCredits(tx *sql.Tx, userID uint64, amount int64) error
	DecreaseCredits(tx *sql.Tx, userID uint64, amount int64) error
	DeductClamped(tx *sql.Tx, userID uint64, amount int64) (int64, error)

	SetReferrer(tx *sql.Tx, userID, referrerID uint64) error
	IncrementReferralCount(tx *sql.Tx, userID uint64) error
}
