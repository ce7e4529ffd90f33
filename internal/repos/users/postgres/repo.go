package users

import (
	"database/sql"

	"github.com/f2re/sale-photosession-bot/internal/repos/users"
)

var _ users.Users = (*usersRepo)(nil)

type usersRepo struct{ db *sql.DB }

func New(db *sql.DB) *usersRepo {
	return &usersRepo{db: db}
}

const userColumns = `id, username, credits, referred_by_id, referral_code, referral_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (users.User, error) {
	var (
		u          users.User
		referredBy sql.NullInt64
	)

	err := row.Scan(&u.ID, &u.Username, &u.Credits, &referredBy, &u.ReferralCode, &u.ReferralCount, &u.CreatedAt)
	if err != nil {
		return users.User{}, err
	}

	if referredBy.Valid {
		id := uint64(referredBy.Int64)
		u.ReferredByID = &id
	}

	return u, nil
}
