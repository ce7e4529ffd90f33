// Package accounts registers users on first contact.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/metrics"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	pgusers "github.com/f2re/sale-photosession-bot/internal/repos/users/postgres"
	"github.com/f2re/sale-photosession-bot/internal/services/referral"
)

const codeAttempts = 5

type Registration struct {
	User    users.User
	Created bool
	// Referred is true when this call linked the user to a referrer.
	Referred bool
}

type Service struct {
	db          *sql.DB
	users       users.Users
	referral    *referral.Cascade
	freeCredits int64

	newCode func() string
}

func New(db *sql.DB, cascade *referral.Cascade, freeCredits int64) *Service {
	return &Service{
		db:          db,
		users:       pgusers.New(db),
		referral:    cascade,
		freeCredits: freeCredits,
		newCode:     NewReferralCode,
	}
}

// NewReferralCode returns 8 upper-case hex characters.
func NewReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Register returns the user with id, creating it with the free credits on
// first contact. A non-empty referralCode is passed to the referral cascade,
// which ignores it for users that already have a referrer.
func (s *Service) Register(ctx context.Context, userID uint64, username, referralCode string) (Registration, error) {
	var reg Registration

	for attempt := 1; ; attempt++ {
		code := s.newCode()

		err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			u, err := s.users.Create(tx, users.User{
				ID:           userID,
				Username:     username,
				Credits:      s.freeCredits,
				ReferralCode: code,
			})
			if err != nil {
				return err
			}

			reg.User = u
			reg.Created = u.ReferralCode == code

			if !reg.Created && username != "" && username != u.Username {
				err = s.users.SetUsername(tx, userID, username)
				if err != nil {
					return err
				}

				reg.User.Username = username
			}

			return nil
		})
		if err == nil {
			break
		}

		if errors.Is(err, users.ErrReferralCodeTaken) && attempt < codeAttempts {
			continue
		}

		return Registration{}, fmt.Errorf("register user: %w", err)
	}

	if reg.Created {
		metrics.CreditsGrantedTotal.WithLabelValues("free").Add(float64(s.freeCredits))
		slog.Info("user registered", "user_id", userID, "credits", s.freeCredits)
	}

	referralCode = strings.TrimSpace(referralCode)
	if referralCode == "" {
		return reg, nil
	}

	linked, err := s.referral.Start(ctx, userID, strings.ToUpper(referralCode))
	if err != nil {
		return Registration{}, err
	}

	reg.Referred = linked

	if linked {
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return Registration{}, fmt.Errorf("reload user: %w", err)
		}

		reg.User = u
	}

	return reg, nil
}
