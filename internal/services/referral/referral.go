package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/metrics"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	"github.com/f2re/sale-photosession-bot/internal/repos/referrals"
	pgreferrals "github.com/f2re/sale-photosession-bot/internal/repos/referrals/postgres"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	pgusers "github.com/f2re/sale-photosession-bot/internal/repos/users/postgres"
	"github.com/f2re/sale-photosession-bot/internal/services/credits"
)

type Stats struct {
	ReferralCode    string
	ReferralCount   int64
	StartCredits    int64
	PurchaseCredits int64
	TotalCredits    int64
}

type Cascade struct {
	db      *sql.DB
	users   users.Users
	rewards referrals.Referrals
	credits *credits.Guard
	cfg     config.ReferralConfig
}

func New(db *sql.DB, guard *credits.Guard, cfg config.ReferralConfig) *Cascade {
	return &Cascade{
		db:      db,
		users:   pgusers.New(db),
		rewards: pgreferrals.New(db),
		credits: guard,
		cfg:     cfg,
	}
}

// Start links referredID to the owner of code and grants the flat start
// reward. It reports whether a link was made. Unknown codes, self referral
// and users that already have a referrer are silently ignored.
func (c *Cascade) Start(ctx context.Context, referredID uint64, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	referrer, err := c.users.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			slog.Info("unknown referral code", "user_id", referredID, "code", code)
			return false, nil
		}

		return false, fmt.Errorf("resolve referral code: %w", err)
	}

	if referrer.ID == referredID {
		return false, nil
	}

	linked := false

	err = pgutils.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		referred, err := c.users.GetForUpdate(tx, referredID)
		if err != nil {
			return fmt.Errorf("lock referred user: %w", err)
		}

		if referred.ReferredByID != nil {
			return nil
		}

		err = c.users.SetReferrer(tx, referredID, referrer.ID)
		if err != nil {
			if errors.Is(err, users.ErrAlreadyReferred) {
				return nil
			}

			return fmt.Errorf("set referrer: %w", err)
		}

		linked = true

		if c.cfg.StartReward < 1 {
			return nil
		}

		return c.grantTx(tx, referrals.Reward{
			UserID:         referrer.ID,
			ReferredUserID: referredID,
			Type:           referrals.RewardStart,
			Credits:        c.cfg.StartReward,
		})
	})
	if err != nil {
		return false, fmt.Errorf("referral start: %w", err)
	}

	if linked {
		if c.cfg.StartReward > 0 {
			metrics.CreditsGrantedTotal.WithLabelValues(string(referrals.RewardStart)).Add(float64(c.cfg.StartReward))
		}

		slog.Info("referral linked",
			"user_id", referredID,
			"referrer_id", referrer.ID,
			"reward", c.cfg.StartReward,
		)
	}

	return linked, nil
}

// RewardPurchaseTx grants the referrer of buyer a percentage of the credits
// bought with order. It runs inside the reconciliation transaction and
// returns the granted amount, which is zero for unreferred buyers or when
// the percentage rounds down to nothing.
func (c *Cascade) RewardPurchaseTx(tx *sql.Tx, order orders.Order, buyer users.User, purchased int64) (int64, error) {
	if buyer.ReferredByID == nil {
		return 0, nil
	}

	reward := PurchaseReward(purchased, c.cfg.PurchasePercent)
	if reward < 1 {
		return 0, nil
	}

	orderID := order.ID

	err := c.grantTx(tx, referrals.Reward{
		UserID:         *buyer.ReferredByID,
		ReferredUserID: buyer.ID,
		OrderID:        &orderID,
		Type:           referrals.RewardPurchase,
		Credits:        reward,
	})
	if err != nil {
		return 0, fmt.Errorf("purchase reward: %w", err)
	}

	return reward, nil
}

// PurchaseReward is floor(credits * percent / 100).
func PurchaseReward(credits, percent int64) int64 {
	if credits < 1 || percent < 1 {
		return 0
	}

	return credits * percent / 100
}

func (c *Cascade) grantTx(tx *sql.Tx, rw referrals.Reward) error {
	_, err := c.rewards.Insert(tx, rw)
	if err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}

	err = c.credits.GrantTx(tx, rw.UserID, rw.Credits)
	if err != nil {
		return fmt.Errorf("grant reward: %w", err)
	}

	err = c.users.IncrementReferralCount(tx, rw.UserID)
	if err != nil {
		return fmt.Errorf("increment referral count: %w", err)
	}

	return nil
}

func (c *Cascade) Stats(ctx context.Context, userID uint64) (Stats, error) {
	u, err := c.users.Get(ctx, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("get user: %w", err)
	}

	totals, err := c.rewards.Totals(ctx, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("get totals: %w", err)
	}

	return Stats{
		ReferralCode:    u.ReferralCode,
		ReferralCount:   u.ReferralCount,
		StartCredits:    totals.StartCredits,
		PurchaseCredits: totals.PurchaseCredits,
		TotalCredits:    totals.StartCredits + totals.PurchaseCredits,
	}, nil
}
