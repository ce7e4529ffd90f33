package referrals

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/referrals"
)

var _ referrals.Referrals = (*referralsRepo)(nil)

type referralsRepo struct{ db *sql.DB }

func New(db *sql.DB) *referralsRepo {
	return &referralsRepo{db: db}
}

// Insert appends a reward. A second purchase reward for the same order or a
// second start reward for the same referred user maps to ErrDuplicateReward.
func (r *referralsRepo) Insert(tx *sql.Tx, rw referrals.Reward) (referrals.Reward, error) {
	var orderID sql.NullInt64
	if rw.OrderID != nil {
		orderID = sql.NullInt64{Int64: *rw.OrderID, Valid: true}
	}

	err := tx.QueryRow(`
		INSERT INTO referral_rewards (user_id, referred_user_id, order_id, reward_type, credits)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, rw.UserID, rw.ReferredUserID, orderID, rw.Type, rw.Credits).Scan(&rw.ID, &rw.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err, "") {
			return referrals.Reward{}, referrals.ErrDuplicateReward
		}

		return referrals.Reward{}, fmt.Errorf("insert referral reward: %w", err)
	}

	return rw, nil
}

func (r *referralsRepo) Totals(ctx context.Context, userID uint64) (referrals.Totals, error) {
	var t referrals.Totals

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(credits) FILTER (WHERE reward_type = $2), 0),
			COALESCE(SUM(credits) FILTER (WHERE reward_type = $3), 0),
			COUNT(*)
		FROM referral_rewards
		WHERE user_id = $1
	`, userID, referrals.RewardStart, referrals.RewardPurchase).Scan(&t.StartCredits, &t.PurchaseCredits, &t.Rewards)
	if err != nil {
		return referrals.Totals{}, fmt.Errorf("referral totals: %w", err)
	}

	return t, nil
}

func (r *referralsRepo) ListByOrder(ctx context.Context, orderID int64) ([]referrals.Reward, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, referred_user_id, order_id, reward_type, credits, created_at
		FROM referral_rewards
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list rewards by order: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []referrals.Reward

	for rows.Next() {
		var (
			rw  referrals.Reward
			oid sql.NullInt64
			typ string
		)

		err = rows.Scan(&rw.ID, &rw.UserID, &rw.ReferredUserID, &oid, &typ, &rw.Credits, &rw.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}

		rw.Type = referrals.RewardType(typ)
		if oid.Valid {
			id := oid.Int64
			rw.OrderID = &id
		}

		out = append(out, rw)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate rewards: %w", err)
	}

	return out, nil
}
