package referrals

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrDuplicateReward = errors.New("duplicate referral reward")

type RewardType string

const (
	RewardStart    RewardType = "referral_start"
	RewardPurchase RewardType = "referral_purchase"
)

// Reward is an append-only ledger row. OrderID is set for purchase rewards only.
type Reward struct {
	ID             int64
	UserID         uint64
	ReferredUserID uint64
	OrderID        *int64
	Type           RewardType
	Credits        int64
	CreatedAt      time.Time
}

type Totals struct {
	StartCredits    int64
	PurchaseCredits int64
	Rewards         int64
}

type Referrals interface {
	Insert(tx *sql.Tx, r Reward) (Reward, error)
	Totals(ctx context.Context, userID uint64) (Totals, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Reward, error)
}
