package referral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/infra/pgtestutil"
	"github.com/f2re/sale-photosession-bot/internal/services/credits"
)

func TestPurchaseReward(t *testing.T) {
	t.Parallel()

	tests := []struct {
		credits int64
		percent int64
		want    int64
	}{
		{credits: 10, percent: 10, want: 1},
		{credits: 100, percent: 10, want: 10},
		{credits: 9, percent: 10, want: 0},
		{credits: 19, percent: 10, want: 1},
		{credits: 30, percent: 0, want: 0},
		{credits: 0, percent: 10, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PurchaseReward(tt.credits, tt.percent), "credits=%d percent=%d", tt.credits, tt.percent)
	}
}

func newCascade(t *testing.T) (*Cascade, func()) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)

	pgtestutil.SeedUser(t, db, 1, 0)
	pgtestutil.SeedUser(t, db, 2, 2)
	pgtestutil.SeedUser(t, db, 3, 2)

	return New(db, credits.New(db), config.ReferralConfig{StartReward: 1, PurchasePercent: 10}), cleanup
}

func TestCascade_Start_LinksOnceAndRewards(t *testing.T) {
	t.Parallel()

	c, cleanup := newCascade(t)
	defer cleanup()

	linked, err := c.Start(t.Context(), 2, "CODE1")
	require.NoError(t, err)
	assert.True(t, linked)

	// A later code, even a different one, does not relink or reward again.
	linked, err = c.Start(t.Context(), 2, "CODE3")
	require.NoError(t, err)
	assert.False(t, linked)

	stats, err := c.Stats(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		ReferralCode:  "CODE1",
		ReferralCount: 1,
		StartCredits:  1,
		TotalCredits:  1,
	}, stats)

	balance, err := c.credits.Balance(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)

	other, err := c.Stats(t.Context(), 3)
	require.NoError(t, err)
	assert.Zero(t, other.TotalCredits)
}

func TestCascade_Start_Ignored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		userID uint64
		code   string
	}{
		{name: "empty_code", userID: 2, code: ""},
		{name: "unknown_code", userID: 2, code: "NOPE"},
		{name: "own_code", userID: 2, code: "CODE2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, cleanup := newCascade(t)
			defer cleanup()

			linked, err := c.Start(t.Context(), tt.userID, tt.code)
			require.NoError(t, err)
			assert.False(t, linked)

			u, err := c.users.Get(t.Context(), tt.userID)
			require.NoError(t, err)
			assert.Nil(t, u.ReferredByID)
		})
	}
}
