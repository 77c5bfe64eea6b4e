package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/testutil"
)

func TestLimitsFreeVsPremium(t *testing.T) {
	env := testutil.NewEnv(t)
	gate := entitlement.NewGate(env.App)
	ctx := context.Background()

	free := env.CreateUser(t, "free")
	prem := env.CreateUser(t, "prem", testutil.Premium())

	l, err := gate.Limits(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.Limits{DailyLikes: 35, DailySuperLikes: 1}, l)

	l, err = gate.Limits(ctx, prem.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, l.DailyLikes)
	assert.Equal(t, 5, l.DailySuperLikes)
	assert.True(t, l.SeeWhoLikedYou)
}

func TestIsPremiumHonoursExpiry(t *testing.T) {
	env := testutil.NewEnv(t)
	gate := entitlement.NewGate(env.App)

	until := env.Clock.Now().Add(time.Hour)
	u := env.CreateUser(t, "lapsing", testutil.WithUser(func(u *db.User) {
		u.IsPremium = true
		u.PremiumUntil = &until
	}))

	ok, err := gate.IsPremium(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	env.Clock.Advance(2 * time.Hour)
	ok, err = gate.IsPremium(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeQuotaStopsAtLimit(t *testing.T) {
	env := testutil.NewEnv(t)
	env.App.Config.Quota.FreeDailyLikes = 2
	gate := entitlement.NewGate(env.App)
	ctx := context.Background()
	u := env.CreateUser(t, "swiper")

	consume := func(kind string) error {
		return env.DB.Transaction(func(tx *gorm.DB) error {
			return gate.ConsumeQuota(ctx, tx, u, kind)
		})
	}

	require.NoError(t, consume(db.KindLike))
	require.NoError(t, consume(db.KindLike))
	err := consume(db.KindLike)
	require.Error(t, err)
	assert.True(t, errors.Is(err, svcErr.ErrQuotaExceeded))

	require.NoError(t, consume(db.KindPass))
	require.NoError(t, consume(db.KindSuperLike))
	assert.True(t, errors.Is(consume(db.KindSuperLike), svcErr.ErrQuotaExceeded))

	var q db.DailyQuota
	require.NoError(t, env.DB.Where("user_id = ?", u.ID).Take(&q).Error)
	assert.Equal(t, 2, q.Likes)
	assert.Equal(t, 1, q.SuperLikes)

	// next quota day starts fresh
	env.Clock.Advance(24 * time.Hour)
	require.NoError(t, consume(db.KindLike))
}

func TestStatusReportsRemaining(t *testing.T) {
	env := testutil.NewEnv(t)
	gate := entitlement.NewGate(env.App)
	u := env.CreateUser(t, "status")

	st, err := gate.Status(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", st.Plan)
	assert.Equal(t, 35, st.Remaining.Likes)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), st.ResetsAt)
}

func TestDayKeyUsesTimezone(t *testing.T) {
	env := testutil.NewEnv(t)
	env.App.Config.Quota.Timezone = "America/New_York"
	gate := entitlement.NewGate(env.App)

	// 02:00 UTC is still the previous day in New York
	ts := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01", gate.DayKey(ts))
}
