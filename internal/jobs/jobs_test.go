package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/jobs"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/testutil"
)

func TestExpireSubscriptions(t *testing.T) {
	env := testutil.NewEnv(t)
	m := jobs.NewMaintenance(env.App)
	now := env.Clock.Now()

	until := now.Add(-time.Minute)
	lapsed := env.CreateUser(t, "Lapsed", testutil.Premium(), testutil.WithUser(func(u *db.User) { u.PremiumUntil = &until }))
	live := env.CreateUser(t, "Live", testutil.Premium())

	var plan db.SubscriptionPlan
	require.NoError(t, env.DB.Where("code = ?", "premium").Take(&plan).Error)
	require.NoError(t, env.DB.Create(&db.Subscription{
		UserID: live.ID, PlanID: plan.ID, Status: db.SubActive, CurrentPeriodEnd: now.Add(time.Hour),
	}).Error)

	require.NoError(t, m.ExpireSubscriptions(context.Background()))

	var got db.User
	require.NoError(t, env.DB.Take(&got, lapsed.ID).Error)
	assert.False(t, got.IsPremium)
	require.NoError(t, env.DB.Take(&got, live.ID).Error)
	assert.True(t, got.IsPremium)

	env.Clock.Advance(2 * time.Hour)
	require.NoError(t, m.ExpireSubscriptions(context.Background()))
	require.NoError(t, env.DB.Take(&got, live.ID).Error)
	assert.False(t, got.IsPremium, "subscription lapsed")
}

func TestPurgeQuotasKeepsAWeek(t *testing.T) {
	env := testutil.NewEnv(t)
	m := jobs.NewMaintenance(env.App)
	alice := env.CreateUser(t, "Alice")

	for _, day := range []string{"2025-05-20", "2025-05-25", "2025-05-31"} {
		require.NoError(t, env.DB.Create(&db.DailyQuota{UserID: alice.ID, Day: day, Likes: 3}).Error)
	}
	require.NoError(t, m.PurgeQuotas(context.Background()))

	var days []string
	require.NoError(t, env.DB.Model(&db.DailyQuota{}).Order("day").Pluck("day", &days).Error)
	assert.Equal(t, []string{"2025-05-25", "2025-05-31"}, days)
}

func TestPurgeStaleTokens(t *testing.T) {
	env := testutil.NewEnv(t)
	m := jobs.NewMaintenance(env.App)
	alice := env.CreateUser(t, "Alice")

	env.AddDevice(t, alice.ID, "fresh")
	require.NoError(t, env.DB.Create(&db.DeviceToken{
		UserID: alice.ID, Token: "old", Platform: "ios", LastSeenAt: env.Clock.Now().AddDate(0, 0, -91),
	}).Error)

	require.NoError(t, m.PurgeStaleTokens(context.Background()))

	var tokens []string
	require.NoError(t, env.DB.Model(&db.DeviceToken{}).Pluck("token", &tokens).Error)
	assert.Equal(t, []string{"fresh"}, tokens)
}

func TestSchedulerRegistersEveryJob(t *testing.T) {
	env := testutil.NewEnv(t)
	s := jobs.NewScheduler(logger.Discard())
	require.NoError(t, s.Add(jobs.NewMaintenance(env.App).Jobs()...))
	assert.Equal(t, 3, s.Len())

	err := s.Add(jobs.Job{Name: "broken", Spec: "not a spec", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
