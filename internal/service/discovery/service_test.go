package discovery_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/events"
	"github.com/oggyb/amora/internal/service/discovery"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/testutil"
)

func newService(env *testutil.Env) *discovery.Service {
	return discovery.NewService(env.App, entitlement.NewGate(env.App))
}

func candidateIDs(p *discovery.Page) []uint64 {
	ids := make([]uint64, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		ids = append(ids, c.UserID)
	}
	return ids
}

func male(opts ...testutil.UserOpt) []testutil.UserOpt {
	return append([]testutil.UserOpt{testutil.Gender("male", "female")}, opts...)
}

func TestCandidatesApplyReciprocalPreference(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob", male()...)
	// Carol has the wrong gender for Alice; Dave does not seek women.
	env.CreateUser(t, "Carol")
	env.CreateUser(t, "Dave", testutil.Gender("male", "male"))
	env.CreateUser(t, "Eve", testutil.Gender("male", "female"), testutil.WithUser(func(u *db.User) {
		u.Profile.Hidden = true
	}))

	page, err := svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{bob.ID}, candidateIDs(page))
	assert.Equal(t, discovery.OrderRecent, page.Order)
}

func TestCandidatesRecencyOrderIsDeterministic(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	now := env.Clock.Now()

	alice := env.CreateUser(t, "Alice")
	old := env.CreateUser(t, "Old", male(testutil.ActiveAt(now.Add(-48*time.Hour)))...)
	tieA := env.CreateUser(t, "TieA", male(testutil.ActiveAt(now.Add(-time.Hour)))...)
	tieB := env.CreateUser(t, "TieB", male(testutil.ActiveAt(now.Add(-time.Hour)))...)

	page, err := svc.Candidates(context.Background(), alice.ID, discovery.OrderRecent, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{tieB.ID, tieA.ID, old.ID}, candidateIDs(page))

	second, err := svc.Candidates(context.Background(), alice.ID, discovery.OrderRecent, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{tieA.ID}, candidateIDs(second))
}

func TestCandidatesByDistance(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	// London, Paris, Oxford
	alice := env.CreateUser(t, "Alice", testutil.Located(51.5074, -0.1278))
	far := env.CreateUser(t, "Far", male(testutil.Located(48.8566, 2.3522))...)
	near := env.CreateUser(t, "Near", male(testutil.Located(51.752, -1.2577))...)
	nowhere := env.CreateUser(t, "Nowhere", male()...)

	page, err := svc.Candidates(ctx, alice.ID, discovery.OrderDistance, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{near.ID, far.ID, nowhere.ID}, candidateIDs(page))
	require.NotNil(t, page.Candidates[0].DistanceKM)
	assert.InDelta(t, 82, *page.Candidates[0].DistanceKM, 5)
	assert.Nil(t, page.Candidates[2].DistanceKM)

	unlocated := env.CreateUser(t, "Unlocated")
	_, err = svc.Candidates(ctx, unlocated.ID, discovery.OrderDistance, 0, 10)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, svcErr.Map(err).Status())
}

func TestCandidatesAgeRange(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	now := env.Clock.Now()

	alice := env.CreateUser(t, "Alice", testutil.WithUser(func(u *db.User) {
		u.Profile.AgeMin, u.Profile.AgeMax = 25, 35
	}))
	inRange := env.CreateUser(t, "InRange", male()...)
	young := env.CreateUser(t, "Young", male(testutil.WithUser(func(u *db.User) {
		b := now.AddDate(-22, 0, 0)
		u.BirthDate = &b
	}))...)
	older := env.CreateUser(t, "Older", male(testutil.WithUser(func(u *db.User) {
		b := now.AddDate(-40, 0, 0)
		u.BirthDate = &b
	}))...)

	page, err := svc.Candidates(context.Background(), alice.ID, "", 0, 10)
	require.NoError(t, err)
	ids := candidateIDs(page)
	assert.Contains(t, ids, inRange.ID)
	assert.NotContains(t, ids, young.ID)
	assert.NotContains(t, ids, older.ID)
}

func TestPremiumOnlyProfilesNeedPremiumViewer(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	free := env.CreateUser(t, "Free")
	paid := env.CreateUser(t, "Paid", testutil.Premium())
	exclusive := env.CreateUser(t, "Exclusive", male(testutil.WithUser(func(u *db.User) {
		u.Profile.PremiumOnly = true
	}))...)

	page, err := svc.Candidates(ctx, free.ID, "", 0, 10)
	require.NoError(t, err)
	assert.NotContains(t, candidateIDs(page), exclusive.ID)

	page, err = svc.Candidates(ctx, paid.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Contains(t, candidateIDs(page), exclusive.ID)
}

func TestSelfLikeIsInvalidTarget(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	alice := env.CreateUser(t, "Alice")

	for _, kind := range []string{db.KindLike, db.KindSuperLike, db.KindPass} {
		_, err := svc.RecordInteraction(context.Background(), alice.ID, alice.ID, kind)
		assert.ErrorIs(t, err, svcErr.ErrInvalidTarget, kind)
	}
}

func TestInteractionWithInactiveOrMissingTarget(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	alice := env.CreateUser(t, "Alice")
	gone := env.CreateUser(t, "Gone", testutil.WithUser(func(u *db.User) { u.Active = false }))

	_, err := svc.RecordInteraction(context.Background(), alice.ID, gone.ID, db.KindLike)
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)
	_, err = svc.RecordInteraction(context.Background(), alice.ID, 9999, db.KindLike)
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)
}

func TestBlocksHideCandidatesAndRejectLikes(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob", male()...)
	require.NoError(t, env.DB.Create(&db.Block{BlockerID: alice.ID, BlockedID: bob.ID}).Error)

	page, err := svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)

	page, err = svc.Candidates(ctx, bob.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Candidates, "block is symmetric")

	_, err = svc.RecordInteraction(ctx, alice.ID, bob.ID, db.KindLike)
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)
	_, err = svc.RecordInteraction(ctx, bob.ID, alice.ID, db.KindLike)
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)
}

func TestReciprocalLikeCreatesMatch(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", male()...)

	out, err := svc.RecordInteraction(ctx, u1.ID, u2.ID, db.KindLike)
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Empty(t, env.Events.OfType(events.TypeNewLike), "free recipient cannot see likes")

	out, err = svc.RecordInteraction(ctx, u2.ID, u1.ID, db.KindSuperLike)
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.NotZero(t, out.MatchID)
	assert.NotZero(t, out.ConversationID)

	var its []db.Interaction
	require.NoError(t, env.DB.Find(&its).Error)
	require.Len(t, its, 2)
	for _, it := range its {
		assert.True(t, it.Consumed)
	}

	matches := env.Events.OfType(events.TypeNewMatch)
	require.Len(t, matches, 1)
	var p events.NewMatch
	require.NoError(t, matches[0].Decode(&p))
	assert.Equal(t, out.MatchID, p.MatchID)
}

func TestConcurrentReciprocalLikesYieldOneMatch(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	a := env.CreateUser(t, "A")
	b := env.CreateUser(t, "B", male()...)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	outs := make([]*discovery.Outcome, 2)
	for i, pair := range [][2]uint64{{a.ID, b.ID}, {b.ID, a.ID}} {
		wg.Add(1)
		go func(i int, actor, target uint64) {
			defer wg.Done()
			outs[i], errs[i] = svc.RecordInteraction(ctx, actor, target, db.KindLike)
		}(i, pair[0], pair[1])
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var n int64
	require.NoError(t, env.DB.Model(&db.Match{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.True(t, outs[0].Matched || outs[1].Matched)
	assert.Len(t, env.Events.OfType(events.TypeNewMatch), 1)
}

func TestMatchedLikeCannotBeChanged(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", male()...)

	_, err := svc.RecordInteraction(ctx, u1.ID, u2.ID, db.KindLike)
	require.NoError(t, err)
	out, err := svc.RecordInteraction(ctx, u2.ID, u1.ID, db.KindLike)
	require.NoError(t, err)
	require.True(t, out.Matched)

	for _, kind := range []string{db.KindPass, db.KindSuperLike} {
		_, err = svc.RecordInteraction(ctx, u1.ID, u2.ID, kind)
		require.ErrorIs(t, err, svcErr.ErrAlreadyMatched, kind)
		assert.Equal(t, http.StatusConflict, svcErr.Map(err).Status())
	}

	again, err := svc.RecordInteraction(ctx, u1.ID, u2.ID, db.KindLike)
	require.NoError(t, err, "repeating the matched like is a no-op")
	assert.True(t, again.Matched)

	var it db.Interaction
	require.NoError(t, env.DB.Take(&it, "actor_id = ? AND target_id = ?", u1.ID, u2.ID).Error)
	assert.Equal(t, db.KindLike, it.Kind)
	assert.True(t, it.Consumed)

	var m db.Match
	require.NoError(t, env.DB.Take(&m, out.MatchID).Error)
	assert.True(t, m.Active)

	env.Clock.Advance(env.App.Config.Discovery.PassCooldown + time.Hour)
	env.Redis.FastForward(time.Hour)
	page, err := svc.Candidates(ctx, u1.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)
}

func TestActiveMatchHidesCandidate(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob", male()...)

	low, high := db.OrderedPair(alice.ID, bob.ID)
	m := db.Match{UserAID: low, UserBID: high, Active: true}
	require.NoError(t, env.DB.Create(&m).Error)

	page, err := svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)

	require.NoError(t, env.DB.Model(&m).Update("active", false).Error)
	require.NoError(t, env.App.RedisCache.BumpDiscoveryVersion(ctx, alice.ID))
	page, err = svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{bob.ID}, candidateIDs(page))
}

func TestInteractionIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	env.App.Config.Quota.FreeDailyLikes = 1
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob", male()...)

	_, err := svc.RecordInteraction(ctx, alice.ID, bob.ID, db.KindLike)
	require.NoError(t, err)
	var first db.Interaction
	require.NoError(t, env.DB.Take(&first, "actor_id = ? AND target_id = ?", alice.ID, bob.ID).Error)

	env.Clock.Advance(time.Minute)
	_, err = svc.RecordInteraction(ctx, alice.ID, bob.ID, db.KindLike)
	require.NoError(t, err, "repeat is free even with the quota spent")

	var again db.Interaction
	require.NoError(t, env.DB.Take(&again, "actor_id = ? AND target_id = ?", alice.ID, bob.ID).Error)
	assert.Equal(t, first.Kind, again.Kind)
	assert.True(t, first.UpdatedAt.Equal(again.UpdatedAt))

	_, err = svc.RecordInteraction(ctx, alice.ID, bob.ID, db.KindPass)
	require.NoError(t, err)
	require.NoError(t, env.DB.Take(&again, "actor_id = ? AND target_id = ?", alice.ID, bob.ID).Error)
	assert.Equal(t, db.KindPass, again.Kind, "a different kind overwrites")
}

func TestQuotaExceeded(t *testing.T) {
	env := testutil.NewEnv(t)
	env.App.Config.Quota.FreeDailyLikes = 2
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	targets := []*db.User{
		env.CreateUser(t, "T1", male()...),
		env.CreateUser(t, "T2", male()...),
		env.CreateUser(t, "T3", male()...),
	}
	for _, tgt := range targets[:2] {
		_, err := svc.RecordInteraction(ctx, alice.ID, tgt.ID, db.KindLike)
		require.NoError(t, err)
	}

	_, err := svc.RecordInteraction(ctx, alice.ID, targets[2].ID, db.KindLike)
	require.Error(t, err)
	mapped := svcErr.Map(err)
	assert.Equal(t, http.StatusTooManyRequests, mapped.Status())
	assert.Equal(t, 2, mapped.Details["limit"])

	var likes int64
	require.NoError(t, env.DB.Model(&db.Interaction{}).Where("actor_id = ?", alice.ID).Count(&likes).Error)
	assert.Equal(t, int64(2), likes)

	_, err = svc.RecordInteraction(ctx, alice.ID, targets[2].ID, db.KindPass)
	require.NoError(t, err, "passes are never capped")

	env.Clock.Advance(24 * time.Hour)
	_, err = svc.RecordInteraction(ctx, alice.ID, targets[2].ID, db.KindLike)
	require.NoError(t, err, "quota resets with the day")
}

func TestPassHidesUntilCooldown(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob", male()...)

	page, err := svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{bob.ID}, candidateIDs(page))

	_, err = svc.RecordInteraction(ctx, alice.ID, bob.ID, db.KindPass)
	require.NoError(t, err)

	page, err = svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Candidates, "the actor's own pass is visible immediately")

	env.Clock.Advance(env.App.Config.Discovery.PassCooldown + time.Hour)
	env.Redis.FastForward(time.Hour)
	page, err = svc.Candidates(ctx, alice.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{bob.ID}, candidateIDs(page))
}

func TestLikesNeedPremium(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	free := env.CreateUser(t, "Free")
	paid := env.CreateUser(t, "Paid", testutil.Premium())
	bob := env.CreateUser(t, "Bob", male()...)
	carl := env.CreateUser(t, "Carl", male()...)

	_, err := svc.Likes(ctx, free.ID, "", false)
	assert.ErrorIs(t, err, svcErr.ErrPremiumRequired)

	_, err = svc.RecordInteraction(ctx, bob.ID, paid.ID, db.KindSuperLike)
	require.NoError(t, err)
	env.Clock.Advance(time.Second)
	_, err = svc.RecordInteraction(ctx, carl.ID, paid.ID, db.KindLike)
	require.NoError(t, err)
	assert.Len(t, env.Events.OfType(events.TypeNewLike), 2)

	page, err := svc.Likes(ctx, paid.ID, "", false)
	require.NoError(t, err)
	require.Len(t, page.Likers, 2)
	assert.Equal(t, carl.ID, page.Likers[0].UserID)
	assert.True(t, page.Likers[1].IsSuper)

	_, err = svc.RecordInteraction(ctx, paid.ID, carl.ID, db.KindLike)
	require.NoError(t, err)
	fresh, err := svc.Likes(ctx, paid.ID, "", true)
	require.NoError(t, err)
	require.Len(t, fresh.Likers, 1)
	assert.Equal(t, bob.ID, fresh.Likers[0].UserID)

	_, err = svc.Likes(ctx, paid.ID, "%%%", false)
	assert.Equal(t, http.StatusBadRequest, svcErr.Map(err).Status())
}

func TestLikeCountIsCachedAndInvalidated(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob", male()...)
	carl := env.CreateUser(t, "Carl", male()...)

	_, err := svc.RecordInteraction(ctx, bob.ID, alice.ID, db.KindLike)
	require.NoError(t, err)

	n, err := svc.LikeCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, env.Redis.Exists(env.App.RedisCache.KeyForLikeCount(alice.ID)))

	_, err = svc.RecordInteraction(ctx, carl.ID, alice.ID, db.KindLike)
	require.NoError(t, err)
	assert.False(t, env.Redis.Exists(env.App.RedisCache.KeyForLikeCount(alice.ID)))

	n, err = svc.LikeCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
