package matches_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/service/matches"
	"github.com/oggyb/amora/internal/testutil"
)

func seedMatch(t *testing.T, env *testutil.Env, a, b uint64) *db.Match {
	t.Helper()
	low, high := db.OrderedPair(a, b)
	m := &db.Match{UserAID: low, UserBID: high, Active: true}
	require.NoError(t, env.DB.Create(m).Error)
	require.NoError(t, env.DB.Create(&db.Conversation{MatchID: m.ID}).Error)
	return m
}

func TestListShowsActiveMatches(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := matches.NewService(env.App)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob")
	carl := env.CreateUser(t, "Carl")
	m := seedMatch(t, env, alice.ID, bob.ID)
	old := seedMatch(t, env, alice.ID, carl.ID)
	require.NoError(t, env.DB.Model(old).Update("active", false).Error)

	list, err := svc.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].ID)
	assert.Equal(t, bob.ID, list[0].Partner.UserID)
	assert.Equal(t, "Bob", list[0].Partner.DisplayName)
	assert.NotZero(t, list[0].ConversationID)
}

func TestUnmatchIsIdempotentAndMemberOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := matches.NewService(env.App)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob")
	eve := env.CreateUser(t, "Eve")
	m := seedMatch(t, env, alice.ID, bob.ID)

	err := svc.Unmatch(ctx, eve.ID, m.ID)
	assert.Equal(t, http.StatusNotFound, svcErr.Map(err).Status())

	require.NoError(t, svc.Unmatch(ctx, bob.ID, m.ID))
	require.NoError(t, svc.Unmatch(ctx, alice.ID, m.ID))

	var got db.Match
	require.NoError(t, env.DB.Take(&got, m.ID).Error)
	assert.False(t, got.Active)
	require.NotNil(t, got.UnmatchedBy)
	assert.Equal(t, bob.ID, *got.UnmatchedBy)

	list, err := svc.List(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBlockDeactivatesMatchAndConflictsOnRepeat(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := matches.NewService(env.App)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob")
	m := seedMatch(t, env, alice.ID, bob.ID)

	require.NoError(t, svc.Block(ctx, alice.ID, bob.ID))
	err := svc.Block(ctx, alice.ID, bob.ID)
	assert.Equal(t, http.StatusConflict, svcErr.Map(err).Status())

	var got db.Match
	require.NoError(t, env.DB.Take(&got, m.ID).Error)
	assert.False(t, got.Active)

	blocked, err := svc.Blocked(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, bob.ID, blocked[0].UserID)

	assert.ErrorIs(t, svc.Block(ctx, alice.ID, alice.ID), svcErr.ErrInvalidTarget)
	assert.Equal(t, http.StatusNotFound, svcErr.Map(svc.Block(ctx, alice.ID, 4242)).Status())
}

func TestUnblock(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := matches.NewService(env.App)
	ctx := context.Background()

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob")

	err := svc.Unblock(ctx, alice.ID, bob.ID)
	assert.Equal(t, http.StatusNotFound, svcErr.Map(err).Status())

	require.NoError(t, svc.Block(ctx, alice.ID, bob.ID))
	require.NoError(t, svc.Unblock(ctx, alice.ID, bob.ID))

	var n int64
	require.NoError(t, env.DB.Model(&db.Block{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestServiceLogsCarryRequestScope(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := matches.NewService(env.App)

	alice := env.CreateUser(t, "Alice")
	bob := env.CreateUser(t, "Bob")
	m := seedMatch(t, env, alice.ID, bob.ID)

	var buf bytes.Buffer
	scoped := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "req-42", "user_id", alice.ID)
	ctx := logger.WithContext(context.Background(), scoped)

	require.NoError(t, svc.Unmatch(ctx, alice.ID, m.ID))
	out := buf.String()
	assert.Contains(t, out, "match deactivated")
	assert.Contains(t, out, "request_id=req-42")
	assert.Contains(t, out, "user_id=")
}
