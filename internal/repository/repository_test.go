package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/repository"
	"github.com/oggyb/amora/internal/utils/pagination"
)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	// every connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

func createUsers(t *testing.T, database *gorm.DB, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, database.Create(&db.User{
			ID:          id,
			Email:       fmt.Sprintf("u%d@example.com", id),
			DisplayName: fmt.Sprintf("User %d", id),
			Active:      true,
		}).Error)
	}
}

func TestUpsertOverwritesKind(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewInteractionRepository(dbase)

	// insert like
	require.NoError(t, repo.Upsert(ctx, 1, 2, db.KindLike))
	// overwrite with pass
	require.NoError(t, repo.Upsert(ctx, 1, 2, db.KindPass))

	it, err := repo.Find(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, db.KindPass, it.Kind)

	missing, err := repo.Find(ctx, 2, 1)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	liked, err := repo.HasLiked(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestGetLikersExcludesPassedAndBlocked(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewInteractionRepository(dbase)
	createUsers(t, dbase, 1, 2, 3, 99)

	// actors 1,2,3 liked recipient 99
	require.NoError(t, repo.Upsert(ctx, 1, 99, db.KindLike))
	require.NoError(t, repo.Upsert(ctx, 2, 99, db.KindSuperLike))
	require.NoError(t, repo.Upsert(ctx, 3, 99, db.KindLike))
	// recipient passed actor 2 → exclude
	require.NoError(t, repo.Upsert(ctx, 99, 2, db.KindPass))
	// actor 3 blocked the recipient → exclude
	require.NoError(t, repository.NewBlockRepository(dbase).Create(ctx, 3, 99))

	likers, next, err := repo.GetLikers(ctx, 99, "", 10)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, likers, 1)
	assert.Equal(t, uint64(1), likers[0].ActorID)

	n, err := repo.CountLikers(ctx, 99)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestGetNewLikersSkipsMutual(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewInteractionRepository(dbase)
	createUsers(t, dbase, 1, 2, 99)

	// actor 1 liked 99, and 99 liked back → mutual
	require.NoError(t, repo.Upsert(ctx, 1, 99, db.KindLike))
	require.NoError(t, repo.Upsert(ctx, 99, 1, db.KindLike))
	// actor 2 liked 99, but not mutual
	require.NoError(t, repo.Upsert(ctx, 2, 99, db.KindLike))

	likers, _, err := repo.GetNewLikers(ctx, 99, "", 10)
	require.NoError(t, err)
	require.Len(t, likers, 1)
	assert.Equal(t, uint64(2), likers[0].ActorID)
}

func TestLikersPagination(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewInteractionRepository(dbase)
	createUsers(t, dbase, 1, 2, 3, 4, 5, 99)
	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, repo.Upsert(ctx, id, 99, db.KindLike))
	}

	var seen []uint64
	token := ""
	for pages := 0; pages < 5; pages++ {
		page, next, err := repo.GetLikers(ctx, 99, token, 2)
		require.NoError(t, err)
		for _, it := range page {
			seen = append(seen, it.ActorID)
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, seen)
	assert.Len(t, seen, 5, "no duplicates across pages")

	_, _, err := repo.GetLikers(ctx, 99, "%%%", 2)
	assert.ErrorIs(t, err, pagination.ErrInvalidToken)
}

func TestCreateIfAbsentIsOrderInsensitive(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewMatchRepository(dbase)

	first, created, err := repo.CreateIfAbsent(ctx, 7, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(3), first.UserAID)
	assert.Equal(t, uint64(7), first.UserBID)

	again, created, err := repo.CreateIfAbsent(ctx, 3, 7)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	n, err := repo.CountForPair(ctx, 7, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.DeactivatePair(ctx, 7, 3, 7, time.Now()))
	m, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, m.Active)
	require.NotNil(t, m.UnmatchedBy)
	assert.Equal(t, uint64(7), *m.UnmatchedBy)

	assert.NoError(t, repo.DeactivatePair(ctx, 1, 2, 1, time.Now()), "missing pair is fine")
}

func TestCreateIfAbsentReturnsCommittedRow(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewMatchRepository(dbase)

	// a row another transaction already committed, since unmatched
	existing := db.Match{UserAID: 4, UserBID: 9, Active: false}
	require.NoError(t, dbase.Create(&existing).Error)

	got, created, err := repo.CreateIfAbsent(ctx, 9, 4)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, got.ID)
	assert.False(t, got.Active, "the conflict path never reactivates")

	n, err := repo.CountForPair(ctx, 4, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestQuotaConsume(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewQuotaRepository(dbase)

	require.NoError(t, repo.Consume(ctx, 1, "2025-06-01", repository.QuotaLikes, 2))
	require.NoError(t, repo.Consume(ctx, 1, "2025-06-01", repository.QuotaLikes, 2))
	assert.ErrorIs(t, repo.Consume(ctx, 1, "2025-06-01", repository.QuotaLikes, 2), repository.ErrQuotaSpent)

	// a new day and an unlimited counter both have room
	require.NoError(t, repo.Consume(ctx, 1, "2025-06-02", repository.QuotaLikes, 2))
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Consume(ctx, 1, "2025-06-01", repository.QuotaSuperLikes, 0))
	}

	usage, err := repo.Usage(ctx, 1, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Likes)
	assert.Equal(t, 5, usage.SuperLikes)

	n, err := repo.PurgeBefore(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
