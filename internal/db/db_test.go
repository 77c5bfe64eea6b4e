package db_test

import (
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	return database
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, db.IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, db.IsUniqueViolation(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, db.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, db.IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, db.IsUniqueViolation(errors.New("boom")))
	assert.False(t, db.IsUniqueViolation(nil))
}

func TestMatchPairIsUnique(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, database.Create(&db.Match{UserAID: 1, UserBID: 2, Active: true}).Error)
	err := database.Create(&db.Match{UserAID: 1, UserBID: 2, Active: true}).Error
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestSeedTestData(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, db.SeedTestData(database, logger.Discard()))

	var users, matches, convs int64
	database.Model(&db.User{}).Count(&users)
	database.Model(&db.Match{}).Count(&matches)
	database.Model(&db.Conversation{}).Count(&convs)
	assert.Equal(t, int64(20), users)
	assert.Equal(t, matches, convs)

	var plan db.SubscriptionPlan
	require.NoError(t, database.Where("code = ?", "premium").First(&plan).Error)
	assert.True(t, plan.SeeWhoLikedYou)
}

func TestNotificationSettingsQuietHours(t *testing.T) {
	s := db.DefaultNotificationSettings()
	s.QuietHoursEnabled = true
	s.QuietStartMinute = 22 * 60
	s.QuietEndMinute = 7 * 60
	s.UTCOffsetMinutes = 60

	night := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC) // 23:30 local
	day := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	assert.False(t, s.Allows(db.CategoryNewMessage, night))
	assert.True(t, s.Allows(db.CategoryIncomingCall, night))
	assert.True(t, s.Allows(db.CategoryNewMessage, day))

	s.NewMessage = false
	assert.False(t, s.Allows(db.CategoryNewMessage, day))
	assert.False(t, s.Allows("unknown", day))
}

func TestGenderMask(t *testing.T) {
	mask, ok := db.MaskFromGenders([]string{"female", "NonBinary"})
	require.True(t, ok)
	assert.Equal(t, db.GenderFemale|db.GenderNonBinary, mask)
	assert.Equal(t, []string{"female", "nonbinary"}, db.GendersFromMask(mask))

	_, ok = db.MaskFromGenders([]string{"robot"})
	assert.False(t, ok)
}

func TestUserPremiumAndAge(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	birth := time.Date(2000, 6, 16, 0, 0, 0, 0, time.UTC)

	u := db.User{IsPremium: true, PremiumUntil: &past, BirthDate: &birth}
	assert.False(t, u.PremiumAt(now))
	u.PremiumUntil = nil
	assert.True(t, u.PremiumAt(now))
	assert.Equal(t, 25, u.Age(now))
}
