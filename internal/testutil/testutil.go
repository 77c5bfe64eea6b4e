// Package testutil wires an AppContext over in-memory SQLite, miniredis and
// recording fakes for service tests.
package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/cache"
	"github.com/oggyb/amora/internal/config"
	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/events"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/platform/mailer"
	"github.com/oggyb/amora/internal/platform/storage"
)

// Env is everything a service test needs to poke at.
type Env struct {
	App      *app.AppContext
	DB       *gorm.DB
	Redis    *miniredis.Miniredis
	Events   *events.Recorder
	Pusher   *FakePusher
	Identity *FakeIdentity
	Storage  *storage.Memory
	Mailer   *mailer.LogSender
	Clock    *Clock
}

// NewEnv spins up an isolated DB + Redis per test.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	clock := &Clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:        clock.Now,
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	// one connection: sqlite serializes writers and the shared cache must stay alive
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	require.NoError(t, db.SeedPlans(database))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.DB.Driver = "sqlite"
	cfg.Payments.WebhookSecret = "whsec_test"

	rdb := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rdb.Client.Close() })

	env := &Env{
		DB:       database,
		Redis:    mr,
		Events:   &events.Recorder{},
		Pusher:   &FakePusher{},
		Identity: NewFakeIdentity(),
		Storage:  storage.NewMemory("https://cdn.test"),
		Mailer:   &mailer.LogSender{},
		Clock:    clock,
	}
	env.App = app.New(cfg, database, rdb, logger.Discard(),
		app.WithEvents(env.Events),
		app.WithPusher(env.Pusher),
		app.WithIdentity(env.Identity),
		app.WithStorage(env.Storage),
		app.WithMailer(env.Mailer),
		app.WithClock(env.Clock.Now),
	)
	return env
}

// Clock is a settable time source shared by services and gorm timestamps.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC().Truncate(time.Millisecond)
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// UserOpt tweaks a user before insert.
type UserOpt func(*db.User)

func Premium() UserOpt {
	return func(u *db.User) { u.IsPremium = true }
}

func Gender(g string, seeks ...string) UserOpt {
	return func(u *db.User) {
		u.Profile.Gender = g
		mask, _ := db.MaskFromGenders(seeks)
		u.Profile.SoughtGenders = mask
	}
}

func Located(lat, lon float64) UserOpt {
	return func(u *db.User) { u.Profile.Latitude, u.Profile.Longitude = &lat, &lon }
}

func Staff() UserOpt {
	return func(u *db.User) { u.IsStaff = true }
}

func ActiveAt(t time.Time) UserOpt {
	return func(u *db.User) { u.LastActiveAt = t }
}

func WithUser(fn func(*db.User)) UserOpt { return UserOpt(fn) }

// CreateUser inserts an active, discoverable user. Defaults: female seeking
// male, 30 years old, password "password123".
func (e *Env) CreateUser(t *testing.T, name string, opts ...UserOpt) *db.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	birth := e.Clock.Now().AddDate(-30, 0, 0)
	u := &db.User{
		Email:         strings.ToLower(name) + "@example.com",
		PasswordHash:  string(hash),
		DisplayName:   name,
		BirthDate:     &birth,
		EmailVerified: true,
		Active:        true,
		LastActiveAt:  e.Clock.Now(),
		Notify:        db.DefaultNotificationSettings(),
		Profile: db.Profile{
			Gender:        "female",
			SoughtGenders: db.GenderMask("male"),
			Discoverable:  true,
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, e.DB.Create(u).Error)
	return u
}

// AddDevice registers a push token for userID.
func (e *Env) AddDevice(t *testing.T, userID uint64, token string) {
	t.Helper()
	require.NoError(t, e.DB.Create(&db.DeviceToken{
		UserID: userID, Token: token, Platform: "android", LastSeenAt: e.Clock.Now(),
	}).Error)
}
