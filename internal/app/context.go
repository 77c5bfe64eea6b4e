package app

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/cache"
	"github.com/oggyb/amora/internal/config"
	"github.com/oggyb/amora/internal/events"
	applog "github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/platform/identity"
	"github.com/oggyb/amora/internal/platform/mailer"
	"github.com/oggyb/amora/internal/platform/push"
	"github.com/oggyb/amora/internal/platform/storage"
)

// AppContext holds shared dependencies built once at process start.
// Provider clients are interfaces so tests can swap in fakes.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Identity identity.Provider
	Storage  storage.BlobStore
	Events   events.Enqueuer
	Pusher   push.Pusher
	Mailer   mailer.Sender

	// Now is the clock; tests pin it.
	Now func() time.Time
}

// Option customizes an AppContext.
type Option func(*AppContext)

func WithIdentity(p identity.Provider) Option { return func(a *AppContext) { a.Identity = p } }
func WithStorage(s storage.BlobStore) Option  { return func(a *AppContext) { a.Storage = s } }
func WithEvents(e events.Enqueuer) Option     { return func(a *AppContext) { a.Events = e } }
func WithPusher(p push.Pusher) Option         { return func(a *AppContext) { a.Pusher = p } }
func WithMailer(m mailer.Sender) Option       { return func(a *AppContext) { a.Mailer = m } }
func WithClock(now func() time.Time) Option   { return func(a *AppContext) { a.Now = now } }

// New creates a new AppContext. Unset collaborators fall back to in-process
// implementations: a recording event sink, an in-memory blob store and a
// logging mailer.
func New(cfg *config.Config, database *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, opts ...Option) *AppContext {
	a := &AppContext{
		Config:     cfg,
		DB:         database,
		RedisCache: rdb,
		Logger:     logger,
		Now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Events == nil {
		a.Events = &events.Recorder{}
	}
	if a.Storage == nil {
		a.Storage = storage.NewMemory(cfg.App.BaseURL + "/media")
	}
	if a.Mailer == nil {
		a.Mailer = mailer.New(cfg, logger)
	}
	return a
}

// Log returns the request-scoped logger carried by ctx, or the app logger.
func (a *AppContext) Log(ctx context.Context) *slog.Logger {
	return applog.FromContext(ctx, a.Logger)
}
