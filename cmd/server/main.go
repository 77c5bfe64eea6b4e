package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/cache"
	"github.com/oggyb/amora/internal/config"
	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/platform/queue"
	"github.com/oggyb/amora/internal/server"
	"github.com/oggyb/amora/internal/service/auth"
	"github.com/oggyb/amora/internal/service/content"
	"github.com/oggyb/amora/internal/service/discovery"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/service/matches"
	"github.com/oggyb/amora/internal/service/messaging"
	"github.com/oggyb/amora/internal/service/notify"
	"github.com/oggyb/amora/internal/service/payments"
	"github.com/oggyb/amora/internal/service/profile"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, cfg, log)

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(database); err != nil {
		log.Error("failed to migrate", "err", err)
		os.Exit(1)
	}
	if err := db.SeedPlans(database); err != nil {
		log.Error("failed to seed plans", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	opts, err := app.Providers(ctx, cfg, log)
	if err != nil {
		log.Error("failed to init providers", "err", err)
		os.Exit(1)
	}
	appCtx := app.New(cfg, database, redisCache, log, opts...)

	// Dispatch goes to the broker when one is configured; otherwise events
	// are handled in process by a small worker pool.
	var closeEvents func(context.Context) error
	if cfg.AMQP.URL != "" {
		pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log.With("component", "publisher"))
		appCtx.Events = pub
		closeEvents = func(context.Context) error { return pub.Close() }
	} else {
		inline := notify.NewInline(notify.NewDispatcher(appCtx).Handle,
			cfg.AMQP.InlineWorker, cfg.AMQP.MaxAttempts, cfg.AMQP.RetryBackoff, log.With("component", "dispatch"))
		appCtx.Events = inline
		closeEvents = inline.Close
		log.Warn("AMQP_URL not set; dispatching notifications in process")
	}

	if cfg.App.ENV == "development" && os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := db.SeedTestData(database, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	authReg := auth.NewRegistrar(appCtx)
	router := server.NewRouter(appCtx, auth.Middleware(authReg.Service()),
		authReg,
		profile.NewRegistrar(appCtx),
		discovery.NewRegistrar(appCtx),
		matches.NewRegistrar(appCtx),
		messaging.NewRegistrar(appCtx),
		content.NewRegistrar(appCtx),
		entitlement.NewRegistrar(appCtx),
		payments.NewRegistrar(appCtx),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.StartGRPCServer(gctx, cfg, log, server.NewHealthRegistrar(gctx, appCtx))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "err", err)
		}
		if err := closeEvents(shutdownCtx); err != nil {
			log.Warn("event queue close", "err", err)
		}
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn("otel shutdown", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}
