// Command worker consumes notification events from the broker and runs the
// periodic maintenance jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/cache"
	"github.com/oggyb/amora/internal/config"
	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/jobs"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/platform/queue"
	"github.com/oggyb/amora/internal/service/notify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.New()
	if cfg.Log.Component == "api" {
		cfg.Log.Component = "worker"
	}
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, cfg, log)

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
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

	scheduler := jobs.NewScheduler(log.With("component", "cron"))
	if err := scheduler.Add(jobs.NewMaintenance(appCtx).Jobs()...); err != nil {
		log.Error("failed to schedule jobs", "err", err)
		os.Exit(1)
	}
	scheduler.Start()

	dispatcher := notify.NewDispatcher(appCtx)
	if cfg.AMQP.URL == "" {
		log.Warn("AMQP_URL not set; running maintenance jobs only")
		<-ctx.Done()
	} else {
		consumer := queue.NewConsumer(queue.ConsumerConfig{
			URL:          cfg.AMQP.URL,
			Queue:        cfg.AMQP.Queue,
			Prefetch:     cfg.AMQP.Prefetch,
			Workers:      cfg.AMQP.Workers,
			MaxAttempts:  cfg.AMQP.MaxAttempts,
			RetryBackoff: cfg.AMQP.RetryBackoff,
		}, dispatcher.Handle, log.With("component", "consumer"))
		log.Info("worker consuming", "queue", cfg.AMQP.Queue)
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("consumer stopped", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn("otel shutdown", "err", err)
	}
	log.Info("worker stopped")
}
