package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/observability"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs jobs on their cron specs. Overlapping runs of the same job
// are skipped and panics are recovered.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

func NewScheduler(log *slog.Logger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// Add schedules each job.
func (s *Scheduler) Add(jobs ...Job) error {
	for _, j := range jobs {
		if _, err := s.cron.AddJob(j.Spec, s.wrap(j)); err != nil {
			return err
		}
		s.log.Info("job scheduled", "job", j.Name, "spec", j.Spec)
	}
	return nil
}

func (s *Scheduler) wrap(j Job) cron.Job {
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		ctx, span := observability.Start(ctx, "job."+j.Name)
		defer span.End()

		start := time.Now()
		log := s.log.With("job", j.Name)
		if err := j.Run(ctx); err != nil {
			span.RecordError(err)
			log.Error("job failed", "err", err, logger.Since(start))
			return
		}
		log.Debug("job finished", logger.Since(start))
	})
}

// Len is the number of scheduled entries.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("jobs still running at shutdown")
	}
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
