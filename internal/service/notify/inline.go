package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/amora/internal/events"
)

// Inline is an in-process Enqueuer used when no broker is configured.
// Events run on at most `workers` goroutines with the same retry policy as
// the queue consumer; Enqueue never blocks the caller.
type Inline struct {
	handler     events.Handler
	log         *slog.Logger
	sem         chan struct{}
	maxAttempts int
	backoff     time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewInline(h events.Handler, workers, maxAttempts int, backoff time.Duration, log *slog.Logger) *Inline {
	if workers <= 0 {
		workers = 4
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{
		handler:     h,
		log:         log,
		sem:         make(chan struct{}, workers),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (q *Inline) Enqueue(_ context.Context, ev events.Event) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case q.sem <- struct{}{}:
		case <-q.ctx.Done():
			return
		}
		defer func() { <-q.sem }()
		q.run(ev)
	}()
	return nil
}

func (q *Inline) run(ev events.Event) {
	for {
		err := q.handler(q.ctx, ev)
		if err == nil {
			return
		}
		if ev.Attempt+1 >= q.maxAttempts {
			q.log.Error("inline dispatch: dropped after max attempts", "event_id", ev.ID, "type", ev.Type, "err", err)
			return
		}
		ev.Attempt++
		q.log.Warn("inline dispatch: retrying", "event_id", ev.ID, "attempt", ev.Attempt, "err", err)
		t := time.NewTimer(q.backoff * time.Duration(ev.Attempt))
		select {
		case <-q.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Close waits for in-flight events until ctx expires, then abandons the rest.
func (q *Inline) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
