package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/amora/internal/events"
)

type ConsumerConfig struct {
	URL          string
	Queue        string
	Prefetch     int
	// Workers bounds how many deliveries are handled at once.
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Consumer feeds deliveries to a handler on a bounded worker pool. Failed
// events are republished with an incremented attempt until MaxAttempts, then
// dropped. A retry waits out its backoff in its own worker slot.
type Consumer struct {
	cfg     ConsumerConfig
	handler events.Handler
	log     *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, h events.Handler, log *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Consumer{cfg: cfg, handler: h, log: log}
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn("consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consumer: loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.log.Warn("consumer: set QoS failed", "error", err)
	}
	if err := declare(ch, c.cfg.Queue); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consumer: listening", "queue", c.cfg.Queue, "workers", c.cfg.Workers)

	// one publisher at a time on the shared channel
	var mu sync.Mutex
	republish := func(ctx context.Context, pub amqp.Publishing) error {
		mu.Lock()
		defer mu.Unlock()
		return ch.PublishWithContext(ctx, "", c.cfg.Queue, false, false, pub)
	}
	return c.serve(ctx, msgs, republish)
}

type republishFunc func(ctx context.Context, pub amqp.Publishing) error

// serve hands deliveries to at most Workers goroutines and waits for the
// in-flight ones before returning.
func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery, republish republishFunc) error {
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			g.Go(func() error {
				c.handle(ctx, d, republish)
				return nil
			})
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, republish republishFunc) {
	ev, err := decode(d.Body)
	if err != nil {
		c.log.Error("consumer: malformed message dropped", "error", err)
		_ = d.Nack(false, false)
		return
	}

	herr := c.handler(ctx, ev)
	switch next := c.decide(ev, herr); next {
	case actionAck:
		_ = d.Ack(false)
	case actionRetry:
		ev.Attempt++
		if !sleep(ctx, c.backoff(ev.Attempt)) {
			_ = d.Nack(false, true)
			return
		}
		pub, err := encode(ev)
		if err == nil {
			err = republish(ctx, pub)
		}
		if err != nil {
			c.log.Error("consumer: republish failed", "event_id", ev.ID, "error", err)
			_ = d.Nack(false, true)
			return
		}
		c.log.Warn("consumer: event retried", "event_id", ev.ID, "type", ev.Type, "attempt", ev.Attempt, "error", herr)
		_ = d.Ack(false)
	case actionDrop:
		c.log.Error("consumer: event dropped after max attempts",
			"event_id", ev.ID, "type", ev.Type, "attempt", ev.Attempt, "error", herr)
		_ = d.Ack(false)
	}
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDrop
)

func (c *Consumer) decide(ev events.Event, err error) action {
	if err == nil {
		return actionAck
	}
	if ev.Attempt+1 < c.cfg.MaxAttempts {
		return actionRetry
	}
	return actionDrop
}

// backoff grows linearly with the attempt number.
func (c *Consumer) backoff(attempt int) time.Duration {
	return c.cfg.RetryBackoff * time.Duration(attempt)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
