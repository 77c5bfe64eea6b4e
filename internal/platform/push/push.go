// Package push describes the push-delivery provider boundary.
package push

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable means no token was delivered and at least one failure was
// transient; the whole send should be retried later.
var ErrUnavailable = errors.New("push provider unavailable")

// Priority hints how urgently the provider should wake the device.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is provider-neutral; adapters translate it.
type Message struct {
	Title string
	Body  string
	// Data is the machine-readable deep-link payload.
	Data map[string]string
	// TTL of zero leaves the provider default.
	TTL      time.Duration
	Priority Priority
	// Wake asks iOS/Android to wake the app (content-available / data priority).
	Wake bool
	// Category is the client-side action category (e.g. "incoming_call").
	Category string
}

// TokenResult is the outcome for one device token.
type TokenResult struct {
	Token string
	OK    bool
	// Unregistered is true when the provider says the token is dead.
	Unregistered bool
	// Retryable marks transport and server-side failures.
	Retryable bool
	Err       error
}

// Pusher sends one message to many tokens. A per-token failure is reported in
// its TokenResult; the returned error is reserved for whole-call failures.
type Pusher interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) ([]TokenResult, error)
}

// Summarize counts successes and failures.
func Summarize(results []TokenResult) (ok, failed int, dead []string) {
	for _, r := range results {
		if r.OK {
			ok++
			continue
		}
		failed++
		if r.Unregistered {
			dead = append(dead, r.Token)
		}
	}
	return ok, failed, dead
}

// Unavailable reports whether nothing was delivered and some failure was
// transient. Partial successes are not retried to avoid duplicate pushes.
func Unavailable(results []TokenResult) bool {
	retryable := false
	for _, r := range results {
		if r.OK {
			return false
		}
		retryable = retryable || r.Retryable
	}
	return retryable
}
