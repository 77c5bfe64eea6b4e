// Package events defines the dispatch events produced by state-changing
// operations and the enqueue boundary between the request path and workers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeNewMatch     Type = "new_match"
	TypeNewLike      Type = "new_like"
	TypeNewMessage   Type = "new_message"
	TypeIncomingCall Type = "incoming_call"
)

// Event is the envelope carried through the task queue.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

type NewMatch struct {
	MatchID uint64 `json:"match_id"`
	UserA   uint64 `json:"user_a"`
	UserB   uint64 `json:"user_b"`
	// ConversationID lets clients deep-link into the chat.
	ConversationID uint64 `json:"conversation_id"`
}

type NewLike struct {
	Recipient uint64 `json:"recipient"`
	Actor     uint64 `json:"actor"`
	IsSuper   bool   `json:"is_super"`
}

type NewMessage struct {
	Recipient      uint64 `json:"recipient"`
	Sender         uint64 `json:"sender"`
	SenderName     string `json:"sender_name"`
	Preview        string `json:"preview"`
	ConversationID uint64 `json:"conversation_id"`
	MessageID      uint64 `json:"message_id"`
}

type IncomingCall struct {
	Callee         uint64 `json:"callee"`
	Caller         uint64 `json:"caller"`
	CallerName     string `json:"caller_name"`
	CallID         string `json:"call_id"`
	CallType       string `json:"call_type"`
	ConversationID uint64 `json:"conversation_id"`
}

// New wraps a typed payload into an Event.
func New(t Type, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		CreatedAt: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Enqueuer hands events to the asynchronous pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev Event) error
}

// Handler processes one event; an error asks the queue to retry.
type Handler func(ctx context.Context, ev Event) error

// Recorder is an in-memory Enqueuer, handy in tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Enqueue(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// All returns a copy of everything recorded.
func (r *Recorder) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters recorded events.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.All() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
