// Package notify turns dispatch events into push notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/events"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/platform/push"
	"github.com/oggyb/amora/internal/repository"
)

const (
	providerTimeout = 10 * time.Second
	callTTL         = 30 * time.Second
)

// Dispatcher resolves recipients' tokens and preferences and sends one
// multicast per recipient. It implements events.Handler via Handle.
type Dispatcher struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	devices *repository.DeviceRepository
}

func NewDispatcher(appCtx *app.AppContext) *Dispatcher {
	return &Dispatcher{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		devices: repository.NewDeviceRepository(appCtx.DB),
	}
}

// Handle dispatches one event. A returned error asks the queue to retry.
// Per-token failures only do when no token was delivered and one of the
// failures was transient.
func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) (err error) {
	ctx, span := observability.Start(ctx, "notify.dispatch",
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.id", ev.ID),
		attribute.Int("event.attempt", ev.Attempt),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch failed")
		}
		span.End()
	}()

	switch ev.Type {
	case events.TypeNewMatch:
		var p events.NewMatch
		if err := ev.Decode(&p); err != nil {
			return d.drop(ctx, ev, err)
		}
		return d.newMatch(ctx, p)
	case events.TypeNewLike:
		var p events.NewLike
		if err := ev.Decode(&p); err != nil {
			return d.drop(ctx, ev, err)
		}
		return d.deliver(ctx, p.Recipient, db.CategoryNewLike, likeMessage(p))
	case events.TypeNewMessage:
		var p events.NewMessage
		if err := ev.Decode(&p); err != nil {
			return d.drop(ctx, ev, err)
		}
		return d.deliver(ctx, p.Recipient, db.CategoryNewMessage, messageMessage(p))
	case events.TypeIncomingCall:
		var p events.IncomingCall
		if err := ev.Decode(&p); err != nil {
			return d.drop(ctx, ev, err)
		}
		return d.deliver(ctx, p.Callee, db.CategoryIncomingCall, callMessage(p))
	default:
		d.appCtx.Log(ctx).Warn("dispatch: unknown event type dropped", "type", ev.Type, "event_id", ev.ID)
		return nil
	}
}

// drop logs an undecodable payload; retrying would not help.
func (d *Dispatcher) drop(ctx context.Context, ev events.Event, err error) error {
	d.appCtx.Log(ctx).Error("dispatch: malformed payload dropped", "type", ev.Type, "event_id", ev.ID, "err", err)
	return nil
}

func (d *Dispatcher) newMatch(ctx context.Context, p events.NewMatch) error {
	names := map[uint64]string{}
	if users, err := d.users.FindManyActive(ctx, []uint64{p.UserA, p.UserB}); err == nil {
		for id, u := range users {
			names[id] = u.DisplayName
		}
	}
	var errs []error
	for _, pair := range [][2]uint64{{p.UserA, p.UserB}, {p.UserB, p.UserA}} {
		if err := d.deliver(ctx, pair[0], db.CategoryNewMatch, matchMessage(p, names[pair[1]])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver runs the pipeline for one recipient: tokens, preferences, send, prune.
func (d *Dispatcher) deliver(ctx context.Context, recipientID uint64, category string, msg push.Message) error {
	log := d.appCtx.Log(ctx).With("recipient", recipientID, "category", category)

	user, err := d.users.FindActive(ctx, recipientID)
	if repository.IsNotFound(err) {
		log.Debug("dispatch: recipient gone, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	devices, err := d.devices.ListForUser(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("load device tokens: %w", err)
	}
	if len(devices) == 0 {
		log.Debug("dispatch: no device tokens, skipping")
		return nil
	}

	if !user.Notify.Allows(category, d.appCtx.Now()) {
		log.Debug("dispatch: suppressed by notification settings")
		return nil
	}

	if d.appCtx.Pusher == nil {
		log.Warn("dispatch: no push provider configured, skipping")
		return nil
	}

	tokens := make([]string, len(devices))
	for i, dev := range devices {
		tokens[i] = dev.Token
	}

	msg.Category = category
	sendCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	results, sendErr := d.appCtx.Pusher.SendMulticast(sendCtx, tokens, msg)
	if sendErr == nil && push.Unavailable(results) {
		sendErr = push.ErrUnavailable
	}

	ok, failed, dead := push.Summarize(results)
	if len(dead) > 0 {
		if n, err := d.devices.DeleteTokens(ctx, dead); err != nil {
			log.Warn("dispatch: failed to prune dead tokens", "err", err)
		} else {
			log.Info("dispatch: pruned dead tokens", "count", n)
		}
	}
	if sendErr != nil {
		log.Warn("dispatch: provider call failed", "tokens", len(tokens), "failure", failed, "err", sendErr)
		return fmt.Errorf("push multicast: %w", sendErr)
	}
	log.Info("dispatch: delivered", "success", ok, "failure", failed)
	return nil
}

func id(n uint64) string { return strconv.FormatUint(n, 10) }

func matchMessage(p events.NewMatch, partner string) push.Message {
	body := "You have a new match. Say hi!"
	if partner != "" {
		body = fmt.Sprintf("You and %s liked each other. Say hi!", partner)
	}
	return push.Message{
		Title:    "It's a match!",
		Body:     body,
		Priority: push.PriorityHigh,
		Data: map[string]string{
			"type":            string(events.TypeNewMatch),
			"match_id":        id(p.MatchID),
			"conversation_id": id(p.ConversationID),
		},
	}
}

func likeMessage(p events.NewLike) push.Message {
	title, body := "New like", "Someone likes you. Take a look!"
	if p.IsSuper {
		title, body = "New super like", "Someone super liked you!"
	}
	return push.Message{
		Title:    title,
		Body:     body,
		Priority: push.PriorityNormal,
		Data: map[string]string{
			"type":     string(events.TypeNewLike),
			"actor_id": id(p.Actor),
			"is_super": strconv.FormatBool(p.IsSuper),
		},
	}
}

func messageMessage(p events.NewMessage) push.Message {
	title := p.SenderName
	if title == "" {
		title = "New message"
	}
	return push.Message{
		Title:    title,
		Body:     p.Preview,
		Priority: push.PriorityHigh,
		Data: map[string]string{
			"type":            string(events.TypeNewMessage),
			"conversation_id": id(p.ConversationID),
			"message_id":      id(p.MessageID),
			"sender_id":       id(p.Sender),
		},
	}
}

func callMessage(p events.IncomingCall) push.Message {
	name := p.CallerName
	if name == "" {
		name = "Someone"
	}
	return push.Message{
		Title:    fmt.Sprintf("Incoming %s call", p.CallType),
		Body:     fmt.Sprintf("%s is calling you", name),
		TTL:      callTTL,
		Priority: push.PriorityHigh,
		Wake:     true,
		Data: map[string]string{
			"type":            string(events.TypeIncomingCall),
			"call_id":         p.CallID,
			"call_type":       p.CallType,
			"caller_id":       id(p.Caller),
			"conversation_id": id(p.ConversationID),
		},
	}
}
