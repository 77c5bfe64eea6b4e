// Package messaging covers conversations between matched users and call
// signalling.
package messaging

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/events"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/repository"
	"github.com/oggyb/amora/internal/utils/pagination"
)

const (
	maxBodyRunes    = 4000
	previewRunes    = 100
	messagePageSize = 30
	maxPageSize     = 100
)

// Call types.
const (
	CallAudio = "audio"
	CallVideo = "video"
)

type Service struct {
	appCtx   *app.AppContext
	users    *repository.UserRepository
	blocks   *repository.BlockRepository
	messages *repository.MessageRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
	}
}

type MessageView struct {
	ID        uint64    `json:"id"`
	SenderID  uint64    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func toView(m db.Message) MessageView {
	return MessageView{ID: m.ID, SenderID: m.SenderID, Body: m.Body, CreatedAt: m.CreatedAt}
}

type ConversationView struct {
	ID          uint64       `json:"id"`
	MatchID     uint64       `json:"match_id"`
	PartnerID   uint64       `json:"partner_id"`
	PartnerName string       `json:"partner_name"`
	Active      bool         `json:"active"`
	LastMessage *MessageView `json:"last_message,omitempty"`
}

// Conversations lists every conversation userID took part in. Conversations
// of ended matches stay listed, flagged inactive.
func (s *Service) Conversations(ctx context.Context, userID uint64) ([]ConversationView, error) {
	rows, err := s.messages.ListConversations(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	convIDs := make([]uint64, len(rows))
	partnerIDs := make([]uint64, len(rows))
	for i, r := range rows {
		convIDs[i], partnerIDs[i] = r.ID, r.PartnerID
	}
	last, err := s.messages.LastMessages(ctx, convIDs)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	partners, err := s.users.FindManyActive(ctx, partnerIDs)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := make([]ConversationView, 0, len(rows))
	for _, r := range rows {
		v := ConversationView{
			ID:          r.ID,
			MatchID:     r.MatchID,
			PartnerID:   r.PartnerID,
			PartnerName: partners[r.PartnerID].DisplayName,
			Active:      r.Active,
		}
		if m, ok := last[r.ID]; ok {
			mv := toView(m)
			v.LastMessage = &mv
		}
		out = append(out, v)
	}
	return out, nil
}

// participant loads the conversation and checks userID is one of its two members.
func (s *Service) participant(ctx context.Context, userID, conversationID uint64) (*db.Conversation, error) {
	conv, err := s.messages.Conversation(ctx, conversationID)
	if repository.IsNotFound(err) {
		return nil, svcErr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !conv.Match.Has(userID) {
		return nil, svcErr.ErrNotParticipant
	}
	return conv, nil
}

// writable is participant plus the checks for sending: the match must be
// active and neither side may have blocked the other.
func (s *Service) writable(ctx context.Context, userID, conversationID uint64) (*db.Conversation, error) {
	conv, err := s.participant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Match.Active {
		return nil, svcErr.ErrMatchInactive
	}
	blocked, err := s.blocks.BlockedEither(ctx, conv.Match.UserAID, conv.Match.UserBID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if blocked {
		return nil, svcErr.ErrMatchInactive
	}
	return conv, nil
}

// MessagesPage is one page of history, newest first.
type MessagesPage struct {
	Messages  []MessageView `json:"messages"`
	NextToken string        `json:"next_token,omitempty"`
}

// Messages pages through history. Both members keep read access after an unmatch.
func (s *Service) Messages(ctx context.Context, userID, conversationID uint64, token string, limit int) (*MessagesPage, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	limit = pagination.ClampLimit(limit, messagePageSize, maxPageSize)
	msgs, next, err := s.messages.ListMessages(ctx, conversationID, token, limit)
	if errors.Is(err, pagination.ErrInvalidToken) {
		return nil, svcErr.InvalidArgument("invalid pagination token")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	page := &MessagesPage{Messages: make([]MessageView, 0, len(msgs)), NextToken: next}
	for _, m := range msgs {
		page.Messages = append(page.Messages, toView(m))
	}
	return page, nil
}

// Send appends a message and enqueues new_message for the other member.
func (s *Service) Send(ctx context.Context, userID, conversationID uint64, body string) (*MessageView, error) {
	ctx, span := observability.Start(ctx, "messaging.send",
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("conversation.id", int64(conversationID)),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, svcErr.InvalidArgument("body is required")
	}
	if utf8.RuneCountInString(body) > maxBodyRunes {
		return nil, svcErr.InvalidArgument("body is too long")
	}
	conv, err := s.writable(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &db.Message{ConversationID: conv.ID, SenderID: userID, Body: body, CreatedAt: s.appCtx.Now()}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, svcErr.Map(err)
	}

	sender, err := s.users.FindByID(ctx, userID)
	name := ""
	if err == nil {
		name = sender.DisplayName
	}
	s.enqueue(ctx, events.TypeNewMessage, events.NewMessage{
		Recipient:      conv.Match.Other(userID),
		Sender:         userID,
		SenderName:     name,
		Preview:        Preview(body),
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	})
	v := toView(*msg)
	return &v, nil
}

// Preview cuts body to the push preview length on a rune boundary.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewRunes-1]) + "…"
}

// DeleteMessage soft-deletes one of the caller's own messages.
func (s *Service) DeleteMessage(ctx context.Context, userID, conversationID, messageID uint64) error {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return err
	}
	err := s.messages.SoftDeleteMessage(ctx, conversationID, messageID, userID)
	switch {
	case errors.Is(err, repository.ErrNotOwner):
		return svcErr.Forbidden("only the sender can delete a message")
	case repository.IsNotFound(err):
		return svcErr.NotFound("message not found")
	case err != nil:
		return svcErr.Map(err)
	}
	return nil
}

// CallTicket is returned once the callee has been signalled.
type CallTicket struct {
	CallID         string `json:"call_id"`
	CallType       string `json:"call_type"`
	ConversationID uint64 `json:"conversation_id"`
	CalleeID       uint64 `json:"callee_id"`
}

// InitiateCall records a call and enqueues incoming_call for the callee.
func (s *Service) InitiateCall(ctx context.Context, userID, conversationID uint64, callType string) (*CallTicket, error) {
	if callType != CallAudio && callType != CallVideo {
		return nil, svcErr.InvalidArgument("call_type must be audio or video")
	}
	conv, err := s.writable(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	call := &db.Call{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		CallerID:       userID,
		CalleeID:       conv.Match.Other(userID),
		CallType:       callType,
	}
	if err := s.messages.CreateCall(ctx, call); err != nil {
		return nil, svcErr.Map(err)
	}

	name := ""
	if caller, err := s.users.FindByID(ctx, userID); err == nil {
		name = caller.DisplayName
	}
	s.enqueue(ctx, events.TypeIncomingCall, events.IncomingCall{
		Callee:         call.CalleeID,
		Caller:         userID,
		CallerName:     name,
		CallID:         call.ID,
		CallType:       callType,
		ConversationID: conv.ID,
	})
	return &CallTicket{CallID: call.ID, CallType: callType, ConversationID: conv.ID, CalleeID: call.CalleeID}, nil
}

func (s *Service) enqueue(ctx context.Context, t events.Type, payload any) {
	ev, err := events.New(t, payload)
	if err == nil {
		err = s.appCtx.Events.Enqueue(ctx, ev)
	}
	if err != nil {
		s.appCtx.Log(ctx).Error("enqueue dispatch event failed", "type", t, "err", err)
	}
}
