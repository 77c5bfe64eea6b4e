package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/utils/pagination"
)

// MessageRepository covers conversations, messages and call records.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// EnsureConversation returns the conversation of a match, creating it once.
func (r *MessageRepository) EnsureConversation(ctx context.Context, matchID uint64) (*db.Conversation, error) {
	conv := db.Conversation{MatchID: matchID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil &&
		!db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	var out db.Conversation
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversation loads a conversation together with its match.
func (r *MessageRepository) Conversation(ctx context.Context, id uint64) (*db.Conversation, error) {
	var c db.Conversation
	if err := r.db.WithContext(ctx).Preload("Match").Take(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationRow is a conversation as seen from one participant.
type ConversationRow struct {
	ID            uint64
	MatchID       uint64
	PartnerID     uint64
	Active        bool
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// ListConversations returns every conversation the user took part in,
// including those of inactive matches, most recently active first.
func (r *MessageRepository) ListConversations(ctx context.Context, userID uint64) ([]ConversationRow, error) {
	var rows []ConversationRow
	err := r.db.WithContext(ctx).
		Table("conversations c").
		Select(`c.id, c.match_id, c.last_message_at, c.created_at, m.active,
			CASE WHEN m.user_a_id = ? THEN m.user_b_id ELSE m.user_a_id END AS partner_id`, userID).
		Joins("JOIN matches m ON m.id = c.match_id").
		Where("m.user_a_id = ? OR m.user_b_id = ?", userID, userID).
		Order("COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC").
		Scan(&rows).Error
	return rows, err
}

// LastMessages returns the newest visible message per conversation.
func (r *MessageRepository) LastMessages(ctx context.Context, conversationIDs []uint64) (map[uint64]db.Message, error) {
	out := make(map[uint64]db.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	latest := r.db.Model(&db.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")

	var msgs []db.Message
	if err := r.db.WithContext(ctx).Where("id IN (?)", latest).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ConversationID] = m
	}
	return out, nil
}

// CreateMessage appends a message and bumps the conversation's last_message_at.
func (r *MessageRepository) CreateMessage(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&db.Conversation{}).Where("id = ?", m.ConversationID).
			UpdateColumn("last_message_at", m.CreatedAt).Error
	})
}

// ListMessages pages newest first; the cursor carries the last seen message id.
func (r *MessageRepository) ListMessages(
	ctx context.Context,
	conversationID uint64,
	paginationToken string,
	limit int,
) ([]db.Message, string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if cursor.ID > 0 {
		query = query.Where("id < ?", cursor.ID)
	}

	var msgs []db.Message
	if err := query.Order("id DESC").Limit(limit + 1).Find(&msgs).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(msgs) > limit {
		next, _ = pagination.Encode(pagination.Cursor{ID: msgs[limit-1].ID})
		msgs = msgs[:limit]
	}
	return msgs, next, nil
}

// SoftDeleteMessage hides a message owned by senderID.
func (r *MessageRepository) SoftDeleteMessage(ctx context.Context, conversationID, messageID, senderID uint64) error {
	var m db.Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		Take(&m).Error
	if err != nil {
		return err
	}
	if m.SenderID != senderID {
		return ErrNotOwner
	}
	return r.db.WithContext(ctx).Delete(&m).Error
}

// ErrNotOwner is returned when a user touches someone else's row.
var ErrNotOwner = errors.New("not the owner")

func (r *MessageRepository) CreateCall(ctx context.Context, c *db.Call) error {
	return r.db.WithContext(ctx).Create(c).Error
}
