package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/amora/internal/db"
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// CreateIfAbsent inserts the match for the unordered pair {a, b}.
//
// Behavior:
//   - The pair is stored ordered (low, high); the unique index rejects a second row.
//   - A conflict, reported either as zero affected rows or a unique violation,
//     means a concurrent request already matched the pair; the existing row is returned.
//   - created is true only for the call that actually inserted.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, a, b uint64) (*db.Match, bool, error) {
	low, high := db.OrderedPair(a, b)
	m := db.Match{UserAID: low, UserBID: high, Active: true}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil && !db.IsUniqueViolation(res.Error) {
		return nil, false, fmt.Errorf("insert match: %w", res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 && m.ID != 0 {
		return &m, true, nil
	}

	existing, err := r.FindByPair(ctx, low, high)
	if err != nil {
		return nil, false, fmt.Errorf("load existing match: %w", err)
	}
	return existing, false, nil
}

// FindByPair loads the match for {a, b} in any order.
func (r *MatchRepository) FindByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	low, high := db.OrderedPair(a, b)
	var m db.Match
	if err := r.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", low, high).Take(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) FindByID(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).Take(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Deactivate flips the active flag off; already inactive rows are left alone.
func (r *MatchRepository) Deactivate(ctx context.Context, id, byUserID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.Match{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{"active": false, "unmatched_by": byUserID, "unmatched_at": at}).Error
}

// DeactivatePair is Deactivate addressed by members; a missing match is fine.
func (r *MatchRepository) DeactivatePair(ctx context.Context, a, b, byUserID uint64, at time.Time) error {
	m, err := r.FindByPair(ctx, a, b)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.Deactivate(ctx, m.ID, byUserID, at)
}

// MatchWithConversation is a row of the match list.
type MatchWithConversation struct {
	db.Match
	ConversationID uint64
}

// ListActiveForUser returns the user's active matches, newest first.
// Matches with a blocked partner (either direction) are left out.
func (r *MatchRepository) ListActiveForUser(ctx context.Context, userID uint64) ([]MatchWithConversation, error) {
	var rows []MatchWithConversation
	err := r.db.WithContext(ctx).
		Table("matches m").
		Select("m.*, c.id AS conversation_id").
		Joins("LEFT JOIN conversations c ON c.match_id = m.id").
		Where("m.active = ? AND (m.user_a_id = ? OR m.user_b_id = ?)", true, userID, userID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = m.user_a_id AND b.blocked_id = m.user_b_id)
				   OR (b.blocker_id = m.user_b_id AND b.blocked_id = m.user_a_id)
			)`).
		Order("m.created_at DESC, m.id DESC").
		Scan(&rows).Error
	return rows, err
}

// CountForPair counts match rows for {a, b}; the unique index keeps it at most 1.
func (r *MatchRepository) CountForPair(ctx context.Context, a, b uint64) (int64, error) {
	low, high := db.OrderedPair(a, b)
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("user_a_id = ? AND user_b_id = ?", low, high).Count(&n).Error
	return n, err
}
