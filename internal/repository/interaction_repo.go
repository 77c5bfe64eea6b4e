package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/amora/internal/db"
	"github.com/oggyb/amora/internal/utils/pagination"
)

// InteractionRepository provides data access methods for the Interaction model.
// It encapsulates all queries related to likes/super likes/passes between users.
type InteractionRepository struct {
	db *gorm.DB
}

// NewInteractionRepository creates a new repository bound to the given DB connection.
func NewInteractionRepository(database *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *InteractionRepository) WithTx(tx *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: tx}
}

// Find returns the stored interaction for actor -> target, or nil when absent.
func (r *InteractionRepository) Find(ctx context.Context, actorID, targetID uint64) (*db.Interaction, error) {
	var it db.Interaction
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Take(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Upsert inserts or overwrites the interaction made by actor -> target.
//
// Behavior:
//   - If (actor_id, target_id) exists → kind and updated_at are overwritten.
//   - If it doesn't exist → a new row is inserted.
//   - Consumed is left as is; only a new match sets it.
//
// Example:
//
//	repo.Upsert(ctx, 1, 2, db.KindLike) // user 1 liked user 2
func (r *InteractionRepository) Upsert(ctx context.Context, actorID, targetID uint64, kind string) error {
	it := db.Interaction{
		ActorID:  actorID,
		TargetID: targetID,
		Kind:     kind,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
		}).
		Create(&it).Error
}

// MarkConsumed flags both directed likes of a pair as having produced a match.
func (r *InteractionRepository) MarkConsumed(ctx context.Context, a, b uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.Interaction{}).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)", a, b, b, a).
		Update("consumed", true).Error
}

// HasLiked checks whether an actor has liked or super liked a target.
func (r *InteractionRepository) HasLiked(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Interaction{}).
		Where("actor_id = ? AND target_id = ? AND kind IN ?", actorID, targetID, likeKinds).
		Count(&count).Error
	return count > 0, err
}

var likeKinds = []string{db.KindLike, db.KindSuperLike}

// likersQuery selects likes received by recipient from active users, minus
// anyone the recipient passed or blocked in either direction.
func (r *InteractionRepository) likersQuery(ctx context.Context, recipientID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("interactions i").
		Joins("JOIN users u ON u.id = i.actor_id AND u.active = ?", true).
		Where("i.target_id = ? AND i.kind IN ?", recipientID, likeKinds).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM interactions i2
				WHERE i2.actor_id = ?
				  AND i2.target_id = i.actor_id
				  AND i2.kind = ?
			)`, recipientID, db.KindPass).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = i.actor_id)
				   OR (b.blocker_id = i.actor_id AND b.blocked_id = ?)
			)`, recipientID, recipientID)
}

// GetLikers returns users who liked the given recipient.
//
// Behavior:
//   - Only like and super_like rows count.
//   - Excludes users that the recipient explicitly passed or blocked.
//   - Ordered by updated_at DESC, actor_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.GetLikers(ctx, 42, "", 20) // first 20 people who liked user 42
func (r *InteractionRepository) GetLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken string,
	limit int,
) ([]db.Interaction, string, error) {
	return r.pageLikers(ctx, r.likersQuery(ctx, recipientID), paginationToken, limit)
}

// GetNewLikers returns users who liked the recipient but have not been liked back.
//
// Example:
//
//	repo.GetNewLikers(ctx, 42, "", 20) // first 20 one-way likes for user 42
func (r *InteractionRepository) GetNewLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken string,
	limit int,
) ([]db.Interaction, string, error) {
	mutual := r.db.
		Table("interactions").
		Select("1").
		Where("actor_id = i.target_id AND target_id = i.actor_id AND kind IN ?", likeKinds)

	query := r.likersQuery(ctx, recipientID).Where("NOT EXISTS (?)", mutual)
	return r.pageLikers(ctx, query, paginationToken, limit)
}

func (r *InteractionRepository) pageLikers(
	ctx context.Context,
	query *gorm.DB,
	paginationToken string,
	limit int,
) ([]db.Interaction, string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, "", err
	}

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.UnixMilli).UTC()
		query = query.Where(
			"(i.updated_at < ? OR (i.updated_at = ? AND i.actor_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	var rows []db.Interaction
	if err := query.
		Select("i.*").
		Order("i.updated_at DESC, i.actor_id DESC").
		Limit(limit + 1).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(rows) > limit {
		last := rows[limit-1]
		next, _ = pagination.Encode(pagination.Cursor{
			ID:        last.ActorID,
			UnixMilli: last.UpdatedAt.UnixMilli(),
		})
		rows = rows[:limit]
	}
	return rows, next, nil
}

// CountLikers returns how many users liked the given recipient.
// Used in conjunction with the Redis cache (DB is fallback).
func (r *InteractionRepository) CountLikers(ctx context.Context, recipientID uint64) (int64, error) {
	var count int64
	if err := r.likersQuery(ctx, recipientID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
