package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/db"
)

type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

func (r *BlockRepository) WithTx(tx *gorm.DB) *BlockRepository {
	return &BlockRepository{db: tx}
}

// Create stores blocker -> blocked. A repeat returns a unique violation.
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).Create(&db.Block{BlockerID: blockerID, BlockedID: blockedID}).Error
}

// Delete removes blocker -> blocked; false when nothing was there.
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{})
	return res.RowsAffected > 0, res.Error
}

// BlockedEither reports whether a block exists in either direction.
func (r *BlockRepository) BlockedEither(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// ListBlocked returns who userID has blocked, newest first.
func (r *BlockRepository) ListBlocked(ctx context.Context, userID uint64) ([]db.Block, error) {
	var blocks []db.Block
	err := r.db.WithContext(ctx).Where("blocker_id = ?", userID).
		Order("created_at DESC").Find(&blocks).Error
	return blocks, err
}
