package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/amora/internal/db"
)

// QuotaColumn names a counter on daily_quotas.
type QuotaColumn string

const (
	QuotaLikes      QuotaColumn = "likes"
	QuotaSuperLikes QuotaColumn = "super_likes"
)

// ErrQuotaSpent is returned when the conditional increment found no room.
var ErrQuotaSpent = errors.New("quota spent")

type QuotaRepository struct {
	db *gorm.DB
}

func NewQuotaRepository(database *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: database}
}

func (r *QuotaRepository) WithTx(tx *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: tx}
}

// Consume increments column for (user, day) only while it is below limit.
// The check and the increment are one UPDATE, so two racing requests cannot
// both take the last credit. limit <= 0 means unlimited.
func (r *QuotaRepository) Consume(ctx context.Context, userID uint64, day string, column QuotaColumn, limit int) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.DailyQuota{UserID: userID, Day: day}).Error; err != nil && !db.IsUniqueViolation(err) {
		return err
	}

	query := r.db.WithContext(ctx).Model(&db.DailyQuota{}).
		Where("user_id = ? AND day = ?", userID, day)
	if limit > 0 {
		query = query.Where(string(column)+" < ?", limit)
	}
	res := query.UpdateColumn(string(column), gorm.Expr(string(column)+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuotaSpent
	}
	return nil
}

// Usage returns the counters for (user, day); zero row when absent.
func (r *QuotaRepository) Usage(ctx context.Context, userID uint64, day string) (db.DailyQuota, error) {
	q := db.DailyQuota{UserID: userID, Day: day}
	err := r.db.WithContext(ctx).Where("user_id = ? AND day = ?", userID, day).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return q, nil
	}
	return q, err
}

// PurgeBefore deletes quota rows older than day.
func (r *QuotaRepository) PurgeBefore(ctx context.Context, day string) (int64, error) {
	res := r.db.WithContext(ctx).Where("day < ?", day).Delete(&db.DailyQuota{})
	return res.RowsAffected, res.Error
}
