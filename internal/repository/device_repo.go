package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/amora/internal/db"
)

type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(database *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: database}
}

// Upsert registers a push token. A token re-registered from another account
// moves to that account.
func (r *DeviceRepository) Upsert(ctx context.Context, d *db.DeviceToken) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "device_id", "platform", "last_seen_at"}),
		}).
		Create(d).Error
}

// Delete removes a token owned by userID; false when nothing matched.
func (r *DeviceRepository) Delete(ctx context.Context, userID uint64, token string) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND token = ?", userID, token).Delete(&db.DeviceToken{})
	return res.RowsAffected > 0, res.Error
}

// ListForUser returns the user's tokens in registration order.
func (r *DeviceRepository) ListForUser(ctx context.Context, userID uint64) ([]db.DeviceToken, error) {
	var tokens []db.DeviceToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&tokens).Error
	return tokens, err
}

// DeleteTokens prunes tokens the push provider reported as dead.
func (r *DeviceRepository) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&db.DeviceToken{})
	return res.RowsAffected, res.Error
}

// PurgeStale drops tokens not seen since before.
func (r *DeviceRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("last_seen_at < ?", before).Delete(&db.DeviceToken{})
	return res.RowsAffected, res.Error
}
