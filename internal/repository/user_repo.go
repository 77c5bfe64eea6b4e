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

// UserRepository owns users, profiles and profile photos.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// Create inserts the user together with its profile.
func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Preload("Profile").Take(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindActive returns the user only when it exists and is active.
func (r *UserRepository) FindActive(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Preload("Profile").
		Where("id = ? AND active = ?", id, true).
		Take(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Preload("Profile").Where("email = ?", email).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByFirebaseUID(ctx context.Context, uid string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Preload("Profile").Where("firebase_uid = ?", uid).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// LockPair row-locks both users in id order so concurrent interactions
// between the same two people serialize. Returns the rows found.
func (r *UserRepository) LockPair(ctx context.Context, a, b uint64) ([]db.User, error) {
	low, high := db.OrderedPair(a, b)
	var users []db.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []uint64{low, high}).
		Order("id").
		Find(&users).Error
	return users, err
}

// Touch bumps last_active_at.
func (r *UserRepository) Touch(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).
		UpdateColumn("last_active_at", at).Error
}

// UpdateFields applies a column map to the user row.
func (r *UserRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(fields).Error
}

// SaveProfile writes every profile column, including zero values.
func (r *UserRepository) SaveProfile(ctx context.Context, p *db.Profile) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// SaveNotificationSettings replaces the embedded preference record.
func (r *UserRepository) SaveNotificationSettings(ctx context.Context, id uint64, s db.NotificationSettings) error {
	return r.UpdateFields(ctx, id, s.Columns())
}

// SetPremium writes the live premium flag.
func (r *UserRepository) SetPremium(ctx context.Context, id uint64, premium bool, until *time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).
		Updates(map[string]any{"is_premium": premium, "premium_until": until}).Error
}

// Anonymize soft-disables an account and strips personal data.
func (r *UserRepository) Anonymize(ctx context.Context, id uint64, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.User{}).Where("id = ? AND active = ?", id, true).Updates(map[string]any{
			"email":                fmt.Sprintf("deleted-%d@invalid.local", id),
			"password_hash":        "",
			"firebase_uid":         nil,
			"display_name":         "Deleted user",
			"birth_date":           nil,
			"active":               false,
			"verification_doc_key": "",
			"anonymized_at":        now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&db.Profile{}).Where("user_id = ?", id).Updates(map[string]any{
			"bio":          "",
			"hidden":       true,
			"discoverable": false,
			"latitude":     nil,
			"longitude":    nil,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&db.DeviceToken{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", id).Delete(&db.ProfilePhoto{}).Error
	})
}

func (r *UserRepository) AddPhoto(ctx context.Context, p *db.ProfilePhoto) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos *int
		if err := tx.Model(&db.ProfilePhoto{}).Where("user_id = ?", p.UserID).
			Select("MAX(position)").Scan(&maxPos).Error; err != nil {
			return err
		}
		if maxPos != nil {
			p.Position = *maxPos + 1
		}
		return tx.Create(p).Error
	})
}

func (r *UserRepository) ListPhotos(ctx context.Context, userID uint64) ([]db.ProfilePhoto, error) {
	var photos []db.ProfilePhoto
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("position, id").Find(&photos).Error
	return photos, err
}

// PhotosFor loads photos for many users at once, keyed by user id.
func (r *UserRepository) PhotosFor(ctx context.Context, userIDs []uint64) (map[uint64][]db.ProfilePhoto, error) {
	out := make(map[uint64][]db.ProfilePhoto, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var photos []db.ProfilePhoto
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Order("position, id").Find(&photos).Error; err != nil {
		return nil, err
	}
	for _, p := range photos {
		out[p.UserID] = append(out[p.UserID], p)
	}
	return out, nil
}

// DeletePhoto removes a photo owned by userID and returns it.
func (r *UserRepository) DeletePhoto(ctx context.Context, userID, photoID uint64) (*db.ProfilePhoto, error) {
	var p db.ProfilePhoto
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", photoID, userID).Take(&p).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindManyActive loads active users by id with profiles, preserving no order.
func (r *UserRepository) FindManyActive(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	out := make(map[uint64]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Preload("Profile").
		Where("id IN ? AND active = ?", ids, true).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// IsNotFound is a small helper for callers that only care about absence.
func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
