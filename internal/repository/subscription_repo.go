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

// SubscriptionRepository owns plans, subscriptions, daily quotas and webhook receipts.
type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(database *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: database}
}

func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

func (r *SubscriptionRepository) PlanByCode(ctx context.Context, code string) (*db.SubscriptionPlan, error) {
	var p db.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Current returns the user's newest active or canceled subscription that
// has not lapsed at now, or nil.
func (r *SubscriptionRepository) Current(ctx context.Context, userID uint64, now time.Time) (*db.Subscription, error) {
	var s db.Subscription
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("user_id = ? AND status IN ? AND current_period_end > ?", userID, []string{db.SubActive, db.SubCanceled}, now).
		Order("current_period_end DESC, id DESC").
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Activate starts (or replaces) the user's subscription on plan.
func (r *SubscriptionRepository) Activate(ctx context.Context, userID, planID uint64, periodEnd time.Time) (*db.Subscription, error) {
	if err := r.db.WithContext(ctx).Model(&db.Subscription{}).
		Where("user_id = ? AND status IN ?", userID, []string{db.SubActive, db.SubCanceled}).
		Update("status", db.SubExpired).Error; err != nil {
		return nil, fmt.Errorf("retire previous subscriptions: %w", err)
	}
	s := db.Subscription{UserID: userID, PlanID: planID, Status: db.SubActive, CurrentPeriodEnd: periodEnd}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Renew extends the live subscription to periodEnd and clears a pending cancel.
func (r *SubscriptionRepository) Renew(ctx context.Context, userID uint64, periodEnd time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&db.Subscription{}).
		Where("user_id = ? AND status IN ?", userID, []string{db.SubActive, db.SubCanceled}).
		Updates(map[string]any{"current_period_end": periodEnd, "status": db.SubActive, "canceled_at": nil})
	return res.RowsAffected, res.Error
}

// Cancel stops renewal; premium stays until the period ends.
func (r *SubscriptionRepository) Cancel(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&db.Subscription{}).
		Where("user_id = ? AND status = ?", userID, db.SubActive).
		Updates(map[string]any{"status": db.SubCanceled, "canceled_at": at})
	return res.RowsAffected, res.Error
}

// ExpireLapsed marks lapsed subscriptions expired and returns the affected users.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) ([]uint64, error) {
	var userIDs []uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Subscription{}).
			Where("status IN ? AND current_period_end <= ?", []string{db.SubActive, db.SubCanceled}, now).
			Distinct().Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}
		return tx.Model(&db.Subscription{}).
			Where("status IN ? AND current_period_end <= ?", []string{db.SubActive, db.SubCanceled}, now).
			Update("status", db.SubExpired).Error
	})
	return userIDs, err
}

// ClearLapsedPremium drops the premium flag for users whose premium_until passed
// and who hold no live subscription.
func (r *SubscriptionRepository) ClearLapsedPremium(ctx context.Context, userIDs []uint64, now time.Time) (int64, error) {
	live := r.db.Model(&db.Subscription{}).
		Select("1").
		Where("subscriptions.user_id = users.id AND status IN ? AND current_period_end > ?",
			[]string{db.SubActive, db.SubCanceled}, now)

	query := r.db.WithContext(ctx).Model(&db.User{}).
		Where("is_premium = ?", true).
		Where("NOT EXISTS (?)", live)
	if len(userIDs) > 0 {
		query = query.Where("id IN ?", userIDs)
	} else {
		query = query.Where("premium_until IS NOT NULL AND premium_until <= ?", now)
	}
	res := query.Updates(map[string]any{"is_premium": false, "premium_until": nil})
	return res.RowsAffected, res.Error
}

// RecordWebhookEvent inserts the receipt; false when the id was already stored.
func (r *SubscriptionRepository) RecordWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.WebhookEvent{EventID: eventID, Type: eventType})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
