package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/db"
)

// CandidateFilter describes who is asking and how to page.
type CandidateFilter struct {
	RequesterID uint64
	// RequesterGenderBit must intersect the candidate's sought-genders mask.
	RequesterGenderBit uint8
	// SoughtGenders are the candidate genders the requester wants.
	SoughtGenders []string
	// Premium lets premium-only profiles through.
	Premium bool
	// PassCutoff: passes newer than this still hide the candidate.
	PassCutoff time.Time
	// BornAfter / BornBefore bound the candidate's birth date when set.
	BornAfter  *time.Time
	BornBefore *time.Time
	Offset     int
	Limit      int
}

type DiscoveryRepository struct {
	db *gorm.DB
}

func NewDiscoveryRepository(database *gorm.DB) *DiscoveryRepository {
	return &DiscoveryRepository{db: database}
}

// eligible applies every candidate rule:
//   - active, discoverable and not hidden
//   - reciprocal gender preference
//   - no like from requester, no pass newer than PassCutoff
//   - no block in either direction
//   - no active match with the requester
//   - premium-only profiles only for premium requesters
func (r *DiscoveryRepository) eligible(ctx context.Context, f CandidateFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&db.User{}).
		Select("users.*").
		Joins("JOIN profiles p ON p.user_id = users.id").
		Where("users.active = ? AND users.id <> ?", true, f.RequesterID).
		Where("p.discoverable = ? AND p.hidden = ?", true, false).
		Where("p.gender IN ?", f.SoughtGenders).
		Where("(p.sought_genders & ?) <> 0", f.RequesterGenderBit).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM interactions i
				WHERE i.actor_id = ?
				  AND i.target_id = users.id
				  AND (i.kind <> ? OR i.updated_at > ?)
			)`, f.RequesterID, db.KindPass, f.PassCutoff).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = users.id)
				   OR (b.blocker_id = users.id AND b.blocked_id = ?)
			)`, f.RequesterID, f.RequesterID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE m.active = ?
				  AND ((m.user_a_id = ? AND m.user_b_id = users.id)
				    OR (m.user_a_id = users.id AND m.user_b_id = ?))
			)`, true, f.RequesterID, f.RequesterID)

	if !f.Premium {
		query = query.Where("p.premium_only = ?", false)
	}
	if f.BornAfter != nil {
		query = query.Where("users.birth_date > ?", *f.BornAfter)
	}
	if f.BornBefore != nil {
		query = query.Where("users.birth_date <= ?", *f.BornBefore)
	}
	return query
}

// ByRecency returns one page ordered by last activity, id as tiebreak.
func (r *DiscoveryRepository) ByRecency(ctx context.Context, f CandidateFilter) ([]db.User, error) {
	if len(f.SoughtGenders) == 0 || f.RequesterGenderBit == 0 {
		return nil, nil
	}
	var users []db.User
	err := r.eligible(ctx, f).
		Preload("Profile").
		Order("users.last_active_at DESC, users.id DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&users).Error
	return users, err
}

// Scan returns up to max eligible candidates in recency order, for callers
// that need to re-rank in memory (distance).
func (r *DiscoveryRepository) Scan(ctx context.Context, f CandidateFilter, max int) ([]db.User, error) {
	if len(f.SoughtGenders) == 0 || f.RequesterGenderBit == 0 {
		return nil, nil
	}
	var users []db.User
	err := r.eligible(ctx, f).
		Preload("Profile").
		Order("users.last_active_at DESC, users.id DESC").
		Limit(max).
		Find(&users).Error
	return users, err
}
