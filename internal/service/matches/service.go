// Package matches lists matches and handles unmatching and blocking.
package matches

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/repository"
)

type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	matches *repository.MatchRepository
	blocks  *repository.BlockRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
		blocks:  repository.NewBlockRepository(appCtx.DB),
	}
}

// Partner is the other member of a match as shown in lists.
type Partner struct {
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
	Photo       string `json:"photo,omitempty"`
	Verified    bool   `json:"verified"`
}

type MatchView struct {
	ID             uint64    `json:"id"`
	Partner        Partner   `json:"partner"`
	ConversationID uint64    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// List returns userID's active matches whose partner is still active.
func (s *Service) List(ctx context.Context, userID uint64) ([]MatchView, error) {
	rows, err := s.matches.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	ids := make([]uint64, len(rows))
	for i, m := range rows {
		ids[i] = m.Other(userID)
	}
	partners, err := s.users.FindManyActive(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	photos, err := s.users.PhotosFor(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := make([]MatchView, 0, len(rows))
	for _, m := range rows {
		pid := m.Other(userID)
		p, ok := partners[pid]
		if !ok {
			continue
		}
		view := MatchView{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			CreatedAt:      m.CreatedAt,
			Partner:        Partner{UserID: pid, DisplayName: p.DisplayName, Verified: p.IdentityVerified},
		}
		if ph := photos[pid]; len(ph) > 0 {
			view.Partner.Photo = ph[0].URL
		}
		out = append(out, view)
	}
	return out, nil
}

// Unmatch deactivates a match. Either member may call it, repeatedly.
func (s *Service) Unmatch(ctx context.Context, userID, matchID uint64) error {
	m, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return svcErr.Map(err)
	}
	if !m.Has(userID) {
		// do not reveal other people's matches
		return svcErr.NotFound("match not found")
	}
	if !m.Active {
		return nil
	}
	if err := s.matches.Deactivate(ctx, m.ID, userID, s.appCtx.Now()); err != nil {
		return svcErr.Map(err)
	}
	s.bumpDiscovery(ctx, m.UserAID, m.UserBID)
	s.appCtx.Log(ctx).Info("match deactivated", "match_id", m.ID, "by", userID)
	return nil
}

// Block stores blocker -> blocked and ends any match between them.
func (s *Service) Block(ctx context.Context, blockerID, blockedID uint64) error {
	if blockerID == blockedID || blockedID == 0 {
		return svcErr.ErrInvalidTarget
	}
	if _, err := s.users.FindByID(ctx, blockedID); err != nil {
		if repository.IsNotFound(err) {
			return svcErr.NotFound("user not found")
		}
		return svcErr.Map(err)
	}

	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.blocks.WithTx(tx).Create(ctx, blockerID, blockedID); err != nil {
			if db.IsUniqueViolation(err) {
				return svcErr.ErrAlreadyBlocked
			}
			return err
		}
		return s.matches.WithTx(tx).DeactivatePair(ctx, blockerID, blockedID, blockerID, s.appCtx.Now())
	})
	if err != nil {
		return svcErr.Map(err)
	}
	s.bumpDiscovery(ctx, blockerID, blockedID)
	for _, id := range []uint64{blockerID, blockedID} {
		if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, id); err != nil {
			s.appCtx.Log(ctx).Warn("like count invalidation failed", "user_id", id, "err", err)
		}
	}
	return nil
}

// Unblock removes blocker -> blocked. Matches stay inactive.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID uint64) error {
	removed, err := s.blocks.Delete(ctx, blockerID, blockedID)
	if err != nil {
		return svcErr.Map(err)
	}
	if !removed {
		return svcErr.NotFound("block not found")
	}
	s.bumpDiscovery(ctx, blockerID, blockedID)
	return nil
}

type BlockView struct {
	UserID    uint64    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Blocked lists who userID has blocked.
func (s *Service) Blocked(ctx context.Context, userID uint64) ([]BlockView, error) {
	rows, err := s.blocks.ListBlocked(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]BlockView, len(rows))
	for i, b := range rows {
		out[i] = BlockView{UserID: b.BlockedID, CreatedAt: b.CreatedAt}
	}
	return out, nil
}

func (s *Service) bumpDiscovery(ctx context.Context, ids ...uint64) {
	for _, id := range ids {
		if err := s.appCtx.RedisCache.BumpDiscoveryVersion(ctx, id); err != nil {
			s.appCtx.Log(ctx).Warn("discovery version bump failed", "user_id", id, "err", err)
		}
	}
}
