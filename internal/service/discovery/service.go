// Package discovery selects candidates for swiping and records likes and
// passes, creating a match when two likes meet.
package discovery

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/events"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/repository"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/utils/pagination"
)

// Candidate orderings.
const (
	OrderRecent   = "recent"
	OrderDistance = "distance"
)

const likesPageSize = 20

type Service struct {
	appCtx       *app.AppContext
	gate         *entitlement.Gate
	users        *repository.UserRepository
	blocks       *repository.BlockRepository
	interactions *repository.InteractionRepository
	matches      *repository.MatchRepository
	messages     *repository.MessageRepository
	candidates   *repository.DiscoveryRepository
}

func NewService(appCtx *app.AppContext, gate *entitlement.Gate) *Service {
	return &Service{
		appCtx:       appCtx,
		gate:         gate,
		users:        repository.NewUserRepository(appCtx.DB),
		blocks:       repository.NewBlockRepository(appCtx.DB),
		interactions: repository.NewInteractionRepository(appCtx.DB),
		matches:      repository.NewMatchRepository(appCtx.DB),
		messages:     repository.NewMessageRepository(appCtx.DB),
		candidates:   repository.NewDiscoveryRepository(appCtx.DB),
	}
}

// Candidate is one swipeable profile.
type Candidate struct {
	UserID       uint64    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Age          int       `json:"age,omitempty"`
	Gender       string    `json:"gender"`
	Bio          string    `json:"bio,omitempty"`
	Interests    []string  `json:"interests,omitempty"`
	Photos       []string  `json:"photos"`
	Verified     bool      `json:"verified"`
	DistanceKM   *float64  `json:"distance_km,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Page is one offset/limit slice of candidates.
type Page struct {
	Order      string      `json:"order"`
	Offset     int         `json:"offset"`
	Limit      int         `json:"limit"`
	Candidates []Candidate `json:"candidates"`
}

// Candidates returns one page for userID. Pages are cached per discovery
// version, so the requester's own interactions are visible on the next call.
func (s *Service) Candidates(ctx context.Context, userID uint64, order string, offset, limit int) (*Page, error) {
	ctx, span := observability.Start(ctx, "discovery.candidates",
		attribute.Int64("user.id", int64(userID)),
		attribute.String("discovery.order", order),
	)
	defer span.End()

	if order == "" {
		order = OrderRecent
	}
	if order != OrderRecent && order != OrderDistance {
		return nil, svcErr.InvalidArgument("order must be recent or distance")
	}
	if offset < 0 {
		return nil, svcErr.InvalidArgument("offset must not be negative")
	}
	cfg := s.appCtx.Config.Discovery
	limit = pagination.ClampLimit(limit, cfg.DefaultLimit, cfg.MaxLimit)

	me, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if order == OrderDistance && !me.Profile.HasLocation() {
		return nil, svcErr.InvalidArgument("distance ordering needs your location")
	}

	rc := s.appCtx.RedisCache
	version, err := rc.DiscoveryVersion(ctx, userID)
	if err != nil {
		s.appCtx.Log(ctx).Warn("discovery version read failed", "user_id", userID, "err", err)
	}
	key := rc.KeyForDiscoveryPage(userID, version, order, offset, limit)
	if err == nil {
		var cached Page
		if hit, cerr := rc.GetJSON(ctx, key, &cached); cerr == nil && hit {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		}
	}

	page, err := s.loadPage(ctx, me, order, offset, limit)
	if err != nil {
		return nil, err
	}
	if err := rc.SetJSON(ctx, key, page, cfg.CacheTTL); err != nil {
		s.appCtx.Log(ctx).Warn("discovery page cache write failed", "user_id", userID, "err", err)
	}
	return page, nil
}

func (s *Service) loadPage(ctx context.Context, me *db.User, order string, offset, limit int) (*Page, error) {
	now := s.appCtx.Now()
	f := repository.CandidateFilter{
		RequesterID:        me.ID,
		RequesterGenderBit: db.GenderMask(me.Profile.Gender),
		SoughtGenders:      db.GendersFromMask(me.Profile.SoughtGenders),
		Premium:            me.PremiumAt(now),
		PassCutoff:         now.Add(-s.appCtx.Config.Discovery.PassCooldown),
		Offset:             offset,
		Limit:              limit,
	}
	if ageMin := me.Profile.AgeMin; ageMin > 0 {
		t := now.AddDate(-ageMin, 0, 0)
		f.BornBefore = &t
	}
	if ageMax := me.Profile.AgeMax; ageMax > 0 {
		t := now.AddDate(-(ageMax + 1), 0, 0)
		f.BornAfter = &t
	}

	page := &Page{Order: order, Offset: offset, Limit: limit, Candidates: []Candidate{}}
	var (
		users     []db.User
		distances []*float64
	)
	switch order {
	case OrderDistance:
		scanned, err := s.candidates.Scan(ctx, f, s.appCtx.Config.Discovery.MaxScan)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		ranked := byDistance(&me.Profile, scanned)
		if offset >= len(ranked) {
			return page, nil
		}
		end := min(offset+limit, len(ranked))
		for _, r := range ranked[offset:end] {
			users = append(users, r.user)
			if r.has {
				km := r.km
				distances = append(distances, &km)
			} else {
				distances = append(distances, nil)
			}
		}
	default:
		var err error
		users, err = s.candidates.ByRecency(ctx, f)
		if err != nil {
			return nil, svcErr.Map(err)
		}
	}

	ids := make([]uint64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	photos, err := s.users.PhotosFor(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	for i, u := range users {
		c := Candidate{
			UserID:       u.ID,
			DisplayName:  u.DisplayName,
			Age:          u.Age(now),
			Gender:       u.Profile.Gender,
			Bio:          u.Profile.Bio,
			Interests:    u.Profile.Interests,
			Photos:       []string{},
			Verified:     u.IdentityVerified,
			LastActiveAt: u.LastActiveAt,
		}
		for _, p := range photos[u.ID] {
			c.Photos = append(c.Photos, p.URL)
		}
		if distances != nil {
			c.DistanceKM = distances[i]
		}
		page.Candidates = append(page.Candidates, c)
	}
	return page, nil
}

// Outcome is the result of RecordInteraction.
type Outcome struct {
	Kind           string `json:"kind"`
	Matched        bool   `json:"matched"`
	MatchID        uint64 `json:"match_id,omitempty"`
	ConversationID uint64 `json:"conversation_id,omitempty"`
}

// RecordInteraction stores actor's like, super like or pass on target.
//
// Everything from the pair lock to the match insert runs in one transaction.
// The unique index on the ordered pair settles concurrent reciprocal likes:
// the losing insert reads back the winner's row instead of creating another.
// Notifications are enqueued after commit and never fail the call.
func (s *Service) RecordInteraction(ctx context.Context, actorID, targetID uint64, kind string) (*Outcome, error) {
	ctx, span := observability.Start(ctx, "discovery.record_interaction",
		attribute.Int64("actor.id", int64(actorID)),
		attribute.Int64("target.id", int64(targetID)),
		attribute.String("interaction.kind", kind),
	)
	defer span.End()

	switch kind {
	case db.KindLike, db.KindSuperLike, db.KindPass:
	default:
		return nil, svcErr.InvalidArgument("kind must be like, super_like or pass")
	}
	if actorID == targetID || targetID == 0 {
		return nil, svcErr.ErrInvalidTarget
	}

	var (
		out       = &Outcome{Kind: kind}
		changed   bool
		created   bool
		actor     db.User
		targetRow db.User
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.users.WithTx(tx).LockPair(ctx, actorID, targetID)
		if err != nil {
			return err
		}
		var haveActor, haveTarget bool
		for _, u := range locked {
			switch u.ID {
			case actorID:
				actor, haveActor = u, true
			case targetID:
				targetRow, haveTarget = u, true
			}
		}
		if !haveActor || !actor.Active {
			return svcErr.ErrUnauthenticated
		}
		if !haveTarget || !targetRow.Active {
			return svcErr.ErrInvalidTarget
		}

		blocked, err := s.blocks.WithTx(tx).BlockedEither(ctx, actorID, targetID)
		if err != nil {
			return err
		}
		if blocked {
			return svcErr.ErrInvalidTarget
		}

		interactions := s.interactions.WithTx(tx)
		prior, err := interactions.Find(ctx, actorID, targetID)
		if err != nil {
			return err
		}
		// likes that produced a match are history and cannot be changed
		if prior != nil && prior.Consumed && prior.Kind != kind {
			return svcErr.ErrAlreadyMatched
		}
		changed = prior == nil || prior.Kind != kind
		if changed {
			if err := s.gate.ConsumeQuota(ctx, tx, &actor, kind); err != nil {
				return err
			}
			if err := interactions.Upsert(ctx, actorID, targetID, kind); err != nil {
				return err
			}
		}
		if !db.IsLikeKind(kind) {
			return nil
		}

		reciprocal, err := interactions.HasLiked(ctx, targetID, actorID)
		if err != nil || !reciprocal {
			return err
		}
		match, isNew, err := s.matches.WithTx(tx).CreateIfAbsent(ctx, actorID, targetID)
		if err != nil {
			return err
		}
		created = isNew
		if isNew {
			if err := interactions.MarkConsumed(ctx, actorID, targetID); err != nil {
				return err
			}
		}
		conv, err := s.messages.WithTx(tx).EnsureConversation(ctx, match.ID)
		if err != nil {
			return err
		}
		out.Matched, out.MatchID, out.ConversationID = match.Active, match.ID, conv.ID
		return nil
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}

	log := s.appCtx.Log(ctx).With("actor", actorID, "target", targetID, "kind", kind)
	if changed {
		if err := s.appCtx.RedisCache.BumpDiscoveryVersion(ctx, actorID); err != nil {
			log.Warn("discovery version bump failed", "err", err)
		}
		if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, targetID); err != nil {
			log.Warn("like count invalidation failed", "err", err)
		}
	}
	span.SetAttributes(attribute.Bool("match.created", created))

	switch {
	case created:
		log.Info("match created", "match_id", out.MatchID)
		s.enqueue(ctx, events.TypeNewMatch, events.NewMatch{
			MatchID: out.MatchID, UserA: actorID, UserB: targetID, ConversationID: out.ConversationID,
		})
	case changed && db.IsLikeKind(kind) && !out.Matched:
		if s.canSeeLikes(ctx, &targetRow) {
			s.enqueue(ctx, events.TypeNewLike, events.NewLike{
				Recipient: targetID, Actor: actorID, IsSuper: kind == db.KindSuperLike,
			})
		}
	}
	return out, nil
}

func (s *Service) canSeeLikes(ctx context.Context, u *db.User) bool {
	if !u.PremiumAt(s.appCtx.Now()) {
		return false
	}
	limits, err := s.gate.LimitsFor(ctx, u)
	if err != nil {
		s.appCtx.Log(ctx).Warn("limits lookup failed", "user_id", u.ID, "err", err)
		return false
	}
	return limits.SeeWhoLikedYou
}

// enqueue hands an event to the dispatcher; failures are logged only.
func (s *Service) enqueue(ctx context.Context, t events.Type, payload any) {
	ev, err := events.New(t, payload)
	if err == nil {
		err = s.appCtx.Events.Enqueue(ctx, ev)
	}
	if err != nil {
		s.appCtx.Log(ctx).Error("enqueue dispatch event failed", "type", t, "err", err)
	}
}

// Liker is one entry of the who-liked-me list.
type Liker struct {
	UserID      uint64    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsSuper     bool      `json:"is_super"`
	LikedAt     time.Time `json:"liked_at"`
}

// LikesPage is a cursor page of likers.
type LikesPage struct {
	Likers    []Liker `json:"likers"`
	NextToken string  `json:"next_token,omitempty"`
}

// Likes lists everyone who liked userID; onlyNew keeps one-way likes.
// Requires the see-who-liked-you entitlement.
func (s *Service) Likes(ctx context.Context, userID uint64, token string, onlyNew bool) (*LikesPage, error) {
	me, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !s.canSeeLikes(ctx, me) {
		return nil, svcErr.ErrPremiumRequired
	}

	fetch := s.interactions.GetLikers
	if onlyNew {
		fetch = s.interactions.GetNewLikers
	}
	rows, next, err := fetch(ctx, userID, token, likesPageSize)
	if errors.Is(err, pagination.ErrInvalidToken) {
		return nil, svcErr.InvalidArgument("invalid pagination token")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}

	ids := make([]uint64, len(rows))
	for i, r := range rows {
		ids[i] = r.ActorID
	}
	users, err := s.users.FindManyActive(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	page := &LikesPage{Likers: make([]Liker, 0, len(rows)), NextToken: next}
	for _, r := range rows {
		page.Likers = append(page.Likers, Liker{
			UserID:      r.ActorID,
			DisplayName: users[r.ActorID].DisplayName,
			IsSuper:     r.Kind == db.KindSuperLike,
			LikedAt:     r.UpdatedAt,
		})
	}
	return page, nil
}

// LikeCount is free for everyone. Cache first, DB fallback with a 1h TTL.
func (s *Service) LikeCount(ctx context.Context, userID uint64) (int64, error) {
	rc := s.appCtx.RedisCache
	if n, ok, err := rc.GetLikeCount(ctx, userID); err == nil && ok {
		return n, nil
	}

	count, err := s.interactions.CountLikers(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	if err := rc.SetLikeCount(ctx, userID, count); err != nil {
		s.appCtx.Log(ctx).Warn("failed to cache like count", "user_id", userID, "err", err)
	}
	return count, nil
}
