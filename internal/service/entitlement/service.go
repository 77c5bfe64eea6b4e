package entitlement

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/repository"
)

const premiumPlanCode = "premium"

// Limits are the effective daily allowances; 0 means unlimited.
type Limits struct {
	DailyLikes      int  `json:"daily_likes"`
	DailySuperLikes int  `json:"daily_super_likes"`
	SeeWhoLikedYou  bool `json:"see_who_liked_you"`
}

// Gate answers premium and quota questions. Premium is always read from the
// live user row at the moment of use.
type Gate struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	subs   *repository.SubscriptionRepository
	quotas *repository.QuotaRepository
	loc    *time.Location
}

func NewGate(appCtx *app.AppContext) *Gate {
	loc, err := time.LoadLocation(appCtx.Config.Quota.Timezone)
	if err != nil {
		appCtx.Logger.Warn("invalid quota timezone, using UTC", "tz", appCtx.Config.Quota.Timezone, "err", err)
		loc = time.UTC
	}
	return &Gate{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		subs:   repository.NewSubscriptionRepository(appCtx.DB),
		quotas: repository.NewQuotaRepository(appCtx.DB),
		loc:    loc,
	}
}

// IsPremium reads the user's live premium flag.
func (g *Gate) IsPremium(ctx context.Context, userID uint64) (bool, error) {
	u, err := g.users.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.PremiumAt(g.appCtx.Now()), nil
}

// Limits returns the allowances for userID right now.
func (g *Gate) Limits(ctx context.Context, userID uint64) (Limits, error) {
	u, err := g.users.FindByID(ctx, userID)
	if err != nil {
		return Limits{}, err
	}
	return g.LimitsFor(ctx, u)
}

// LimitsFor is Limits for an already loaded user.
func (g *Gate) LimitsFor(ctx context.Context, u *db.User) (Limits, error) {
	return g.limitsFor(ctx, g.subs, u)
}

func (g *Gate) limitsFor(ctx context.Context, subs *repository.SubscriptionRepository, u *db.User) (Limits, error) {
	now := g.appCtx.Now()
	if !u.PremiumAt(now) {
		return Limits{
			DailyLikes:      g.appCtx.Config.Quota.FreeDailyLikes,
			DailySuperLikes: g.appCtx.Config.Quota.FreeDailySuperLikes,
		}, nil
	}

	sub, err := subs.Current(ctx, u.ID, now)
	if err != nil {
		return Limits{}, err
	}
	var plan *db.SubscriptionPlan
	if sub != nil {
		plan = &sub.Plan
	} else {
		plan, err = subs.PlanByCode(ctx, premiumPlanCode)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Limits{DailySuperLikes: 5, SeeWhoLikedYou: true}, nil
		}
		if err != nil {
			return Limits{}, err
		}
	}
	return Limits{
		DailyLikes:      plan.DailyLikes,
		DailySuperLikes: plan.DailySuperLikes,
		SeeWhoLikedYou:  plan.SeeWhoLikedYou,
	}, nil
}

// DayKey is the quota day containing t in the quota timezone.
func (g *Gate) DayKey(t time.Time) string {
	return t.In(g.loc).Format("2006-01-02")
}

// NextResetAt is the next quota-day boundary after t.
func (g *Gate) NextResetAt(t time.Time) time.Time {
	local := t.In(g.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, g.loc).UTC()
}

// ConsumeQuota takes one credit of kind for u inside tx. Passes are free.
func (g *Gate) ConsumeQuota(ctx context.Context, tx *gorm.DB, u *db.User, kind string) error {
	var (
		column repository.QuotaColumn
		limit  int
	)
	limits, err := g.limitsFor(ctx, g.subs.WithTx(tx), u)
	if err != nil {
		return err
	}
	switch kind {
	case db.KindLike:
		column, limit = repository.QuotaLikes, limits.DailyLikes
	case db.KindSuperLike:
		column, limit = repository.QuotaSuperLikes, limits.DailySuperLikes
	default:
		return nil
	}

	now := g.appCtx.Now()
	err = g.quotas.WithTx(tx).Consume(ctx, u.ID, g.DayKey(now), column, limit)
	if errors.Is(err, repository.ErrQuotaSpent) {
		return svcErr.ErrQuotaExceeded.WithDetails(map[string]any{
			"kind":      kind,
			"limit":     limit,
			"resets_at": g.NextResetAt(now),
		})
	}
	return err
}

// Remaining is what is left today; -1 means unlimited.
type Remaining struct {
	Likes      int `json:"likes"`
	SuperLikes int `json:"super_likes"`
}

// Status is the subscription summary for one user.
type Status struct {
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	Premium   bool       `json:"premium"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
	Limits    Limits     `json:"limits"`
	Remaining Remaining  `json:"remaining_today"`
	ResetsAt  time.Time  `json:"resets_at"`
}

// Status summarizes plan, period and today's remaining quota.
func (g *Gate) Status(ctx context.Context, userID uint64) (*Status, error) {
	u, err := g.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := g.appCtx.Now()
	limits, err := g.LimitsFor(ctx, u)
	if err != nil {
		return nil, err
	}
	usage, err := g.quotas.Usage(ctx, userID, g.DayKey(now))
	if err != nil {
		return nil, err
	}

	st := &Status{
		Plan:     "free",
		Status:   "none",
		Premium:  u.PremiumAt(now),
		Limits:   limits,
		ResetsAt: g.NextResetAt(now),
		Remaining: Remaining{
			Likes:      remaining(limits.DailyLikes, usage.Likes),
			SuperLikes: remaining(limits.DailySuperLikes, usage.SuperLikes),
		},
	}
	sub, err := g.subs.Current(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		end := sub.CurrentPeriodEnd
		st.Plan, st.Status, st.PeriodEnd = sub.Plan.Code, sub.Status, &end
	} else if st.Premium {
		st.Plan, st.Status, st.PeriodEnd = premiumPlanCode, db.SubActive, u.PremiumUntil
	}
	return st, nil
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
