// Package payments applies subscription lifecycle events delivered by the
// payment provider's signed webhook.
package payments

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/app"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/observability"
	"github.com/oggyb/amora/internal/repository"
)

// Webhook event types.
const (
	EventActivated = "subscription.activated"
	EventRenewed   = "subscription.renewed"
	EventCanceled  = "subscription.canceled"
)

// Outcomes reported back to the provider.
const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
	StatusIgnored          = "ignored"
)

const replayKeyTTL = 72 * time.Hour

// Event is the webhook envelope.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type subscriptionData struct {
	UserID    uint64    `json:"user_id"`
	PlanCode  string    `json:"plan_code"`
	PeriodEnd time.Time `json:"period_end"`
}

type Result struct {
	Status string `json:"status"`
}

type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	subs   *repository.SubscriptionRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		subs:   repository.NewSubscriptionRepository(appCtx.DB),
	}
}

// HandleWebhook verifies, de-duplicates and applies one delivery. The receipt
// row is written in the same transaction as the effect, so a delivery is
// applied at most once even when the Redis fast path is unavailable.
func (s *Service) HandleWebhook(ctx context.Context, signature string, payload []byte) (*Result, error) {
	cfg := s.appCtx.Config.Payments
	if cfg.WebhookSecret == "" {
		return nil, svcErr.Internal("payment webhook is not configured", nil)
	}
	if err := verifySignature(cfg.WebhookSecret, signature, payload, s.appCtx.Now(), cfg.Tolerance); err != nil {
		s.appCtx.Log(ctx).Warn("webhook signature rejected")
		return nil, err
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ID == "" || ev.Type == "" {
		return nil, svcErr.InvalidArgument("webhook payload must carry id and type")
	}

	ctx, span := observability.Start(ctx, "payments.webhook")
	defer span.End()
	log := s.appCtx.Log(ctx).With("event_id", ev.ID, "event_type", ev.Type)

	rc := s.appCtx.RedisCache
	claimed, err := rc.ClaimWebhookEvent(ctx, ev.ID, replayKeyTTL)
	if err != nil {
		log.Warn("webhook replay key unavailable, relying on the database", "err", err)
		claimed = true
	}
	if !claimed {
		log.Info("webhook replay short-circuited")
		return &Result{Status: StatusAlreadyProcessed}, nil
	}

	status, userID, err := s.apply(ctx, ev)
	if err != nil {
		if rerr := rc.ReleaseWebhookEvent(ctx, ev.ID); rerr != nil {
			log.Warn("webhook replay key release failed", "err", rerr)
		}
		log.Error("webhook processing failed", "err", err)
		return nil, err
	}
	if status == StatusProcessed && userID != 0 {
		if err := rc.BumpDiscoveryVersion(ctx, userID); err != nil {
			log.Warn("discovery version bump failed", "err", err)
		}
	}
	log.Info("webhook handled", "status", status, "user_id", userID)
	return &Result{Status: status}, nil
}

func (s *Service) apply(ctx context.Context, ev Event) (status string, userID uint64, err error) {
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subs := s.subs.WithTx(tx)
		fresh, err := subs.RecordWebhookEvent(ctx, ev.ID, ev.Type)
		if err != nil {
			return err
		}
		if !fresh {
			status = StatusAlreadyProcessed
			return nil
		}

		switch ev.Type {
		case EventActivated, EventRenewed, EventCanceled:
		default:
			status = StatusIgnored
			return nil
		}

		var data subscriptionData
		if err := json.Unmarshal(ev.Data, &data); err != nil || data.UserID == 0 {
			return svcErr.InvalidArgument("webhook data must carry user_id")
		}
		users := s.users.WithTx(tx)
		if _, err := users.FindByID(ctx, data.UserID); err != nil {
			if repository.IsNotFound(err) {
				return svcErr.InvalidArgument("unknown user")
			}
			return err
		}
		userID = data.UserID

		now := s.appCtx.Now()
		switch ev.Type {
		case EventActivated:
			if data.PlanCode == "" || !data.PeriodEnd.After(now) {
				return svcErr.InvalidArgument("activation needs plan_code and a future period_end")
			}
			plan, err := subs.PlanByCode(ctx, data.PlanCode)
			if repository.IsNotFound(err) {
				return svcErr.InvalidArgument("unknown plan " + data.PlanCode)
			}
			if err != nil {
				return err
			}
			if _, err := subs.Activate(ctx, data.UserID, plan.ID, data.PeriodEnd); err != nil {
				return err
			}
			end := data.PeriodEnd
			if err := users.SetPremium(ctx, data.UserID, true, &end); err != nil {
				return err
			}
		case EventRenewed:
			if data.PeriodEnd.IsZero() {
				return svcErr.InvalidArgument("renewal needs period_end")
			}
			n, err := subs.Renew(ctx, data.UserID, data.PeriodEnd)
			if err != nil {
				return err
			}
			if n == 0 {
				return svcErr.InvalidArgument("no subscription to renew")
			}
			end := data.PeriodEnd
			if err := users.SetPremium(ctx, data.UserID, true, &end); err != nil {
				return err
			}
		case EventCanceled:
			// premium runs until the paid period ends; the expiry sweep clears it
			if _, err := subs.Cancel(ctx, data.UserID, now); err != nil {
				return err
			}
		}
		status = StatusProcessed
		return nil
	})
	if err != nil {
		return "", 0, svcErr.Map(err)
	}
	return status, userID, nil
}

// SweepExpired expires lapsed subscriptions and drops premium from users left
// without a live one. It returns how many users lost premium.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	now := s.appCtx.Now()
	userIDs, err := s.subs.ExpireLapsed(ctx, now)
	if err != nil {
		return 0, err
	}
	var cleared int64
	if len(userIDs) > 0 {
		if cleared, err = s.subs.ClearLapsedPremium(ctx, userIDs, now); err != nil {
			return 0, err
		}
	}
	// premium granted outside a subscription lapses on premium_until
	grants, err := s.subs.ClearLapsedPremium(ctx, nil, now)
	if err != nil {
		return cleared, err
	}
	for _, id := range userIDs {
		if err := s.appCtx.RedisCache.BumpDiscoveryVersion(ctx, id); err != nil {
			s.appCtx.Log(ctx).Warn("discovery version bump failed", "user_id", id, "err", err)
		}
	}
	return cleared + grants, nil
}
