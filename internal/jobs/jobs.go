// Package jobs holds the periodic maintenance work run by the worker.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/repository"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/service/payments"
)

const (
	quotaRetentionDays = 7
	staleTokenAge      = 90 * 24 * time.Hour
)

// Job is one unit of maintenance work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Maintenance bundles the jobs and their dependencies.
type Maintenance struct {
	appCtx   *app.AppContext
	payments *payments.Service
	gate     *entitlement.Gate
	quotas   *repository.QuotaRepository
	devices  *repository.DeviceRepository
}

func NewMaintenance(appCtx *app.AppContext) *Maintenance {
	return &Maintenance{
		appCtx:   appCtx,
		payments: payments.NewService(appCtx),
		gate:     entitlement.NewGate(appCtx),
		quotas:   repository.NewQuotaRepository(appCtx.DB),
		devices:  repository.NewDeviceRepository(appCtx.DB),
	}
}

// Jobs lists the schedule. Specs use the standard five-field cron syntax.
func (m *Maintenance) Jobs() []Job {
	return []Job{
		{Name: "subscription_expiry", Spec: "@every 10m", Run: m.ExpireSubscriptions},
		{Name: "quota_purge", Spec: "15 3 * * *", Run: m.PurgeQuotas},
		{Name: "stale_token_purge", Spec: "30 4 * * 0", Run: m.PurgeStaleTokens},
	}
}

// ExpireSubscriptions closes lapsed subscriptions and revokes premium.
func (m *Maintenance) ExpireSubscriptions(ctx context.Context) error {
	n, err := m.payments.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep subscriptions: %w", err)
	}
	if n > 0 {
		m.appCtx.Log(ctx).Info("premium revoked", "users", n)
	}
	return nil
}

// PurgeQuotas keeps a week of quota rows.
func (m *Maintenance) PurgeQuotas(ctx context.Context) error {
	cutoff := m.gate.DayKey(m.appCtx.Now().AddDate(0, 0, -quotaRetentionDays))
	n, err := m.quotas.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge quotas: %w", err)
	}
	m.appCtx.Log(ctx).Info("quota rows purged", "before", cutoff, "rows", n)
	return nil
}

// PurgeStaleTokens drops device tokens not seen for 90 days.
func (m *Maintenance) PurgeStaleTokens(ctx context.Context) error {
	n, err := m.devices.PurgeStale(ctx, m.appCtx.Now().Add(-staleTokenAge))
	if err != nil {
		return fmt.Errorf("purge device tokens: %w", err)
	}
	m.appCtx.Log(ctx).Info("stale device tokens purged", "rows", n)
	return nil
}
