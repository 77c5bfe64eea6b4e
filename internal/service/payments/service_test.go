package payments_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/service/payments"
	"github.com/oggyb/amora/internal/testutil"
)

func event(t *testing.T, id, typ string, data map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(payments.Event{ID: id, Type: typ, Data: raw})
	require.NoError(t, err)
	return b
}

func deliver(env *testutil.Env, svc *payments.Service, body []byte) (*payments.Result, error) {
	sig := payments.Sign(env.App.Config.Payments.WebhookSecret, env.Clock.Now(), body)
	return svc.HandleWebhook(context.Background(), sig, body)
}

func TestActivationGrantsPremium(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)
	alice := env.CreateUser(t, "Alice")
	end := env.Clock.Now().Add(30 * 24 * time.Hour)

	res, err := deliver(env, svc, event(t, "evt_1", payments.EventActivated, map[string]any{
		"user_id": alice.ID, "plan_code": "premium", "period_end": end,
	}))
	require.NoError(t, err)
	assert.Equal(t, payments.StatusProcessed, res.Status)

	st, err := entitlement.NewGate(env.App).Status(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.True(t, st.Premium)
	assert.Equal(t, "premium", st.Plan)
	assert.Equal(t, db.SubActive, st.Status)
	assert.Equal(t, 5, st.Limits.DailySuperLikes)
	assert.Equal(t, -1, st.Remaining.Likes)
}

func TestReplayIsAppliedOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)
	alice := env.CreateUser(t, "Alice")
	body := event(t, "evt_dup", payments.EventActivated, map[string]any{
		"user_id": alice.ID, "plan_code": "premium", "period_end": env.Clock.Now().Add(time.Hour),
	})

	_, err := deliver(env, svc, body)
	require.NoError(t, err)
	res, err := deliver(env, svc, body)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusAlreadyProcessed, res.Status)

	// without the Redis key the receipt row still catches it
	env.Redis.FlushAll()
	res, err = deliver(env, svc, body)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusAlreadyProcessed, res.Status)

	var subs int64
	require.NoError(t, env.DB.Model(&db.Subscription{}).Where("user_id = ?", alice.ID).Count(&subs).Error)
	assert.EqualValues(t, 1, subs)
}

func TestBadSignatureIsRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)
	body := event(t, "evt_x", payments.EventCanceled, map[string]any{"user_id": 1})

	_, err := svc.HandleWebhook(context.Background(), payments.Sign("wrong", env.Clock.Now(), body), body)
	assert.ErrorIs(t, err, svcErr.ErrBadSignature)
	assert.Equal(t, http.StatusUnauthorized, svcErr.Map(err).Status())

	stale := payments.Sign(env.App.Config.Payments.WebhookSecret, env.Clock.Now().Add(-10*time.Minute), body)
	_, err = svc.HandleWebhook(context.Background(), stale, body)
	assert.ErrorIs(t, err, svcErr.ErrBadSignature)

	assert.False(t, env.Redis.Exists("webhook:event:evt_x"))
}

func TestFailedDeliveryCanBeRetried(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)

	body := event(t, "evt_retry", payments.EventActivated, map[string]any{
		"user_id": 9999, "plan_code": "premium", "period_end": env.Clock.Now().Add(time.Hour),
	})
	_, err := deliver(env, svc, body)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, svcErr.Map(err).Status())
	assert.False(t, env.Redis.Exists("webhook:event:evt_retry"), "claim is released on failure")

	var receipts int64
	require.NoError(t, env.DB.Model(&db.WebhookEvent{}).Count(&receipts).Error)
	assert.Zero(t, receipts, "receipt rolls back with the effect")
}

func TestCancelKeepsPremiumUntilSweep(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)
	gate := entitlement.NewGate(env.App)
	ctx := context.Background()
	alice := env.CreateUser(t, "Alice")
	end := env.Clock.Now().Add(48 * time.Hour)

	_, err := deliver(env, svc, event(t, "evt_a", payments.EventActivated, map[string]any{
		"user_id": alice.ID, "plan_code": "premium", "period_end": end,
	}))
	require.NoError(t, err)
	_, err = deliver(env, svc, event(t, "evt_c", payments.EventCanceled, map[string]any{"user_id": alice.ID}))
	require.NoError(t, err)

	premium, err := gate.IsPremium(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, premium, "canceled subscriptions run to period end")

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(49 * time.Hour)
	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var u db.User
	require.NoError(t, env.DB.Take(&u, alice.ID).Error)
	assert.False(t, u.IsPremium)
	assert.Nil(t, u.PremiumUntil)

	var sub db.Subscription
	require.NoError(t, env.DB.Where("user_id = ?", alice.ID).Take(&sub).Error)
	assert.Equal(t, db.SubExpired, sub.Status)
}

func TestRenewExtendsPeriod(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)
	alice := env.CreateUser(t, "Alice")
	now := env.Clock.Now()

	_, err := deliver(env, svc, event(t, "evt_r0", payments.EventRenewed, map[string]any{
		"user_id": alice.ID, "period_end": now.Add(time.Hour),
	}))
	assert.Equal(t, http.StatusBadRequest, svcErr.Map(err).Status(), "nothing to renew yet")

	_, err = deliver(env, svc, event(t, "evt_a", payments.EventActivated, map[string]any{
		"user_id": alice.ID, "plan_code": "premium", "period_end": now.Add(time.Hour),
	}))
	require.NoError(t, err)
	_, err = deliver(env, svc, event(t, "evt_r1", payments.EventRenewed, map[string]any{
		"user_id": alice.ID, "period_end": now.Add(31 * 24 * time.Hour),
	}))
	require.NoError(t, err)

	env.Clock.Advance(2 * time.Hour)
	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := payments.NewService(env.App)

	res, err := deliver(env, svc, event(t, "evt_u", "invoice.created", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, payments.StatusIgnored, res.Status)
}

func TestWebhookHandler(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.CreateUser(t, "Alice")
	r := chi.NewRouter()
	payments.NewRegistrar(env.App).Register(r, chi.NewRouter())

	body := event(t, "evt_http", payments.EventActivated, map[string]any{
		"user_id": alice.ID, "plan_code": "premium", "period_end": env.Clock.Now().Add(time.Hour),
	})
	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
		req.Header.Set(payments.SignatureHeader, sig)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post("t=1,v1=00")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sig := payments.Sign("whsec_test", env.Clock.Now(), body)
	rec = post(sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"processed"}`, rec.Body.String())

	rec = post(sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"status":%q}`, payments.StatusAlreadyProcessed), rec.Body.String())
}
