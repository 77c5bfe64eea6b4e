package firebase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/oggyb/amora/internal/platform/push"
)

// roundTripFunc lets a test stand in for the FCM HTTP endpoint.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func newTestPusher(t *testing.T, rt http.RoundTripper) *Pusher {
	t.Helper()
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: "amora-test"},
		option.WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	client, err := app.Messaging(ctx)
	require.NoError(t, err)
	return NewPusher(client)
}

func TestBuildMulticastForCall(t *testing.T) {
	m := buildMulticast([]string{"a", "b"}, push.Message{
		Title:    "Incoming call",
		Body:     "Sam is calling",
		Data:     map[string]string{"type": "incoming_call"},
		TTL:      30 * time.Second,
		Priority: push.PriorityHigh,
		Wake:     true,
		Category: "incoming_call",
	})

	assert.Equal(t, []string{"a", "b"}, m.Tokens)
	assert.Equal(t, "high", m.Android.Priority)
	if assert.NotNil(t, m.Android.TTL) {
		assert.Equal(t, 30*time.Second, *m.Android.TTL)
	}
	assert.Equal(t, "10", m.APNS.Headers["apns-priority"])
	assert.NotEmpty(t, m.APNS.Headers["apns-expiration"])
	assert.True(t, m.APNS.Payload.Aps.ContentAvailable)
	assert.Equal(t, "incoming_call", m.Data["type"])
}

func TestBuildMulticastDefaults(t *testing.T) {
	m := buildMulticast([]string{"a"}, push.Message{Title: "t", Body: "b"})

	assert.Equal(t, "normal", m.Android.Priority)
	assert.Nil(t, m.Android.TTL)
	assert.Equal(t, "5", m.APNS.Headers["apns-priority"])
	_, hasExpiry := m.APNS.Headers["apns-expiration"]
	assert.False(t, hasExpiry)
	assert.False(t, m.APNS.Payload.Aps.ContentAvailable)
}

func TestSendMulticastUnreachableProvider(t *testing.T) {
	var calls atomic.Int32
	p := newTestPusher(t, roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("dial tcp: network is unreachable")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	results, err := p.SendMulticast(ctx, []string{"a", "b"}, push.Message{Title: "t", Body: "b"})
	require.ErrorIs(t, err, push.ErrUnavailable)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.OK)
		assert.True(t, r.Retryable)
		assert.False(t, r.Unregistered)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestSendMulticastServerError(t *testing.T) {
	p := newTestPusher(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusInternalServerError,
			`{"error":{"status":"INTERNAL","message":"backend error"}}`), nil
	}))

	results, err := p.SendMulticast(context.Background(), []string{"a"}, push.Message{Title: "t"})
	require.ErrorIs(t, err, push.ErrUnavailable)
	require.Len(t, results, 1)
	assert.True(t, results[0].Retryable)
}

func TestSendMulticastUnregisteredIsNotRetried(t *testing.T) {
	p := newTestPusher(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusNotFound, `{"error":{"status":"NOT_FOUND","message":"gone",`+
			`"details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`), nil
	}))

	results, err := p.SendMulticast(context.Background(), []string{"dead"}, push.Message{Title: "t"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Unregistered)
	assert.False(t, results[0].Retryable)
}

func TestSendMulticastDelivered(t *testing.T) {
	p := newTestPusher(t, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{"name":"projects/amora-test/messages/1"}`), nil
	}))

	results, err := p.SendMulticast(context.Background(), []string{"a", "b"}, push.Message{Title: "t"})
	require.NoError(t, err)
	ok, failed, dead := push.Summarize(results)
	assert.Equal(t, 2, ok)
	assert.Zero(t, failed)
	assert.Empty(t, dead)
}
