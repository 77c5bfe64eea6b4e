package messaging_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/events"
	"github.com/oggyb/amora/internal/server/httpx"
	"github.com/oggyb/amora/internal/service/discovery"
	"github.com/oggyb/amora/internal/service/entitlement"
	"github.com/oggyb/amora/internal/service/matches"
	"github.com/oggyb/amora/internal/service/messaging"
	"github.com/oggyb/amora/internal/testutil"
)

// matchPair runs the real like flow so the conversation exists as in production.
func matchPair(t *testing.T, env *testutil.Env, a, b uint64) *discovery.Outcome {
	t.Helper()
	disc := discovery.NewService(env.App, entitlement.NewGate(env.App))
	_, err := disc.RecordInteraction(context.Background(), a, b, db.KindLike)
	require.NoError(t, err)
	out, err := disc.RecordInteraction(context.Background(), b, a, db.KindLike)
	require.NoError(t, err)
	require.True(t, out.Matched)
	return out
}

func TestMatchThenUnmatchKeepsHistoryReadable(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := messaging.NewService(env.App)
	ms := matches.NewService(env.App)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", testutil.Gender("male", "female"))
	out := matchPair(t, env, u1.ID, u2.ID)

	list, err := ms.List(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, u2.ID, list[0].Partner.UserID)

	_, err = svc.Send(ctx, u1.ID, out.ConversationID, "hello there")
	require.NoError(t, err)
	_, err = svc.Send(ctx, u2.ID, out.ConversationID, "hi!")
	require.NoError(t, err)

	require.NoError(t, ms.Unmatch(ctx, u1.ID, out.MatchID))

	_, err = svc.Send(ctx, u2.ID, out.ConversationID, "still there?")
	assert.ErrorIs(t, err, svcErr.ErrMatchInactive)
	assert.Equal(t, http.StatusForbidden, svcErr.Map(err).Status())

	for _, reader := range []uint64{u1.ID, u2.ID} {
		page, err := svc.Messages(ctx, reader, out.ConversationID, "", 0)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		assert.Equal(t, "hi!", page.Messages[0].Body)
	}

	convs, err := svc.Conversations(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.False(t, convs[0].Active)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hi!", convs[0].LastMessage.Body)
}

func TestSendEnqueuesPreview(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := messaging.NewService(env.App)
	ctx := context.Background()

	u1 := env.CreateUser(t, "Alice")
	u2 := env.CreateUser(t, "Bob", testutil.Gender("male", "female"))
	out := matchPair(t, env, u1.ID, u2.ID)

	long := strings.Repeat("é", 150)
	_, err := svc.Send(ctx, u1.ID, out.ConversationID, long)
	require.NoError(t, err)

	evs := env.Events.OfType(events.TypeNewMessage)
	require.Len(t, evs, 1)
	var p events.NewMessage
	require.NoError(t, evs[0].Decode(&p))
	assert.Equal(t, u2.ID, p.Recipient)
	assert.Equal(t, "Alice", p.SenderName)
	assert.Equal(t, 100, utf8.RuneCountInString(p.Preview))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", messaging.Preview("short"))
	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, messaging.Preview(exact))
	assert.True(t, strings.HasSuffix(messaging.Preview(strings.Repeat("a", 101)), "…"))
}

func TestOutsidersCannotReadOrWrite(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := messaging.NewService(env.App)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", testutil.Gender("male", "female"))
	eve := env.CreateUser(t, "Eve")
	out := matchPair(t, env, u1.ID, u2.ID)

	_, err := svc.Messages(ctx, eve.ID, out.ConversationID, "", 0)
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)
	_, err = svc.Send(ctx, eve.ID, out.ConversationID, "hey")
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)
	_, err = svc.Send(ctx, u1.ID, 999, "hey")
	assert.Equal(t, http.StatusNotFound, svcErr.Map(err).Status())
	_, err = svc.Send(ctx, u1.ID, out.ConversationID, "   ")
	assert.Equal(t, http.StatusBadRequest, svcErr.Map(err).Status())
}

func TestDeleteOwnMessageOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := messaging.NewService(env.App)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", testutil.Gender("male", "female"))
	out := matchPair(t, env, u1.ID, u2.ID)

	msg, err := svc.Send(ctx, u1.ID, out.ConversationID, "oops")
	require.NoError(t, err)

	err = svc.DeleteMessage(ctx, u2.ID, out.ConversationID, msg.ID)
	assert.Equal(t, http.StatusForbidden, svcErr.Map(err).Status())

	require.NoError(t, svc.DeleteMessage(ctx, u1.ID, out.ConversationID, msg.ID))
	page, err := svc.Messages(ctx, u2.ID, out.ConversationID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	err = svc.DeleteMessage(ctx, u1.ID, out.ConversationID, msg.ID)
	assert.Equal(t, http.StatusNotFound, svcErr.Map(err).Status())
}

func TestMessagesPaginate(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := messaging.NewService(env.App)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", testutil.Gender("male", "female"))
	out := matchPair(t, env, u1.ID, u2.ID)
	for _, body := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, u1.ID, out.ConversationID, body)
		require.NoError(t, err)
	}

	first, err := svc.Messages(ctx, u2.ID, out.ConversationID, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "three", first.Messages[0].Body)
	require.NotEmpty(t, first.NextToken)

	second, err := svc.Messages(ctx, u2.ID, out.ConversationID, first.NextToken, 2)
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "one", second.Messages[0].Body)
	assert.Empty(t, second.NextToken)
}

func TestInitiateCall(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := messaging.NewService(env.App)
	ctx := context.Background()

	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", testutil.Gender("male", "female"))
	out := matchPair(t, env, u1.ID, u2.ID)

	_, err := svc.InitiateCall(ctx, u1.ID, out.ConversationID, "hologram")
	assert.Equal(t, http.StatusBadRequest, svcErr.Map(err).Status())

	ticket, err := svc.InitiateCall(ctx, u1.ID, out.ConversationID, messaging.CallVideo)
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.CallID)
	assert.Equal(t, u2.ID, ticket.CalleeID)

	evs := env.Events.OfType(events.TypeIncomingCall)
	require.Len(t, evs, 1)
	var p events.IncomingCall
	require.NoError(t, evs[0].Decode(&p))
	assert.Equal(t, ticket.CallID, p.CallID)

	require.NoError(t, env.DB.Create(&db.Block{BlockerID: u2.ID, BlockedID: u1.ID}).Error)
	_, err = svc.InitiateCall(ctx, u1.ID, out.ConversationID, messaging.CallAudio)
	assert.ErrorIs(t, err, svcErr.ErrMatchInactive)
}

func TestCallHandlerReturnsAccepted(t *testing.T) {
	env := testutil.NewEnv(t)
	u1 := env.CreateUser(t, "U1")
	u2 := env.CreateUser(t, "U2", testutil.Gender("male", "female"))
	out := matchPair(t, env, u1.ID, u2.ID)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := httpx.WithPrincipal(req.Context(), httpx.Principal{UserID: u1.ID})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	messaging.NewRegistrar(env.App).Register(chi.NewRouter(), r)

	body := strings.NewReader(`{"conversation_id":` + jsonNumber(out.ConversationID) + `,"call_type":"audio"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/calls/initiate", body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var ticket messaging.CallTicket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.Equal(t, u2.ID, ticket.CalleeID)
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
