package clientstate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strangerchat/backend/internal/api/handler"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/clientstate"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T, limiter *handler.RateLimiter) (*httptest.Server, *chathub.ManagerService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := storage.NewMemoryStore()
	hub := chathub.NewManagerService()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	matcher := chathub.NewMatcherService(s, chathub.NewConversationManager(s, nil, hub))
	router := gin.New()
	handler.NewHandler(matcher, hub, identity.NewTokens("test-secret", time.Hour), nil, limiter).Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func anonRemote(t *testing.T, baseURL string) (*clientstate.Remote, string) {
	t.Helper()
	resp, err := http.Get(baseURL + "/anonid")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Token  string `json:"token"`
		AnonID string `json:"anon_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return clientstate.NewRemote(baseURL, body.Token), "anon:" + body.AnonID
}

func TestRemote_SessionsConvergeOverTheWire(t *testing.T) {
	srv, hub := newAPIServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remoteA, actorA := anonRemote(t, srv.URL)
	remoteB, actorB := anonRemote(t, srv.URL)
	a := clientstate.NewSession(remoteA, clientstate.NewMachine(nil))
	rb := &remounts{}
	b := clientstate.NewSession(remoteB, clientstate.NewMachine(rb.hook))

	events, err := remoteA.Events(ctx)
	require.NoError(t, err)
	go func() { _ = a.Consume(ctx, events) }()
	require.Eventually(t, func() bool { return hub.Connected(actorA) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.Join(ctx, models.Traits{}, models.AnyFilter()))
	require.NoError(t, b.Join(ctx, models.Traits{}, models.AnyFilter()))

	snapB := b.Machine.Snapshot()
	assert.Equal(t, clientstate.Matched, snapB.State)
	assert.Equal(t, actorA, snapB.PartnerID)
	assert.Len(t, rb.calls, 1)

	require.Eventually(t, func() bool {
		return a.Machine.Snapshot().State == clientstate.Matched
	}, 2*time.Second, 10*time.Millisecond)
	snapA := a.Machine.Snapshot()
	assert.Equal(t, snapB.ConversationID, snapA.ConversationID)
	assert.Equal(t, actorB, snapA.PartnerID)

	require.NoError(t, b.Leave(ctx))
	assert.Equal(t, clientstate.Idle, b.Machine.Snapshot().State)
	require.Eventually(t, func() bool {
		return a.Machine.Snapshot().State == clientstate.Idle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemote_MapsErrorCodes(t *testing.T) {
	srv, _ := newAPIServer(t, handler.NewRateLimiter(0.001, 1))
	ctx := context.Background()
	remote, _ := anonRemote(t, srv.URL)

	assert.ErrorIs(t, remote.Cancel(ctx), storage.ErrNotQueued)
	assert.ErrorIs(t, remote.Leave(ctx, ""), storage.ErrNoActiveConversation)
	assert.NoError(t, remote.Heartbeat(ctx))

	_, err := remote.Join(ctx, models.Traits{}, models.Filter{Kind: "specific"})
	assert.ErrorIs(t, err, models.ErrInvalidFilter)

	// The first join used the only token in the bucket.
	_, err = remote.Join(ctx, models.Traits{}, models.AnyFilter())
	var apiErr *clientstate.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate_limited", apiErr.Code)
	assert.True(t, apiErr.Retryable)

	unauthorized := clientstate.NewRemote(srv.URL, "garbage")
	_, err = unauthorized.Status(ctx)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	_, err = unauthorized.Events(ctx)
	assert.Error(t, err)
}
