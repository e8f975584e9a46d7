package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strangerchat/backend/internal/api/handler"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profiles map[string]models.Traits

func (p profiles) Traits(_ context.Context, actorID string) (models.Traits, error) {
	t, ok := p[actorID]
	if !ok {
		return models.Traits{}, storage.ErrUserNotFound
	}
	return t, nil
}

type server struct {
	router *gin.Engine
	hub    *chathub.ManagerService
	tokens *identity.Tokens
}

func newServer(t *testing.T, p handler.Profiles, limiter *handler.RateLimiter) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := storage.NewMemoryStore()
	hub := chathub.NewManagerService()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	matcher := chathub.NewMatcherService(s, chathub.NewConversationManager(s, nil, hub))
	tokens := identity.NewTokens("test-secret", time.Hour)

	router := gin.New()
	handler.NewHandler(matcher, hub, tokens, p, limiter).Register(router)
	return &server{router: router, hub: hub, tokens: tokens}
}

func (s *server) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// anon returns a fresh anonymous token and its actor id.
func (s *server) anon(t *testing.T) (string, string) {
	t.Helper()
	w := s.call(t, http.MethodGet, "/anonid", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token  string `json:"token"`
		AnonID string `json:"anon_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, "anon:" + resp.AnonID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type apiError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func assertCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode[apiError](t, w).Code)
}

func join(filter models.Filter) gin.H {
	return gin.H{"filter": filter}
}

func TestAuthentication(t *testing.T) {
	s := newServer(t, nil, nil)

	assertCode(t, s.call(t, http.MethodGet, "/api/match/status", "", nil), http.StatusUnauthorized, "unauthorized")
	assertCode(t, s.call(t, http.MethodGet, "/api/match/status", "garbage", nil), http.StatusUnauthorized, "unauthorized")

	token, _ := s.anon(t)
	w := s.call(t, http.MethodGet, "/api/match/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StateIdle, decode[models.Status](t, w).State)

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/health", "", nil).Code)
}

func TestJoinPairAndLeave(t *testing.T) {
	s := newServer(t, nil, nil)
	tokenA, actorA := s.anon(t)
	tokenB, actorB := s.anon(t)
	tokenC, _ := s.anon(t)

	w := s.call(t, http.MethodPost, "/api/match/join", tokenA, join(models.AnyFilter()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Status{State: models.StateQueued, Position: 1}, decode[models.Status](t, w))

	w = s.call(t, http.MethodPost, "/api/match/join", tokenB, join(models.AnyFilter()))
	require.Equal(t, http.StatusOK, w.Code)
	matched := decode[models.Status](t, w)
	assert.Equal(t, models.StateMatched, matched.State)
	assert.Equal(t, actorA, matched.PartnerID)

	path := "/api/conversations/" + matched.ConversationID
	w = s.call(t, http.MethodGet, path, tokenA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	conv := decode[models.Conversation](t, w)
	assert.Equal(t, actorB, conv.ActorA)
	assert.Equal(t, actorA, conv.ActorB)
	assert.Equal(t, models.ConversationActive, conv.Status)

	assertCode(t, s.call(t, http.MethodGet, path, tokenC, nil), http.StatusForbidden, "not_participant")
	assertCode(t, s.call(t, http.MethodGet, "/api/conversations/nope", tokenC, nil), http.StatusNotFound, "conversation_not_found")

	assertCode(t, s.call(t, http.MethodPost, "/api/match/cancel", tokenA, nil), http.StatusConflict, "already_in_conversation")
	assertCode(t, s.call(t, http.MethodPost, "/api/match/join", tokenA, nil), http.StatusConflict, "already_in_conversation")

	// Leave
	w = s.call(t, http.MethodPost, "/api/match/leave", tokenA, gin.H{"conversation_id": matched.ConversationID})
	require.Equal(t, http.StatusOK, w.Code)
	ended := decode[models.Conversation](t, w)
	assert.Equal(t, models.ConversationEnded, ended.Status)
	assert.Equal(t, models.EndExplicitLeave, ended.EndReason)

	// Leaving again is harmless for either side.
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/leave", tokenB, gin.H{"conversation_id": matched.ConversationID}).Code)
	assertCode(t, s.call(t, http.MethodPost, "/api/match/leave", tokenB, nil), http.StatusConflict, "no_active_conversation")

	for _, token := range []string{tokenA, tokenB} {
		w := s.call(t, http.MethodGet, "/api/match/status", token, nil)
		assert.Equal(t, models.StateIdle, decode[models.Status](t, w).State)
	}
}

func TestJoinErrors(t *testing.T) {
	s := newServer(t, nil, nil)
	token, _ := s.anon(t)

	bad := gin.H{"filter": gin.H{"kind": "specific"}}
	assertCode(t, s.call(t, http.MethodPost, "/api/match/join", token, bad), http.StatusBadRequest, "invalid_filter")

	req := httptest.NewRequest(http.MethodPost, "/api/match/join", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assertCode(t, w, http.StatusBadRequest, "invalid_request")

	// An empty body is an any-filter join.
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/join", token, nil).Code)
	assertCode(t, s.call(t, http.MethodPost, "/api/match/join", token, nil), http.StatusConflict, "already_queued")

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/cancel", token, nil).Code)
	assertCode(t, s.call(t, http.MethodPost, "/api/match/cancel", token, nil), http.StatusConflict, "not_queued")
}

func TestHeartbeat(t *testing.T) {
	s := newServer(t, nil, nil)
	token, _ := s.anon(t)

	w := s.call(t, http.MethodPost, "/api/match/heartbeat", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestJoinUsesProfileTraits(t *testing.T) {
	s := newServer(t, profiles{"user:u1": {Gender: models.GenderFemale}}, nil)
	userToken, err := s.tokens.IssueUser("u1")
	require.NoError(t, err)
	anonToken, _ := s.anon(t)

	// The body claims male; the profile says female.
	body := gin.H{"traits": models.Traits{Gender: models.GenderMale}, "filter": models.AnyFilter()}
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/join", userToken, body).Code)

	w := s.call(t, http.MethodPost, "/api/match/join", anonToken, join(models.SpecificFilter(models.GenderFemale, "")))
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[models.Status](t, w)
	assert.Equal(t, models.StateMatched, status.State)
	assert.Equal(t, "user:u1", status.PartnerID)
}

func TestJoinRateLimit(t *testing.T) {
	s := newServer(t, nil, handler.NewRateLimiter(0.001, 1))
	token, _ := s.anon(t)
	other, _ := s.anon(t)

	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/join", token, nil).Code)
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/cancel", token, nil).Code)

	w := s.call(t, http.MethodPost, "/api/match/join", token, nil)
	assertCode(t, w, http.StatusTooManyRequests, "rate_limited")
	assert.True(t, decode[apiError](t, w).Retryable)

	// Buckets are per actor.
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/join", other, nil).Code)
}

func TestWebSocketDeliversEvents(t *testing.T) {
	s := newServer(t, nil, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	tokenA, actorA := s.anon(t)
	tokenB, actorB := s.anon(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tokenA
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Connected(actorA) == 1 }, time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/join", tokenA, nil).Code)
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/join", tokenB, nil).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventMatched, ev.Type)
	assert.Equal(t, actorA, ev.ActorID)
	assert.Equal(t, actorB, ev.PartnerID)

	require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/match/leave", tokenB, nil).Code)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventPartnerLeft, ev.Type)
	assert.Equal(t, models.EndExplicitLeave, ev.Reason)
}

func TestWebSocketRequiresToken(t *testing.T) {
	s := newServer(t, nil, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
