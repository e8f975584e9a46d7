// Package handler exposes matchmaking over HTTP and websocket.
package handler

import (
	"context"
	"net/http"
	"strangerchat/backend/internal/api/errcode"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/models"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Profiles supplies the traits of authenticated users.
type Profiles interface {
	Traits(ctx context.Context, actorID string) (models.Traits, error)
}

type Handler struct {
	Matcher  *chathub.MatcherService
	Hub      *chathub.ManagerService
	Tokens   *identity.Tokens
	Profiles Profiles // nil without a profile database
	Limiter  *RateLimiter
}

func NewHandler(matcher *chathub.MatcherService, hub *chathub.ManagerService, tokens *identity.Tokens, profiles Profiles, limiter *RateLimiter) *Handler {
	return &Handler{
		Matcher:  matcher,
		Hub:      hub,
		Tokens:   tokens,
		Profiles: profiles,
		Limiter:  limiter,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.Authenticate(true), h.ServeWebSocket)

	api := r.Group("/api", h.Authenticate(false))
	match := api.Group("/match")
	match.POST("/join", h.LimitJoins, h.Join)
	match.POST("/cancel", h.Cancel)
	match.POST("/leave", h.Leave)
	match.GET("/status", h.Status)
	match.POST("/heartbeat", h.Heartbeat)
	api.GET("/conversations/:id", h.GetConversation)
}

// respondError writes the error body every failing route shares.
func respondError(c *gin.Context, err error) {
	status, code, retryable := errcode.Of(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	abort(c, status, code, err.Error(), retryable)
}

func abort(c *gin.Context, status int, code, message string, retryable bool) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code, "retryable": retryable})
}
