package handler

import (
	"net/http"
	"strangerchat/backend/internal/api/errcode"
	"strangerchat/backend/internal/identity"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// GetAnonID issues a token for a new anonymous visitor.
func (h *Handler) GetAnonID(c *gin.Context) {
	token, anonID, err := h.Tokens.IssueAnonymous()
	if err != nil {
		log.Errorf("ERROR: could not issue anonymous token: %v", err)
		abort(c, http.StatusInternalServerError, errcode.Unavailable, "Failed to create token", true)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": anonID})
}

// Authenticate resolves the caller into an identity.Actor. Browsers cannot set
// headers on a websocket handshake, so allowQuery also accepts ?token=.
func (h *Handler) Authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok && allowQuery {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, errcode.Unauthorized, "Authorization token missing", false)
			return
		}

		actor, err := h.Tokens.Actor(tokenString)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) identity.Actor {
	return c.MustGet(actorKey).(identity.Actor)
}
