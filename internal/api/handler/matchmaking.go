package handler

import (
	"errors"
	"io"
	"net/http"
	"strangerchat/backend/internal/api/errcode"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

type joinRequest struct {
	Traits models.Traits `json:"traits"`
	Filter models.Filter `json:"filter"`
}

type leaveRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Join puts the caller into the pool. Authenticated users are matched on
// their profile traits; the traits in the body only count for visitors and
// users without a profile row.
func (h *Handler) Join(c *gin.Context) {
	actor := actorFrom(c)

	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, errcode.InvalidRequest, err.Error(), false)
		return
	}

	traits := req.Traits
	if !actor.Anonymous && h.Profiles != nil {
		profile, err := h.Profiles.Traits(c.Request.Context(), actor.ID)
		switch {
		case err == nil:
			traits = profile
		case errors.Is(err, storage.ErrUserNotFound):
		default:
			respondError(c, err)
			return
		}
	}

	status, err := h.Matcher.Join(c.Request.Context(), models.JoinRequest{
		ActorID: actor.ID,
		Traits:  traits,
		Filter:  req.Filter,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) Cancel(c *gin.Context) {
	if err := h.Matcher.Cancel(c.Request.Context(), actorFrom(c).ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Status{State: models.StateIdle})
}

// Leave ends the conversation named in the body, or the caller's current one.
func (h *Handler) Leave(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, errcode.InvalidRequest, err.Error(), false)
		return
	}

	conv, err := h.Matcher.Leave(c.Request.Context(), actorFrom(c).ID, req.ConversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Status is the resync endpoint.
func (h *Handler) Status(c *gin.Context) {
	status, err := h.Matcher.Resync(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) Heartbeat(c *gin.Context) {
	if err := h.Matcher.Heartbeat(c.Request.Context(), actorFrom(c).ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetConversation is visible to its two participants only.
func (h *Handler) GetConversation(c *gin.Context) {
	actor := actorFrom(c)
	conv, err := h.Matcher.Conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !conv.Has(actor.ID) {
		log.Warnf("Actor %s asked for conversation %s it is not part of", actor.ID, conv.ID)
		respondError(c, storage.ErrNotParticipant)
		return
	}
	c.JSON(http.StatusOK, conv)
}
