package handler

import (
	"context"
	"net/http"
	"strangerchat/backend/internal/chathub"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are authenticated by token, not by origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades to the caller's event stream. Frames are
// models.Event JSON; the client resyncs through /api/match/status after
// (re)connecting.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	actor := actorFrom(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warnf("Websocket upgrade for %s failed: %v", actor.ID, err)
		return
	}

	client := chathub.NewWebSocketClient(actor.ID, conn, h.Hub, h.touch)
	if !h.Hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	h.touch(actor.ID)
	client.Run()
}

func (h *Handler) touch(actorID string) {
	if err := h.Matcher.Heartbeat(context.Background(), actorID); err != nil {
		log.Warnf("Failed to refresh heartbeat of %s: %v", actorID, err)
	}
}
