package chathub

import (
	"encoding/json"
	"strangerchat/backend/internal/models"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// WebSocketClient streams an actor's events as JSON text frames.
// Inbound frames carry no commands; they only count as activity, as do pongs.
type WebSocketClient struct {
	ActorID string
	Conn    *websocket.Conn
	Hub     *ManagerService
	Send    chan models.Event

	// OnActivity is called for every pong and inbound frame.
	OnActivity func(actorID string)

	closeOnce sync.Once
}

func NewWebSocketClient(actorID string, conn *websocket.Conn, hub *ManagerService, onActivity func(string)) *WebSocketClient {
	return &WebSocketClient{
		ActorID:    actorID,
		Conn:       conn,
		Hub:        hub,
		Send:       make(chan models.Event, sendBuffer),
		OnActivity: onActivity,
	}
}

func (c *WebSocketClient) GetActorID() string                  { return c.ActorID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which makes writePump send a close frame and exit.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) touch() {
	if c.OnActivity != nil {
		c.OnActivity(c.ActorID)
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("Websocket of %s closed unexpectedly: %v", c.ActorID, err)
			}
			return
		}
		c.touch()
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				log.Errorf("Failed to encode %s for %s: %v", ev.Type, c.ActorID, err)
				continue
			}
			// One event per frame so clients can decode each frame on its own.
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
