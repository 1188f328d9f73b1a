package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/mcp-training/gridduel/game/notify"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Client actions.
const (
	ActionJoinSession  = "join_session"
	ActionLeaveSession = "leave_session"
)

// Client is one WebSocket connection of a user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	// Session groups the client is in. Owned by the hub goroutine.
	sessions map[string]bool
}

// readPump handles client actions until the connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", "user", c.userID, "error", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	msg, err := decodeClientMessage(data)
	if err != nil || msg.SessionID == "" {
		c.reject("expected {\"action\":..., \"session_id\":...}")
		return
	}

	var m membership
	switch msg.Action {
	case ActionJoinSession:
		m = membership{client: c, sessionID: msg.SessionID}
	case ActionLeaveSession:
		m = membership{client: c, sessionID: msg.SessionID, leave: true}
	default:
		c.reject("unknown action " + msg.Action)
		return
	}

	select {
	case c.hub.membership <- m:
	case <-c.hub.done:
	}
}

// reject reports a malformed message back to the client through the hub
func (c *Client) reject(message string) {
	ev := notify.Event{Type: EventError, Data: map[string]string{"error": message}}
	data, err := ev.Marshal()
	if err != nil {
		return
	}
	select {
	case c.hub.deliver <- delivery{client: c, data: data}:
	case <-c.hub.done:
	}
}

// writePump writes queued events and pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
