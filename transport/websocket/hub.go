package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wricardo/mcp-training/gridduel/game/notify"
)

// Hub-local event types. They are never published through notify.
const (
	EventConnected     notify.EventType = "connected"
	EventJoinedSession notify.EventType = "joined_session"
	EventLeftSession   notify.EventType = "left_session"
	EventError         notify.EventType = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// delivery is an encoded event addressed to one client, a user group or a
// session group.
type delivery struct {
	client    *Client
	userID    string
	sessionID string
	data      []byte
}

// membership asks the hub to move a client in or out of a session group.
type membership struct {
	client    *Client
	sessionID string
	leave     bool
}

// Hub owns the user and session groups. All group bookkeeping happens on the
// Run goroutine.
type Hub struct {
	// Connected clients by user id
	users map[string]map[*Client]bool

	// Clients watching a session, by session id
	sessions map[string]map[*Client]bool

	deliver    chan delivery
	membership chan membership
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	upstreamMu sync.RWMutex
	upstream   notify.Publisher

	logger *slog.Logger
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		users:      make(map[string]map[*Client]bool),
		sessions:   make(map[string]map[*Client]bool),
		deliver:    make(chan delivery, 256),
		membership: make(chan membership),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upstream:   notify.Discard,
		logger:     logger,
	}
}

// SetUpstream sets where events raised by the hub itself (opponent_left)
// are also published, typically the cross-instance bridge.
func (h *Hub) SetUpstream(p notify.Publisher) {
	h.upstreamMu.Lock()
	defer h.upstreamMu.Unlock()
	h.upstream = p
}

// Run processes hub events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case m := <-h.membership:
			if m.leave {
				h.leaveSession(m.client, m.sessionID)
			} else {
				h.joinSession(m.client, m.sessionID)
			}

		case d := <-h.deliver:
			h.dispatch(d)
		}
	}
}

// ServeWS upgrades the request and places the connection in the group of the
// user named by the "user" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user", userID, "error", err)
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		sessions: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// PublishToUser implements notify.Publisher.
func (h *Hub) PublishToUser(ctx context.Context, userID string, ev notify.Event) {
	h.enqueue(ctx, delivery{userID: userID}, ev)
}

// PublishToSession implements notify.Publisher.
func (h *Hub) PublishToSession(ctx context.Context, sessionID string, ev notify.Event) {
	h.enqueue(ctx, delivery{sessionID: sessionID}, ev)
}

func (h *Hub) enqueue(ctx context.Context, d delivery, ev notify.Event) {
	data, err := ev.Marshal()
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}
	d.data = data

	select {
	case h.deliver <- d:
	case <-h.done:
	case <-ctx.Done():
		h.logger.Debug("event dropped", "type", ev.Type, "error", ctx.Err())
	}
}

// registerClient adds a client to its user group
func (h *Hub) registerClient(client *Client) {
	addTo(h.users, client.userID, client)
	h.sendTo(client, notify.Event{Type: EventConnected, Data: map[string]string{"user_id": client.userID}})

	h.logger.Debug("client registered", "user", client.userID, "connections", len(h.users[client.userID]))
}

// unregisterClient leaves every session group and drops the client
func (h *Hub) unregisterClient(client *Client) {
	if !h.users[client.userID][client] {
		return
	}
	for sessionID := range client.sessions {
		h.leaveSession(client, sessionID)
	}
	removeFrom(h.users, client.userID, client)
	close(client.send)

	h.logger.Debug("client unregistered", "user", client.userID, "connections", len(h.users[client.userID]))
}

func (h *Hub) joinSession(client *Client, sessionID string) {
	if !h.users[client.userID][client] {
		return
	}
	client.sessions[sessionID] = true
	addTo(h.sessions, sessionID, client)
	h.sendTo(client, notify.Event{Type: EventJoinedSession, SessionID: sessionID})
}

// leaveSession removes the client from a session group. When the user has no
// other connection left in the group, the remaining members are told the
// user left.
func (h *Hub) leaveSession(client *Client, sessionID string) {
	if !client.sessions[sessionID] {
		return
	}
	delete(client.sessions, sessionID)
	removeFrom(h.sessions, sessionID, client)
	h.sendTo(client, notify.Event{Type: EventLeftSession, SessionID: sessionID})

	for other := range h.sessions[sessionID] {
		if other.userID == client.userID {
			return
		}
	}

	ev := notify.Event{
		Type:      notify.EventOpponentLeft,
		SessionID: sessionID,
		Data:      notify.OpponentLeft{ParticipantID: client.userID},
	}
	data, err := ev.Marshal()
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}
	h.dispatch(delivery{sessionID: sessionID, data: data})

	h.upstreamMu.RLock()
	upstream := h.upstream
	h.upstreamMu.RUnlock()
	go upstream.PublishToSession(context.Background(), sessionID, ev)
}

// dispatch writes an encoded event to every client of the target group
func (h *Hub) dispatch(d delivery) {
	var clients map[*Client]bool
	if d.client != nil {
		if h.users[d.client.userID][d.client] {
			clients = map[*Client]bool{d.client: true}
		}
	} else if d.userID != "" {
		clients = h.users[d.userID]
	} else {
		clients = h.sessions[d.sessionID]
	}
	for client := range clients {
		select {
		case client.send <- d.data:
		default:
			// Slow consumer
			h.logger.Warn("client send buffer full, dropping connection", "user", client.userID)
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) sendTo(client *Client, ev notify.Event) {
	data, err := ev.Marshal()
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)
		for _, clients := range h.users {
			for client := range clients {
				close(client.send)
			}
		}
		h.users = make(map[string]map[*Client]bool)
		h.sessions = make(map[string]map[*Client]bool)
	})
}

func addTo(groups map[string]map[*Client]bool, key string, client *Client) {
	if groups[key] == nil {
		groups[key] = make(map[*Client]bool)
	}
	groups[key][client] = true
}

func removeFrom(groups map[string]map[*Client]bool, key string, client *Client) {
	clients, ok := groups[key]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(groups, key)
	}
}

// clientMessage is what clients send over the socket.
type clientMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

func decodeClientMessage(data []byte) (clientMessage, error) {
	var msg clientMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
