// Package matchmaking pairs players searching for a remote opponent.
//
// Searchers wait in a FIFO queue of tickets. A second map, the registry,
// holds every player still searching. Leave only removes the registry entry;
// the queue ticket stays behind as a tombstone and is discarded by the next
// Join that reaches it. Cancelling is O(1) and the cleanup cost is paid
// by later joins.
//
// Registry removal is the claim: a Join pairs with a queued ticket only if
// it removes that ticket's owner from the registry, so a player who left can
// never be matched, even by a Join already in flight.
package matchmaking

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
	"github.com/wricardo/mcp-training/gridduel/game/service"
)

// Ticket is a queued search.
type Ticket struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// JoinStatus is the outcome of Join.
type JoinStatus string

const (
	StatusSearching JoinStatus = "searching"
	StatusMatched   JoinStatus = "matched"
)

// JoinResult reports whether the joiner was paired right away.
type JoinResult struct {
	Status   JoinStatus      `json:"status"`
	Session  *engine.Session `json:"session,omitempty"`
	Opponent *Ticket         `json:"opponent,omitempty"`
	YourMark engine.Mark     `json:"your_mark,omitempty"`
}

// Status describes a player's search and the queue.
type Status struct {
	IsSearching bool `json:"is_searching"`
	// QueueDepth counts players still searching.
	QueueDepth int `json:"queue_depth"`
	// PendingTickets is the raw queue length, tombstones included.
	PendingTickets int `json:"pending_tickets"`
}

// SessionCreator creates the session for a new pair. service.GameService
// implements it.
type SessionCreator interface {
	CreateSession(ctx context.Context, req service.CreateRequest) (*engine.Session, error)
}

// Coordinator owns the queue and the registry.
type Coordinator struct {
	sessions  SessionCreator
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time

	queueMu sync.Mutex
	queue   []Ticket

	registryMu sync.Mutex
	registry   map[string]Ticket
	// claimed holds opponents popped for an in-flight pairing.
	claimed map[string]*pairingClaim
}

// pairingClaim marks one in-flight pairing of a queued opponent.
type pairingClaim struct {
	cancelled bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithPublisher(p notify.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(sessions SessionCreator, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:  sessions,
		publisher: notify.Discard,
		logger:    slog.Default(),
		now:       time.Now,
		registry:  make(map[string]Ticket),
		claimed:   make(map[string]*pairingClaim),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join pairs the participant with the oldest live searcher, or queues them.
func (c *Coordinator) Join(ctx context.Context, participantID, displayName string) (*JoinResult, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "participant id is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = participantID
	}

	// Lock order: queue, then registry.
	c.queueMu.Lock()
	if c.isSearching(participantID) {
		c.queueMu.Unlock()
		return nil, gameerr.Newf(gameerr.CodeAlreadySearching, "%s is already searching", participantID)
	}

	opponent, held, found := c.popLiveLocked()
	if !found {
		ticket := Ticket{ParticipantID: participantID, DisplayName: displayName, EnqueuedAt: c.now()}
		c.enqueueLocked(ticket)
		depth := len(c.queue)
		c.queueMu.Unlock()

		c.logger.Info("matchmaking searching", "participant", participantID, "pending_tickets", depth)
		return &JoinResult{Status: StatusSearching}, nil
	}
	c.trimStaleLocked()
	c.queueMu.Unlock()

	sess, err := c.sessions.CreateSession(ctx, service.CreateRequest{
		Mode:               engine.ModeVsRemoteHuman,
		ChosenMark:         string(engine.MarkX),
		First:              service.ParticipantSpec{ID: participantID, DisplayName: displayName},
		Second:             service.ParticipantSpec{ID: opponent.ParticipantID, DisplayName: opponent.DisplayName},
		InvitationAccepted: true,
	})
	if err != nil {
		c.restore(opponent, held)
		c.logger.Warn("matchmaking session creation failed",
			"participant", participantID, "opponent", opponent.ParticipantID, "error", err)
		return nil, err
	}

	c.release(opponent.ParticipantID, held)
	c.logger.Info("matchmaking paired",
		"session", sess.ID, "x", participantID, "o", opponent.ParticipantID)

	c.publisher.PublishToUser(ctx, participantID, notify.Event{
		Type:      notify.EventMatchFound,
		SessionID: sess.ID,
		Data: notify.MatchFound{
			OpponentID:   opponent.ParticipantID,
			OpponentName: opponent.DisplayName,
			YourMark:     engine.MarkX,
		},
	})
	c.publisher.PublishToUser(ctx, opponent.ParticipantID, notify.Event{
		Type:      notify.EventMatchFound,
		SessionID: sess.ID,
		Data: notify.MatchFound{
			OpponentID:   participantID,
			OpponentName: displayName,
			YourMark:     engine.MarkO,
		},
	})

	return &JoinResult{
		Status:   StatusMatched,
		Session:  sess,
		Opponent: &opponent,
		YourMark: engine.MarkX,
	}, nil
}

// Leave stops a search. Its queue ticket stays until a Join discards it.
// It reports whether the participant was still in the registry; false means
// a pairing already claimed them. A claimed participant who leaves is not
// requeued if that pairing then fails.
func (c *Coordinator) Leave(participantID string) bool {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()

	_, ok := c.registry[participantID]
	delete(c.registry, participantID)
	if held, inFlight := c.claimed[participantID]; inFlight {
		held.cancelled = true
		c.logger.Info("matchmaking left during pairing", "participant", participantID)
	}
	if ok {
		c.logger.Info("matchmaking left", "participant", participantID)
	}
	return ok
}

// Status reports the participant's search state and the queue size.
func (c *Coordinator) Status(participantID string) Status {
	c.registryMu.Lock()
	_, searching := c.registry[participantID]
	depth := len(c.registry)
	c.registryMu.Unlock()

	c.queueMu.Lock()
	pending := len(c.queue)
	c.queueMu.Unlock()

	return Status{IsSearching: searching, QueueDepth: depth, PendingTickets: pending}
}

// popLiveLocked pops tickets until one is claimed. Callers hold queueMu.
func (c *Coordinator) popLiveLocked() (Ticket, *pairingClaim, bool) {
	for len(c.queue) > 0 {
		head := c.queue[0]
		c.queue[0] = Ticket{}
		c.queue = c.queue[1:]
		if held := c.claim(head.ParticipantID); held != nil {
			return head, held, true
		}
		c.logger.Debug("matchmaking dropped stale ticket", "participant", head.ParticipantID)
	}
	return Ticket{}, nil, false
}

// trimStaleLocked drops tombstones at the head of the queue. Callers hold
// queueMu.
func (c *Coordinator) trimStaleLocked() {
	for len(c.queue) > 0 && !c.isRegistered(c.queue[0].ParticipantID) {
		c.queue[0] = Ticket{}
		c.queue = c.queue[1:]
	}
}

func (c *Coordinator) enqueueLocked(ticket Ticket) {
	c.registryMu.Lock()
	c.registry[ticket.ParticipantID] = ticket
	c.registryMu.Unlock()
	c.queue = append(c.queue, ticket)
}

// claim moves id from the registry to the claimed set. It returns nil if id
// was not registered.
func (c *Coordinator) claim(id string) *pairingClaim {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()
	if _, ok := c.registry[id]; !ok {
		return nil
	}
	delete(c.registry, id)
	held := &pairingClaim{}
	c.claimed[id] = held
	return held
}

// release forgets held unless a later pairing has claimed id since.
func (c *Coordinator) release(id string, held *pairingClaim) {
	c.registryMu.Lock()
	c.releaseLocked(id, held)
	c.registryMu.Unlock()
}

func (c *Coordinator) releaseLocked(id string, held *pairingClaim) {
	if c.claimed[id] == held {
		delete(c.claimed, id)
	}
}

func (c *Coordinator) isRegistered(id string) bool {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()
	_, ok := c.registry[id]
	return ok
}

// isSearching reports a registered id or one held by a pairing it has not
// left.
func (c *Coordinator) isSearching(id string) bool {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()
	if _, ok := c.registry[id]; ok {
		return true
	}
	held, inFlight := c.claimed[id]
	return inFlight && !held.cancelled
}

// restore puts a claimed opponent back at the head of the queue unless they
// left or joined again while the pairing was in flight.
func (c *Coordinator) restore(ticket Ticket, held *pairingClaim) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	c.registryMu.Lock()
	c.releaseLocked(ticket.ParticipantID, held)
	cancelled := held.cancelled
	_, rejoined := c.registry[ticket.ParticipantID]
	if _, reclaimed := c.claimed[ticket.ParticipantID]; reclaimed {
		rejoined = true
	}
	if cancelled || rejoined {
		c.registryMu.Unlock()
		c.logger.Info("matchmaking dropped claimed opponent",
			"participant", ticket.ParticipantID, "left", cancelled, "rejoined", rejoined)
		return
	}
	c.registry[ticket.ParticipantID] = ticket
	c.registryMu.Unlock()
	c.queue = append([]Ticket{ticket}, c.queue...)
}
