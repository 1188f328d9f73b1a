// Package notify defines the events pushed to players and the Publisher
// contract transports implement.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

// EventType names a notification.
type EventType string

const (
	EventMatchFound         EventType = "match_found"
	EventGameInvitation     EventType = "game_invitation"
	EventInvitationAccepted EventType = "invitation_accepted"
	EventInvitationDeclined EventType = "invitation_declined"
	EventSessionUpdated     EventType = "session_updated"
	EventOpponentLeft       EventType = "opponent_left"
	EventRematchRequest     EventType = "rematch_request"
	EventRematchAccepted    EventType = "rematch_accepted"
	EventRematchDeclined    EventType = "rematch_declined"
)

// Event is the envelope written to clients.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Marshal encodes the event as sent on the wire.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type MatchFound struct {
	OpponentID   string      `json:"opponent_id"`
	OpponentName string      `json:"opponent_name"`
	YourMark     engine.Mark `json:"your_mark"`
}

type GameInvitation struct {
	InviterID   string      `json:"inviter_id"`
	InviterName string      `json:"inviter_name"`
	YourMark    engine.Mark `json:"your_mark"`
}

type InvitationAccepted struct {
	AccepterID   string `json:"accepter_id"`
	AccepterName string `json:"accepter_name"`
}

type InvitationDeclined struct {
	DeclinerName string `json:"decliner_name"`
}

type OpponentLeft struct {
	ParticipantID string `json:"participant_id"`
}

// Rematch is the payload of all three rematch events.
type Rematch struct {
	RequesterID string `json:"requester_id"`
}

// Publisher delivers events to a user's connections or to everyone watching
// a session. Delivery is best effort: offline users miss events.
type Publisher interface {
	PublishToUser(ctx context.Context, userID string, ev Event)
	PublishToSession(ctx context.Context, sessionID string, ev Event)
}

// SessionUpdated builds the snapshot event for a session.
func SessionUpdated(s *engine.Session) Event {
	return Event{Type: EventSessionUpdated, SessionID: s.ID, Data: s}
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) PublishToUser(context.Context, string, Event)    {}
func (discard) PublishToSession(context.Context, string, Event) {}

// Fanout publishes to every publisher in order.
type Fanout []Publisher

func (f Fanout) PublishToUser(ctx context.Context, userID string, ev Event) {
	for _, p := range f {
		p.PublishToUser(ctx, userID, ev)
	}
}

func (f Fanout) PublishToSession(ctx context.Context, sessionID string, ev Event) {
	for _, p := range f {
		p.PublishToSession(ctx, sessionID, ev)
	}
}

// Delivery is one event captured by a Recorder.
type Delivery struct {
	// Exactly one of UserID and SessionID is set.
	UserID    string
	SessionID string
	Event     Event
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *Recorder) PublishToUser(_ context.Context, userID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{UserID: userID, Event: ev})
}

func (r *Recorder) PublishToSession(_ context.Context, sessionID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{SessionID: sessionID, Event: ev})
}

// Deliveries returns a copy of everything recorded so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// ToUser returns the events delivered to userID.
func (r *Recorder) ToUser(userID string) []Event {
	var out []Event
	for _, d := range r.Deliveries() {
		if d.UserID == userID {
			out = append(out, d.Event)
		}
	}
	return out
}

// ToSession returns the events delivered to a session group.
func (r *Recorder) ToSession(sessionID string) []Event {
	var out []Event
	for _, d := range r.Deliveries() {
		if d.SessionID == sessionID {
			out = append(out, d.Event)
		}
	}
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t EventType) int {
	n := 0
	for _, d := range r.Deliveries() {
		if d.Event.Type == t {
			n++
		}
	}
	return n
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
