// Package negotiation handles friend invitations and rematch offers for
// remote sessions.
//
// An invitation is a vs_remote_human session created with
// InvitationAccepted=false: the inviter plays X and may not move until the
// invitee (O) accepts. Declining deletes the session.
//
// A rematch offer is an invitation addressed to a former opponent. Offers
// are tracked in memory keyed by (requester, opponent) so that two players
// asking each other for a rematch at the same time end up in one session
// instead of two.
package negotiation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/account"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
	"github.com/wricardo/mcp-training/gridduel/game/service"
)

// Sessions is the part of service.GameService the negotiator drives.
type Sessions interface {
	CreateSession(ctx context.Context, req service.CreateRequest) (*engine.Session, error)
	GetSession(ctx context.Context, sessionID string) (*engine.Session, error)
	ListSessions(ctx context.Context, userID string) ([]*engine.Session, error)
	DeleteSession(ctx context.Context, sessionID, actorID string) error
	Update(ctx context.Context, sessionID string, fn func(*engine.Session) error) (*engine.Session, error)
}

// InviteRequest asks a friend for a game. Width and Height win over Preset.
type InviteRequest struct {
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Preset    string `json:"preset,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// DefaultOfferTTL is how long a rematch offer waits for an answer.
const DefaultOfferTTL = 10 * time.Minute

// Negotiator coordinates invitations and rematch offers.
type Negotiator struct {
	sessions  Sessions
	friends   account.Friendships
	directory account.Directory
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	offerTTL  time.Duration

	mu        sync.Mutex
	offers    map[offerKey]*offer
	bySession map[string]offerKey
}

// Option configures a Negotiator.
type Option func(*Negotiator)

func WithPublisher(p notify.Publisher) Option {
	return func(n *Negotiator) { n.publisher = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Negotiator) { n.logger = logger }
}

// WithClock sets the time source used for offer expiry.
func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

// WithOfferTTL sets how long a rematch offer stays open. Zero keeps offers
// until they are answered or their session goes away.
func WithOfferTTL(ttl time.Duration) Option {
	return func(n *Negotiator) { n.offerTTL = ttl }
}

// WithDirectory sets where display names come from. Without one the user
// id is used as the name.
func WithDirectory(d account.Directory) Option {
	return func(n *Negotiator) { n.directory = d }
}

// NewNegotiator creates a negotiator with no open offers.
func NewNegotiator(sessions Sessions, friends account.Friendships, opts ...Option) *Negotiator {
	n := &Negotiator{
		sessions:  sessions,
		friends:   friends,
		directory: idDirectory{},
		publisher: notify.Discard,
		logger:    slog.Default(),
		now:       time.Now,
		offerTTL:  DefaultOfferTTL,
		offers:    make(map[offerKey]*offer),
		bySession: make(map[string]offerKey),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Invite creates a pending session between two friends and notifies the
// invitee.
func (n *Negotiator) Invite(ctx context.Context, req InviteRequest) (*engine.Session, error) {
	inviter, invitee := strings.TrimSpace(req.InviterID), strings.TrimSpace(req.InviteeID)
	if inviter == "" || invitee == "" {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "inviter and invitee ids are required")
	}
	if inviter == invitee {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "cannot invite yourself")
	}

	friends, err := n.friends.AreFriends(ctx, inviter, invitee)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, gameerr.Newf(gameerr.CodeNotFriends, "%s and %s are not friends", inviter, invitee)
	}

	inviterName := n.displayName(ctx, inviter)
	sess, err := n.sessions.CreateSession(ctx, service.CreateRequest{
		Mode:       engine.ModeVsRemoteHuman,
		Preset:     req.Preset,
		Width:      req.Width,
		Height:     req.Height,
		ChosenMark: string(engine.MarkX),
		First:      service.ParticipantSpec{ID: inviter, DisplayName: inviterName},
		Second:     service.ParticipantSpec{ID: invitee, DisplayName: n.displayName(ctx, invitee)},
	})
	if err != nil {
		return nil, err
	}

	n.logger.Info("invitation sent", "session", sess.ID, "inviter", inviter, "invitee", invitee)
	n.publisher.PublishToUser(ctx, invitee, notify.Event{
		Type:      notify.EventGameInvitation,
		SessionID: sess.ID,
		Data: notify.GameInvitation{
			InviterID:   inviter,
			InviterName: inviterName,
			YourMark:    engine.MarkO,
		},
	})
	return sess, nil
}

// Accept lets the invitee start a pending session.
func (n *Negotiator) Accept(ctx context.Context, sessionID, userID string) (*engine.Session, error) {
	sess, err := n.sessions.Update(ctx, sessionID, func(s *engine.Session) error {
		if err := checkPending(s, userID); err != nil {
			return err
		}
		s.InvitationAccepted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	n.dropOffer(sessionID)

	inviter := sess.ParticipantByMark(engine.MarkX)
	n.logger.Info("invitation accepted", "session", sessionID, "by", userID)
	n.publisher.PublishToUser(ctx, inviter.ID, notify.Event{
		Type:      notify.EventInvitationAccepted,
		SessionID: sessionID,
		Data: notify.InvitationAccepted{
			AccepterID:   userID,
			AccepterName: sess.Participant(userID).DisplayName,
		},
	})
	return sess, nil
}

// Decline deletes a pending session and tells the inviter.
func (n *Negotiator) Decline(ctx context.Context, sessionID, userID string) error {
	sess, err := n.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := checkPending(sess, userID); err != nil {
		return err
	}
	if err := n.sessions.DeleteSession(ctx, sessionID, userID); err != nil {
		return err
	}
	n.dropOffer(sessionID)

	inviter := sess.ParticipantByMark(engine.MarkX)
	n.logger.Info("invitation declined", "session", sessionID, "by", userID)
	n.publisher.PublishToUser(ctx, inviter.ID, notify.Event{
		Type:      notify.EventInvitationDeclined,
		SessionID: sessionID,
		Data:      notify.InvitationDeclined{DeclinerName: sess.Participant(userID).DisplayName},
	})
	return nil
}

// PendingInvitations lists sessions waiting for userID to accept. Offers the
// user made are not included since the user plays X in those.
func (n *Negotiator) PendingInvitations(ctx context.Context, userID string) ([]*engine.Session, error) {
	sessions, err := n.sessions.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	var pending []*engine.Session
	for _, s := range sessions {
		if checkPending(s, userID) == nil {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// checkPending verifies that userID is the invitee of a session still
// awaiting acceptance.
func checkPending(s *engine.Session, userID string) error {
	p := s.Participant(userID)
	if p == nil {
		return gameerr.Newf(gameerr.CodeNotParticipant, "%s is not invited to this session", userID).ForSession(s.ID)
	}
	if p.Mark != engine.MarkO {
		return gameerr.New(gameerr.CodeNotParticipant, "only the invitee can answer an invitation").ForSession(s.ID)
	}
	if s.Mode != engine.ModeVsRemoteHuman || s.InvitationAccepted || s.Terminal() {
		return gameerr.New(gameerr.CodeInvitationNotPending, "no pending invitation for this session").ForSession(s.ID)
	}
	return nil
}

func (n *Negotiator) displayName(ctx context.Context, userID string) string {
	name, err := n.directory.DisplayName(ctx, userID)
	if err != nil || strings.TrimSpace(name) == "" {
		return userID
	}
	return name
}

type idDirectory struct{}

func (idDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	return userID, nil
}
