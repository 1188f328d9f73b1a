package negotiation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
	"github.com/wricardo/mcp-training/gridduel/game/service"
)

// RematchRequest names the former opponent and, optionally, the finished
// session whose board size is reused.
type RematchRequest struct {
	RequesterID       string `json:"requester_id"`
	OpponentID        string `json:"opponent_id"`
	PreviousSessionID string `json:"previous_session_id,omitempty"`
}

// RematchStatus is the outcome of RequestRematch.
type RematchStatus string

const (
	// RematchPending means an offer was sent and awaits an answer.
	RematchPending RematchStatus = "pending"
	// RematchAccepted means the opponent had already asked for the same
	// rematch and both now share the returned session.
	RematchAccepted RematchStatus = "accepted"
)

type RematchResult struct {
	Status  RematchStatus   `json:"status"`
	Session *engine.Session `json:"session"`
}

type offerKey struct {
	from, to string
}

// offer is an open rematch request. done is closed once the session has
// been created or creation failed; sessionID and err are set before that.
type offer struct {
	sessionID string
	err       error
	done      chan struct{}
	created   time.Time
}

// RequestRematch offers a new game to a former opponent. If the opponent
// has already offered one to the requester, that offer is accepted instead
// and no second session is created.
func (n *Negotiator) RequestRematch(ctx context.Context, req RematchRequest) (*RematchResult, error) {
	requester, opponent := strings.TrimSpace(req.RequesterID), strings.TrimSpace(req.OpponentID)
	if requester == "" || opponent == "" {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "requester and opponent ids are required")
	}
	if requester == opponent {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "cannot request a rematch against yourself")
	}

	width, height, err := n.rematchSize(ctx, requester, opponent, req.PreviousSessionID)
	if err != nil {
		return nil, err
	}

	own := offerKey{from: requester, to: opponent}
	reverse := offerKey{from: opponent, to: requester}

	// A second pass is needed only when the offer found on the first one
	// disappeared underneath us.
	for attempt := 0; attempt < 2; attempt++ {
		n.mu.Lock()

		if o, ok := n.offers[reverse]; ok && !n.expired(o) {
			delete(n.offers, reverse)
			n.mu.Unlock()

			sessionID, err := n.wait(ctx, o)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				continue
			}
			n.forgetSession(sessionID)

			sess, err := n.acceptOffer(ctx, sessionID, reverse)
			if errors.Is(err, gameerr.ErrSessionNotFound) || errors.Is(err, gameerr.ErrInvitationNotPending) {
				continue
			}
			if err != nil {
				return nil, err
			}
			n.logger.Info("rematch resolved mutually", "session", sessionID, "players", []string{opponent, requester})
			return &RematchResult{Status: RematchAccepted, Session: sess}, nil
		}

		if o, ok := n.offers[own]; ok {
			n.mu.Unlock()

			sessionID, err := n.wait(ctx, o)
			if err != nil {
				return nil, err
			}
			sess, err := n.sessions.GetSession(ctx, sessionID)
			if errors.Is(err, gameerr.ErrSessionNotFound) {
				n.dropOffer(sessionID)
				continue
			}
			if err != nil {
				return nil, err
			}
			if !n.offerOpen(sess, o) {
				n.closeOffer(ctx, sess, own)
				continue
			}
			return &RematchResult{Status: RematchPending, Session: sess}, nil
		}

		o := &offer{done: make(chan struct{}), created: n.now()}
		n.offers[own] = o
		n.mu.Unlock()

		return n.createOffer(ctx, own, o, width, height)
	}

	return nil, gameerr.Newf(gameerr.CodeOfferNotFound,
		"rematch offer between %s and %s changed concurrently, try again", requester, opponent)
}

// createOffer creates the session for a reserved offer and publishes it.
func (n *Negotiator) createOffer(ctx context.Context, key offerKey, o *offer, width, height int) (*RematchResult, error) {
	sess, err := n.sessions.CreateSession(ctx, service.CreateRequest{
		Mode:       engine.ModeVsRemoteHuman,
		Width:      width,
		Height:     height,
		ChosenMark: string(engine.MarkX),
		First:      service.ParticipantSpec{ID: key.from, DisplayName: n.displayName(ctx, key.from)},
		Second:     service.ParticipantSpec{ID: key.to, DisplayName: n.displayName(ctx, key.to)},
	})

	n.mu.Lock()
	if err != nil {
		o.err = err
		if n.offers[key] == o {
			delete(n.offers, key)
		}
	} else {
		o.sessionID = sess.ID
		// A reciprocal request may already have taken the offer out of
		// the map; it accepts the session itself.
		if n.offers[key] == o {
			n.bySession[sess.ID] = key
		}
	}
	n.mu.Unlock()
	close(o.done)

	if err != nil {
		n.logger.Warn("rematch creation failed", "requester", key.from, "opponent", key.to, "error", err)
		return nil, err
	}

	n.logger.Info("rematch requested", "session", sess.ID, "requester", key.from, "opponent", key.to)
	n.publisher.PublishToUser(ctx, key.to, notify.Event{
		Type:      notify.EventRematchRequest,
		SessionID: sess.ID,
		Data:      notify.Rematch{RequesterID: key.from},
	})
	return &RematchResult{Status: RematchPending, Session: sess}, nil
}

// AcceptRematch starts the offered session. Only the addressee may accept.
func (n *Negotiator) AcceptRematch(ctx context.Context, sessionID, userID string) (*engine.Session, error) {
	key, err := n.takeOffer(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return n.acceptOffer(ctx, sessionID, key)
}

// DeclineRematch deletes the offered session and tells the requester.
func (n *Negotiator) DeclineRematch(ctx context.Context, sessionID, userID string) error {
	key, err := n.takeOffer(sessionID, userID)
	if err != nil {
		return err
	}
	if err := n.sessions.DeleteSession(ctx, sessionID, userID); err != nil && !errors.Is(err, gameerr.ErrSessionNotFound) {
		return err
	}

	n.logger.Info("rematch declined", "session", sessionID, "by", userID)
	n.publisher.PublishToUser(ctx, key.from, notify.Event{
		Type:      notify.EventRematchDeclined,
		SessionID: sessionID,
		Data:      notify.Rematch{RequesterID: key.from},
	})
	return nil
}

// OpenOffers returns how many rematch offers await an answer.
func (n *Negotiator) OpenOffers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.offers)
}

func (n *Negotiator) acceptOffer(ctx context.Context, sessionID string, key offerKey) (*engine.Session, error) {
	sess, err := n.sessions.Update(ctx, sessionID, func(s *engine.Session) error {
		if s.Terminal() {
			return gameerr.New(gameerr.CodeInvitationNotPending, "rematch session already finished").ForSession(s.ID)
		}
		s.InvitationAccepted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := notify.Event{
		Type:      notify.EventRematchAccepted,
		SessionID: sessionID,
		Data:      notify.Rematch{RequesterID: key.from},
	}
	n.publisher.PublishToUser(ctx, key.from, ev)
	n.publisher.PublishToUser(ctx, key.to, ev)
	return sess, nil
}

// takeOffer removes the open offer for sessionID addressed to userID.
func (n *Negotiator) takeOffer(sessionID, userID string) (offerKey, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key, ok := n.bySession[sessionID]
	if !ok {
		return offerKey{}, gameerr.New(gameerr.CodeOfferNotFound, "no open rematch offer for this session").ForSession(sessionID)
	}
	if key.to != userID {
		return offerKey{}, gameerr.Newf(gameerr.CodeNotParticipant,
			"only %s can answer this rematch offer", key.to).ForSession(sessionID)
	}
	if o := n.offers[key]; o != nil && n.expired(o) {
		return offerKey{}, gameerr.New(gameerr.CodeOfferNotFound, "the rematch offer has expired").ForSession(sessionID)
	}
	delete(n.bySession, sessionID)
	delete(n.offers, key)
	return key, nil
}

// PruneOffers drops offers whose session was deleted, finished or accepted,
// and offers older than the TTL; the still pending session of an expired
// offer is deleted. It returns how many offers were dropped.
func (n *Negotiator) PruneOffers(ctx context.Context) int {
	n.mu.Lock()
	open := make(map[string]offerKey, len(n.bySession))
	for id, key := range n.bySession {
		open[id] = key
	}
	n.mu.Unlock()

	dropped := 0
	for id, key := range open {
		sess, err := n.sessions.GetSession(ctx, id)
		if errors.Is(err, gameerr.ErrSessionNotFound) {
			if n.dropOffer(id) {
				dropped++
			}
			continue
		}
		if err != nil {
			n.logger.Warn("rematch offer check failed", "session", id, "error", err)
			continue
		}

		n.mu.Lock()
		o := n.offers[key]
		current := o != nil && o.sessionID == id
		n.mu.Unlock()
		if !current || n.offerOpen(sess, o) {
			continue
		}
		if n.closeOffer(ctx, sess, key) {
			dropped++
		}
	}
	return dropped
}

func (n *Negotiator) expired(o *offer) bool {
	return n.offerTTL > 0 && n.now().Sub(o.created) >= n.offerTTL
}

// offerOpen reports whether o can still be answered.
func (n *Negotiator) offerOpen(sess *engine.Session, o *offer) bool {
	return !sess.Terminal() && !sess.InvitationAccepted && !n.expired(o)
}

// closeOffer forgets the offer for sess and deletes the session if nobody
// started playing it. It reports whether the offer was still open.
func (n *Negotiator) closeOffer(ctx context.Context, sess *engine.Session, key offerKey) bool {
	if !n.dropOffer(sess.ID) {
		return false
	}
	if sess.Terminal() || sess.InvitationAccepted {
		return true
	}
	if err := n.sessions.DeleteSession(ctx, sess.ID, key.from); err != nil && !errors.Is(err, gameerr.ErrSessionNotFound) {
		n.logger.Warn("failed to delete expired rematch session", "session", sess.ID, "error", err)
	}
	n.logger.Info("rematch offer expired", "session", sess.ID, "requester", key.from, "opponent", key.to)
	return true
}

// dropOffer forgets any offer backed by sessionID and reports whether there
// was one.
func (n *Negotiator) dropOffer(sessionID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	key, ok := n.bySession[sessionID]
	if !ok {
		return false
	}
	delete(n.bySession, sessionID)
	if o := n.offers[key]; o != nil && o.sessionID == sessionID {
		delete(n.offers, key)
	}
	return true
}

func (n *Negotiator) forgetSession(sessionID string) {
	n.mu.Lock()
	delete(n.bySession, sessionID)
	n.mu.Unlock()
}

func (n *Negotiator) wait(ctx context.Context, o *offer) (string, error) {
	select {
	case <-o.done:
		return o.sessionID, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// rematchSize copies the board size of the previous session after checking
// it is over and both players took part. Without one the default preset
// applies.
func (n *Negotiator) rematchSize(ctx context.Context, requester, opponent, previousID string) (int, int, error) {
	previousID = strings.TrimSpace(previousID)
	if previousID == "" {
		return 0, 0, nil
	}
	prev, err := n.sessions.GetSession(ctx, previousID)
	if err != nil {
		return 0, 0, err
	}
	if !prev.Terminal() {
		return 0, 0, gameerr.New(gameerr.CodeGameInProgress, "the previous game is still in progress").ForSession(previousID)
	}
	if !prev.HasParticipant(requester) || !prev.HasParticipant(opponent) {
		return 0, 0, gameerr.New(gameerr.CodeNotParticipant, "both players must have played the previous game").ForSession(previousID)
	}
	return prev.Width, prev.Height, nil
}
