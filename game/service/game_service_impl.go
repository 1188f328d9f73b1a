package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
)

// errUnchanged aborts a mutation without writing and without failing.
var errUnchanged = errors.New("session unchanged")

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	store     SessionStore
	presets   PresetCatalog
	publisher notify.Publisher
	logger    *slog.Logger
	botDelay  time.Duration
	now       func() time.Time
	intn      func(n int) int
	newID     func() string

	locks *keyedMutex
	bots  *botScheduler
}

// NewGameService creates a new game service instance
func NewGameService(store SessionStore, presets PresetCatalog, opts ...Option) GameService {
	s := &gameServiceImpl{
		store:     store,
		presets:   presets,
		publisher: notify.Discard,
		logger:    slog.Default(),
		botDelay:  DefaultBotDelay,
		now:       time.Now,
		intn:      defaultIntn,
		newID:     uuid.NewString,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bots = newBotScheduler(s.botDelay, s.playScheduledBot)
	return s
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, req CreateRequest) (*engine.Session, error) {
	if !req.Mode.Valid() {
		return nil, gameerr.Newf(gameerr.CodeInvalidMode,
			"unknown mode %q (want %s, %s or %s)", req.Mode,
			engine.ModeVsBot, engine.ModeVsLocalHuman, engine.ModeVsRemoteHuman)
	}

	firstMark, err := engine.ParseMark(req.ChosenMark)
	if err != nil {
		return nil, gameerr.Newf(gameerr.CodeInvalidMark, "chosen mark must be X or O, got %q", req.ChosenMark)
	}

	width, height, err := s.resolveSize(req)
	if err != nil {
		return nil, err
	}

	participants, err := s.buildParticipants(req, firstMark)
	if err != nil {
		return nil, err
	}

	sess := engine.NewSession(s.newID(), width, height, req.Mode, participants, s.now().UTC())
	if req.Mode == engine.ModeVsRemoteHuman {
		sess.InvitationAccepted = req.InvitationAccepted
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created",
		"session", sess.ID,
		"mode", sess.Mode,
		"size", fmt.Sprintf("%dx%d", width, height),
		"x", sess.ParticipantByMark(engine.MarkX).ID,
		"o", sess.ParticipantByMark(engine.MarkO).ID,
	)

	if s.botOnTurn(sess) {
		// The session is already stored. If the caller stops waiting the bot
		// opens in the background and the new session is still returned.
		if err := sleep(ctx, s.botDelay); err != nil {
			s.bots.schedule(sess.ID)
			s.logger.Debug("bot opening moved to background", "session", sess.ID, "reason", err)
			return sess, nil
		}
		played, err := s.MaybePlayBot(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if played != nil {
			sess = played
		}
	}

	return sess, nil
}

func (s *gameServiceImpl) resolveSize(req CreateRequest) (int, int, error) {
	if req.Width != 0 || req.Height != 0 {
		if err := engine.ValidateSize(req.Width, req.Height); err != nil {
			return 0, 0, err
		}
		return req.Width, req.Height, nil
	}

	var preset *config.Preset
	if req.Preset != "" {
		p, err := s.presets.LoadPreset(req.Preset)
		if err != nil {
			return 0, 0, err
		}
		preset = p
	} else {
		preset = s.presets.GetDefault()
	}
	if preset == nil {
		return 0, 0, gameerr.New(gameerr.CodePresetNotFound, "no default preset configured")
	}
	return preset.Width, preset.Height, nil
}

func (s *gameServiceImpl) buildParticipants(req CreateRequest, firstMark engine.Mark) ([2]engine.Participant, error) {
	first := engine.Participant{
		ID:          strings.TrimSpace(req.First.ID),
		DisplayName: strings.TrimSpace(req.First.DisplayName),
		Mark:        firstMark,
		Kind:        engine.KindHuman,
	}
	second := engine.Participant{
		ID:          strings.TrimSpace(req.Second.ID),
		DisplayName: strings.TrimSpace(req.Second.DisplayName),
		Mark:        firstMark.Opponent(),
		Kind:        engine.KindHuman,
	}

	switch req.Mode {
	case engine.ModeVsRemoteHuman:
		if first.ID == "" || second.ID == "" {
			return [2]engine.Participant{}, gameerr.New(gameerr.CodeInvalidInput,
				"remote sessions need both user ids")
		}
	case engine.ModeVsBot:
		second = engine.Participant{
			ID:          "bot-" + s.newID(),
			DisplayName: botDisplayName,
			Mark:        firstMark.Opponent(),
			Kind:        engine.KindBot,
		}
	}

	if first.ID == "" {
		first.ID = s.newID()
	}
	if second.ID == "" {
		second.ID = s.newID()
	}
	if first.DisplayName == "" {
		first.DisplayName = defaultName(req.Mode, first.ID, defaultFirst)
	}
	if second.DisplayName == "" {
		second.DisplayName = defaultName(req.Mode, second.ID, defaultSecond)
	}

	participants := [2]engine.Participant{first, second}
	if err := engine.ValidateParticipants(participants); err != nil {
		return [2]engine.Participant{}, err
	}
	return participants, nil
}

func defaultName(mode engine.Mode, id, fallback string) string {
	if mode == engine.ModeVsRemoteHuman {
		return id
	}
	return fallback
}

// GetSession retrieves a session from whichever tier holds it
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*engine.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// ListSessions returns the durable sessions a user plays in, newest first
func (s *gameServiceImpl) ListSessions(ctx context.Context, userID string) ([]*engine.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "user id is required")
	}
	return s.store.ListByParticipant(ctx, userID)
}

// DeleteSession removes a session. Only its participants may delete it.
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID, actorID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.HasParticipant(actorID) {
		return gameerr.Newf(gameerr.CodeNotParticipant,
			"%s is not a participant and cannot delete the session", actorID).ForSession(sessionID)
	}

	s.bots.cancel(sessionID)
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	s.logger.Info("session deleted", "session", sessionID, "by", actorID)
	return nil
}

// ApplyMove places the participant's mark on cell
func (s *gameServiceImpl) ApplyMove(ctx context.Context, sessionID, participantID string, cell int) (*engine.Session, error) {
	sess, err := s.mutate(ctx, sessionID, func(sess *engine.Session) error {
		if p := sess.Participant(participantID); p != nil && p.Kind == engine.KindBot {
			return gameerr.New(gameerr.CodeBotParticipant, "the bot moves on its own").ForSession(sessionID)
		}
		if sess.Participant(participantID) != nil && !sess.InvitationAccepted && !sess.Terminal() {
			return gameerr.New(gameerr.CodeInvitationPending,
				"the invitation has not been accepted yet").ForSession(sessionID)
		}
		return sess.Apply(participantID, cell)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("move applied",
		"session", sessionID,
		"participant", participantID,
		"cell", cell,
		"status", sess.Status,
	)
	s.publisher.PublishToSession(ctx, sessionID, notify.SessionUpdated(sess))

	if s.botOnTurn(sess) {
		s.bots.schedule(sessionID)
	}
	return sess, nil
}

// MaybePlayBot makes one random bot move when the bot is on turn. It returns
// nil without error when there is nothing to do.
func (s *gameServiceImpl) MaybePlayBot(ctx context.Context, sessionID string) (*engine.Session, error) {
	var cell int
	sess, err := s.mutate(ctx, sessionID, func(sess *engine.Session) error {
		if !s.botOnTurn(sess) {
			return errUnchanged
		}
		empty := engine.EmptyCells(sess.Board)
		if len(empty) == 0 {
			return errUnchanged
		}
		cell = empty[s.intn(len(empty))]
		return sess.Apply(sess.SideToMove().ID, cell)
	})
	switch {
	case errors.Is(err, errUnchanged), errors.Is(err, gameerr.ErrSessionNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	s.logger.Debug("bot moved", "session", sessionID, "cell", cell, "status", sess.Status)
	s.publisher.PublishToSession(ctx, sessionID, notify.SessionUpdated(sess))
	return sess, nil
}

func (s *gameServiceImpl) playScheduledBot(ctx context.Context, sessionID string) {
	if _, err := s.MaybePlayBot(ctx, sessionID); err != nil && ctx.Err() == nil {
		s.logger.Warn("bot move failed", "session", sessionID, "error", err)
	}
}

// Forfeit ends the session in favour of the other participant
func (s *gameServiceImpl) Forfeit(ctx context.Context, sessionID, participantID string) (*engine.Session, error) {
	sess, err := s.mutate(ctx, sessionID, func(sess *engine.Session) error {
		p := sess.Participant(participantID)
		if p == nil {
			return gameerr.Newf(gameerr.CodeParticipantNotFound,
				"participant %s is not in this session", participantID).ForSession(sessionID)
		}
		if p.Kind == engine.KindBot {
			return gameerr.New(gameerr.CodeBotParticipant, "the bot cannot forfeit").ForSession(sessionID)
		}
		if sess.Terminal() {
			return errUnchanged
		}
		return sess.Resign(participantID)
	})
	if errors.Is(err, errUnchanged) {
		return sess, nil
	}
	if err != nil {
		return nil, err
	}

	s.bots.cancel(sessionID)
	s.logger.Info("session forfeited", "session", sessionID, "participant", participantID, "status", sess.Status)

	left := notify.Event{
		Type:      notify.EventOpponentLeft,
		SessionID: sessionID,
		Data:      notify.OpponentLeft{ParticipantID: participantID},
	}
	s.publisher.PublishToSession(ctx, sessionID, notify.SessionUpdated(sess))
	s.publisher.PublishToSession(ctx, sessionID, left)
	if sess.Mode == engine.ModeVsRemoteHuman {
		if opponent := sess.Opponent(participantID); opponent != nil {
			s.publisher.PublishToUser(ctx, opponent.ID, left)
		}
	}
	return sess, nil
}

func (s *gameServiceImpl) Update(ctx context.Context, sessionID string, fn func(*engine.Session) error) (*engine.Session, error) {
	sess, err := s.mutate(ctx, sessionID, fn)
	if err != nil {
		return nil, err
	}
	s.publisher.PublishToSession(ctx, sessionID, notify.SessionUpdated(sess))
	return sess, nil
}

// ListPresets returns the available board presets
func (s *gameServiceImpl) ListPresets(ctx context.Context) ([]*config.PresetInfo, error) {
	return s.presets.ListPresets()
}

func (s *gameServiceImpl) DefaultPreset(ctx context.Context) *config.Preset {
	return s.presets.GetDefault()
}

// SavePreset stores a board preset
func (s *gameServiceImpl) SavePreset(ctx context.Context, id string, preset *config.Preset) error {
	return s.presets.SavePreset(id, preset)
}

func (s *gameServiceImpl) Close() {
	s.bots.close()
}

// mutate runs a read-modify-write cycle under the session lock. A stale
// write from another process is retried once on a fresh read. When fn
// returns errUnchanged the unmodified session is returned with it.
func (s *gameServiceImpl) mutate(ctx context.Context, sessionID string, fn func(*engine.Session) error) (*engine.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		sess, err := s.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if err := fn(sess); err != nil {
			if errors.Is(err, errUnchanged) {
				return sess, err
			}
			return nil, err
		}
		sess.UpdatedAt = s.now().UTC()

		err = s.store.Put(ctx, sess)
		if errors.Is(err, gameerr.ErrStaleWrite) && attempt == 0 {
			s.logger.Debug("stale write, retrying", "session", sessionID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

func (s *gameServiceImpl) botOnTurn(sess *engine.Session) bool {
	if sess.Mode != engine.ModeVsBot || sess.Terminal() {
		return false
	}
	p := sess.SideToMove()
	return p != nil && p.Kind == engine.KindBot
}
