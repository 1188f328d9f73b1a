package service

import (
	"context"

	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

// GameService defines all session operations
type GameService interface {
	// Session lifecycle

	// CreateSession stores a new session. When the bot opens it waits for the
	// bot's move, unless ctx ends first, in which case the bot moves in the
	// background and the session is returned as stored.
	CreateSession(ctx context.Context, req CreateRequest) (*engine.Session, error)
	GetSession(ctx context.Context, sessionID string) (*engine.Session, error)
	ListSessions(ctx context.Context, userID string) ([]*engine.Session, error)
	DeleteSession(ctx context.Context, sessionID, actorID string) error

	// Play
	ApplyMove(ctx context.Context, sessionID, participantID string, cell int) (*engine.Session, error)
	MaybePlayBot(ctx context.Context, sessionID string) (*engine.Session, error)
	Forfeit(ctx context.Context, sessionID, participantID string) (*engine.Session, error)

	// Update runs fn on a fresh copy of the session under the session lock
	// and stores the result. Returning an error aborts without writing.
	Update(ctx context.Context, sessionID string, fn func(*engine.Session) error) (*engine.Session, error)

	// Presets
	ListPresets(ctx context.Context) ([]*config.PresetInfo, error)
	DefaultPreset(ctx context.Context) *config.Preset
	SavePreset(ctx context.Context, id string, preset *config.Preset) error

	// Close cancels pending bot moves and waits for them to finish.
	Close()
}

// SessionStore is the storage the service reads and writes through.
// session.Store implements it.
type SessionStore interface {
	Get(ctx context.Context, id string) (*engine.Session, error)
	Put(ctx context.Context, s *engine.Session) error
	Delete(ctx context.Context, id string) error
	ListByParticipant(ctx context.Context, participantID string) ([]*engine.Session, error)
}

// PresetCatalog handles board preset loading. config.Manager implements it.
type PresetCatalog interface {
	LoadPreset(id string) (*config.Preset, error)
	ListPresets() ([]*config.PresetInfo, error)
	GetDefault() *config.Preset
	SavePreset(id string, preset *config.Preset) error
}
