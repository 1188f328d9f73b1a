package session

import (
	"context"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

// Tier is the storage contract shared by both tiers.
type Tier interface {
	// Get returns a copy of the session or SESSION_NOT_FOUND.
	Get(ctx context.Context, id string) (*engine.Session, error)

	// Put inserts a session with Version 0, or replaces one whose stored
	// version equals s.Version. On success s.Version is incremented.
	Put(ctx context.Context, s *engine.Session) error

	// Delete removes a session or returns SESSION_NOT_FOUND.
	Delete(ctx context.Context, id string) error
}

// Durable is a tier that survives restarts and can be searched by player.
type Durable interface {
	Tier

	// ListByParticipant returns the sessions id plays in, newest first.
	ListByParticipant(ctx context.Context, participantID string) ([]*engine.Session, error)
}

// TierKind names a storage tier.
type TierKind string

const (
	TierEphemeral TierKind = "ephemeral"
	TierDurable   TierKind = "durable"
)

// TierFor selects the tier for a session mode.
func TierFor(mode engine.Mode) TierKind {
	if mode == engine.ModeVsRemoteHuman {
		return TierDurable
	}
	return TierEphemeral
}

func notFound(id string) error {
	return gameerr.Newf(gameerr.CodeSessionNotFound, "session %s not found", id).ForSession(id)
}

func staleWrite(id string, version int64) error {
	return gameerr.Newf(gameerr.CodeStaleWrite,
		"session changed since version %d was read", version).ForSession(id)
}

func alreadyExists(id string) error {
	return gameerr.New(gameerr.CodeAlreadyExists, "session already exists").ForSession(id)
}

func unavailable(id, op string, cause error) error {
	return gameerr.Wrap(gameerr.CodeStoreUnavailable, "session store unavailable during "+op, cause).ForSession(id)
}

// ErrSessionNotFound matches every not-found error returned by a tier.
var ErrSessionNotFound = gameerr.ErrSessionNotFound
