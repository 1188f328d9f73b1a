package session

import (
	"context"
	"errors"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

// Store puts each session on the tier TierFor picks for its mode.
type Store struct {
	ephemeral *Ephemeral
	durable   Durable
}

// NewStore combines the two tiers. durable may be nil, in which case remote
// sessions cannot be stored.
func NewStore(ephemeral *Ephemeral, durable Durable) *Store {
	if ephemeral == nil {
		ephemeral = NewEphemeral()
	}
	return &Store{ephemeral: ephemeral, durable: durable}
}

// Ephemeral exposes the in-memory tier for the background sweeper.
func (st *Store) Ephemeral() *Ephemeral {
	return st.ephemeral
}

// Get checks the ephemeral tier, then the durable one.
func (st *Store) Get(ctx context.Context, id string) (*engine.Session, error) {
	s, err := st.ephemeral.Get(ctx, id)
	if err == nil || !errors.Is(err, ErrSessionNotFound) {
		return s, err
	}
	if st.durable == nil {
		return nil, err
	}
	return st.durable.Get(ctx, id)
}

func (st *Store) Put(ctx context.Context, s *engine.Session) error {
	tier, err := st.tier(s.ID, TierFor(s.Mode))
	if err != nil {
		return err
	}
	return tier.Put(ctx, s)
}

// Delete removes the session from whichever tier holds it.
func (st *Store) Delete(ctx context.Context, id string) error {
	s, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	tier, err := st.tier(id, TierFor(s.Mode))
	if err != nil {
		return err
	}
	return tier.Delete(ctx, id)
}

// ListByParticipant lists durable sessions only. Ephemeral sessions are not
// indexed by player.
func (st *Store) ListByParticipant(ctx context.Context, participantID string) ([]*engine.Session, error) {
	if st.durable == nil {
		return nil, nil
	}
	return st.durable.ListByParticipant(ctx, participantID)
}

func (st *Store) tier(id string, kind TierKind) (Tier, error) {
	if kind == TierEphemeral {
		return st.ephemeral, nil
	}
	if st.durable == nil {
		return nil, gameerr.New(gameerr.CodeStoreUnavailable, "no durable store configured").ForSession(id)
	}
	return st.durable, nil
}
