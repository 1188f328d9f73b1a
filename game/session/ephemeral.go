package session

import (
	"context"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Ephemeral is the in-memory tier. Sessions expire TTL after creation.
type Ephemeral struct {
	sessions      map[string]*engine.Session
	ttl           time.Duration
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
	mu            sync.Mutex
}

// EphemeralOption configures an Ephemeral tier.
type EphemeralOption func(*Ephemeral)

// WithTTL sets how long a session lives after creation.
func WithTTL(ttl time.Duration) EphemeralOption {
	return func(e *Ephemeral) { e.ttl = ttl }
}

// WithSweepInterval sets the minimum gap between lazy sweeps.
func WithSweepInterval(d time.Duration) EphemeralOption {
	return func(e *Ephemeral) { e.sweepInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EphemeralOption {
	return func(e *Ephemeral) { e.now = now }
}

// NewEphemeral creates an empty in-memory tier.
func NewEphemeral(opts ...EphemeralOption) *Ephemeral {
	e := &Ephemeral{
		sessions:      make(map[string]*engine.Session),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lastSweep = e.now()
	return e
}

func (e *Ephemeral) Get(ctx context.Context, id string) (*engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.maybeSweepLocked(now)

	s, ok := e.sessions[id]
	if !ok || e.expired(s, now) {
		return nil, notFound(id)
	}
	return s.Clone(), nil
}

func (e *Ephemeral) Put(ctx context.Context, s *engine.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.maybeSweepLocked(now)

	current, ok := e.sessions[s.ID]
	if ok && e.expired(current, now) {
		delete(e.sessions, s.ID)
		ok = false
	}

	switch {
	case s.Version == 0 && ok:
		return alreadyExists(s.ID)
	case s.Version != 0 && !ok:
		return notFound(s.ID)
	case ok && current.Version != s.Version:
		return staleWrite(s.ID, s.Version)
	}

	s.Version++
	e.sessions[s.ID] = s.Clone()
	return nil
}

func (e *Ephemeral) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return notFound(id)
	}
	delete(e.sessions, id)
	if e.expired(s, e.now()) {
		return notFound(id)
	}
	return nil
}

// Sweep removes every expired session and returns how many were removed.
func (e *Ephemeral) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.lastSweep = now
	return e.sweepLocked(now)
}

// Count returns the number of stored sessions, including expired ones not
// swept yet.
func (e *Ephemeral) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Ephemeral) maybeSweepLocked(now time.Time) {
	if now.Sub(e.lastSweep) < e.sweepInterval {
		return
	}
	e.lastSweep = now
	e.sweepLocked(now)
}

func (e *Ephemeral) sweepLocked(now time.Time) int {
	removed := 0
	for id, s := range e.sessions {
		if e.expired(s, now) {
			delete(e.sessions, id)
			removed++
		}
	}
	return removed
}

func (e *Ephemeral) expired(s *engine.Session, now time.Time) bool {
	return !now.Before(s.CreatedAt.Add(e.ttl))
}
