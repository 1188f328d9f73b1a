package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

func TestEphemeral_PutGet(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: testNow}
	e := NewEphemeral(WithClock(clock.Now))

	s := newTestSession("local", engine.ModeVsLocalHuman, "alice", "bob")
	if err := e.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	got, err := e.Get(ctx, "local")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Expected version 1, got %d", got.Version)
	}

	// Mutating the returned copy must not touch the stored one.
	got.Board[0] = engine.MarkO
	again, _ := e.Get(ctx, "local")
	if again.Board[0] != engine.Empty {
		t.Error("Store shares its board slice with callers")
	}

	// Nor may the caller's original.
	s.Board[1] = engine.MarkX
	again, _ = e.Get(ctx, "local")
	if again.Board[1] != engine.Empty {
		t.Error("Store kept a reference to the inserted session")
	}
}

func TestEphemeral_Versioning(t *testing.T) {
	ctx := context.Background()
	e := NewEphemeral()

	s := newTestSession("v", engine.ModeVsBot, "alice", "bot")
	if err := e.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	if err := e.Put(ctx, newTestSession("v", engine.ModeVsBot, "alice", "bot")); !errors.Is(err, gameerr.ErrAlreadyExists) {
		t.Errorf("Expected ALREADY_EXISTS, got %v", err)
	}

	a, _ := e.Get(ctx, "v")
	b, _ := e.Get(ctx, "v")
	if err := e.Put(ctx, a); err != nil {
		t.Fatalf("Failed to write first copy: %v", err)
	}
	if err := e.Put(ctx, b); !errors.Is(err, gameerr.ErrStaleWrite) {
		t.Errorf("Expected STALE_WRITE, got %v", err)
	}
}

func TestEphemeral_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: testNow}
	e := NewEphemeral(WithClock(clock.Now), WithTTL(24*time.Hour), WithSweepInterval(time.Hour))

	s := newTestSession("old", engine.ModeVsBot, "alice", "bot")
	if err := e.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	// Activity does not extend the lifetime.
	clock.Advance(23 * time.Hour)
	if _, err := e.Get(ctx, "old"); err != nil {
		t.Fatalf("Session should still be live: %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := e.Get(ctx, "old"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected expired session to read as not found, got %v", err)
	}
	if e.Count() != 0 {
		t.Errorf("Expected lazy sweep to drop the expired session, %d left", e.Count())
	}
}

func TestEphemeral_LazySweepIsRateLimited(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: testNow}
	e := NewEphemeral(WithClock(clock.Now), WithTTL(time.Minute), WithSweepInterval(time.Hour))

	for _, id := range []string{"a", "b", "c"} {
		if err := e.Put(ctx, newTestSession(id, engine.ModeVsBot, "alice", "bot")); err != nil {
			t.Fatalf("Failed to put %s: %v", id, err)
		}
	}

	clock.Advance(2 * time.Minute)
	if _, err := e.Get(ctx, "a"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected expired session, got %v", err)
	}
	if e.Count() != 3 {
		t.Errorf("No sweep should run before the interval, got %d sessions", e.Count())
	}

	clock.Advance(time.Hour)
	if _, err := e.Get(ctx, "a"); err == nil {
		t.Error("Expected expired session to stay gone")
	}
	if e.Count() != 0 {
		t.Errorf("Expected the interval sweep to remove everything, got %d", e.Count())
	}
}

func TestEphemeral_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: testNow}
	e := NewEphemeral(WithClock(clock.Now), WithTTL(time.Hour))

	if err := e.Put(ctx, newTestSession("early", engine.ModeVsBot, "alice", "bot")); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	later := newTestSession("late", engine.ModeVsBot, "alice", "bot")
	later.CreatedAt = testNow.Add(30 * time.Minute)
	if err := e.Put(ctx, later); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	clock.Advance(time.Hour)
	if removed := e.Sweep(); removed != 1 {
		t.Errorf("Expected 1 session swept, got %d", removed)
	}
	if _, err := e.Get(ctx, "late"); err != nil {
		t.Errorf("Expected late session to survive: %v", err)
	}
}

func TestEphemeral_Delete(t *testing.T) {
	ctx := context.Background()
	e := NewEphemeral()
	if err := e.Put(ctx, newTestSession("d", engine.ModeVsBot, "alice", "bot")); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	if err := e.Delete(ctx, "d"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if err := e.Delete(ctx, "d"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestEphemeral_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEphemeral()
	if _, err := e.Get(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEphemeral_Concurrency(t *testing.T) {
	ctx := context.Background()
	e := NewEphemeral()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + string(rune('0'+i/26))
			s := newTestSession(id, engine.ModeVsBot, "alice", "bot")
			if err := e.Put(ctx, s); err != nil {
				t.Errorf("Failed to put %s: %v", id, err)
				return
			}
			if _, err := e.Get(ctx, id); err != nil {
				t.Errorf("Failed to get %s: %v", id, err)
			}
			e.Sweep()
		}(i)
	}
	wg.Wait()

	if e.Count() != 50 {
		t.Errorf("Expected 50 sessions, got %d", e.Count())
	}
}
