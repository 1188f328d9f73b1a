package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/storage"
)

func newSQLiteTier(t *testing.T) Durable {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLitePersistence(db)
}

func newFileTier(t *testing.T) Durable {
	t.Helper()
	fp, err := NewFilePersistence(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	return fp
}

func TestDurableTiers(t *testing.T) {
	tiers := map[string]func(*testing.T) Durable{
		"sqlite": newSQLiteTier,
		"file":   newFileTier,
	}
	for name, open := range tiers {
		t.Run(name, func(t *testing.T) {
			t.Run("put and get round trip", func(t *testing.T) { testRoundTrip(t, open(t)) })
			t.Run("optimistic versioning", func(t *testing.T) { testVersioning(t, open(t)) })
			t.Run("delete", func(t *testing.T) { testDelete(t, open(t)) })
			t.Run("list by participant", func(t *testing.T) { testListByParticipant(t, open(t)) })
			t.Run("concurrent writers", func(t *testing.T) { testConcurrentWriters(t, open(t)) })
		})
	}
}

func testRoundTrip(t *testing.T, tier Durable) {
	ctx := context.Background()
	s := newTestSession("rt", engine.ModeVsRemoteHuman, "alice", "bob")
	s.Participants[0], s.Participants[1] = s.Participants[1], s.Participants[0]

	if err := tier.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	if s.Version != 1 {
		t.Errorf("Expected version 1 after insert, got %d", s.Version)
	}

	if err := s.Apply("alice", 0); err != nil {
		t.Fatalf("Failed to apply move: %v", err)
	}
	for _, step := range []struct {
		who  string
		cell int
	}{{"bob", 3}, {"alice", 1}, {"bob", 4}, {"alice", 2}} {
		if err := s.Apply(step.who, step.cell); err != nil {
			t.Fatalf("Failed to apply move: %v", err)
		}
	}
	s.UpdatedAt = testNow.Add(time.Minute)
	if err := tier.Put(ctx, s); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}

	loaded, err := tier.Get(ctx, "rt")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if loaded.Version != 2 {
		t.Errorf("Expected version 2, got %d", loaded.Version)
	}
	if !reflect.DeepEqual(loaded.Board, s.Board) {
		t.Errorf("Expected board %v, got %v", s.Board, loaded.Board)
	}
	if loaded.Participants != s.Participants {
		t.Errorf("Expected participants %+v, got %+v", s.Participants, loaded.Participants)
	}
	if loaded.Status != engine.StatusXWins || loaded.WinnerParticipantID != "alice" {
		t.Errorf("Expected alice to have won, got %s %s", loaded.Status, loaded.WinnerParticipantID)
	}
	if !reflect.DeepEqual(loaded.WinningLine, []int{0, 1, 2}) {
		t.Errorf("Expected winning line [0 1 2], got %v", loaded.WinningLine)
	}
	if !loaded.CreatedAt.Equal(testNow) || !loaded.UpdatedAt.Equal(testNow.Add(time.Minute)) {
		t.Errorf("Timestamps not persisted: %v %v", loaded.CreatedAt, loaded.UpdatedAt)
	}
	if loaded.InvitationAccepted {
		t.Error("Expected invitation to still be pending")
	}

	if _, err := tier.Get(ctx, "missing"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected SESSION_NOT_FOUND, got %v", err)
	}
}

func testVersioning(t *testing.T, tier Durable) {
	ctx := context.Background()
	s := newTestSession("ver", engine.ModeVsRemoteHuman, "alice", "bob")
	if err := tier.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	dup := newTestSession("ver", engine.ModeVsRemoteHuman, "carol", "dave")
	if err := tier.Put(ctx, dup); !errors.Is(err, gameerr.ErrAlreadyExists) {
		t.Errorf("Expected ALREADY_EXISTS on second insert, got %v", err)
	}

	first, _ := tier.Get(ctx, "ver")
	second, _ := tier.Get(ctx, "ver")

	if err := first.Apply("alice", 4); err != nil {
		t.Fatalf("Failed to apply move: %v", err)
	}
	if err := tier.Put(ctx, first); err != nil {
		t.Fatalf("Failed to write first copy: %v", err)
	}

	if err := second.Apply("alice", 0); err != nil {
		t.Fatalf("Failed to apply move: %v", err)
	}
	err := tier.Put(ctx, second)
	if !errors.Is(err, gameerr.ErrStaleWrite) {
		t.Fatalf("Expected STALE_WRITE, got %v", err)
	}
	if second.Version != 1 {
		t.Errorf("Rejected write must not bump the caller's version, got %d", second.Version)
	}

	stored, _ := tier.Get(ctx, "ver")
	if stored.Board[4] != engine.MarkX || stored.Board[0] != engine.Empty {
		t.Errorf("Expected the first write to win, got %v", stored.Board)
	}

	ghost := newTestSession("ghost", engine.ModeVsRemoteHuman, "alice", "bob")
	ghost.Version = 3
	if err := tier.Put(ctx, ghost); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected SESSION_NOT_FOUND updating a missing session, got %v", err)
	}
}

func testDelete(t *testing.T, tier Durable) {
	ctx := context.Background()
	s := newTestSession("del", engine.ModeVsRemoteHuman, "alice", "bob")
	if err := tier.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	if err := tier.Delete(ctx, "del"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if _, err := tier.Get(ctx, "del"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected deleted session to be gone, got %v", err)
	}
	if err := tier.Delete(ctx, "del"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected SESSION_NOT_FOUND on second delete, got %v", err)
	}

	// The id can be reused after deletion.
	again := newTestSession("del", engine.ModeVsRemoteHuman, "alice", "bob")
	if err := tier.Put(ctx, again); err != nil {
		t.Errorf("Failed to reuse deleted id: %v", err)
	}
}

func testListByParticipant(t *testing.T, tier Durable) {
	ctx := context.Background()
	older := newTestSession("older", engine.ModeVsRemoteHuman, "alice", "bob")
	newer := newTestSession("newer", engine.ModeVsRemoteHuman, "carol", "alice")
	newer.CreatedAt = testNow.Add(time.Hour)
	other := newTestSession("other", engine.ModeVsRemoteHuman, "carol", "dave")

	for _, s := range []*engine.Session{older, newer, other} {
		if err := tier.Put(ctx, s); err != nil {
			t.Fatalf("Failed to put %s: %v", s.ID, err)
		}
	}

	sessions, err := tier.ListByParticipant(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions for alice, got %d", len(sessions))
	}
	if sessions[0].ID != "newer" || sessions[1].ID != "older" {
		t.Errorf("Expected newest first, got %s, %s", sessions[0].ID, sessions[1].ID)
	}
	if sessions[0].Participant("carol") == nil {
		t.Error("Expected participants to be loaded with listed sessions")
	}

	none, err := tier.ListByParticipant(ctx, "nobody")
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no sessions, got %d", len(none))
	}
}

func testConcurrentWriters(t *testing.T, tier Durable) {
	ctx := context.Background()
	s := newTestSession("race", engine.ModeVsRemoteHuman, "alice", "bob")
	if err := tier.Put(ctx, s); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(cell int) {
			defer wg.Done()
			cp := s.Clone()
			if err := cp.Apply("alice", cell); err != nil {
				t.Errorf("Failed to apply move: %v", err)
				return
			}
			err := tier.Put(ctx, cp)
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, gameerr.ErrStaleWrite):
				t.Errorf("Expected STALE_WRITE for losers, got %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly one writer to win, got %d", succeeded)
	}
	stored, err := tier.Get(ctx, "race")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got := len(engine.EmptyCells(stored.Board)); got != 8 {
		t.Errorf("Expected exactly one mark on the board, got %d empty cells", got)
	}
}

func TestSQLitePersistence_CorruptRow(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	tier := NewSQLitePersistence(db)

	for _, s := range []*engine.Session{
		newTestSession("bad-board", engine.ModeVsRemoteHuman, "alice", "bob"),
		newTestSession("bad-line", engine.ModeVsRemoteHuman, "carol", "dave"),
	} {
		if err := tier.Put(ctx, s); err != nil {
			t.Fatalf("Failed to put %s: %v", s.ID, err)
		}
	}
	if _, err := db.ExecContext(ctx, `UPDATE sessions SET board = 'XO?' WHERE id = 'bad-board'`); err != nil {
		t.Fatalf("Failed to corrupt board: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE sessions SET winning_line = '0,x,2' WHERE id = 'bad-line'`); err != nil {
		t.Fatalf("Failed to corrupt winning line: %v", err)
	}

	for _, id := range []string{"bad-board", "bad-line"} {
		_, err := tier.Get(ctx, id)
		if err == nil {
			t.Fatalf("Expected decode error for %s", id)
		}
		if kind := gameerr.KindOf(err); kind != gameerr.KindInternal {
			t.Errorf("Expected %s to decode as an internal error, got %s: %v", id, kind, err)
		}
		if errors.Is(err, gameerr.ErrStoreUnavailable) {
			t.Errorf("Expected %s not to report the store unavailable: %v", id, err)
		}
	}

	_, err = tier.ListByParticipant(ctx, "alice")
	if kind := gameerr.KindOf(err); err == nil || kind != gameerr.KindInternal {
		t.Errorf("Expected listing a corrupt row to fail as internal, got %v", err)
	}
}

func TestFilePersistence_CorruptFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	fp, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	_, err = fp.Get(context.Background(), "broken")
	if err == nil {
		t.Fatal("Expected decode error for a corrupt file")
	}
	if kind := gameerr.KindOf(err); kind != gameerr.KindInternal {
		t.Errorf("Expected an internal error, got %s: %v", kind, err)
	}
}
