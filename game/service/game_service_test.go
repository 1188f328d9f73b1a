package service_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
	"github.com/wricardo/mcp-training/gridduel/game/service"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("local defaults", func(t *testing.T) {
		sess, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsLocalHuman})
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if sess.Width != 3 || sess.Height != 3 {
			t.Errorf("Expected default 3x3 board, got %dx%d", sess.Width, sess.Height)
		}
		if sess.CurrentTurn != engine.MarkX || sess.Status != engine.StatusInProgress {
			t.Errorf("Expected X to open an in-progress game, got %s %s", sess.CurrentTurn, sess.Status)
		}
		first, second := sess.Participants[0], sess.Participants[1]
		if first.ID == "" || second.ID == "" || first.ID == second.ID {
			t.Errorf("Expected two generated ids, got %q %q", first.ID, second.ID)
		}
		if first.DisplayName != "Player 1" || second.DisplayName != "Player 2" {
			t.Errorf("Unexpected default names %q %q", first.DisplayName, second.DisplayName)
		}
		if first.Mark != engine.MarkX || second.Mark != engine.MarkO {
			t.Errorf("Expected first participant on X, got %s", first.Mark)
		}
		if !sess.InvitationAccepted {
			t.Error("Local sessions are playable immediately")
		}
		if sess.Version != 1 {
			t.Errorf("Expected stored version 1, got %d", sess.Version)
		}
	})

	t.Run("chosen mark O gives the other side X", func(t *testing.T) {
		sess, err := env.svc.CreateSession(ctx, service.CreateRequest{
			Mode:       engine.ModeVsLocalHuman,
			ChosenMark: "o",
			First:      service.ParticipantSpec{ID: "alice"},
			Second:     service.ParticipantSpec{ID: "bob"},
		})
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if sess.Participant("alice").Mark != engine.MarkO || sess.Participant("bob").Mark != engine.MarkX {
			t.Errorf("Expected alice=O bob=X, got %+v", sess.Participants)
		}
		if sess.SideToMove().ID != "bob" {
			t.Errorf("Expected bob (X) to move first, got %s", sess.SideToMove().ID)
		}
	})

	t.Run("explicit size and preset", func(t *testing.T) {
		sized, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsLocalHuman, Width: 7, Height: 4})
		if err != nil {
			t.Fatalf("Failed to create sized session: %v", err)
		}
		if len(sized.Board) != 28 {
			t.Errorf("Expected 28 cells, got %d", len(sized.Board))
		}

		preset, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsLocalHuman, Preset: "four"})
		if err != nil {
			t.Fatalf("Failed to create preset session: %v", err)
		}
		if preset.Width != 4 || preset.Height != 4 {
			t.Errorf("Expected 4x4 from preset, got %dx%d", preset.Width, preset.Height)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name     string
			req      service.CreateRequest
			expected *gameerr.Error
		}{
			{"unknown mode", service.CreateRequest{Mode: "vs_cat"}, gameerr.ErrInvalidMode},
			{"bad mark", service.CreateRequest{Mode: engine.ModeVsBot, ChosenMark: "Z"}, gameerr.ErrInvalidMark},
			{"too small", service.CreateRequest{Mode: engine.ModeVsBot, Width: 2, Height: 3}, gameerr.ErrInvalidSize},
			{"too large", service.CreateRequest{Mode: engine.ModeVsBot, Width: 21, Height: 21}, gameerr.ErrInvalidSize},
			{"half a size", service.CreateRequest{Mode: engine.ModeVsBot, Width: 5}, gameerr.ErrInvalidSize},
			{"unknown preset", service.CreateRequest{Mode: engine.ModeVsBot, Preset: "galaxy"}, gameerr.ErrPresetNotFound},
			{"remote without ids", service.CreateRequest{Mode: engine.ModeVsRemoteHuman}, gameerr.ErrInvalidInput},
			{"remote against self", service.CreateRequest{
				Mode:   engine.ModeVsRemoteHuman,
				First:  service.ParticipantSpec{ID: "alice"},
				Second: service.ParticipantSpec{ID: "alice"},
			}, gameerr.ErrInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.svc.CreateSession(ctx, tt.req)
				if !errors.Is(err, tt.expected) {
					t.Errorf("Expected %s, got %v", tt.expected.Code, err)
				}
			})
		}
	})

	t.Run("remote sessions wait for the invitation", func(t *testing.T) {
		sess := env.createRemote(t, false)
		if sess.InvitationAccepted {
			t.Error("Expected pending invitation")
		}
		if sess.Participant("alice").DisplayName != "Alice" {
			t.Errorf("Expected display name Alice, got %s", sess.Participant("alice").DisplayName)
		}
		listed, err := env.svc.ListSessions(ctx, "bob")
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		if len(listed) != 1 || listed[0].ID != sess.ID {
			t.Errorf("Expected the remote session to be listed for bob, got %d sessions", len(listed))
		}
	})
}

func TestCreateSession_BotOpensWhenItHoldsX(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.svc.CreateSession(context.Background(), service.CreateRequest{
		Mode:       engine.ModeVsBot,
		ChosenMark: "O",
		First:      service.ParticipantSpec{ID: "alice"},
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	bot := sess.ParticipantByMark(engine.MarkX)
	if bot.Kind != engine.KindBot {
		t.Fatalf("Expected the bot on X, got %+v", bot)
	}
	if sess.Board[0] != engine.MarkX {
		t.Errorf("Expected the bot's opening in cell 0, got %v", sess.Board)
	}
	if sess.CurrentTurn != engine.MarkO {
		t.Errorf("Expected alice to be on turn, got %s", sess.CurrentTurn)
	}
	if env.recorder.Count(notify.EventSessionUpdated) != 1 {
		t.Errorf("Expected the bot move to be published once, got %d", env.recorder.Count(notify.EventSessionUpdated))
	}
}

func TestCreateSession_CancelledDuringBotDelay(t *testing.T) {
	env := newTestEnv(t, service.WithBotDelay(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsBot, ChosenMark: "O"})
	if err != nil {
		t.Fatalf("Expected the stored session despite the cancelled wait, got %v", err)
	}
	if sess == nil || sess.ID == "" {
		t.Fatal("Expected a session to be returned")
	}
	if got := len(engine.EmptyCells(sess.Board)); got != 9 {
		t.Errorf("Expected the returned session before the bot opened, got %d empty cells", got)
	}

	// The bot opens in the background.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := env.svc.GetSession(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if len(engine.EmptyCells(stored.Board)) == 8 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Expected the bot to open after the caller stopped waiting")
}

func TestApplyMove_ThreeByThreeWin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.createLocal(t)

	players := []string{"alice", "bob"}
	var err error
	for i, cell := range []int{0, 3, 1, 4, 2} {
		sess, err = env.svc.ApplyMove(ctx, sess.ID, players[i%2], cell)
		if err != nil {
			t.Fatalf("Move %d failed: %v", i+1, err)
		}
	}

	if sess.Status != engine.StatusXWins {
		t.Fatalf("Expected x_wins, got %s", sess.Status)
	}
	if !reflect.DeepEqual(sess.WinningLine, []int{0, 1, 2}) {
		t.Errorf("Expected winning line [0 1 2], got %v", sess.WinningLine)
	}
	if got := len(env.recorder.ToSession(sess.ID)); got != 5 {
		t.Errorf("Expected one session_updated per move, got %d", got)
	}

	_, err = env.svc.ApplyMove(ctx, sess.ID, "bob", 8)
	if !errors.Is(err, gameerr.ErrGameOver) {
		t.Errorf("Expected GAME_OVER after the win, got %v", err)
	}
	stored, _ := env.svc.GetSession(ctx, sess.ID)
	if stored.Board[8] != engine.Empty {
		t.Error("A finished board must not change")
	}
}

func TestApplyMove_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("missing session", func(t *testing.T) {
		_, err := env.svc.ApplyMove(ctx, "nope", "alice", 0)
		if !errors.Is(err, gameerr.ErrSessionNotFound) {
			t.Errorf("Expected SESSION_NOT_FOUND, got %v", err)
		}
	})

	t.Run("wrong turn leaves state unchanged", func(t *testing.T) {
		sess := env.createLocal(t)
		_, err := env.svc.ApplyMove(ctx, sess.ID, "bob", 0)
		if !errors.Is(err, gameerr.ErrWrongTurn) {
			t.Fatalf("Expected WRONG_TURN, got %v", err)
		}
		stored, _ := env.svc.GetSession(ctx, sess.ID)
		if stored.Version != sess.Version {
			t.Errorf("Rejected move must not write, version %d -> %d", sess.Version, stored.Version)
		}
	})

	t.Run("unknown participant", func(t *testing.T) {
		sess := env.createLocal(t)
		_, err := env.svc.ApplyMove(ctx, sess.ID, "mallory", 0)
		if !errors.Is(err, gameerr.ErrParticipantNotFound) {
			t.Errorf("Expected PARTICIPANT_NOT_FOUND, got %v", err)
		}
	})

	t.Run("bot cannot be driven", func(t *testing.T) {
		sess, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsBot, First: service.ParticipantSpec{ID: "alice"}})
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		bot := sess.ParticipantByMark(engine.MarkO)
		_, err = env.svc.ApplyMove(ctx, sess.ID, bot.ID, 0)
		if !errors.Is(err, gameerr.ErrBotParticipant) {
			t.Errorf("Expected BOT_PARTICIPANT, got %v", err)
		}
		if gameerr.KindOf(err) != gameerr.KindUnauthorized {
			t.Errorf("Expected unauthorized kind, got %s", gameerr.KindOf(err))
		}
	})

	t.Run("pending invitation", func(t *testing.T) {
		sess := env.createRemote(t, false)
		_, err := env.svc.ApplyMove(ctx, sess.ID, "alice", 0)
		if !errors.Is(err, gameerr.ErrInvitationPending) {
			t.Fatalf("Expected INVITATION_PENDING, got %v", err)
		}

		_, err = env.svc.Update(ctx, sess.ID, func(s *engine.Session) error {
			s.InvitationAccepted = true
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to accept invitation: %v", err)
		}
		if _, err := env.svc.ApplyMove(ctx, sess.ID, "alice", 0); err != nil {
			t.Errorf("Expected move after acceptance to succeed: %v", err)
		}
	})
}

func TestApplyMove_BotReplies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sess, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsBot, First: service.ParticipantSpec{ID: "alice"}})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	sess, err = env.svc.ApplyMove(ctx, sess.ID, "alice", 4)
	if err != nil {
		t.Fatalf("Failed to move: %v", err)
	}
	if sess.CurrentTurn != engine.MarkO {
		t.Fatalf("Expected the bot on turn right after the move, got %s", sess.CurrentTurn)
	}

	waitFor(t, "bot reply", func() bool {
		s, err := env.svc.GetSession(ctx, sess.ID)
		return err == nil && s.CurrentTurn == engine.MarkX
	})

	stored, _ := env.svc.GetSession(ctx, sess.ID)
	if stored.Board[0] != engine.MarkO {
		t.Errorf("Expected the bot to take the first empty cell, got %v", stored.Board)
	}
}

func TestMaybePlayBot_NoOps(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if sess, err := env.svc.MaybePlayBot(ctx, "missing"); sess != nil || err != nil {
		t.Errorf("Expected silent no-op for a missing session, got %v %v", sess, err)
	}

	local := env.createLocal(t)
	if sess, err := env.svc.MaybePlayBot(ctx, local.ID); sess != nil || err != nil {
		t.Errorf("Expected no-op without a bot, got %v %v", sess, err)
	}

	bot, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsBot})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if sess, err := env.svc.MaybePlayBot(ctx, bot.ID); sess != nil || err != nil {
		t.Errorf("Expected no-op while the human is on turn, got %v %v", sess, err)
	}
}

func TestForfeit(t *testing.T) {
	ctx := context.Background()

	t.Run("local session", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createLocal(t)

		got, err := env.svc.Forfeit(ctx, sess.ID, "alice")
		if err != nil {
			t.Fatalf("Failed to forfeit: %v", err)
		}
		if got.Status != engine.StatusOWins || got.WinnerParticipantID != "bob" {
			t.Errorf("Expected bob to win by forfeit, got %s %s", got.Status, got.WinnerParticipantID)
		}
		if env.recorder.Count(notify.EventOpponentLeft) != 1 {
			t.Errorf("Expected one opponent_left to the session group, got %d", env.recorder.Count(notify.EventOpponentLeft))
		}
	})

	t.Run("remote session notifies the opponent", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createRemote(t, true)

		if _, err := env.svc.Forfeit(ctx, sess.ID, "bob"); err != nil {
			t.Fatalf("Failed to forfeit: %v", err)
		}
		toAlice := env.recorder.ToUser("alice")
		if len(toAlice) != 1 || toAlice[0].Type != notify.EventOpponentLeft {
			t.Fatalf("Expected opponent_left for alice, got %+v", toAlice)
		}
		if data := toAlice[0].Data.(notify.OpponentLeft); data.ParticipantID != "bob" {
			t.Errorf("Expected bob as the leaver, got %s", data.ParticipantID)
		}
	})

	t.Run("already finished", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createLocal(t)
		if _, err := env.svc.Forfeit(ctx, sess.ID, "alice"); err != nil {
			t.Fatalf("Failed to forfeit: %v", err)
		}
		env.recorder.Reset()

		got, err := env.svc.Forfeit(ctx, sess.ID, "bob")
		if err != nil {
			t.Fatalf("Second forfeit should succeed: %v", err)
		}
		if got.WinnerParticipantID != "bob" {
			t.Errorf("Second forfeit must not change the result, winner %s", got.WinnerParticipantID)
		}
		if len(env.recorder.Deliveries()) != 0 {
			t.Errorf("Expected no events for a no-op forfeit, got %d", len(env.recorder.Deliveries()))
		}
	})

	t.Run("non participant", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createLocal(t)
		if _, err := env.svc.Forfeit(ctx, sess.ID, "mallory"); !errors.Is(err, gameerr.ErrParticipantNotFound) {
			t.Errorf("Expected PARTICIPANT_NOT_FOUND, got %v", err)
		}
	})

	t.Run("cancels the pending bot move", func(t *testing.T) {
		env := newTestEnv(t, service.WithBotDelay(50*time.Millisecond))
		sess, err := env.svc.CreateSession(ctx, service.CreateRequest{Mode: engine.ModeVsBot, First: service.ParticipantSpec{ID: "alice"}})
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if _, err := env.svc.ApplyMove(ctx, sess.ID, "alice", 4); err != nil {
			t.Fatalf("Failed to move: %v", err)
		}
		if _, err := env.svc.Forfeit(ctx, sess.ID, "alice"); err != nil {
			t.Fatalf("Failed to forfeit: %v", err)
		}

		time.Sleep(100 * time.Millisecond)
		stored, _ := env.svc.GetSession(ctx, sess.ID)
		if len(engine.EmptyCells(stored.Board)) != 8 {
			t.Errorf("Bot must not move after a forfeit, board %v", stored.Board)
		}
	})
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for _, sess := range []*engine.Session{env.createLocal(t), env.createRemote(t, true)} {
		if err := env.svc.DeleteSession(ctx, sess.ID, "mallory"); !errors.Is(err, gameerr.ErrNotParticipant) {
			t.Errorf("Expected NOT_PARTICIPANT, got %v", err)
		}
		if err := env.svc.DeleteSession(ctx, sess.ID, "bob"); err != nil {
			t.Fatalf("Failed to delete %s session: %v", sess.Mode, err)
		}
		if _, err := env.svc.GetSession(ctx, sess.ID); !errors.Is(err, gameerr.ErrSessionNotFound) {
			t.Errorf("Expected deleted session to be gone, got %v", err)
		}
	}

	if err := env.svc.DeleteSession(ctx, "nope", "bob"); !errors.Is(err, gameerr.ErrSessionNotFound) {
		t.Errorf("Expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestApplyMove_ConcurrentMovesAreSerialized(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.createRemote(t, true)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for cell := 0; cell < 9; cell++ {
		wg.Add(1)
		go func(cell int) {
			defer wg.Done()
			_, err := env.svc.ApplyMove(ctx, sess.ID, "alice", cell)
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, gameerr.ErrWrongTurn):
				t.Errorf("Expected WRONG_TURN for the losers, got %v", err)
			}
		}(cell)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly one move to land, got %d", succeeded)
	}
}

func TestApplyMove_StaleWriteRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient conflict is retried", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createRemote(t, true)
		env.store.PutFunc = func(_ context.Context, _ *engine.Session, call int) error {
			if call == 2 {
				return gameerr.New(gameerr.CodeStaleWrite, "simulated")
			}
			return nil
		}

		got, err := env.svc.ApplyMove(ctx, sess.ID, "alice", 4)
		if err != nil {
			t.Fatalf("Expected the retry to succeed: %v", err)
		}
		if got.Board[4] != engine.MarkX {
			t.Errorf("Expected X on cell 4, got %v", got.Board)
		}
	})

	t.Run("another writer's move surfaces as wrong turn", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createRemote(t, true)
		env.store.PutFunc = func(ctx context.Context, _ *engine.Session, call int) error {
			if call != 2 {
				return nil
			}
			// Another process lands alice's move first.
			other, err := env.store.Store.Get(ctx, sess.ID)
			if err != nil {
				return err
			}
			if err := other.Apply("alice", 8); err != nil {
				return err
			}
			return env.store.Store.Put(ctx, other)
		}

		_, err := env.svc.ApplyMove(ctx, sess.ID, "alice", 0)
		if !errors.Is(err, gameerr.ErrWrongTurn) {
			t.Fatalf("Expected WRONG_TURN after losing the race, got %v", err)
		}
		stored, _ := env.svc.GetSession(ctx, sess.ID)
		if stored.Board[8] != engine.MarkX || stored.Board[0] != engine.Empty {
			t.Errorf("Expected only the other writer's move, got %v", stored.Board)
		}
	})

	t.Run("persistent conflict gives up", func(t *testing.T) {
		env := newTestEnv(t)
		sess := env.createRemote(t, true)
		env.store.PutFunc = func(context.Context, *engine.Session, int) error {
			return gameerr.New(gameerr.CodeStaleWrite, "simulated")
		}
		_, err := env.svc.ApplyMove(ctx, sess.ID, "alice", 0)
		if !errors.Is(err, gameerr.ErrStaleWrite) {
			t.Errorf("Expected STALE_WRITE after one retry, got %v", err)
		}
	})
}

func TestPresets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	presets, err := env.svc.ListPresets(ctx)
	if err != nil {
		t.Fatalf("Failed to list presets: %v", err)
	}
	if len(presets) != 2 {
		t.Errorf("Expected 2 presets, got %d", len(presets))
	}
	if env.svc.DefaultPreset(ctx).ID != "classic" {
		t.Errorf("Expected classic default, got %s", env.svc.DefaultPreset(ctx).ID)
	}
}
