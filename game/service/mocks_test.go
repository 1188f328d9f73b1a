package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
	"github.com/wricardo/mcp-training/gridduel/game/service"
	"github.com/wricardo/mcp-training/gridduel/game/session"
)

// MockSessionStore wraps a real store and lets tests intercept writes
type MockSessionStore struct {
	*session.Store

	mu      sync.Mutex
	puts    int
	PutFunc func(ctx context.Context, s *engine.Session, call int) error
}

func (m *MockSessionStore) Put(ctx context.Context, s *engine.Session) error {
	m.mu.Lock()
	m.puts++
	call := m.puts
	hook := m.PutFunc
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, s, call); err != nil {
			return err
		}
	}
	return m.Store.Put(ctx, s)
}

// MockPresetCatalog implements service.PresetCatalog for testing
type MockPresetCatalog struct {
	presets map[string]*config.Preset
}

func NewMockPresetCatalog() *MockPresetCatalog {
	return &MockPresetCatalog{
		presets: map[string]*config.Preset{
			"classic": {ID: "classic", Name: "Classic", Description: "3x3", Width: 3, Height: 3},
			"four":    {ID: "four", Name: "Four", Description: "4x4", Width: 4, Height: 4},
		},
	}
}

func (m *MockPresetCatalog) LoadPreset(id string) (*config.Preset, error) {
	p, ok := m.presets[id]
	if !ok {
		return nil, gameerr.Newf(gameerr.CodePresetNotFound, "preset %q not found", id)
	}
	return p, nil
}

func (m *MockPresetCatalog) ListPresets() ([]*config.PresetInfo, error) {
	var out []*config.PresetInfo
	for _, id := range []string{"classic", "four"} {
		if p, ok := m.presets[id]; ok {
			out = append(out, p.Info())
		}
	}
	return out, nil
}

func (m *MockPresetCatalog) GetDefault() *config.Preset {
	return m.presets["classic"]
}

func (m *MockPresetCatalog) SavePreset(id string, preset *config.Preset) error {
	if err := config.ValidatePreset(preset); err != nil {
		return err
	}
	cp := *preset
	cp.ID = id
	m.presets[id] = &cp
	return nil
}

type testEnv struct {
	svc      service.GameService
	store    *MockSessionStore
	recorder *notify.Recorder
}

func newTestEnv(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()
	durable, err := session.NewFilePersistence(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("Failed to create durable tier: %v", err)
	}
	store := &MockSessionStore{Store: session.NewStore(session.NewEphemeral(), durable)}
	recorder := &notify.Recorder{}

	base := []service.Option{
		service.WithPublisher(recorder),
		service.WithBotDelay(0),
		service.WithRandom(func(int) int { return 0 }),
	}
	svc := service.NewGameService(store, NewMockPresetCatalog(), append(base, opts...)...)
	t.Cleanup(svc.Close)

	return &testEnv{svc: svc, store: store, recorder: recorder}
}

func (e *testEnv) createLocal(t *testing.T) *engine.Session {
	t.Helper()
	sess, err := e.svc.CreateSession(context.Background(), service.CreateRequest{
		Mode:   engine.ModeVsLocalHuman,
		First:  service.ParticipantSpec{ID: "alice"},
		Second: service.ParticipantSpec{ID: "bob"},
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess
}

func (e *testEnv) createRemote(t *testing.T, accepted bool) *engine.Session {
	t.Helper()
	sess, err := e.svc.CreateSession(context.Background(), service.CreateRequest{
		Mode:               engine.ModeVsRemoteHuman,
		First:              service.ParticipantSpec{ID: "alice", DisplayName: "Alice"},
		Second:             service.ParticipantSpec{ID: "bob", DisplayName: "Bob"},
		InvitationAccepted: accepted,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
