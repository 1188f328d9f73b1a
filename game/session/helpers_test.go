package session

import (
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(id string, mode engine.Mode, x, o string) *engine.Session {
	return engine.NewSession(id, 3, 3, mode, [2]engine.Participant{
		{ID: x, DisplayName: x + " name", Mark: engine.MarkX, Kind: engine.KindHuman},
		{ID: o, DisplayName: o + " name", Mark: engine.MarkO, Kind: engine.KindHuman},
	}, testNow)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
