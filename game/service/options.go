package service

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/notify"
)

// DefaultBotDelay is how long the bot "thinks" before moving.
const DefaultBotDelay = 600 * time.Millisecond

// Option configures the game service.
type Option func(*gameServiceImpl)

// WithBotDelay sets the pause before each bot move.
func WithBotDelay(d time.Duration) Option {
	return func(s *gameServiceImpl) { s.botDelay = d }
}

// WithClock replaces time.Now for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *gameServiceImpl) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *gameServiceImpl) { s.logger = logger }
}

// WithPublisher sets where session events go.
func WithPublisher(p notify.Publisher) Option {
	return func(s *gameServiceImpl) { s.publisher = p }
}

// WithRandom replaces the bot's cell picker. intn must return a value in
// [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(s *gameServiceImpl) { s.intn = intn }
}

// WithIDGenerator replaces uuid generation for session and participant ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *gameServiceImpl) { s.newID = newID }
}

func defaultIntn(n int) int {
	return rand.IntN(n)
}
