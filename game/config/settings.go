package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Durable backends for vs_remote_human sessions.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Settings is the process configuration read from the environment. Command
// line flags override individual fields after parsing.
type Settings struct {
	Host      string `env:"HOST" envDefault:"localhost"`
	Port      int    `env:"PORT" envDefault:"8080"`
	ConfigDir string `env:"CONFIG_DIR" envDefault:"configs"`

	DurableBackend string `env:"DURABLE_BACKEND" envDefault:"sqlite"`
	DBPath         string `env:"DB_PATH" envDefault:"gridduel.db"`
	SessionsDir    string `env:"SESSIONS_DIR" envDefault:"sessions"`

	EphemeralTTL  time.Duration `env:"EPHEMERAL_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	BotDelay      time.Duration `env:"BOT_DELAY" envDefault:"600ms"`

	// RematchOfferTTL of zero keeps unanswered rematch offers open.
	RematchOfferTTL time.Duration `env:"REMATCH_OFFER_TTL" envDefault:"10m"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"gridduel:events"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthToken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`

	Debug     bool   `env:"DEBUG"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads settings from environment variables.
func ParseEnv() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// ParseEnvFrom loads settings from the given variables instead of the
// process environment.
func ParseEnvFrom(environ map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	switch s.DurableBackend {
	case BackendSQLite:
		if strings.TrimSpace(s.DBPath) == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite backend")
		}
	case BackendFile:
		if strings.TrimSpace(s.SessionsDir) == "" {
			return fmt.Errorf("SESSIONS_DIR is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown durable backend %q (want %s or %s)", s.DurableBackend, BackendSQLite, BackendFile)
	}
	if s.EphemeralTTL <= 0 {
		return fmt.Errorf("EPHEMERAL_TTL must be positive")
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if s.BotDelay < 0 {
		return fmt.Errorf("BOT_DELAY must not be negative")
	}
	if s.RematchOfferTTL < 0 {
		return fmt.Errorf("REMATCH_OFFER_TTL must not be negative")
	}
	return nil
}

// Addr returns host:port.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NewLogger builds the process logger from the settings.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if s.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: s.Debug}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
