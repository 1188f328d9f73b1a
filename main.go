// Command gridduel starts the Grid Duel server.
//
// It supports two modes:
//  1. "server" (default) runs the HTTP server exposing the REST API, the
//     WebSocket hub at /ws and an /mcp HTTP endpoint
//  2. "stdio-mcp" runs an MCP stdio server and spins up an internal HTTP API
//     if none is available
//
// Settings come from the environment (and an optional .env file); command
// line flags override them. A Redis URL enables cross-instance notification
// delivery, and ngrok can publish the server for development.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/mcp-training/gridduel/api"
	"github.com/wricardo/mcp-training/gridduel/game/account"
	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/matchmaking"
	"github.com/wricardo/mcp-training/gridduel/game/negotiation"
	"github.com/wricardo/mcp-training/gridduel/game/notify"
	"github.com/wricardo/mcp-training/gridduel/game/service"
	"github.com/wricardo/mcp-training/gridduel/game/session"
	"github.com/wricardo/mcp-training/gridduel/game/storage"
	"github.com/wricardo/mcp-training/gridduel/transport/mcp"
	"github.com/wricardo/mcp-training/gridduel/transport/redisbridge"
	"github.com/wricardo/mcp-training/gridduel/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Grid Duel Server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the command line. Flags are shared by the subcommands
// and override environment settings only when given explicitly.
func newCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "HTTP server host (HOST)"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP server port (PORT)"},
		&cli.StringFlag{Name: "config-dir", Usage: "Directory containing board presets (CONFIG_DIR)"},
		&cli.StringFlag{Name: "durable-backend", Usage: "Storage for remote sessions: sqlite or file (DURABLE_BACKEND)"},
		&cli.StringFlag{Name: "db", Usage: "SQLite database path (DB_PATH)"},
		&cli.StringFlag{Name: "sessions-dir", Usage: "Session directory for the file backend (SESSIONS_DIR)"},
		&cli.DurationFlag{Name: "ttl", Usage: "Lifetime of bot and local sessions (EPHEMERAL_TTL)"},
		&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for cross-instance notifications (REDIS_URL)"},
		&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging (DEBUG)"},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel (NGROK_ENABLED)"},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (NGROK_DOMAIN)"},
	}

	serverAction := func(ctx context.Context, cmd *cli.Command) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		return runHTTPServer(ctx, settings, settings.NewLogger(os.Stderr))
	}

	return &cli.Command{
		Name:    "gridduel",
		Usage:   "multiplayer grid game server",
		Version: Version,
		Flags:   flags,
		Action:  serverAction,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  serverAction,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					settings, err := loadSettings(cmd)
					if err != nil {
						return err
					}
					return runStdioMCP(ctx, settings, settings.NewLogger(os.Stderr))
				},
			},
		},
	}
}

// loadSettings parses the environment and applies explicitly set flags.
func loadSettings(cmd *cli.Command) (config.Settings, error) {
	settings, err := config.ParseEnv()
	if err != nil {
		return config.Settings{}, err
	}
	applyFlags(cmd, &settings)
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func applyFlags(cmd *cli.Command, s *config.Settings) {
	if cmd.IsSet("host") {
		s.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Port = cmd.Int("port")
	}
	if cmd.IsSet("config-dir") {
		s.ConfigDir = cmd.String("config-dir")
	}
	if cmd.IsSet("durable-backend") {
		s.DurableBackend = cmd.String("durable-backend")
	}
	if cmd.IsSet("db") {
		s.DBPath = cmd.String("db")
	}
	if cmd.IsSet("sessions-dir") {
		s.SessionsDir = cmd.String("sessions-dir")
	}
	if cmd.IsSet("ttl") {
		s.EphemeralTTL = cmd.Duration("ttl")
	}
	if cmd.IsSet("redis-url") {
		s.RedisURL = cmd.String("redis-url")
	}
	if cmd.IsSet("debug") {
		s.Debug = cmd.Bool("debug")
	}
	if cmd.IsSet("ngrok") {
		s.NgrokEnabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-domain") {
		s.NgrokDomain = cmd.String("ngrok-domain")
	}
}

// application holds the wired services of one process.
type application struct {
	settings  config.Settings
	logger    *slog.Logger
	db        *sql.DB
	store     *session.Store
	service   service.GameService
	hub       *websocket.Hub
	offers    *negotiation.Negotiator
	bridge    *redisbridge.Bridge
	redis     *redis.Client
	apiServer *api.Server
}

// initializeServices opens storage, loads presets and wires every
// collaborator. The caller must call close.
func initializeServices(ctx context.Context, settings config.Settings, logger *slog.Logger) (*application, error) {
	presets, err := config.NewManager(settings.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create preset manager: %w", err)
	}

	db, err := storage.Open(ctx, settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app := &application{settings: settings, logger: logger, db: db}

	var durable session.Durable
	switch settings.DurableBackend {
	case config.BackendFile:
		fp, err := session.NewFilePersistence(settings.SessionsDir)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		durable = fp
	default:
		durable = session.NewSQLitePersistence(db)
	}
	app.store = session.NewStore(
		session.NewEphemeral(
			session.WithTTL(settings.EphemeralTTL),
			session.WithSweepInterval(settings.SweepInterval),
		),
		durable,
	)

	app.hub = websocket.NewHub(logger.With("component", "websocket"))
	var publisher notify.Publisher = app.hub
	if settings.RedisURL != "" {
		app.redis, err = redisbridge.Connect(ctx, settings.RedisURL)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.bridge = redisbridge.New(app.redis, app.hub,
			redisbridge.WithChannel(settings.RedisChannel),
			redisbridge.WithLogger(logger.With("component", "redisbridge")),
		)
		app.hub.SetUpstream(app.bridge)
		logger.Info("redis bridge enabled", "channel", settings.RedisChannel, "origin", app.bridge.Origin())
		publisher = notify.Fanout{app.hub, app.bridge}
	}

	app.service = service.NewGameService(app.store, presets,
		service.WithPublisher(publisher),
		service.WithLogger(logger.With("component", "service")),
		service.WithBotDelay(settings.BotDelay),
	)

	accounts := account.NewStore(db)
	app.offers = negotiation.NewNegotiator(app.service, accounts,
		negotiation.WithDirectory(accounts),
		negotiation.WithPublisher(publisher),
		negotiation.WithLogger(logger.With("component", "negotiation")),
		negotiation.WithOfferTTL(settings.RematchOfferTTL),
	)
	app.apiServer = api.NewServer(api.Deps{
		Service: app.service,
		Matchmaker: matchmaking.NewCoordinator(app.service,
			matchmaking.WithPublisher(publisher),
			matchmaking.WithLogger(logger.With("component", "matchmaking")),
		),
		Negotiator: app.offers,
		Users:      accounts,
		Hub:        http.HandlerFunc(app.hub.ServeWS),
		Logger:     logger.With("component", "api"),
	})

	return app, nil
}

func (a *application) close() {
	if a.service != nil {
		a.service.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}

// start runs the hub, the sweeper and the bridge on g.
func (a *application) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		return a.hub.Run(ctx)
	})
	g.Go(func() error {
		runSweeper(ctx, a.store.Ephemeral(), a.offers, a.settings.SweepInterval, a.logger)
		return nil
	})
	if a.bridge != nil {
		g.Go(func() error {
			return a.bridge.Run(ctx)
		})
	}
}

// offerPruner drops rematch offers that can no longer be answered.
type offerPruner interface {
	PruneOffers(ctx context.Context) int
}

// runSweeper removes expired bot and local sessions and stale rematch
// offers every interval. offers may be nil.
func runSweeper(ctx context.Context, eph *session.Ephemeral, offers offerPruner, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := eph.Sweep(); removed > 0 {
				logger.Info("swept expired sessions", "removed", removed)
			}
			if offers == nil {
				continue
			}
			if dropped := offers.PruneOffers(ctx); dropped > 0 {
				logger.Info("pruned rematch offers", "dropped", dropped)
			}
		}
	}
}

// runHTTPServer serves the REST API, the WebSocket hub and the /mcp endpoint
// until ctx is cancelled. If ngrok is enabled it also provisions a public
// tunnel.
func runHTTPServer(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	logger.Info("starting", "app", AppName, "version", Version, "mode", "server")

	app, err := initializeServices(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer app.close()

	addr := settings.Addr()
	app.apiServer.Handle("/mcp", mcp.NewClient("http://"+addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      app.apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	app.start(gctx, g)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		logger.Info("endpoints",
			"rest", "http://"+addr+"/api",
			"websocket", "ws://"+addr+"/ws?user=<user_id>",
			"mcp", "http://"+addr+"/mcp",
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if settings.NgrokEnabled {
		g.Go(func() error {
			runNgrok(gctx, settings, app.apiServer, logger)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is done. Tunnel
// failures are logged and leave the local server running.
func runNgrok(ctx context.Context, settings config.Settings, handler http.Handler, logger *slog.Logger) {
	if settings.NgrokAuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (set NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if settings.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(settings.NgrokDomain))
		logger.Info("using custom ngrok domain", "domain", settings.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(settings.NgrokAuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}

	url := tun.URL()
	logger.Info("ngrok tunnel established", "url", url, "rest", url+"/api", "mcp", url+"/mcp")

	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("ngrok server error", "error", err)
	}
	logger.Info("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses an API already listening
// on the configured address; otherwise it starts an internal HTTP API bound
// to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	externalURL := "http://" + settings.Addr()
	if apiAvailable(ctx, externalURL) {
		logger.Info("using external API server for MCP", "url", externalURL)
		return server.ServeStdio(mcp.NewClient(externalURL).GetMCPServer())
	}

	logger.Info("no external API server found, starting internal HTTP server")
	app, err := initializeServices(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer app.close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to get available port: %w", err)
	}
	baseURL := "http://" + listener.Addr().String()
	httpServer := &http.Server{Handler: app.apiServer}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	g, gctx := errgroup.WithContext(runCtx)
	app.start(gctx, g)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("internal HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("MCP stdio server ready", "api", baseURL)
	stdioErr := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())

	stopRun()
	if err := g.Wait(); err != nil && stdioErr == nil {
		stdioErr = err
	}
	return stdioErr
}

func apiAvailable(ctx context.Context, baseURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
