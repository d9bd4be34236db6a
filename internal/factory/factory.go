package factory

import (
	"io"
	"log/slog"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
	"github.com/mcoot/driftsync/internal/server"
	"github.com/mcoot/driftsync/internal/services/accounts"
	"github.com/mcoot/driftsync/internal/services/chat"
	"github.com/mcoot/driftsync/internal/services/locationlog"
	"github.com/mcoot/driftsync/internal/services/players"
	"github.com/mcoot/driftsync/internal/services/ratelimit"
	"github.com/mcoot/driftsync/internal/services/sessions"
)

// App contains all wired application components
type App struct {
	Clock clock.Clock

	Accounts    *accounts.Service
	Players     *players.Service
	LocationLog *locationlog.Log
	Chat        *chat.Service
	RateLimiter *ratelimit.Limiter
	Registry    *sessions.Registry
	Broadcaster *server.Broadcaster
	Dispatcher  *server.Dispatcher
	Server      *server.Server
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional; discards if nil)
	Logger *slog.Logger
	// ServerConfig holds server loop settings (optional)
	ServerConfig server.Config
	// RateLimitConfig holds limiter settings (optional)
	RateLimitConfig ratelimit.Config
	// LocationLogConfig holds location log settings (optional)
	LocationLogConfig locationlog.Config
}

// New creates the application with all dependencies wired
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ServerConfig.IdleTimeout == 0 {
		cfg.ServerConfig = server.DefaultConfig()
	}
	if cfg.RateLimitConfig.MaxRequests == 0 {
		cfg.RateLimitConfig = ratelimit.DefaultConfig()
	}
	if cfg.LocationLogConfig.MaxStoredUpdates == 0 {
		cfg.LocationLogConfig = locationlog.DefaultConfig()
	}

	return newWithClock(cfg, clock.New(), logger)
}

// newWithClock wires the app with the given clock (useful for testing)
func newWithClock(cfg Config, clk clock.Clock, logger *slog.Logger) *App {
	accountService := accounts.New(clk, logger)
	locationLog := locationlog.New(clk, cfg.LocationLogConfig, logger)
	playerService := players.New(clk, locationLog, logger)
	chatService := chat.New(clk, logger)
	limiter := ratelimit.New(clk, cfg.RateLimitConfig, logger)
	registry := sessions.NewRegistry(clk, playerService, logger)
	broadcaster := server.NewBroadcaster(registry, logger)

	dispatcher := server.NewDispatcher(limiter, logger)
	dispatcher.Register(server.NewPingHandler(clk))
	dispatcher.Register(server.NewRegisterHandler(accountService, logger))
	dispatcher.Register(server.NewLoginHandler(accountService, registry, playerService, locationLog, logger))
	dispatcher.Register(server.NewUpdatePositionHandler(playerService, broadcaster, logger))
	dispatcher.Register(server.NewLocationUpdatesHandler(playerService, locationLog, logger))
	dispatcher.Register(server.NewChatHandler(chatService, clk, broadcaster, logger))
	dispatcher.Register(server.NewProfileUpdateHandler(playerService, broadcaster, logger))
	dispatcher.Register(server.NewTimeSyncHandler(clk, logger))

	srv := server.New(cfg.ServerConfig, registry, dispatcher, limiter, logger)

	return &App{
		Clock:       clk,
		Accounts:    accountService,
		Players:     playerService,
		LocationLog: locationLog,
		Chat:        chatService,
		RateLimiter: limiter,
		Registry:    registry,
		Broadcaster: broadcaster,
		Dispatcher:  dispatcher,
		Server:      srv,
	}
}
