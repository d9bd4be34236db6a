package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcoot/driftsync/internal/protocol"
	"github.com/mcoot/driftsync/internal/services/ratelimit"
	"github.com/mcoot/driftsync/internal/services/sessions"
)

// Config holds server loop settings
type Config struct {
	// IdleTimeout is how long a session may be inactive before the idle
	// sweep closes it
	IdleTimeout time.Duration
	// CleanupInterval is how often the idle sweep runs
	CleanupInterval time.Duration
	// AcceptsPerSecond throttles the accept loop against connection churn
	AcceptsPerSecond float64
	// AcceptBurst is the accept throttle's burst allowance
	AcceptBurst int
}

// DefaultConfig returns default server loop settings
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      5 * time.Minute,
		CleanupInterval:  60 * time.Second,
		AcceptsPerSecond: 100,
		AcceptBurst:      200,
	}
}

// Server accepts connections and runs one read loop per session. The
// listener is expected to hand over already-encrypted, authenticated
// duplex streams; the server never touches certificates itself.
type Server struct {
	cfg        Config
	registry   *sessions.Registry
	dispatcher *Dispatcher
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	acceptRate *rate.Limiter
}

// New creates a server over the given components
func New(
	cfg Config,
	registry *sessions.Registry,
	dispatcher *Dispatcher,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *Server {
	if cfg.IdleTimeout == 0 {
		cfg = DefaultConfig()
	}
	return &Server{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "server")),
		acceptRate: rate.NewLimiter(rate.Limit(cfg.AcceptsPerSecond), cfg.AcceptBurst),
	}
}

// Serve accepts connections until the context is cancelled or the
// listener is closed. It blocks; run the idle sweep separately via
// RunIdleCleanup.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("server accepting connections",
		slog.String("addr", ln.Addr().String()),
		slog.Duration("idle_timeout", s.cfg.IdleTimeout))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		if err := s.acceptRate.Wait(ctx); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}

		go s.handleConn(ctx, conn)
	}
}

// handleConn owns one connection from registration to teardown
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	session := s.registry.Register(conn)

	defer func() {
		s.logger.Info("client disconnected", slog.String("session", session.String()))
		s.registry.Remove(session.ID())
		s.limiter.ClearSession(session.ID())
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("close connection",
				slog.String("session_id", session.ID()),
				slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("client connected", slog.String("session", session.String()))

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			// Framing faults and disconnects both end the connection;
			// only the former is worth a log line.
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("read failed",
					slog.String("session_id", session.ID()),
					slog.String("error", err.Error()))
			}
			return
		}

		session.Touch()

		var msg protocol.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			s.logger.Warn("failed to decode envelope",
				slog.String("session_id", session.ID()),
				slog.String("error", err.Error()))
			continue
		}

		s.logger.Debug("message received",
			slog.String("session_id", session.ID()),
			slog.String("type", msg.Type))

		s.dispatcher.Dispatch(ctx, &msg, session)
	}
}

// RunIdleCleanup sweeps idle sessions on a fixed interval until the
// context is cancelled. It never blocks request handling.
func (s *Server) RunIdleCleanup(ctx context.Context) {
	s.logger.Info("idle session cleanup started",
		slog.Duration("interval", s.cfg.CleanupInterval),
		slog.Duration("timeout", s.cfg.IdleTimeout))

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cleaned := s.registry.CleanupIdle(s.cfg.IdleTimeout); cleaned > 0 {
				s.logger.Info("cleaned up idle sessions", slog.Int("count", cleaned))
			}
		}
	}
}
