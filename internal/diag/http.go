package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/driftsync/internal/services/accounts"
	"github.com/mcoot/driftsync/internal/services/chat"
	"github.com/mcoot/driftsync/internal/services/locationlog"
	"github.com/mcoot/driftsync/internal/services/players"
	"github.com/mcoot/driftsync/internal/services/sessions"
)

// Stats is the runtime snapshot served at /stats
type Stats struct {
	ActiveSessions        int   `json:"activeSessions"`
	AuthenticatedSessions int   `json:"authenticatedSessions"`
	Players               int   `json:"players"`
	Accounts              int   `json:"accounts"`
	ChatMessages          int   `json:"chatMessages"`
	CurrentUpdateID       int64 `json:"currentUpdateId"`
	MinAvailableUpdateID  int64 `json:"minAvailableUpdateId"`
}

// RouterConfig holds the components the diagnostics endpoint reports on
type RouterConfig struct {
	Logger   *slog.Logger
	Registry *sessions.Registry
	Players  *players.Service
	Accounts *accounts.Service
	Chat     *chat.Service
	Log      *locationlog.Log
}

// NewRouter creates the diagnostics HTTP router
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Stats{
			ActiveSessions:        cfg.Registry.Count(),
			AuthenticatedSessions: cfg.Registry.AuthenticatedCount(),
			Players:               cfg.Players.Count(),
			Accounts:              cfg.Accounts.Count(),
			ChatMessages:          cfg.Chat.Count(),
			CurrentUpdateID:       cfg.Log.CurrentUpdateID(),
			MinAvailableUpdateID:  cfg.Log.MinAvailableUpdateID(),
		})
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Server wraps the diagnostics HTTP server with graceful shutdown
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a diagnostics server on addr
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "diag")),
	}
}

// Start begins serving diagnostics requests
func (s *Server) Start() error {
	s.logger.Info("diagnostics server starting", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("diagnostics server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the diagnostics server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
