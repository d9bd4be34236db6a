package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/driftsync/internal/dependencies/clock"
	"github.com/mcoot/driftsync/internal/model"
	"github.com/mcoot/driftsync/internal/protocol"
	"github.com/mcoot/driftsync/internal/services/accounts"
	"github.com/mcoot/driftsync/internal/services/chat"
	"github.com/mcoot/driftsync/internal/services/locationlog"
	"github.com/mcoot/driftsync/internal/services/players"
	"github.com/mcoot/driftsync/internal/services/sessions"
)

// respond sends a response envelope echoing the request's correlation id
func respond(session *sessions.Session, requestID, msgType string, payload any) error {
	msg, err := protocol.New(requestID, msgType, payload)
	if err != nil {
		return err
	}
	return session.Send(msg)
}

func updateToWire(e locationlog.Entry) protocol.LocationUpdate {
	return protocol.LocationUpdate{
		UpdateID:    e.UpdateID,
		Username:    e.Username,
		EntityID:    int64(e.Entity.ID),
		X:           e.Entity.Position.X,
		Y:           e.Entity.Position.Y,
		Z:           e.Entity.Position.Z,
		RotX:        e.Entity.Rotation.X,
		RotY:        e.Entity.Rotation.Y,
		RotZ:        e.Entity.Rotation.Z,
		RotW:        e.Entity.Rotation.W,
		Velocity:    e.Entity.Velocity,
		TimestampMs: e.Entity.TimestampMs,
	}
}

func playerToWire(p model.Player) protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		Username:    p.Username,
		EntityID:    int64(p.Entity.ID),
		X:           p.Entity.Position.X,
		Y:           p.Entity.Position.Y,
		Z:           p.Entity.Position.Z,
		RotX:        p.Entity.Rotation.X,
		RotY:        p.Entity.Rotation.Y,
		RotZ:        p.Entity.Rotation.Z,
		RotW:        p.Entity.Rotation.W,
		Velocity:    p.Entity.Velocity,
		TimestampMs: p.Entity.TimestampMs,
		Profile:     protocol.ProfileInfo{ProfileImage: p.Profile.ProfileImage},
	}
}

func snapshotAll(svc *players.Service) []protocol.PlayerSnapshot {
	all := svc.Snapshot()
	result := make([]protocol.PlayerSnapshot, 0, len(all))
	for _, p := range all {
		result = append(result, playerToWire(p))
	}
	return result
}

// PingHandler answers liveness checks with the server clock
type PingHandler struct {
	clock clock.Clock
}

// NewPingHandler creates a PingHandler
func NewPingHandler(clk clock.Clock) *PingHandler {
	return &PingHandler{clock: clk}
}

func (h *PingHandler) Type() string       { return protocol.TypePing }
func (h *PingHandler) RequiresAuth() bool { return false }

func (h *PingHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	return respond(session, msg.ID, protocol.TypePong, protocol.PongPayload{
		Time: h.clock.Now().UnixMilli(),
	})
}

// RegisterHandler creates accounts. Business rejections travel in the
// RegisterResponse rather than the Error envelope so the client can show
// them inline.
type RegisterHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewRegisterHandler creates a RegisterHandler
func NewRegisterHandler(accountService *accounts.Service, logger *slog.Logger) *RegisterHandler {
	return &RegisterHandler{accounts: accountService, logger: logger}
}

func (h *RegisterHandler) Type() string       { return protocol.TypeRegisterRequest }
func (h *RegisterHandler) RequiresAuth() bool { return false }

func (h *RegisterHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.RegisterRequestPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return respond(session, msg.ID, protocol.TypeRegisterResponse,
			protocol.RegisterResponsePayload{Success: false, Error: "Invalid payload"})
	}

	if err := h.accounts.Register(payload.Username, payload.Password); err != nil {
		h.logger.Info("registration rejected",
			slog.String("session_id", session.ID()),
			slog.String("error", err.Error()))
		return respond(session, msg.ID, protocol.TypeRegisterResponse,
			protocol.RegisterResponsePayload{Success: false, Error: err.Error()})
	}

	return respond(session, msg.ID, protocol.TypeRegisterResponse,
		protocol.RegisterResponsePayload{Success: true, Username: payload.Username})
}

// LoginHandler authenticates a session. A successful login takes over any
// existing session for the same identity: the older session is notified
// and closed before the new binding is installed, so at most one
// authenticated session per username exists at any time.
type LoginHandler struct {
	accounts *accounts.Service
	registry *sessions.Registry
	players  *players.Service
	log      *locationlog.Log
	logger   *slog.Logger
}

// NewLoginHandler creates a LoginHandler
func NewLoginHandler(
	accountService *accounts.Service,
	registry *sessions.Registry,
	playerService *players.Service,
	log *locationlog.Log,
	logger *slog.Logger,
) *LoginHandler {
	return &LoginHandler{
		accounts: accountService,
		registry: registry,
		players:  playerService,
		log:      log,
		logger:   logger,
	}
}

func (h *LoginHandler) Type() string       { return protocol.TypeLoginRequest }
func (h *LoginHandler) RequiresAuth() bool { return false }

func (h *LoginHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.LoginRequestPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return respond(session, msg.ID, protocol.TypeLoginResponse,
			protocol.LoginResponsePayload{Success: false, Error: "Invalid payload"})
	}

	if !h.accounts.ValidateCredentials(payload.Username, payload.Password) {
		h.logger.Info("login rejected",
			slog.String("session_id", session.ID()),
			slog.String("username", payload.Username))
		return respond(session, msg.ID, protocol.TypeLoginResponse,
			protocol.LoginResponsePayload{Success: false, Error: "Invalid username or password"})
	}

	// Take over any existing session for this identity
	if existing, ok := h.registry.FindByUsername(payload.Username); ok && existing.ID() != session.ID() {
		h.logger.Info("forcing out older session",
			slog.String("username", payload.Username),
			slog.String("old_session_id", existing.ID()),
			slog.String("new_session_id", session.ID()))
		sendError(h.logger, existing, "", protocol.CodeLoggedInElsewhere,
			"You have logged in from another location.")
		if err := existing.Close(); err != nil {
			h.logger.Warn("error closing older session",
				slog.String("session_id", existing.ID()),
				slog.String("error", err.Error()))
		}
		h.registry.Remove(existing.ID())
	}

	player, err := h.registry.Authenticate(session.ID(), payload.Username)
	if err != nil {
		return respond(session, msg.ID, protocol.TypeLoginResponse,
			protocol.LoginResponsePayload{Success: false, Error: "Login failed"})
	}

	return respond(session, msg.ID, protocol.TypeLoginResponse, protocol.LoginResponsePayload{
		Success:              true,
		Username:             player.Username,
		LastLocationUpdateID: h.log.CurrentUpdateID(),
		AllPlayers:           snapshotAll(h.players),
	})
}

// UpdatePositionHandler applies movement commands. Only rotation and
// speed come from the client; the server computes the position, which
// closes off position spoofing.
type UpdatePositionHandler struct {
	players     *players.Service
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewUpdatePositionHandler creates an UpdatePositionHandler
func NewUpdatePositionHandler(playerService *players.Service, broadcaster *Broadcaster, logger *slog.Logger) *UpdatePositionHandler {
	return &UpdatePositionHandler{players: playerService, broadcaster: broadcaster, logger: logger}
}

func (h *UpdatePositionHandler) Type() string       { return protocol.TypeUpdatePositionRequest }
func (h *UpdatePositionHandler) RequiresAuth() bool { return true }

func (h *UpdatePositionHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.UpdatePositionRequestPayload
	if err := msg.DecodePayload(&payload); err != nil {
		sendError(h.logger, session, msg.ID, protocol.CodeInvalidMessage,
			"Malformed position update payload.")
		return nil
	}

	rotation := model.Quat{X: payload.RotX, Y: payload.RotY, Z: payload.RotZ, W: payload.RotW}
	updateID, entity, err := h.players.ApplyMovement(session.Username(), rotation, payload.Velocity)
	switch {
	case errors.Is(err, model.ErrInvalidRotation):
		sendError(h.logger, session, msg.ID, protocol.CodeInvalidRotation,
			"Invalid rotation. Quaternion components must form a valid orientation.")
		return nil
	case errors.Is(err, model.ErrInvalidVelocity):
		sendError(h.logger, session, msg.ID, protocol.CodeInvalidVelocity,
			"Invalid velocity. Velocity must be a valid non-negative number.")
		return nil
	case err != nil:
		return err
	}

	if err := respond(session, msg.ID, protocol.TypeUpdatePositionResponse,
		protocol.UpdatePositionResponsePayload{Success: true, UpdateID: updateID}); err != nil {
		return err
	}

	h.broadcaster.Go(protocol.TypeLocationUpdatesBroadcast, protocol.LocationUpdatesPayload{
		Updates: []protocol.LocationUpdate{updateToWire(locationlog.Entry{
			UpdateID: updateID,
			Username: session.Username(),
			Entity:   entity,
		})},
		LastLocationUpdateID: updateID,
	})
	return nil
}

// LocationUpdatesHandler serves incremental catch-up. A cursor older than
// retained history fails with RESYNC_REQUIRED carrying the full snapshot,
// never with silently partial data.
type LocationUpdatesHandler struct {
	players *players.Service
	log     *locationlog.Log
	logger  *slog.Logger
}

// NewLocationUpdatesHandler creates a LocationUpdatesHandler
func NewLocationUpdatesHandler(playerService *players.Service, log *locationlog.Log, logger *slog.Logger) *LocationUpdatesHandler {
	return &LocationUpdatesHandler{players: playerService, log: log, logger: logger}
}

func (h *LocationUpdatesHandler) Type() string       { return protocol.TypeLocationUpdatesRequest }
func (h *LocationUpdatesHandler) RequiresAuth() bool { return true }

func (h *LocationUpdatesHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.LocationUpdatesRequestPayload
	if err := msg.DecodePayload(&payload); err != nil {
		sendError(h.logger, session, msg.ID, protocol.CodeInvalidMessage,
			"Malformed location updates request.")
		return nil
	}

	entries, err := h.log.UpdatesSince(payload.LastUpdateID)
	if errors.Is(err, model.ErrStaleCursor) {
		h.logger.Info("stale cursor, forcing resync",
			slog.String("session_id", session.ID()),
			slog.Int64("last_update_id", payload.LastUpdateID),
			slog.Int64("min_available_id", h.log.MinAvailableUpdateID()))
		resync, buildErr := protocol.New(msg.ID, protocol.TypeError, protocol.ErrorPayload{
			Code:                 protocol.CodeResyncRequired,
			Message:              "Requested update id is older than retained history; full state attached.",
			AllEntities:          snapshotAll(h.players),
			LastLocationUpdateID: h.log.CurrentUpdateID(),
		})
		if buildErr != nil {
			return buildErr
		}
		return session.Send(resync)
	}
	if err != nil {
		return err
	}

	updates := make([]protocol.LocationUpdate, 0, len(entries))
	for _, e := range entries {
		updates = append(updates, updateToWire(e))
	}

	return respond(session, msg.ID, protocol.TypeLocationUpdatesResponse, protocol.LocationUpdatesPayload{
		Updates:              updates,
		LastLocationUpdateID: h.log.CurrentUpdateID(),
	})
}

// ChatHandler validates and broadcasts chat lines
type ChatHandler struct {
	chat        *chat.Service
	clock       clock.Clock
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewChatHandler creates a ChatHandler
func NewChatHandler(chatService *chat.Service, clk clock.Clock, broadcaster *Broadcaster, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chatService, clock: clk, broadcaster: broadcaster, logger: logger}
}

func (h *ChatHandler) Type() string       { return protocol.TypeChatMessageRequest }
func (h *ChatHandler) RequiresAuth() bool { return true }

func (h *ChatHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.ChatMessageRequestPayload
	if err := msg.DecodePayload(&payload); err != nil || payload.Message == "" {
		sendError(h.logger, session, msg.ID, protocol.CodeInvalidMessage,
			"Chat message cannot be empty.")
		return nil
	}
	if len(payload.Message) > chat.MaxMessageLength {
		sendError(h.logger, session, msg.ID, protocol.CodeMessageTooLong,
			"Chat message cannot exceed 500 characters.")
		return nil
	}

	username := session.Username()
	h.chat.Record(username, payload.Message)

	h.broadcaster.Go(protocol.TypeChatMessageResponse, protocol.ChatMessagePayload{
		Username:  username,
		Message:   payload.Message,
		Timestamp: h.clock.Now().UnixMilli(),
	})
	return nil
}

// ProfileUpdateHandler changes the sender's profile and announces it
type ProfileUpdateHandler struct {
	players     *players.Service
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewProfileUpdateHandler creates a ProfileUpdateHandler
func NewProfileUpdateHandler(playerService *players.Service, broadcaster *Broadcaster, logger *slog.Logger) *ProfileUpdateHandler {
	return &ProfileUpdateHandler{players: playerService, broadcaster: broadcaster, logger: logger}
}

func (h *ProfileUpdateHandler) Type() string       { return protocol.TypeProfileUpdateRequest }
func (h *ProfileUpdateHandler) RequiresAuth() bool { return true }

func (h *ProfileUpdateHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.ProfileUpdateRequestPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return respond(session, msg.ID, protocol.TypeProfileUpdateResponse,
			protocol.ProfileUpdateResponsePayload{Success: false, Error: "Invalid payload"})
	}
	if payload.ProfileImage < -1 {
		return respond(session, msg.ID, protocol.TypeProfileUpdateResponse,
			protocol.ProfileUpdateResponsePayload{Success: false, Error: "Profile image must be -1 or greater"})
	}

	username := session.Username()
	if err := h.players.SetProfileImage(username, payload.ProfileImage); err != nil {
		return respond(session, msg.ID, protocol.TypeProfileUpdateResponse,
			protocol.ProfileUpdateResponsePayload{Success: false, Error: "Failed to update profile"})
	}

	if err := respond(session, msg.ID, protocol.TypeProfileUpdateResponse,
		protocol.ProfileUpdateResponsePayload{Success: true}); err != nil {
		return err
	}

	h.broadcaster.Go(protocol.TypeProfileUpdateBroadcast, protocol.ProfileUpdateBroadcastPayload{
		Username:     username,
		ProfileImage: payload.ProfileImage,
	})
	return nil
}

// TimeSyncHandler supplies the timestamps for client clock-offset
// calibration; available before login so clients can calibrate first
type TimeSyncHandler struct {
	clock  clock.Clock
	logger *slog.Logger
}

// NewTimeSyncHandler creates a TimeSyncHandler
func NewTimeSyncHandler(clk clock.Clock, logger *slog.Logger) *TimeSyncHandler {
	return &TimeSyncHandler{clock: clk, logger: logger}
}

func (h *TimeSyncHandler) Type() string       { return protocol.TypeTimeSyncRequest }
func (h *TimeSyncHandler) RequiresAuth() bool { return false }

func (h *TimeSyncHandler) Handle(_ context.Context, msg *protocol.Message, session *sessions.Session) error {
	var payload protocol.TimeSyncRequestPayload
	if err := msg.DecodePayload(&payload); err != nil {
		sendError(h.logger, session, msg.ID, protocol.CodeInvalidMessage,
			"Malformed time sync request.")
		return nil
	}

	now := h.clock.Now().UnixMilli()
	return respond(session, msg.ID, protocol.TypeTimeSyncResponse, protocol.TimeSyncResponsePayload{
		ClientSendTime:    payload.ClientSendTime,
		ServerReceiveTime: now,
		ServerSendTime:    now,
	})
}
