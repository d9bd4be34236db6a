package server

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/mcoot/driftsync/internal/protocol"
	"github.com/mcoot/driftsync/internal/services/ratelimit"
	"github.com/mcoot/driftsync/internal/services/sessions"
)

// Handler processes one message type. Handle may send any number of
// responses, errors or broadcasts on the session; returning an error
// means the message failed, not that the connection should die.
type Handler interface {
	Type() string
	RequiresAuth() bool
	Handle(ctx context.Context, msg *protocol.Message, session *sessions.Session) error
}

// Dispatcher routes inbound envelopes to handlers, gating each message on
// the rate limiter and the handler's authentication requirement.
type Dispatcher struct {
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	handlers map[string]Handler
}

// NewDispatcher creates a dispatcher with no handlers registered
func NewDispatcher(limiter *ratelimit.Limiter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		limiter:  limiter,
		logger:   logger.With(slog.String("component", "dispatcher")),
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler, replacing any previous handler for its type
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Type()] = h
	d.logger.Debug("handler registered", slog.String("type", h.Type()))
}

// Types returns the registered message types
func (d *Dispatcher) Types() []string {
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	return types
}

// Dispatch runs one inbound envelope through the gates and its handler.
// A failing or panicking handler is logged and contained; nothing here
// terminates the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *protocol.Message, session *sessions.Session) {
	if err := d.limiter.Allow(session.ID()); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			sendError(d.logger, session, msg.ID, protocol.CodeRateLimitExceeded,
				"Rate limit exceeded. Slow down and try again.")
		}
		return
	}

	handler, ok := d.handlers[msg.Type]
	if !ok {
		d.logger.Warn("no handler for message type",
			slog.String("type", msg.Type),
			slog.String("session_id", session.ID()))
		return
	}

	if handler.RequiresAuth() && !session.IsAuthenticated() {
		sendError(d.logger, session, msg.ID, protocol.CodeAuthenticationRequired,
			"Authentication required for message type "+msg.Type)
		return
	}

	d.invoke(ctx, handler, msg, session)
}

// invoke runs the handler inside a panic boundary so a single bad message
// cannot take down the connection's read loop
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, msg *protocol.Message, session *sessions.Session) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in handler",
				slog.String("type", msg.Type),
				slog.String("session_id", session.ID()),
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := handler.Handle(ctx, msg, session); err != nil {
		d.logger.Error("handler failed",
			slog.String("type", msg.Type),
			slog.String("session_id", session.ID()),
			slog.String("error", err.Error()))
	}
}

// sendError sends a typed Error envelope correlated to the offending
// request. Send failures are logged only; the write path decides the
// connection's fate.
func sendError(logger *slog.Logger, session *sessions.Session, requestID, code, message string) {
	msg, err := protocol.New(requestID, protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		logger.Error("build error envelope", slog.String("error", err.Error()))
		return
	}
	if err := session.Send(msg); err != nil {
		logger.Warn("failed to send error",
			slog.String("session_id", session.ID()),
			slog.String("code", code),
			slog.String("error", err.Error()))
	}
}
