package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/driftsync/internal/protocol"
	"github.com/mcoot/driftsync/internal/services/ratelimit"
	"github.com/mcoot/driftsync/internal/services/sessions"
	"github.com/mcoot/driftsync/internal/testutil"
)

type stubHandler struct {
	msgType string
	auth    bool
	handle  func(ctx context.Context, msg *protocol.Message, session *sessions.Session) error
}

func (h *stubHandler) Type() string       { return h.msgType }
func (h *stubHandler) RequiresAuth() bool { return h.auth }

func (h *stubHandler) Handle(ctx context.Context, msg *protocol.Message, session *sessions.Session) error {
	if h.handle != nil {
		return h.handle(ctx, msg, session)
	}
	return nil
}

func newDispatcherUnderTest(f *fixture) *Dispatcher {
	return NewDispatcher(f.limiter, testutil.NopLogger())
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	var handled *protocol.Message
	d.Register(&stubHandler{
		msgType: protocol.TypePing,
		handle: func(_ context.Context, msg *protocol.Message, _ *sessions.Session) error {
			handled = msg
			return nil
		},
	})

	session, _ := f.newSession()
	d.Dispatch(context.Background(), request(t, "req-1", protocol.TypePing, nil), session)

	require.NotNil(t, handled)
	assert.Equal(t, "req-1", handled.ID)
}

func TestDispatchDropsUnknownType(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	session, ch := f.newSession()
	d.Dispatch(context.Background(), request(t, "req-1", "NoSuchType", nil), session)

	// Unknown types are logged and dropped without a reply
	expectSilence(t, ch)
}

func TestDispatchRejectsUnauthenticatedSession(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	invoked := false
	d.Register(&stubHandler{
		msgType: protocol.TypeUpdatePositionRequest,
		auth:    true,
		handle: func(_ context.Context, _ *protocol.Message, _ *sessions.Session) error {
			invoked = true
			return nil
		},
	})

	session, ch := f.newSession()
	d.Dispatch(context.Background(), request(t, "req-1", protocol.TypeUpdatePositionRequest, nil), session)

	msg := recv(t, ch)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, "req-1", msg.ID)
	assert.Equal(t, protocol.CodeAuthenticationRequired, decodeAs[protocol.ErrorPayload](t, msg).Code)
	assert.False(t, invoked)
}

func TestDispatchAllowsAuthenticatedSession(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	invoked := false
	d.Register(&stubHandler{
		msgType: protocol.TypeUpdatePositionRequest,
		auth:    true,
		handle: func(_ context.Context, _ *protocol.Message, _ *sessions.Session) error {
			invoked = true
			return nil
		},
	})

	session, _ := f.authedSession("alice")
	d.Dispatch(context.Background(), request(t, "req-1", protocol.TypeUpdatePositionRequest, nil), session)

	assert.True(t, invoked)
}

func TestDispatchEnforcesRateLimit(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)
	d.Register(&stubHandler{msgType: protocol.TypePing})

	session, ch := f.newSession()
	for i := 0; i < ratelimit.DefaultConfig().MaxRequests; i++ {
		d.Dispatch(context.Background(), request(t, "", protocol.TypePing, nil), session)
	}

	d.Dispatch(context.Background(), request(t, "req-over", protocol.TypePing, nil), session)

	msg := recv(t, ch)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, "req-over", msg.ID)
	assert.Equal(t, protocol.CodeRateLimitExceeded, decodeAs[protocol.ErrorPayload](t, msg).Code)
}

func TestDispatchRateLimitIsPerSession(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	invocations := 0
	d.Register(&stubHandler{
		msgType: protocol.TypePing,
		handle: func(_ context.Context, _ *protocol.Message, _ *sessions.Session) error {
			invocations++
			return nil
		},
	})

	noisy, _ := f.newSession()
	for i := 0; i < ratelimit.DefaultConfig().MaxRequests+1; i++ {
		d.Dispatch(context.Background(), request(t, "", protocol.TypePing, nil), noisy)
	}

	quiet, _ := f.newSession()
	d.Dispatch(context.Background(), request(t, "", protocol.TypePing, nil), quiet)

	assert.Equal(t, ratelimit.DefaultConfig().MaxRequests+1, invocations)
}

func TestDispatchContainsHandlerPanic(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	d.Register(&stubHandler{
		msgType: "Explodes",
		handle: func(_ context.Context, _ *protocol.Message, _ *sessions.Session) error {
			panic("boom")
		},
	})
	pinged := false
	d.Register(&stubHandler{
		msgType: protocol.TypePing,
		handle: func(_ context.Context, _ *protocol.Message, _ *sessions.Session) error {
			pinged = true
			return nil
		},
	})

	session, _ := f.newSession()
	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), request(t, "", "Explodes", nil), session)
	})

	// The session is still serviceable afterwards
	d.Dispatch(context.Background(), request(t, "", protocol.TypePing, nil), session)
	assert.True(t, pinged)
}

func TestTypesListsRegisteredHandlers(t *testing.T) {
	f := newFixture(t)
	d := newDispatcherUnderTest(f)

	d.Register(&stubHandler{msgType: protocol.TypePing})
	d.Register(&stubHandler{msgType: protocol.TypeLoginRequest})

	assert.ElementsMatch(t, []string{protocol.TypePing, protocol.TypeLoginRequest}, d.Types())
}
