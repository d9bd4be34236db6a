package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcoot/driftsync/internal/dependencies/mocks"
	"github.com/mcoot/driftsync/internal/protocol"
	"github.com/mcoot/driftsync/internal/services/accounts"
	"github.com/mcoot/driftsync/internal/services/chat"
	"github.com/mcoot/driftsync/internal/services/locationlog"
	"github.com/mcoot/driftsync/internal/services/players"
	"github.com/mcoot/driftsync/internal/services/ratelimit"
	"github.com/mcoot/driftsync/internal/services/sessions"
	"github.com/mcoot/driftsync/internal/testutil"
)

// fixture wires real services around a mock clock for handler-level tests
type fixture struct {
	t *testing.T

	clock       *mocks.MockClock
	accounts    *accounts.Service
	players     *players.Service
	log         *locationlog.Log
	chat        *chat.Service
	limiter     *ratelimit.Limiter
	registry    *sessions.Registry
	broadcaster *Broadcaster
}

func newFixture(t *testing.T) *fixture {
	logger := testutil.NopLogger()
	clk := mocks.NewMockClock(time.UnixMilli(0).UTC())
	log := locationlog.New(clk, locationlog.Config{MaxStoredUpdates: 5}, logger)
	playerService := players.New(clk, log, logger)
	registry := sessions.NewRegistry(clk, playerService, logger)

	return &fixture{
		t:           t,
		clock:       clk,
		accounts:    accounts.New(clk, logger),
		players:     playerService,
		log:         log,
		chat:        chat.New(clk, logger),
		limiter:     ratelimit.New(clk, ratelimit.DefaultConfig(), logger),
		registry:    registry,
		broadcaster: NewBroadcaster(registry, logger),
	}
}

// newSession registers a piped session and returns it along with a channel
// of decoded envelopes read from the client end. The channel closes when
// the connection does.
func (f *fixture) newSession() (*sessions.Session, <-chan *protocol.Message) {
	serverConn, clientConn := net.Pipe()
	f.t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	session := f.registry.Register(serverConn)

	ch := make(chan *protocol.Message, 16)
	go func() {
		defer close(ch)
		for {
			raw, err := protocol.ReadFrame(clientConn)
			if err != nil {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				return
			}
			ch <- &msg
		}
	}()
	return session, ch
}

// authedSession is newSession plus an installed identity binding
func (f *fixture) authedSession(username string) (*sessions.Session, <-chan *protocol.Message) {
	session, ch := f.newSession()
	_, err := f.registry.Authenticate(session.ID(), username)
	require.NoError(f.t, err)
	return session, ch
}

// request builds an inbound envelope, failing the test on marshal errors
func request(t *testing.T, id, msgType string, payload any) *protocol.Message {
	t.Helper()
	msg, err := protocol.New(id, msgType, payload)
	require.NoError(t, err)
	return msg
}

// recv waits for the next envelope on ch
func recv(t *testing.T, ch <-chan *protocol.Message) *protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "connection closed before a message arrived")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

// expectSilence asserts nothing arrives on ch in a short grace window
func expectSilence(t *testing.T, ch <-chan *protocol.Message) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if ok {
			t.Fatalf("unexpected message of type %s", msg.Type)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// decodeAs unmarshals the envelope payload into a fresh T
func decodeAs[T any](t *testing.T, msg *protocol.Message) T {
	t.Helper()
	var payload T
	require.NoError(t, msg.DecodePayload(&payload))
	return payload
}
