package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type strings. Requests come from clients; responses echo the
// request's correlation id. Broadcasts are unsolicited and carry their
// own generated id.
const (
	TypePing                     = "Ping"
	TypePong                     = "Pong"
	TypeRegisterRequest          = "RegisterRequest"
	TypeRegisterResponse         = "RegisterResponse"
	TypeLoginRequest             = "LoginRequest"
	TypeLoginResponse            = "LoginResponse"
	TypeUpdatePositionRequest    = "UpdatePositionRequest"
	TypeUpdatePositionResponse   = "UpdatePositionResponse"
	TypeLocationUpdatesRequest   = "LocationUpdatesRequest"
	TypeLocationUpdatesResponse  = "LocationUpdatesResponse"
	TypeLocationUpdatesBroadcast = "LocationUpdatesBroadcast"
	TypeChatMessageRequest       = "ChatMessageRequest"
	TypeChatMessageResponse      = "ChatMessageResponse"
	TypeProfileUpdateRequest     = "ProfileUpdateRequest"
	TypeProfileUpdateResponse    = "ProfileUpdateResponse"
	TypeProfileUpdateBroadcast   = "ProfileUpdateBroadcast"
	TypeTimeSyncRequest          = "TimeSyncRequest"
	TypeTimeSyncResponse         = "TimeSyncResponse"
	TypeError                    = "Error"
)

// Error codes carried in the Error envelope
const (
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeInvalidRotation        = "INVALID_ROTATION"
	CodeInvalidVelocity        = "INVALID_VELOCITY"
	CodeResyncRequired         = "RESYNC_REQUIRED"
	CodeLoggedInElsewhere      = "LOGGED_IN_ELSEWHERE"
	CodeMessageTooLong         = "MESSAGE_TOO_LONG"
	CodeInvalidMessage         = "INVALID_MESSAGE"
)

// Message is the wire envelope. ID is a client-generated correlation id
// echoed on responses; broadcasts carry a server-generated id.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds a message with the payload marshalled to JSON
func New(id, msgType string, payload any) (*Message, error) {
	m := &Message{ID: id, Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		m.Payload = raw
	}
	return m, nil
}

// DecodePayload unmarshals the payload into v
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
