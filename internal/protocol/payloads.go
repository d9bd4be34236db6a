package protocol

// LocationUpdate is one movement event as it appears on the wire
type LocationUpdate struct {
	UpdateID    int64   `json:"updateId"`
	Username    string  `json:"username"`
	EntityID    int64   `json:"entityId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	RotX        float64 `json:"rotX"`
	RotY        float64 `json:"rotY"`
	RotZ        float64 `json:"rotZ"`
	RotW        float64 `json:"rotW"`
	Velocity    float64 `json:"velocity"`
	TimestampMs int64   `json:"timestampMs"`
}

// ProfileInfo is the wire form of a player's profile
type ProfileInfo struct {
	ProfileImage int `json:"profileImage"`
}

// PlayerSnapshot is a player's full live state: entity plus profile
type PlayerSnapshot struct {
	Username    string      `json:"username"`
	EntityID    int64       `json:"entityId"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Z           float64     `json:"z"`
	RotX        float64     `json:"rotX"`
	RotY        float64     `json:"rotY"`
	RotZ        float64     `json:"rotZ"`
	RotW        float64     `json:"rotW"`
	Velocity    float64     `json:"velocity"`
	TimestampMs int64       `json:"timestampMs"`
	Profile     ProfileInfo `json:"profile"`
}

// PongPayload carries the server's wall clock in epoch milliseconds
type PongPayload struct {
	Time int64 `json:"time"`
}

// RegisterRequestPayload is the account-creation request
type RegisterRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponsePayload reports account-creation outcome
type RegisterResponsePayload struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LoginRequestPayload is the authentication request
type LoginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponsePayload carries the full world snapshot on success so the
// client starts from a known-good cursor
type LoginResponsePayload struct {
	Success              bool             `json:"success"`
	Error                string           `json:"error,omitempty"`
	Username             string           `json:"username,omitempty"`
	LastLocationUpdateID int64            `json:"lastLocationUpdateId"`
	AllPlayers           []PlayerSnapshot `json:"allPlayers,omitempty"`
}

// UpdatePositionRequestPayload carries rotation and speed only; the server
// derives position itself
type UpdatePositionRequestPayload struct {
	RotX     float64 `json:"rotX"`
	RotY     float64 `json:"rotY"`
	RotZ     float64 `json:"rotZ"`
	RotW     float64 `json:"rotW"`
	Velocity float64 `json:"velocity"`
}

// UpdatePositionResponsePayload acknowledges an accepted movement
type UpdatePositionResponsePayload struct {
	Success  bool  `json:"success"`
	UpdateID int64 `json:"updateId"`
}

// LocationUpdatesRequestPayload asks for all updates after LastUpdateID
type LocationUpdatesRequestPayload struct {
	LastUpdateID int64 `json:"lastUpdateId"`
}

// LocationUpdatesPayload is used for both the catch-up response and the
// per-movement broadcast
type LocationUpdatesPayload struct {
	Updates              []LocationUpdate `json:"updates"`
	LastLocationUpdateID int64            `json:"lastLocationUpdateId"`
}

// ChatMessageRequestPayload is an outbound chat line
type ChatMessageRequestPayload struct {
	Message string `json:"message"`
}

// ChatMessagePayload is the chat broadcast sent to every authenticated session
type ChatMessagePayload struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ProfileUpdateRequestPayload changes the sender's profile image
type ProfileUpdateRequestPayload struct {
	ProfileImage int `json:"profileImage"`
}

// ProfileUpdateResponsePayload reports profile-change outcome
type ProfileUpdateResponsePayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ProfileUpdateBroadcastPayload announces another player's profile change
type ProfileUpdateBroadcastPayload struct {
	Username     string `json:"username"`
	ProfileImage int    `json:"profileImage"`
}

// TimeSyncRequestPayload carries the client's send timestamp
type TimeSyncRequestPayload struct {
	ClientSendTime int64 `json:"clientSendTime"`
}

// TimeSyncResponsePayload carries the timestamps needed for clock-offset
// calibration
type TimeSyncResponsePayload struct {
	ClientSendTime    int64 `json:"clientSendTime"`
	ServerReceiveTime int64 `json:"serverReceiveTime"`
	ServerSendTime    int64 `json:"serverSendTime"`
}

// ErrorPayload carries a typed error. For RESYNC_REQUIRED it also carries
// the full snapshot so the client can recover without a second round trip.
type ErrorPayload struct {
	Code                 string           `json:"code"`
	Message              string           `json:"message"`
	AllEntities          []PlayerSnapshot `json:"allEntities,omitempty"`
	LastLocationUpdateID int64            `json:"lastLocationUpdateId,omitempty"`
}
