// ABOUTME: Remote responder protocol message definitions
// ABOUTME: JSON envelopes exchanged between a test session and responder devices
package protocol

// ProtocolVersion is the current message format version
const ProtocolVersion = 1

// Path is the websocket endpoint served by a test session
const Path = "/puretone"

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeServerError   = "server/error"
	TypeHeard         = "response/heard"
	TypeNotHeard      = "response/not_heard"
	TypeResponseAck   = "response/ack"
	TypeSessionState  = "session/state"
	TypeSessionResult = "session/result"
)

// Session states reported to responders
const (
	StateWaiting   = "waiting"
	StateTone      = "tone"
	StateListening = "listening"
	StateComplete  = "complete"
	StateAborted   = "aborted"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by responders to initiate the handshake
type ClientHello struct {
	ClientID   string      `json:"client_id" validate:"required,max=64"`
	Name       string      `json:"name" validate:"required,max=64"`
	Version    int         `json:"version" validate:"gte=1"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name" validate:"max=64"`
	Manufacturer    string `json:"manufacturer" validate:"max=64"`
	SoftwareVersion string `json:"software_version" validate:"max=32"`
}

// ServerHello is the session's response to client/hello
type ServerHello struct {
	ServerID        string `json:"server_id"`
	SessionID       string `json:"session_id"`
	Name            string `json:"name"`
	Version         int    `json:"version"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

// ServerError rejects a client
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ResponseAck tells a responder whether its answer was counted
type ResponseAck struct {
	Response string `json:"response"`
	Accepted bool   `json:"accepted"`
}

// SessionState mirrors the listener-visible session state. Levels are left
// out so a responder cannot be cued by them.
type SessionState struct {
	SessionID   string  `json:"session_id"`
	State       string  `json:"state"`
	Ear         string  `json:"ear,omitempty"`
	FrequencyHz float64 `json:"frequency_hz,omitempty"`
	Trial       int     `json:"trial,omitempty"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
}

// Threshold is one frequency's outcome
type Threshold struct {
	FrequencyHz float64 `json:"frequency_hz"`
	ThresholdHL int     `json:"threshold_hl"`
	NoResponse  bool    `json:"no_response,omitempty"`
}

// SessionResult carries both ears' thresholds once the test completes
type SessionResult struct {
	SessionID   string      `json:"session_id"`
	Policy      string      `json:"policy"`
	Left        []Threshold `json:"left"`
	Right       []Threshold `json:"right"`
	StartedAt   string      `json:"started_at"`
	CompletedAt string      `json:"completed_at"`
}
