// Package wire maps the typed request/response records of the channel
// messaging wire protocol to and from JSON.
package wire

import "encoding/json"

// EventType enumerates the event payload kinds carried on a channel.
// Enumerations serialize as their uppercase name on the wire.
type EventType string

const (
	EventChatText       EventType = "CHAT_TEXT"
	EventChatFile       EventType = "CHAT_FILE"
	EventChatWebRTC     EventType = "CHAT_WEBRTC_SIGNAL"
	EventWebRTCSignal   EventType = "WEBRTC_SIGNALING"
	EventGameState      EventType = "GAME_STATE"
	EventGameInput      EventType = "GAME_INPUT"
	EventGameSync       EventType = "GAME_SYNC"
	EventCustom         EventType = "CUSTOM"
)

// PollSource is passed through to the server unmodified; the client
// never interprets it.
type PollSource string

const (
	PollAuto     PollSource = "AUTO"
	PollCache    PollSource = "CACHE"
	PollKafka    PollSource = "KAFKA"
	PollDatabase PollSource = "DATABASE"
)

// APIKeyScope selects whether the developer key participates in
// channel-ID derivation.
type APIKeyScope string

const (
	ScopePrivate APIKeyScope = "private"
	ScopePublic  APIKeyScope = "public"
)

// BroadcastRecipient is the wildcard "to" value meaning every agent on
// the channel.
const BroadcastRecipient = "*"

// EventMessage is a single event delivered by, or destined for, a
// channel.
type EventMessage struct {
	Timestamp     int64      `json:"timestamp"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Filter        *string    `json:"filter,omitempty"`
	Type          EventType  `json:"type"`
	Content       string     `json:"content"`
	Encrypted     bool       `json:"encrypted"`
	Ephemeral     bool       `json:"ephemeral,omitempty"`
	GlobalOffset  int64      `json:"globalOffset,omitempty"`
	LocalOffset   int64      `json:"localOffset,omitempty"`
}

// AgentInfo is the observed view of another channel participant.
type AgentInfo struct {
	AgentName              string            `json:"agentName"`
	AgentType              string            `json:"agentType,omitempty"`
	Descriptor             string            `json:"descriptor,omitempty"`
	IPAddress              string            `json:"ipAddress,omitempty"`
	ConnectionTime         int64             `json:"connectionTime,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	Role                   *string           `json:"role"`
	CustomEventType        *string           `json:"customEventType,omitempty"`
	RestrictedCapabilities []string          `json:"restrictedCapabilities,omitempty"`
}

// IsSystem reports whether this agent has a non-null role, i.e. is a
// system agent. Callers MUST NOT hard-code role names; any non-null
// role value qualifies.
func (a AgentInfo) IsSystem() bool {
	return a.Role != nil
}

// envelope is the outer operation response shape common to every
// Channel API call: {status, data?, statusMessage?}.
type envelope struct {
	Status        string          `json:"status"`
	Data          json.RawMessage `json:"data,omitempty"`
	StatusMessage string          `json:"statusMessage,omitempty"`
}

// CreateChannelRequest is the /create-channel request body.
type CreateChannelRequest struct {
	ChannelName     string `json:"channelName"`
	ChannelPassword string `json:"channelPassword"` // already hashed
}

// CreateChannelData is the /create-channel response payload.
type CreateChannelData struct {
	ChannelID string `json:"channelId"`
}

// ConnectRequest is the /connect request body.
type ConnectRequest struct {
	ChannelID         *string        `json:"channelId,omitempty"`
	ChannelName       string         `json:"channelName,omitempty"`
	ChannelPassword   string         `json:"channelPassword,omitempty"` // already hashed
	AgentName         string         `json:"agentName"`
	SessionID         *string        `json:"sessionId,omitempty"`
	EnableWebrtcRelay bool           `json:"enableWebrtcRelay,omitempty"`
	APIKeyScope       APIKeyScope    `json:"apiKeyScope"`
	PollSource        PollSource     `json:"pollSource,omitempty"`
	AgentContext      map[string]any `json:"agentContext,omitempty"`
}

// ConnectData is the /connect response payload. Note the nested Status
// field duplicates the outer envelope's: the success criterion is
// Status == "success" AND SessionID != "".
type ConnectData struct {
	Status         string `json:"status"`
	SessionID      string `json:"sessionId"`
	ChannelID      string `json:"channelId"`
	GlobalOffset   int64  `json:"globalOffset"`
	LocalOffset    int64  `json:"localOffset"`
	ConnectionTime int64  `json:"connectionTime"`
	Message        string `json:"message,omitempty"`
}

// Ok reports whether this ConnectData represents a successful connect.
func (d ConnectData) Ok() bool {
	return d.Status == "success" && d.SessionID != ""
}

// PushRequest is the /push request body.
type PushRequest struct {
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	To        string    `json:"to,omitempty"`
	Filter    *string   `json:"filter,omitempty"`
	Content   string    `json:"content"`
	Encrypted bool      `json:"encrypted"`
	Ephemeral bool      `json:"ephemeral,omitempty"`
}

// PushData is the /push response payload.
type PushData struct {
	Status string `json:"status"`
}

// Ok reports whether the push was accepted.
func (d PushData) Ok() bool {
	return d.Status == "success"
}

// ReceiveConfig drives a /pull long-poll request.
type ReceiveConfig struct {
	GlobalOffset int64      `json:"globalOffset"`
	LocalOffset  int64      `json:"localOffset"`
	Limit        int        `json:"limit,omitempty"`
	PollSource   PollSource `json:"pollSource,omitempty"`
}

// PullRequest is the /pull request body.
type PullRequest struct {
	SessionID     string        `json:"sessionId"`
	ReceiveConfig ReceiveConfig `json:"receiveConfig"`
}

// PullData is the /pull response payload. The codec MUST accept both
// "messages" and "events" for the durable list; the
// custom UnmarshalJSON below folds them together. Absent offset
// fields mean "unchanged" and are represented as nil.
type PullData struct {
	Events          []EventMessage `json:"-"`
	EphemeralEvents []EventMessage `json:"ephemeralEvents,omitempty"`
	NextGlobalOffset *int64        `json:"nextGlobalOffset,omitempty"`
	NextLocalOffset  *int64        `json:"nextLocalOffset,omitempty"`
	PollSource       PollSource    `json:"pollSource,omitempty"`
}

func (d *PullData) UnmarshalJSON(b []byte) error {
	type alias PullData
	var raw struct {
		alias
		Messages []EventMessage `json:"messages,omitempty"`
		Events   []EventMessage `json:"events,omitempty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = PullData(raw.alias)
	d.Events = append(append([]EventMessage{}, raw.Events...), raw.Messages...)
	return nil
}

func (d PullData) MarshalJSON() ([]byte, error) {
	type alias struct {
		Events           []EventMessage `json:"events,omitempty"`
		EphemeralEvents  []EventMessage `json:"ephemeralEvents,omitempty"`
		NextGlobalOffset *int64         `json:"nextGlobalOffset,omitempty"`
		NextLocalOffset  *int64         `json:"nextLocalOffset,omitempty"`
		PollSource       PollSource     `json:"pollSource,omitempty"`
	}
	return json.Marshal(alias{
		Events:           d.Events,
		EphemeralEvents:  d.EphemeralEvents,
		NextGlobalOffset: d.NextGlobalOffset,
		NextLocalOffset:  d.NextLocalOffset,
		PollSource:       d.PollSource,
	})
}

// DisconnectRequest is the /disconnect request body.
type DisconnectRequest struct {
	SessionID      string `json:"sessionId"`
	AsyncDisconnect bool  `json:"asyncDisconnect,omitempty"`
}

// DisconnectData is the /disconnect response payload.
type DisconnectData struct {
	Status string `json:"status"`
}

// ListAgentsRequest is the /list-agents and /list-system-agents request
// body (identical shape).
type ListAgentsRequest struct {
	SessionID string `json:"sessionId"`
}

// UDPEnvelope wraps a request sent over the UDP transport.
type UDPEnvelope struct {
	Action    string          `json:"action"` // "push" | "pull"
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// UDPReply is the service's reply to a UDP envelope.
type UDPReply struct {
	Status    string          `json:"status"`
	RequestID string          `json:"requestId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}
