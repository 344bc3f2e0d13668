// Package bridge implements the local line-delimited JSON control
// server that exposes the Channel API to processes that have no
// native Go binding.
package bridge

import (
	"github.com/go-viper/mapstructure/v2"
)

// Request is one line of the bridge's control protocol. Op selects
// which Channel API operation it maps to; the remaining fields are
// interpreted according to Op and are otherwise ignored.
type Request struct {
	Op                string         `json:"op"`
	ChannelName       string         `json:"channelName,omitempty"`
	ChannelPassword   string         `json:"channelPassword,omitempty"`
	ChannelID         string         `json:"channelId,omitempty"`
	AgentName         string         `json:"agentName,omitempty"`
	EnableWebrtcRelay bool           `json:"enableWebrtcRelay,omitempty"`
	APIKeyScope       string         `json:"apiKeyScope,omitempty"`
	PollSource        string         `json:"pollSource,omitempty"`
	AgentContext      map[string]any `json:"agentContext,omitempty"`
	Type              string         `json:"type,omitempty"`
	To                string         `json:"to,omitempty"`
	Filter            string         `json:"filter,omitempty"`
	Content           string         `json:"content,omitempty"`
	Encrypted         bool           `json:"encrypted,omitempty"`
	Ephemeral         bool           `json:"ephemeral,omitempty"`
	Limit             int            `json:"limit,omitempty"`
}

// Response is one line written back to the client: either a reply to
// a Request or an asynchronously streamed event.
type Response struct {
	Status string `json:"status"` // "ok" | "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// eventData is the Data payload of an asynchronously streamed event
// line. Seq is monotonic per connection so clients can detect drops.
type eventData struct {
	Kind      string `json:"kind"`
	Seq       uint64 `json:"seq"`
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// agentContextFields are the well-known agentContext keys the bridge
// understands; anything else passes through in the raw map unchanged.
type agentContextFields struct {
	Descriptor string `mapstructure:"descriptor"`
	AgentType  string `mapstructure:"agentType"`
}

// decodeAgentContext pulls the well-known fields out of raw via
// mapstructure. raw itself is left unmodified, so callers can still
// forward it to connect() untouched.
func decodeAgentContext(raw map[string]any) (agentContextFields, error) {
	var fields agentContextFields
	if raw == nil {
		return fields, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fields,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fields, err
	}
	if err := decoder.Decode(raw); err != nil {
		return fields, err
	}
	return fields, nil
}
