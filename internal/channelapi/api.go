// Package channelapi is the stateless facade over the HTTP and UDP
// transports that applies authentication hashing and request shaping.
package channelapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relaymesh/channelsdk/internal/crypto"
	"github.com/relaymesh/channelsdk/internal/httptransport"
	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/udptransport"
	"github.com/relaymesh/channelsdk/internal/wire"
)

// API is the Channel API facade. It holds no session state of its
// own; callers (the session core) own sessionId and offsets.
type API struct {
	http *httptransport.Client
	udp  *udptransport.Client

	developerKeySecret string // non-empty only for ScopePrivate callers
}

// New builds an API bound to an HTTP transport and an optional UDP
// transport (nil disables udpPush/udpPull).
func New(http *httptransport.Client, udp *udptransport.Client, developerKeySecret string) *API {
	return &API{http: http, udp: udp, developerKeySecret: developerKeySecret}
}

// ConnectConfig mirrors the /connect request inputs.
type ConnectConfig struct {
	ChannelName       string
	ChannelPassword   string
	ChannelID         string // if set, ChannelName/ChannelPassword are ignored for derivation
	AgentName         string
	SessionID         string // non-empty to attempt session reuse
	EnableWebrtcRelay bool
	APIKeyScope       wire.APIKeyScope
	PollSource        wire.PollSource
	AgentContext      map[string]any
}

// CreateChannel calls POST /create-channel. On any transport or
// protocol failure it logs sanitized detail and returns ("", false);
// callers cannot distinguish "no channel" from "transport down".
func (a *API) CreateChannel(ctx context.Context, name, passwordHash string) (string, bool) {
	body, err := json.Marshal(wire.CreateChannelRequest{ChannelName: name, ChannelPassword: passwordHash})
	if err != nil {
		logging.Error("encode create-channel request", "error", err)
		return "", false
	}
	resp, err := a.http.Post(ctx, "/create-channel", body)
	if err != nil {
		logging.Error("create-channel transport failure", "error", err)
		return "", false
	}
	if !resp.Ok() {
		logging.Warn("create-channel rejected", "httpStatus", resp.HTTPStatus)
		return "", false
	}

	_, _, data, err := wire.DecodeEnvelope[wire.CreateChannelData](resp.Body)
	if err != nil {
		logging.Error("decode create-channel response", "error", err)
		return "", false
	}
	return data.ChannelID, data.ChannelID != ""
}

// Connect calls POST /connect, deriving a channelId from
// name+password when one is not supplied directly.
func (a *API) Connect(ctx context.Context, cfg ConnectConfig) (wire.ConnectData, bool) {
	req := wire.ConnectRequest{
		ChannelName:       cfg.ChannelName,
		AgentName:         cfg.AgentName,
		EnableWebrtcRelay: cfg.EnableWebrtcRelay,
		APIKeyScope:       cfg.APIKeyScope,
		PollSource:        cfg.PollSource,
		AgentContext:      cfg.AgentContext,
	}
	if cfg.SessionID != "" {
		req.SessionID = &cfg.SessionID
	}

	switch {
	case cfg.ChannelID != "":
		req.ChannelID = &cfg.ChannelID
	case cfg.ChannelName != "" && cfg.ChannelPassword != "":
		secret := crypto.DeriveChannelSecret(cfg.ChannelName, cfg.ChannelPassword)
		passwordHash := crypto.HashPassword(cfg.ChannelPassword, secret)
		req.ChannelPassword = passwordHash

		developerSecret := ""
		if cfg.APIKeyScope == wire.ScopePrivate {
			developerSecret = a.developerKeySecret
		}
		channelID := crypto.GenerateChannelID(cfg.ChannelName, cfg.ChannelPassword, developerSecret)
		if _, ok := a.CreateChannel(ctx, cfg.ChannelName, passwordHash); !ok {
			logging.Warn("create-channel failed during connect, attempting connect anyway", "channelName", logging.Sanitize(cfg.ChannelName))
		}
		req.ChannelID = &channelID
	}

	body, err := json.Marshal(req)
	if err != nil {
		logging.Error("encode connect request", "error", err)
		return wire.ConnectData{}, false
	}
	resp, err := a.http.Post(ctx, "/connect", body)
	if err != nil {
		logging.Error("connect transport failure", "error", err)
		return wire.ConnectData{}, false
	}
	if !resp.Ok() {
		logging.Warn("connect rejected", "httpStatus", resp.HTTPStatus)
		return wire.ConnectData{}, false
	}

	_, statusMessage, data, err := wire.DecodeEnvelope[wire.ConnectData](resp.Body)
	if err != nil {
		logging.Error("decode connect response", "error", err)
		return wire.ConnectData{}, false
	}
	if !data.Ok() {
		logging.Warn("connect did not succeed", "statusMessage", logging.Sanitize(statusMessage))
		return data, false
	}
	return data, true
}

// Push calls POST /push. Returns OK on 2xx with a success status.
func (a *API) Push(ctx context.Context, sessionID string, req wire.PushRequest) bool {
	req.SessionID = sessionID
	body, err := json.Marshal(req)
	if err != nil {
		logging.Error("encode push request", "error", err)
		return false
	}
	resp, err := a.http.Post(ctx, "/push", body)
	if err != nil {
		logging.Error("push transport failure", "error", err)
		return false
	}
	if !resp.Ok() {
		return false
	}
	_, _, data, err := wire.DecodeEnvelope[wire.PushData](resp.Body)
	if err != nil {
		logging.Error("decode push response", "error", err)
		return false
	}
	return data.Ok()
}

// PullResult wraps a /pull response plus the classification callers
// need to drive the session state machine.
type PullResult struct {
	Data             wire.PullData
	HTTPStatus       int
	StatusMessage    string
	UnknownSession   bool
	Ok               bool
}

// Pull calls POST /pull with the long-poll timeout.
func (a *API) Pull(ctx context.Context, sessionID string, rc wire.ReceiveConfig) PullResult {
	body, err := json.Marshal(wire.PullRequest{SessionID: sessionID, ReceiveConfig: rc})
	if err != nil {
		logging.Error("encode pull request", "error", err)
		return PullResult{}
	}
	resp, err := a.http.PostLongPoll(ctx, "/pull", body)
	if err != nil {
		logging.Error("pull transport failure", "error", err)
		return PullResult{}
	}
	result := PullResult{HTTPStatus: resp.HTTPStatus}
	if resp.HTTPStatus == 401 || resp.HTTPStatus == 404 {
		result.UnknownSession = true
		return result
	}
	if !resp.Ok() {
		return result
	}

	status, statusMessage, data, err := wire.DecodeEnvelope[wire.PullData](resp.Body)
	if err != nil {
		logging.Error("decode pull response", "error", err)
		return result
	}
	result.Data = data
	result.StatusMessage = statusMessage
	result.Ok = status == "success"
	if !result.Ok && wire.IsUnknownSessionMessage(statusMessage) {
		result.UnknownSession = true
	}
	return result
}

// ListAgents calls POST /list-agents.
func (a *API) ListAgents(ctx context.Context, sessionID string) ([]wire.AgentInfo, bool) {
	return a.listAgents(ctx, "/list-agents", sessionID)
}

// ListSystemAgents calls POST /list-system-agents.
func (a *API) ListSystemAgents(ctx context.Context, sessionID string) ([]wire.AgentInfo, bool) {
	return a.listAgents(ctx, "/list-system-agents", sessionID)
}

func (a *API) listAgents(ctx context.Context, path, sessionID string) ([]wire.AgentInfo, bool) {
	body, err := json.Marshal(wire.ListAgentsRequest{SessionID: sessionID})
	if err != nil {
		logging.Error("encode list-agents request", "path", path, "error", err)
		return nil, false
	}
	resp, err := a.http.Post(ctx, path, body)
	if err != nil {
		logging.Error("list-agents transport failure", "path", path, "error", err)
		return nil, false
	}
	if !resp.Ok() {
		return nil, false
	}
	_, _, data, err := wire.DecodeEnvelope[struct {
		Agents []wire.AgentInfo `json:"agents"`
	}](resp.Body)
	if err != nil {
		logging.Error("decode list-agents response", "path", path, "error", err)
		return nil, false
	}
	return data.Agents, true
}

// Disconnect calls POST /disconnect. Best-effort: never propagates a
// transport error to the caller.
func (a *API) Disconnect(ctx context.Context, sessionID string) bool {
	body, err := json.Marshal(wire.DisconnectRequest{SessionID: sessionID})
	if err != nil {
		logging.Error("encode disconnect request", "error", err)
		return false
	}
	resp, err := a.http.Post(ctx, "/disconnect", body)
	if err != nil {
		logging.Warn("disconnect transport failure, treating as already gone", "error", err)
		return false
	}
	if !resp.Ok() {
		return false
	}
	_, _, data, err := wire.DecodeEnvelope[wire.DisconnectData](resp.Body)
	if err != nil {
		return false
	}
	return data.Status == "success"
}

// UDPPush sends a push over the UDP transport without waiting for a
// reply.
func (a *API) UDPPush(req wire.PushRequest) bool {
	if a.udp == nil {
		return false
	}
	payload, err := json.Marshal(req)
	if err != nil {
		logging.Error("encode udp push payload", "error", err)
		return false
	}
	ok, err := a.udp.Send(wire.UDPEnvelope{Action: "push", Payload: payload})
	if err != nil {
		logging.Warn("udp push failed", "error", err)
		return false
	}
	return ok
}

// UDPPull sends a pull over the UDP transport and waits up to 3s for
// a correlated reply.
func (a *API) UDPPull(sessionID string, rc wire.ReceiveConfig) (wire.PullData, bool) {
	if a.udp == nil {
		return wire.PullData{}, false
	}
	payload, err := json.Marshal(wire.PullRequest{SessionID: sessionID, ReceiveConfig: rc})
	if err != nil {
		logging.Error("encode udp pull payload", "error", err)
		return wire.PullData{}, false
	}
	reply, err := a.udp.SendAndWait(wire.UDPEnvelope{Action: "pull", Payload: payload}, 3*time.Second)
	if err != nil {
		logging.Warn("udp pull failed", "error", err)
		return wire.PullData{}, false
	}
	if reply == nil || reply.Status != "success" {
		return wire.PullData{}, false
	}
	var data wire.PullData
	if err := json.Unmarshal(reply.Result, &data); err != nil {
		logging.Error("decode udp pull result", "error", err)
		return wire.PullData{}, false
	}
	return data, true
}

