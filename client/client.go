// Package client is the public facade gluing the Session/Offset core,
// the Channel API, and the WebRTC signaling coordinator into one
// application-facing type.
package client

import (
	"context"
	"fmt"

	"github.com/relaymesh/channelsdk/internal/channelapi"
	"github.com/relaymesh/channelsdk/internal/config"
	"github.com/relaymesh/channelsdk/internal/httptransport"
	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/rtcsignal"
	"github.com/relaymesh/channelsdk/internal/session"
	"github.com/relaymesh/channelsdk/internal/udptransport"
	"github.com/relaymesh/channelsdk/internal/wire"
)

// Options configures a new Client.
type Options struct {
	APIURL             string
	APIKey             string
	DeveloperKeySecret string

	// UDPHost/UDPPort enable the low-latency UDP transport; leave
	// UDPPort zero to disable it.
	UDPHost string
	UDPPort int

	// SessionDir is where connection snapshots are persisted across
	// process restarts.
	SessionDir string

	// ICEServers configures the bundled pion/webrtc/v4 peer connection
	// factory. Pass nil for host-only ICE.
	ICEServers []rtcsignal.ICEServerConfig
}

// ConnectParams mirrors session.Config for the public API, keeping the
// internal package's Config type unexported from library consumers.
type ConnectParams struct {
	ChannelName       string
	ChannelPassword   string
	ChannelID         string
	AgentName         string
	EnableWebrtcRelay bool
	Public            bool
	PollSource        wire.PollSource
	AgentContext      map[string]any
	ResumeLastSession bool
}

// Client is the application-facing SDK entry point: one Client
// corresponds to one channel connection (plus any WebRTC streams
// layered on top of it).
type Client struct {
	session     *session.Session
	api         *channelapi.API
	coordinator *rtcsignal.Coordinator
	udp         *udptransport.Client

	onMessage   func(ctx context.Context, events []wire.EventMessage)
	onEphemeral func(ctx context.Context, events []wire.EventMessage)
}

// New builds a Client from Options. The returned Client is not yet
// connected; call Connect.
func New(opts Options) (*Client, error) {
	httpClient := httptransport.New(opts.APIURL, opts.APIKey)

	var udpClient *udptransport.Client
	if opts.UDPPort != 0 {
		var err error
		udpClient, err = udptransport.New(opts.UDPHost, opts.UDPPort)
		if err != nil {
			return nil, fmt.Errorf("open udp transport: %w", err)
		}
	}

	api := channelapi.New(httpClient, udpClient, opts.DeveloperKeySecret)

	sessionDir := opts.SessionDir
	if sessionDir == "" {
		dir, err := config.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve session dir: %w", err)
		}
		sessionDir = dir
	}
	store, err := session.NewStore(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	sess := session.New(api, store)
	factory := rtcsignal.NewPionFactory(rtcsignal.ToPionICEServers(opts.ICEServers))
	coordinator := rtcsignal.New(factory, sess)
	factory.SetListener(coordinator)

	c := &Client{session: sess, api: api, coordinator: coordinator, udp: udpClient}

	sess.OnEvents(func(ctx context.Context, events []wire.EventMessage) {
		signaling, rest := partitionSignaling(events)
		for _, e := range signaling {
			coordinator.HandleEvent(ctx, e)
		}
		if len(rest) > 0 && c.onMessage != nil {
			c.onMessage(ctx, rest)
		}
	})
	sess.OnEphemeralEvents(func(ctx context.Context, events []wire.EventMessage) {
		if c.onEphemeral != nil {
			c.onEphemeral(ctx, events)
		}
	})

	return c, nil
}

func partitionSignaling(events []wire.EventMessage) (signaling, rest []wire.EventMessage) {
	for _, e := range events {
		if e.Type == wire.EventWebRTCSignal || e.Type == wire.EventChatWebRTC {
			signaling = append(signaling, e)
		} else {
			rest = append(rest, e)
		}
	}
	return signaling, rest
}

// OnMessage registers the handler for durable, non-signaling events.
func (c *Client) OnMessage(h func(ctx context.Context, events []wire.EventMessage)) {
	c.onMessage = h
}

// OnEphemeralMessage registers the handler for ephemeral events.
func (c *Client) OnEphemeralMessage(h func(ctx context.Context, events []wire.EventMessage)) {
	c.onEphemeral = h
}

// OnStateChange registers a connection state observer.
func (c *Client) OnStateChange(h func(from, to session.State)) {
	c.session.OnStateChange(func(from, to session.State) { h(from, to) })
}

// Connect joins a channel, deriving the channel identity from
// ChannelName+ChannelPassword when ChannelID is empty.
func (c *Client) Connect(ctx context.Context, p ConnectParams) error {
	scope := wire.ScopePrivate
	if p.Public {
		scope = wire.ScopePublic
	}
	return c.session.Connect(ctx, session.Config{
		ChannelName:       p.ChannelName,
		ChannelPassword:   p.ChannelPassword,
		ChannelID:         p.ChannelID,
		AgentName:         p.AgentName,
		EnableWebrtcRelay: p.EnableWebrtcRelay,
		APIKeyScope:       scope,
		PollSource:        p.PollSource,
		AgentContext:      p.AgentContext,
		CheckLastSession:  p.ResumeLastSession,
	})
}

// Push publishes an event on the connected channel.
func (c *Client) Push(ctx context.Context, req wire.PushRequest) bool {
	return c.session.Push(ctx, req)
}

// UDPPush publishes an event over the UDP transport, best effort.
func (c *Client) UDPPush(req wire.PushRequest) bool {
	req.SessionID = c.session.SessionID()
	return c.api.UDPPush(req)
}

// UDPPull fetches a batch over the UDP transport, blocking up to the
// transport's sendAndWait timeout (3s) for a correlated reply. Unlike
// the HTTP receive loop's pull, this does not advance the session's
// durable globalOffset/localOffset: callers track their own cursor in
// rc for UDP-only fan-out traffic.
func (c *Client) UDPPull(rc wire.ReceiveConfig) (wire.PullData, bool) {
	return c.api.UDPPull(c.session.SessionID(), rc)
}

// State returns the current connection state.
func (c *Client) State() session.State {
	return c.session.State()
}

// SessionID returns the active session identifier, or "" when
// disconnected.
func (c *Client) SessionID() string {
	return c.session.SessionID()
}

// ListAgents returns every agent currently on the channel.
func (c *Client) ListAgents(ctx context.Context) ([]wire.AgentInfo, bool) {
	return c.api.ListAgents(ctx, c.session.SessionID())
}

// ListSystemAgents returns only system agents on the channel.
func (c *Client) ListSystemAgents(ctx context.Context) ([]wire.AgentInfo, bool) {
	return c.api.ListSystemAgents(ctx, c.session.SessionID())
}

// CreateWebRTCOffer starts a new WebRTC stream to remoteAgent and
// returns its streamSessionId.
func (c *Client) CreateWebRTCOffer(ctx context.Context, remoteAgent string) (string, error) {
	return c.coordinator.CreateOffer(ctx, remoteAgent)
}

// CloseWebRTCStream tears down a previously created stream.
func (c *Client) CloseWebRTCStream(streamSessionID string) error {
	return c.coordinator.CloseStream(streamSessionID)
}

// Disconnect leaves the channel and stops the receive loop.
func (c *Client) Disconnect(ctx context.Context) bool {
	if c.udp != nil {
		defer func() {
			if err := c.udp.Close(); err != nil {
				logging.Warn("close udp transport", "error", err)
			}
		}()
	}
	return c.session.Disconnect(ctx)
}
