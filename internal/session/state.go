// Package session implements the Session/Offset core: the library's
// connection state machine, its long-poll receive loop, and the local
// offset/session persistence it relies on.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaymesh/channelsdk/internal/channelapi"
	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/wire"
)

// State is one of the Session/Offset core's states.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// consecutiveFailureLimit is how many consecutive pull failures move
// the session from Connected into Reconnecting.
const consecutiveFailureLimit = 3

// EventHandler is invoked sequentially, once per pull batch, with
// durable events in arrival order.
type EventHandler func(ctx context.Context, events []wire.EventMessage)

// EphemeralHandler is invoked for ephemeral events, which never affect
// offsets.
type EphemeralHandler func(ctx context.Context, events []wire.EventMessage)

// StateChangeHandler observes session state transitions.
type StateChangeHandler func(from, to State)

// Config drives Connect.
type Config struct {
	ChannelName       string
	ChannelPassword   string
	ChannelID         string
	AgentName         string
	EnableWebrtcRelay bool
	APIKeyScope       wire.APIKeyScope
	PollSource        wire.PollSource
	AgentContext      map[string]any

	CheckLastSession bool
	PullLimit        int
}

// Session is one instance of the Session/Offset core: one per active
// connection.
type Session struct {
	api   *channelapi.API
	store *Store

	mu             sync.Mutex
	state          State
	sessionID      string
	channelID      string
	agentName      string
	globalOffset   int64
	localOffset    int64
	connectionTime int64
	cfg            Config
	consecutiveFailures int

	onEvents      EventHandler
	onEphemeral   EphemeralHandler
	onStateChange StateChangeHandler

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// New builds a Session bound to api, persisting snapshots to store.
func New(api *channelapi.API, store *Store) *Session {
	return &Session{api: api, store: store, state: Disconnected}
}

// OnEvents registers the durable-event handler.
func (s *Session) OnEvents(h EventHandler) { s.onEvents = h }

// OnEphemeralEvents registers the ephemeral-event handler.
func (s *Session) OnEphemeralEvents(h EphemeralHandler) { s.onEphemeral = h }

// OnStateChange registers a state-transition observer.
func (s *Session) OnStateChange(h StateChangeHandler) { s.onStateChange = h }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		logging.Debug("session state transition", "from", prev, "to", next)
		if s.onStateChange != nil {
			s.onStateChange(prev, next)
		}
	}
}

// Connect runs the connect procedure: optional last-session
// adoption, channelId derivation, ChannelAPI.connect, snapshot
// persistence, and receive-loop startup.
func (s *Session) Connect(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	if s.state != Disconnected && s.state != Closed {
		s.mu.Unlock()
		return fmt.Errorf("connect called from state %s", s.state)
	}
	s.mu.Unlock()

	s.setState(Connecting)
	s.cfg = cfg

	adoptedSessionID := ""
	if cfg.CheckLastSession && cfg.ChannelID != "" {
		if snap, ok := s.store.Load(cfg.ChannelID, cfg.AgentName); ok {
			adoptedSessionID = snap.SessionID
			s.applySnapshot(snap)
		}
	}

	data, ok := s.api.Connect(ctx, channelapi.ConnectConfig{
		ChannelName:       cfg.ChannelName,
		ChannelPassword:   cfg.ChannelPassword,
		ChannelID:         cfg.ChannelID,
		AgentName:         cfg.AgentName,
		SessionID:         adoptedSessionID,
		EnableWebrtcRelay: cfg.EnableWebrtcRelay,
		APIKeyScope:       cfg.APIKeyScope,
		PollSource:        cfg.PollSource,
		AgentContext:      cfg.AgentContext,
	})
	if !ok {
		s.setState(Disconnected)
		return fmt.Errorf("connect rejected: %w", wire.ErrAuth)
	}

	s.mu.Lock()
	s.sessionID = data.SessionID
	s.channelID = data.ChannelID
	s.agentName = cfg.AgentName
	s.globalOffset = data.GlobalOffset
	s.localOffset = data.LocalOffset
	s.connectionTime = data.ConnectionTime
	s.mu.Unlock()

	s.persist()
	s.setState(Connected)
	s.startReceiveLoop(ctx)
	return nil
}

func (s *Session) applySnapshot(snap Snapshot) {
	s.mu.Lock()
	s.sessionID = snap.SessionID
	s.channelID = snap.ChannelID
	s.agentName = snap.AgentName
	s.globalOffset = snap.GlobalOffset
	s.localOffset = snap.LocalOffset
	s.connectionTime = snap.ConnectionTime
	s.mu.Unlock()
}

func (s *Session) persist() {
	s.mu.Lock()
	snap := Snapshot{
		SessionID:      s.sessionID,
		ChannelID:      s.channelID,
		AgentName:      s.agentName,
		GlobalOffset:   s.globalOffset,
		LocalOffset:    s.localOffset,
		ConnectionTime: s.connectionTime,
		LastUsed:       time.Now().Unix(),
	}
	s.mu.Unlock()
	if err := s.store.Save(snap); err != nil {
		logging.Warn("persist session snapshot failed", "error", err)
	}
}

// SessionID returns the currently active session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ChannelID returns the currently active channel identifier.
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Offsets returns the session's current (globalOffset, localOffset).
func (s *Session) Offsets() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalOffset, s.localOffset
}

// Push posts an event to the channel.
func (s *Session) Push(ctx context.Context, req wire.PushRequest) bool {
	sessionID := s.SessionID()
	if sessionID == "" {
		return false
	}
	return s.api.Push(ctx, sessionID, req)
}

// Disconnect transitions to Closed, stops the receive loop, and
// best-effort notifies the server. It is idempotent: calling it again
// on an already-Closed session is a no-op that returns true without
// touching the network.
func (s *Session) Disconnect(ctx context.Context) bool {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return true
	}
	sessionID := s.sessionID
	channelID := s.channelID
	agentName := s.agentName
	cancel := s.cancelLoop
	done := s.loopDone
	s.mu.Unlock()

	s.setState(Closed)

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(longPollTimeout + time.Second):
			logging.Warn("receive loop did not exit within bounded wait")
		}
	}

	if channelID != "" && agentName != "" {
		s.store.Delete(channelID, agentName)
	}
	if sessionID == "" {
		return true
	}
	return s.api.Disconnect(ctx, sessionID)
}
