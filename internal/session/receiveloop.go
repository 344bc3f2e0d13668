package session

import (
	"context"
	"time"

	"github.com/relaymesh/channelsdk/internal/channelapi"
	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/wire"
)

const (
	pullBaseBackoff = 200 * time.Millisecond
	pullMaxBackoff  = 5 * time.Second
	longPollTimeout = 40 * time.Second
	defaultPullLimit = 50
)

// startReceiveLoop launches the single background worker that drives
// this session's long-poll receive loop.
func (s *Session) startReceiveLoop(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancelLoop = cancel
	s.loopDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.runReceiveLoop(loopCtx)
	}()
}

func (s *Session) runReceiveLoop(ctx context.Context) {
	backoff := NewBackoff(pullBaseBackoff, pullMaxBackoff)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		globalOffset, localOffset := s.Offsets()
		sessionID := s.SessionID()
		limit := s.cfg.PullLimit
		if limit <= 0 {
			limit = defaultPullLimit
		}

		result := s.api.Pull(ctx, sessionID, wire.ReceiveConfig{
			GlobalOffset: globalOffset,
			LocalOffset:  localOffset,
			Limit:        limit,
			PollSource:   s.cfg.PollSource,
		})

		select {
		case <-ctx.Done():
			return
		default:
		}

		switch {
		case result.UnknownSession:
			if !s.reconnect(ctx) {
				s.waitBackoff(ctx, backoff.Next())
				continue
			}
			backoff.Reset()

		case result.Ok:
			backoff.Reset()
			s.deliver(ctx, result.Data)

		default:
			logging.Warn("pull failed", "statusMessage", logging.Sanitize(result.StatusMessage))
			if s.recordFailure() >= consecutiveFailureLimit {
				s.setState(Reconnecting)
			}
			s.waitBackoff(ctx, backoff.Next())
		}
	}
}

// Pull performs a single manual pull cycle outside the background
// receive loop: one long-poll call at the session's current offsets,
// advancing them and invoking the registered handlers exactly as the
// receive loop itself would. Used by callers (such as the TCP bridge)
// that want a synchronous pull/response in addition to the
// asynchronously streamed events.
func (s *Session) Pull(ctx context.Context) (wire.PullData, bool) {
	sessionID := s.SessionID()
	if sessionID == "" {
		return wire.PullData{}, false
	}
	globalOffset, localOffset := s.Offsets()
	s.mu.Lock()
	limit := s.cfg.PullLimit
	pollSource := s.cfg.PollSource
	s.mu.Unlock()
	if limit <= 0 {
		limit = defaultPullLimit
	}

	result := s.api.Pull(ctx, sessionID, wire.ReceiveConfig{
		GlobalOffset: globalOffset,
		LocalOffset:  localOffset,
		Limit:        limit,
		PollSource:   pollSource,
	})

	if result.UnknownSession {
		if !s.reconnect(ctx) {
			return wire.PullData{}, false
		}
		return wire.PullData{}, true
	}
	if !result.Ok {
		return wire.PullData{}, false
	}

	s.deliver(ctx, result.Data)
	return result.Data, true
}

// deliver hands durable events to the handler before advancing
// offsets, then hands ephemeral events to their own handler without
// touching offsets.
func (s *Session) deliver(ctx context.Context, data wire.PullData) {
	if len(data.Events) > 0 && s.onEvents != nil {
		invokeHandlerSafely(ctx, s.onEvents, data.Events)
	}
	if len(data.EphemeralEvents) > 0 && s.onEphemeral != nil {
		invokeHandlerSafely(ctx, s.onEphemeral, data.EphemeralEvents)
	}

	if data.NextGlobalOffset == nil && data.NextLocalOffset == nil {
		return
	}
	s.mu.Lock()
	if data.NextGlobalOffset != nil {
		s.globalOffset = *data.NextGlobalOffset
	}
	if data.NextLocalOffset != nil {
		s.localOffset = *data.NextLocalOffset
	}
	s.mu.Unlock()
	s.persist()
	s.resetFailures()
}

// invokeHandlerSafely catches a panicking handler so it cannot abort
// the receive loop. Offsets still advance after a panicking handler:
// this implementation is at-most-once per message batch, chosen for
// consistency with the non-blocking nature of the rest of the loop.
func invokeHandlerSafely(ctx context.Context, handler func(context.Context, []wire.EventMessage), events []wire.EventMessage) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("event handler panicked", "recovered", logging.Sanitize(formatRecover(r)))
		}
	}()
	handler(ctx, events)
}

func formatRecover(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic"
}

// recordFailure increments the consecutive-pull-failure counter and
// returns its new value.
func (s *Session) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	return s.consecutiveFailures
}

func (s *Session) resetFailures() {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}

// reconnect attempts a fresh connect preserving agentName. On success it adopts the new sessionId/offsets and resumes
// Connected; on failure the caller backs off and retries.
func (s *Session) reconnect(ctx context.Context) bool {
	s.setState(Reconnecting)

	s.mu.Lock()
	cfg := s.cfg
	channelID := s.channelID
	s.mu.Unlock()

	data, ok := s.api.Connect(ctx, channelapi.ConnectConfig{
		ChannelName:       cfg.ChannelName,
		ChannelPassword:   cfg.ChannelPassword,
		ChannelID:         channelID,
		AgentName:         cfg.AgentName,
		EnableWebrtcRelay: cfg.EnableWebrtcRelay,
		APIKeyScope:       cfg.APIKeyScope,
		PollSource:        cfg.PollSource,
		AgentContext:      cfg.AgentContext,
	})
	if !ok {
		logging.Warn("reconnect failed, will retry after backoff")
		return false
	}

	s.mu.Lock()
	s.sessionID = data.SessionID
	s.channelID = data.ChannelID
	s.globalOffset = data.GlobalOffset
	s.localOffset = data.LocalOffset
	s.connectionTime = data.ConnectionTime
	s.consecutiveFailures = 0
	s.mu.Unlock()

	s.persist()
	s.setState(Connected)
	return true
}

func (s *Session) waitBackoff(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
