package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/relaymesh/channelsdk/internal/channelapi"
	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/session"
	"github.com/relaymesh/channelsdk/internal/wire"
)

const maxLineSize = 1 << 20 // 1 MiB

// defaultPullLimit is applied to "pull"/"udpPull" ops that omit limit.
const defaultPullLimit = 50

// Server listens on 127.0.0.1:<port> and speaks the line-delimited
// JSON control protocol. Each accepted connection owns exactly one
// Channel API session.
type Server struct {
	api   *channelapi.API
	store *session.Store
	addr  string
}

// NewServer builds a Server bound to api for session creation, using
// store for snapshot persistence, listening on 127.0.0.1:port.
func NewServer(api *channelapi.API, store *session.Store, port int) *Server {
	return &Server{api: api, store: store, addr: fmt.Sprintf("127.0.0.1:%d", port)}
}

// ListenAndServe accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logging.Info("bridge listening", "addr", s.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := session.New(s.api, s.store)
	var writeMu sync.Mutex
	var seq uint64

	writeLine := func(resp Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			logging.Error("encode bridge response", "error", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := conn.Write(append(data, '\n')); err != nil {
			logging.Warn("bridge write failed", "error", err)
		}
	}

	streamEvents := func(events []wire.EventMessage, ephemeral bool) {
		for _, e := range events {
			n := atomic.AddUint64(&seq, 1)
			writeLine(Response{Status: "ok", Data: eventData{
				Kind: "event", Seq: n, From: e.From, To: e.To,
				Type: string(e.Type), Content: e.Content, Ephemeral: ephemeral,
			}})
		}
	}

	sess.OnEvents(func(ctx context.Context, events []wire.EventMessage) {
		streamEvents(events, false)
	})
	sess.OnEphemeralEvents(func(ctx context.Context, events []wire.EventMessage) {
		streamEvents(events, true)
	})

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeLine(Response{Status: "error", Error: "invalid JSON: " + err.Error()})
			continue
		}
		writeLine(s.dispatch(connCtx, sess, req))
	}

	sess.Disconnect(context.Background())
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, req Request) Response {
	switch req.Op {
	case "connect":
		return s.handleConnect(ctx, sess, req)
	case "push":
		return s.handlePush(ctx, sess, req)
	case "pull":
		return s.handlePull(ctx, sess, req)
	case "udpPush":
		return s.handleUDPPush(ctx, sess, req)
	case "udpPull":
		return s.handleUDPPull(ctx, sess, req)
	case "disconnect":
		ok := sess.Disconnect(ctx)
		return statusResponse(ok, "disconnect rejected")
	case "listAgents":
		return s.handleListAgents(ctx, sess, false)
	case "listSystemAgents":
		return s.handleListAgents(ctx, sess, true)
	default:
		return Response{Status: "error", Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *Server) handleConnect(ctx context.Context, sess *session.Session, req Request) Response {
	if _, err := decodeAgentContext(req.AgentContext); err != nil {
		return Response{Status: "error", Error: "invalid agentContext: " + err.Error()}
	}

	scope := wire.ScopePrivate
	if req.APIKeyScope == string(wire.ScopePublic) {
		scope = wire.ScopePublic
	}

	cfg := session.Config{
		ChannelName:       req.ChannelName,
		ChannelPassword:   req.ChannelPassword,
		ChannelID:         req.ChannelID,
		AgentName:         req.AgentName,
		EnableWebrtcRelay: req.EnableWebrtcRelay,
		APIKeyScope:       scope,
		PollSource:        wire.PollSource(req.PollSource),
		AgentContext:      req.AgentContext,
		CheckLastSession:  true,
	}

	if err := sess.Connect(ctx, cfg); err != nil {
		return Response{Status: "error", Error: err.Error()}
	}
	globalOffset, localOffset := sess.Offsets()
	return Response{Status: "ok", Data: map[string]any{
		"sessionId":    sess.SessionID(),
		"channelId":    sess.ChannelID(),
		"globalOffset": globalOffset,
		"localOffset":  localOffset,
	}}
}

func (s *Server) handlePush(ctx context.Context, sess *session.Session, req Request) Response {
	if sess.State() != session.Connected {
		return Response{Status: "error", Error: "push before connect"}
	}

	pushReq := wire.PushRequest{
		Type:      wire.EventType(req.Type),
		To:        req.To,
		Content:   req.Content,
		Encrypted: req.Encrypted,
		Ephemeral: req.Ephemeral,
	}
	if req.Filter != "" {
		pushReq.Filter = &req.Filter
	}

	ok := sess.Push(ctx, pushReq)
	return statusResponse(ok, "push rejected")
}

// handlePull drives a manual long-poll cycle in addition to the
// connection's background receive loop, returning the fetched batch
// directly in the response rather than only via streamed event lines.
func (s *Server) handlePull(ctx context.Context, sess *session.Session, req Request) Response {
	if sess.State() != session.Connected {
		return Response{Status: "error", Error: "pull before connect"}
	}
	data, ok := sess.Pull(ctx)
	if !ok {
		return Response{Status: "error", Error: "pull failed"}
	}
	return Response{Status: "ok", Data: data}
}

func (s *Server) handleUDPPush(ctx context.Context, sess *session.Session, req Request) Response {
	if sess.State() != session.Connected {
		return Response{Status: "error", Error: "udpPush before connect"}
	}

	pushReq := wire.PushRequest{
		SessionID: sess.SessionID(),
		Type:      wire.EventType(req.Type),
		To:        req.To,
		Content:   req.Content,
		Encrypted: req.Encrypted,
		Ephemeral: req.Ephemeral,
	}
	if req.Filter != "" {
		pushReq.Filter = &req.Filter
	}

	ok := s.api.UDPPush(pushReq)
	return statusResponse(ok, "udpPush failed")
}

func (s *Server) handleUDPPull(ctx context.Context, sess *session.Session, req Request) Response {
	if sess.State() != session.Connected {
		return Response{Status: "error", Error: "udpPull before connect"}
	}

	globalOffset, localOffset := sess.Offsets()
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPullLimit
	}

	data, ok := s.api.UDPPull(sess.SessionID(), wire.ReceiveConfig{
		GlobalOffset: globalOffset,
		LocalOffset:  localOffset,
		Limit:        limit,
		PollSource:   wire.PollSource(req.PollSource),
	})
	if !ok {
		return Response{Status: "error", Error: "udpPull failed or timed out"}
	}
	return Response{Status: "ok", Data: data}
}

func (s *Server) handleListAgents(ctx context.Context, sess *session.Session, systemOnly bool) Response {
	sessionID := sess.SessionID()
	if sessionID == "" {
		return Response{Status: "error", Error: "listAgents before connect"}
	}

	var (
		agents []wire.AgentInfo
		ok     bool
	)
	if systemOnly {
		agents, ok = s.api.ListSystemAgents(ctx, sessionID)
	} else {
		agents, ok = s.api.ListAgents(ctx, sessionID)
	}
	if !ok {
		return Response{Status: "error", Error: "list agents failed"}
	}
	return Response{Status: "ok", Data: agents}
}

func statusResponse(ok bool, failureMessage string) Response {
	if ok {
		return Response{Status: "ok"}
	}
	return Response{Status: "error", Error: failureMessage}
}
