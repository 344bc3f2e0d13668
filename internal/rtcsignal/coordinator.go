package rtcsignal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/wire"
)

// StreamState is one of the per-stream signaling states.
type StreamState int

const (
	Pending StreamState = iota
	OfferSent
	OfferReceived
	AnswerSent
	AnswerReceived
	Connected
	Failed
	Closed
)

func (s StreamState) String() string {
	switch s {
	case Pending:
		return "pending"
	case OfferSent:
		return "offer-sent"
	case OfferReceived:
		return "offer-received"
	case AnswerSent:
		return "answer-sent"
	case AnswerReceived:
		return "answer-received"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// RTCSession is the coordinator's bookkeeping for one streamSessionId.
type RTCSession struct {
	StreamSessionID  string
	RemoteAgent      string
	State            StreamState
	LocalCandidates  []ICECandidate
	RemoteCandidates []ICECandidate
}

// signalPayload is the JSON content carried by a WEBRTC_SIGNALING
// event: {type, sdp?, candidate?, streamSessionId}.
type signalPayload struct {
	Type            string        `json:"type"` // "offer" | "answer" | "ice-candidate"
	SDP             string        `json:"sdp,omitempty"`
	Candidate       *ICECandidate `json:"candidate,omitempty"`
	StreamSessionID string        `json:"streamSessionId"`
}

// Pusher is the subset of the Channel API the coordinator needs to
// publish signaling events; satisfied by *session.Session.
type Pusher interface {
	Push(ctx context.Context, req wire.PushRequest) bool
}

// Coordinator drives zero or more concurrent WebRTC streams on top of
// a single channel session.
type Coordinator struct {
	mu      sync.Mutex
	streams map[string]*RTCSession

	factory PeerConnectionFactory
	pusher  Pusher
}

// New builds a Coordinator bound to factory and pusher.
func New(factory PeerConnectionFactory, pusher Pusher) *Coordinator {
	return &Coordinator{
		streams: make(map[string]*RTCSession),
		factory: factory,
		pusher:  pusher,
	}
}

// CreateOffer starts a new stream as the offerer: it asks the factory
// for a local SDP offer and publishes it to remoteAgent.
func (c *Coordinator) CreateOffer(ctx context.Context, remoteAgent string) (string, error) {
	streamSessionID := uuid.NewString()
	c.mu.Lock()
	c.streams[streamSessionID] = &RTCSession{StreamSessionID: streamSessionID, RemoteAgent: remoteAgent, State: Pending}
	c.mu.Unlock()

	sdp, err := c.factory.CreateOfferForStream(streamSessionID, remoteAgent)
	if err != nil {
		c.setState(streamSessionID, Failed)
		return "", fmt.Errorf("create offer: %w", err)
	}

	if !c.publish(ctx, remoteAgent, signalPayload{Type: "offer", SDP: sdp, StreamSessionID: streamSessionID}) {
		c.setState(streamSessionID, Failed)
		return "", fmt.Errorf("publish offer: push failed")
	}
	c.setState(streamSessionID, OfferSent)
	return streamSessionID, nil
}

// CloseStream tears down a stream's peer connection and removes it
// from the coordinator's bookkeeping.
func (c *Coordinator) CloseStream(streamSessionID string) error {
	c.mu.Lock()
	_, ok := c.streams[streamSessionID]
	delete(c.streams, streamSessionID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.factory.ClosePeerConnection(streamSessionID)
}

// HandleEvent processes a channel event that may carry WebRTC
// signaling content. Events of any other type are ignored.
func (c *Coordinator) HandleEvent(ctx context.Context, event wire.EventMessage) {
	if event.Type != wire.EventWebRTCSignal && event.Type != wire.EventChatWebRTC {
		return
	}

	var payload signalPayload
	if err := json.Unmarshal([]byte(event.Content), &payload); err != nil {
		logging.Warn("discarding malformed webrtc signaling event", "error", err)
		return
	}
	if payload.StreamSessionID == "" {
		logging.Warn("discarding webrtc signaling event with no streamSessionId")
		return
	}

	switch payload.Type {
	case "offer":
		c.handleOffer(ctx, event.From, payload)
	case "answer":
		c.handleAnswer(payload)
	case "ice-candidate":
		c.handleICECandidate(payload)
	default:
		logging.Warn("discarding webrtc signaling event with unknown type", "type", logging.Sanitize(payload.Type))
	}
}

func (c *Coordinator) handleOffer(ctx context.Context, remoteAgent string, payload signalPayload) {
	c.mu.Lock()
	c.streams[payload.StreamSessionID] = &RTCSession{
		StreamSessionID: payload.StreamSessionID,
		RemoteAgent:     remoteAgent,
		State:           OfferReceived,
	}
	c.mu.Unlock()

	answer, err := c.factory.CreateAnswerForOffer(payload.StreamSessionID, remoteAgent, payload.SDP)
	if err != nil {
		logging.Warn("create answer failed", "streamSessionId", payload.StreamSessionID, "error", err)
		c.setState(payload.StreamSessionID, Failed)
		return
	}

	if !c.publish(ctx, remoteAgent, signalPayload{Type: "answer", SDP: answer, StreamSessionID: payload.StreamSessionID}) {
		c.setState(payload.StreamSessionID, Failed)
		return
	}
	c.setState(payload.StreamSessionID, AnswerSent)
}

func (c *Coordinator) handleAnswer(payload signalPayload) {
	if err := c.factory.HandleRemoteAnswer(payload.StreamSessionID, payload.SDP); err != nil {
		logging.Warn("handle remote answer failed", "streamSessionId", payload.StreamSessionID, "error", err)
		c.setState(payload.StreamSessionID, Failed)
		return
	}
	c.setState(payload.StreamSessionID, AnswerReceived)
}

func (c *Coordinator) handleICECandidate(payload signalPayload) {
	if payload.Candidate == nil {
		return
	}
	c.mu.Lock()
	sess, ok := c.streams[payload.StreamSessionID]
	if ok {
		sess.RemoteCandidates = append(sess.RemoteCandidates, *payload.Candidate)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.factory.AddICECandidate(payload.StreamSessionID, *payload.Candidate); err != nil {
		logging.Warn("add ice candidate failed", "streamSessionId", payload.StreamSessionID, "error", err)
	}
}

// OnICECandidate implements FactoryListener: a locally gathered
// candidate is recorded and pushed to the remote peer.
func (c *Coordinator) OnICECandidate(streamSessionID string, candidate ICECandidate) {
	c.mu.Lock()
	sess, ok := c.streams[streamSessionID]
	if ok {
		sess.LocalCandidates = append(sess.LocalCandidates, candidate)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.publish(context.Background(), sess.RemoteAgent, signalPayload{
		Type: "ice-candidate", Candidate: &candidate, StreamSessionID: streamSessionID,
	})
}

// OnRemoteStreamReady implements FactoryListener: the factory reports
// the peer connection is up.
func (c *Coordinator) OnRemoteStreamReady(streamSessionID, remoteAgent string) {
	c.setState(streamSessionID, Connected)
}

// OnPeerConnectionError implements FactoryListener.
func (c *Coordinator) OnPeerConnectionError(streamSessionID, message string) {
	logging.Warn("peer connection error", "streamSessionId", streamSessionID, "message", logging.Sanitize(message))
	c.setState(streamSessionID, Failed)
}

// Session returns a snapshot of the bookkeeping for streamSessionID.
func (c *Coordinator) Session(streamSessionID string) (RTCSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.streams[streamSessionID]
	if !ok {
		return RTCSession{}, false
	}
	return *sess, true
}

func (c *Coordinator) setState(streamSessionID string, state StreamState) {
	c.mu.Lock()
	if sess, ok := c.streams[streamSessionID]; ok {
		sess.State = state
	}
	c.mu.Unlock()
}

func (c *Coordinator) publish(ctx context.Context, remoteAgent string, payload signalPayload) bool {
	content, err := json.Marshal(payload)
	if err != nil {
		logging.Error("encode webrtc signaling payload", "error", err)
		return false
	}
	return c.pusher.Push(ctx, wire.PushRequest{
		Type:    wire.EventWebRTCSignal,
		To:      remoteAgent,
		Content: string(content),
	})
}
