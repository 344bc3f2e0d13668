package rtcsignal

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/relaymesh/channelsdk/internal/logging"
)

// PionFactory is the pion/webrtc/v4-backed PeerConnectionFactory. It
// uses trickle ICE: SetLocalDescription is called immediately and
// candidates are reported to the listener as they are gathered,
// rather than waiting for gathering to complete before returning SDP.
type PionFactory struct {
	iceServers []webrtc.ICEServer

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection

	listener FactoryListener
}

// NewPionFactory builds a PionFactory using iceServers for every peer
// connection it creates. Pass nil for host-only ICE.
func NewPionFactory(iceServers []webrtc.ICEServer) *PionFactory {
	return &PionFactory{
		iceServers: iceServers,
		peers:      make(map[string]*webrtc.PeerConnection),
	}
}

// ICEServerConfig is the pion-independent STUN/TURN server shape
// exposed to library consumers, converted to webrtc.ICEServer here so
// no caller outside this package needs to import pion/webrtc directly.
type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

// ToPionICEServers converts the public ICEServerConfig list into the
// shape NewPionFactory expects.
func ToPionICEServers(configs []ICEServerConfig) []webrtc.ICEServer {
	if len(configs) == 0 {
		return nil
	}
	out := make([]webrtc.ICEServer, 0, len(configs))
	for _, c := range configs {
		out = append(out, webrtc.ICEServer{
			URLs:       c.URLs,
			Username:   c.Username,
			Credential: c.Credential,
		})
	}
	return out
}

// SetListener registers the coordinator as the recipient of
// asynchronous peer connection events. Must be called before any
// stream is created.
func (f *PionFactory) SetListener(listener FactoryListener) {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
}

func (f *PionFactory) newPeerConnection(streamSessionID, remoteAgent string) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		f.mu.Lock()
		listener := f.listener
		f.mu.Unlock()
		if listener == nil {
			return
		}
		init := c.ToJSON()
		candidate := ICECandidate{Candidate: init.Candidate}
		if init.SDPMLineIndex != nil {
			candidate.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		if init.SDPMid != nil {
			candidate.SDPMid = *init.SDPMid
		}
		listener.OnICECandidate(streamSessionID, candidate)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logging.Debug("webrtc peer connection state change", "streamSessionId", streamSessionID, "state", state.String())
		f.mu.Lock()
		listener := f.listener
		f.mu.Unlock()
		if listener == nil {
			return
		}
		switch state {
		case webrtc.PeerConnectionStateConnected:
			listener.OnRemoteStreamReady(streamSessionID, remoteAgent)
		case webrtc.PeerConnectionStateFailed:
			listener.OnPeerConnectionError(streamSessionID, "peer connection failed")
			f.ClosePeerConnection(streamSessionID)
		}
	})

	f.mu.Lock()
	if old, ok := f.peers[streamSessionID]; ok {
		old.Close()
	}
	f.peers[streamSessionID] = pc
	f.mu.Unlock()
	return pc, nil
}

// CreateOfferForStream implements PeerConnectionFactory.
func (f *PionFactory) CreateOfferForStream(streamSessionID, remoteAgent string) (string, error) {
	pc, err := f.newPeerConnection(streamSessionID, remoteAgent)
	if err != nil {
		return "", err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswerForOffer implements PeerConnectionFactory.
func (f *PionFactory) CreateAnswerForOffer(streamSessionID, remoteAgent, sdp string) (string, error) {
	pc, err := f.newPeerConnection(streamSessionID, remoteAgent)
	if err != nil {
		return "", err
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

// HandleRemoteAnswer implements PeerConnectionFactory.
func (f *PionFactory) HandleRemoteAnswer(streamSessionID, sdp string) error {
	pc, ok := f.get(streamSessionID)
	if !ok {
		return fmt.Errorf("no peer connection for stream %s", streamSessionID)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddICECandidate implements PeerConnectionFactory.
func (f *PionFactory) AddICECandidate(streamSessionID string, candidate ICECandidate) error {
	pc, ok := f.get(streamSessionID)
	if !ok {
		return fmt.Errorf("no peer connection for stream %s", streamSessionID)
	}
	init := webrtc.ICECandidateInit{Candidate: candidate.Candidate}
	if candidate.SDPMid != "" {
		mid := candidate.SDPMid
		init.SDPMid = &mid
	}
	if candidate.SDPMLineIndex != 0 {
		idx := uint16(candidate.SDPMLineIndex)
		init.SDPMLineIndex = &idx
	}
	if err := pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// ClosePeerConnection implements PeerConnectionFactory.
func (f *PionFactory) ClosePeerConnection(streamSessionID string) error {
	f.mu.Lock()
	pc, ok := f.peers[streamSessionID]
	delete(f.peers, streamSessionID)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return pc.Close()
}

func (f *PionFactory) get(streamSessionID string) (*webrtc.PeerConnection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc, ok := f.peers[streamSessionID]
	return pc, ok
}
