// Package rtcsignal implements the WebRTC signaling coordinator layered
// on top of channel events of type WEBRTC_SIGNALING. The coordinator
// owns no media code; it drives a pluggable PeerConnectionFactory.
package rtcsignal

// PeerConnectionFactory is the pluggable contract the coordinator
// drives to actually establish peer connections. Implementations
// own all WebRTC/media code; the coordinator only shuttles SDP and
// ICE candidates between the factory and the channel.
type PeerConnectionFactory interface {
	// CreateAnswerForOffer is called synchronously on the answerer when
	// an offer arrives, and must return a local SDP answer.
	CreateAnswerForOffer(streamSessionID, remoteAgent, sdp string) (string, error)

	// CreateOfferForStream is called on the offerer when the
	// application asks to start a stream, and must return a local SDP
	// offer.
	CreateOfferForStream(streamSessionID, remoteAgent string) (string, error)

	// HandleRemoteAnswer feeds the peer's SDP answer back to the
	// offerer's peer connection.
	HandleRemoteAnswer(streamSessionID, sdp string) error

	// AddICECandidate appends a remote candidate to the peer connection.
	AddICECandidate(streamSessionID string, candidate ICECandidate) error

	// ClosePeerConnection tears down the underlying peer connection.
	ClosePeerConnection(streamSessionID string) error
}

// FactoryListener is the set of asynchronous events a
// PeerConnectionFactory emits back to the coordinator.
type FactoryListener interface {
	// OnICECandidate is called whenever the factory gathers a local
	// candidate that must be pushed to the peer.
	OnICECandidate(streamSessionID string, candidate ICECandidate)

	// OnRemoteStreamReady is called once the underlying peer
	// connection reaches a connected state.
	OnRemoteStreamReady(streamSessionID, remoteAgent string)

	// OnPeerConnectionError is called on an unrecoverable factory-side
	// failure for a stream.
	OnPeerConnectionError(streamSessionID, message string)
}

// ICECandidate mirrors the wire-level ice-candidate payload shape.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	SDPMid        string `json:"sdpMid"`
}
