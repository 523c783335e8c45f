// Package signaling implements the text-framed WebSocket client to the
// broker described in spec §4.4/§6.1: peer join/discovery and the signal
// relay used to carry SDP and ICE payloads to the WebRTC negotiator.
package signaling

import "github.com/alidow/beach/pkg/secure"

// ServerMessageType is the closed set of message types a broker may send.
type ServerMessageType string

const (
	MessageJoinSuccess      ServerMessageType = "join_success"
	MessagePeerJoined       ServerMessageType = "peer_joined"
	MessagePeerLeft         ServerMessageType = "peer_left"
	MessageTransportProposal ServerMessageType = "transport_proposal"
	MessageTransportAccepted ServerMessageType = "transport_accepted"
	MessageSignal           ServerMessageType = "signal"
	MessagePong             ServerMessageType = "pong"
	MessageError            ServerMessageType = "error"
)

// Peer describes one other participant in the session, as carried in
// join_success/peer_joined/peer_left.
type Peer struct {
	PeerID string `json:"peer_id"`
	Role   string `json:"role"`
}

// SignalBody is the nested payload of a signal message (spec §6.1):
// {transport:"webrtc", signal:{signal_type, handshake_id, ...}}.
type SignalBody struct {
	SignalType    string                 `json:"signal_type"`
	HandshakeID   string                 `json:"handshake_id"`
	SDP           string                 `json:"sdp,omitempty"`
	Candidate     string                 `json:"candidate,omitempty"`
	SDPMid        *string                `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16                `json:"sdpMLineIndex,omitempty"`
	Sealed        *secure.SealedEnvelope `json:"sealed,omitempty"`
}

// SignalPayload is the "signal" field of both a ClientMessage and a
// ServerMessage of type "signal".
type SignalPayload struct {
	Transport string     `json:"transport"`
	Signal    SignalBody `json:"signal"`
}

// ServerMessage is any message received from the broker. Fields not
// relevant to Type are left at their zero value.
type ServerMessage struct {
	Type    ServerMessageType `json:"type"`
	PeerID  string            `json:"peer_id,omitempty"`
	Role    string            `json:"role,omitempty"`
	Peers   []Peer            `json:"peers,omitempty"`
	Signal  *SignalPayload    `json:"signal,omitempty"`
	Message string            `json:"message,omitempty"`
}

// ClientMessage is any message sent to the broker.
type ClientMessage struct {
	Type                string         `json:"type"`
	PeerID              string         `json:"peer_id,omitempty"`
	Passphrase          string         `json:"passphrase,omitempty"`
	SupportedTransports []string       `json:"supported_transports,omitempty"`
	PreferredTransport  string         `json:"preferred_transport,omitempty"`
	ToPeer              string         `json:"to_peer,omitempty"`
	Proposed            string         `json:"proposed,omitempty"`
	Signal              *SignalPayload `json:"signal,omitempty"`
}

// JoinMessage builds the "join" verb announcing peerID, an optional
// passphrase, and the locally supported transports.
func JoinMessage(peerID, passphrase string, supportedTransports []string, preferredTransport string) ClientMessage {
	return ClientMessage{
		Type:                "join",
		PeerID:              peerID,
		Passphrase:          passphrase,
		SupportedTransports: supportedTransports,
		PreferredTransport:  preferredTransport,
	}
}

// NegotiateTransportMessage proposes a transport to toPeer.
func NegotiateTransportMessage(toPeer, proposed string) ClientMessage {
	return ClientMessage{Type: "negotiate_transport", ToPeer: toPeer, Proposed: proposed}
}

// AcceptTransportMessage acknowledges an inbound transport_proposal.
func AcceptTransportMessage(toPeer, proposed string) ClientMessage {
	return ClientMessage{Type: "accept_transport", ToPeer: toPeer, Proposed: proposed}
}

// SignalMessage relays an opaque WebRTC signal (offer/answer/ice_candidate)
// to toPeer.
func SignalMessage(toPeer string, payload SignalPayload) ClientMessage {
	return ClientMessage{Type: "signal", ToPeer: toPeer, Signal: &payload}
}
