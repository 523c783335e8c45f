package negotiate

// State is one step of the single-connection-attempt state machine
// (spec §4.5).
type State string

const (
	StateResolving              State = "resolving"
	StateProposingTransport     State = "proposing_transport"
	StateGatheringLocal         State = "gathering_local"
	StateExchangingDescriptions State = "exchanging_descriptions"
	StateExchangingIce          State = "exchanging_ice"
	StateNoiseHandshake         State = "noise_handshake"
	StateDataChannelOpen        State = "data_channel_open"
	StateReady                  State = "ready"
	StateFailed                 State = "failed"
)

// TransportMode distinguishes a plain (unsecured) data channel from one
// wrapped by the secure channel after a Noise handshake.
type TransportMode string

const (
	TransportPlain  TransportMode = "plain"
	TransportSecure TransportMode = "secure"
)

// SecureTransportSummary is returned alongside the opened channel
// describing whether, and how, it is protected.
type SecureTransportSummary struct {
	Mode             TransportMode
	VerificationCode string
	HandshakeID      string
	RemotePeerID     string
}
