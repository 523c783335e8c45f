// Package negotiate implements the WebRTC negotiator (spec §4.5): peer
// resolution, transport proposal, SDP exchange over signaling, ICE
// candidate staging, an optional Noise-handshake secure overlay, and
// data-channel readiness — producing an opened envelope.Channel the
// framed terminal transport (pkg/transport) can run on top of.
package negotiate

import "fmt"

type PeerResolutionTimeout struct{}

func (e *PeerResolutionTimeout) Error() string { return "negotiate: timed out resolving a server peer" }

type SdpExchangeFailed struct{ Reason string }

func (e *SdpExchangeFailed) Error() string { return "negotiate: sdp exchange failed: " + e.Reason }

type IceGatheringFailed struct{ Reason string }

func (e *IceGatheringFailed) Error() string { return "negotiate: ice gathering failed: " + e.Reason }

type SealedOfferDecryptFailed struct{}

func (e *SealedOfferDecryptFailed) Error() string { return "negotiate: failed to decrypt sealed offer" }

type NoiseHandshakeFailed struct{ Reason string }

func (e *NoiseHandshakeFailed) Error() string { return "negotiate: noise handshake failed: " + e.Reason }

type DataChannelFailed struct{ Reason string }

func (e *DataChannelFailed) Error() string { return "negotiate: data channel failed: " + e.Reason }

type Cancelled struct{}

func (e *Cancelled) Error() string { return "negotiate: cancelled" }

// SignalingHttpError reports a non-OK, non-404 response from the broker's
// offer/answer HTTP endpoints (spec §6.2).
type SignalingHttpError struct{ Status int }

func (e *SignalingHttpError) Error() string {
	return fmt.Sprintf("negotiate: signaling http error: status %d", e.Status)
}
