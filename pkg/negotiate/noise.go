package negotiate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flynn/noise"
)

// handshakeChannel is the minimal duplex the Noise exchange runs over: the
// dedicated "beach-secure-handshake" data channel, adapted to blocking
// send/receive so the handshake loop can be written straight-line.
type handshakeChannel interface {
	send(data []byte) error
	recv(ctx context.Context) ([]byte, error)
}

type noisePrologue struct {
	HandshakeID  string `json:"handshakeId"`
	LocalPeerID  string `json:"localPeerId"`
	RemotePeerID string `json:"remotePeerId"`
}

// noiseResult carries the derived per-direction AEAD keys and the
// human-comparable verification code (spec §4.5).
type noiseResult struct {
	SendKey          [32]byte
	RecvKey          [32]byte
	VerificationCode string
}

// runNoiseResponder performs the responder side of a PSK-initiated,
// 2-message Noise_NNpsk0 handshake: the host (initiator) sends message 1,
// this client replies with message 2, and both sides derive the
// transcript-bound transport ciphers.
func runNoiseResponder(ctx context.Context, ch handshakeChannel, psk [32]byte, handshakeID, localPeerID, remotePeerID string, timeout time.Duration) (*noiseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prologue, err := json.Marshal(noisePrologue{HandshakeID: handshakeID, LocalPeerID: localPeerID, RemotePeerID: remotePeerID})
	if err != nil {
		return nil, &NoiseHandshakeFailed{Reason: err.Error()}
	}

	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:  cs,
		Pattern:      noise.HandshakeNN,
		Initiator:    false,
		Prologue:     prologue,
		PresharedKey: psk[:],
	})
	if err != nil {
		return nil, &NoiseHandshakeFailed{Reason: err.Error()}
	}

	msg1, err := ch.recv(ctx)
	if err != nil {
		return nil, &NoiseHandshakeFailed{Reason: "waiting for message 1: " + err.Error()}
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, &NoiseHandshakeFailed{Reason: "reading message 1: " + err.Error()}
	}

	msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, &NoiseHandshakeFailed{Reason: "writing message 2: " + err.Error()}
	}
	if err := ch.send(msg2); err != nil {
		return nil, &NoiseHandshakeFailed{Reason: "sending message 2: " + err.Error()}
	}
	if cs1 == nil || cs2 == nil {
		return nil, &NoiseHandshakeFailed{Reason: "handshake did not complete after message 2"}
	}

	var result noiseResult
	// flynn/noise returns the split cipher states in the same order to both
	// sides: cs1 protects initiator->responder traffic and cs2
	// responder->initiator traffic. As responder we therefore receive with
	// cs1 and send with cs2.
	copy(result.RecvKey[:], cs1.Key())
	copy(result.SendKey[:], cs2.Key())

	transcript := hs.ChannelBinding()
	sum := sha256.Sum256(transcript)
	result.VerificationCode = verificationCodeFromDigest(sum[:])

	return &result, nil
}

// verificationCodeFromDigest renders a short, human-comparable code from a
// handshake transcript digest: 6 hex characters, grouped for readability.
func verificationCodeFromDigest(digest []byte) string {
	hexed := hex.EncodeToString(digest[:3])
	return fmt.Sprintf("%s-%s", hexed[:3], hexed[3:])
}
