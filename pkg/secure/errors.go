// Package secure implements the AEAD secure channel wrapper (spec §4.3)
// and the supporting key-derivation and sealed-envelope helpers shared with
// the WebRTC negotiator's optional secure-signaling overlay (spec §4.5).
package secure

import "fmt"

// ErrorKind classifies why a ChannelError occurred (spec §7).
type ErrorKind string

const (
	ErrorAuth     ErrorKind = "auth"
	ErrorReplay   ErrorKind = "replay"
	ErrorFraming  ErrorKind = "framing"
)

// ChannelError is raised by Channel.Recv on any decryption failure;
// per spec §4.3 the channel must be closed when this occurs.
type ChannelError struct {
	Kind ErrorKind
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("secure: channel error (%s)", e.Kind)
}

func newChannelError(kind ErrorKind) *ChannelError {
	return &ChannelError{Kind: kind}
}
