// Package envelope implements the length-prefixed seq+payload transport
// framing described in spec §4.2/§6.3: every message on the underlying
// duplex channel is [payloadKind:u8][sequence:u64][length:u32][bytes...].
package envelope

import "context"

// Channel is the minimal duplex byte-message channel that an Envelope
// (and, above it, the secure wrapper and framed terminal transport) is
// built on. It is satisfied by a WebRTC data channel, a WebSocket
// connection, or an in-memory pipe used by tests — the core never depends
// on a concrete transport (spec §1: "transport-agnostic API").
type Channel interface {
	// Send writes one message. Implementations must not fragment or
	// coalesce messages: one Send corresponds to one Recv on the peer.
	Send(ctx context.Context, data []byte) error
	// Recv blocks for the next message, or returns an error (including
	// ctx.Err()) if the channel closes or the context is cancelled.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}
