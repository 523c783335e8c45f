package envelope

import (
	"context"
	"sync"
)

// Transport wraps a raw Channel with envelope framing: Send assigns a
// monotonically increasing outbound sequence number per spec §4.2; Recv
// exposes the inbound sequence verbatim, with no reordering.
type Transport struct {
	ch Channel

	mu      sync.Mutex
	nextSeq uint64
}

// NewTransport wraps ch. The outbound sequence counter starts at 0.
func NewTransport(ch Channel) *Transport {
	return &Transport{ch: ch}
}

// Send frames payload with the next outbound sequence number and writes it
// to the underlying channel.
func (t *Transport) Send(ctx context.Context, kind PayloadKind, payload []byte) error {
	t.mu.Lock()
	seq := t.nextSeq
	t.nextSeq++
	t.mu.Unlock()

	return t.ch.Send(ctx, Encode(Envelope{Kind: kind, Sequence: seq, Payload: payload}))
}

// Recv reads and decodes the next envelope from the underlying channel.
func (t *Transport) Recv(ctx context.Context) (Envelope, error) {
	raw, err := t.ch.Recv(ctx)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(raw)
}

// Close closes the underlying channel.
func (t *Transport) Close() error {
	return t.ch.Close()
}
