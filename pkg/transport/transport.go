// Package transport implements the framed terminal transport (C6): it
// wraps the transport envelope (pkg/envelope) with the wire codec
// (pkg/wire), dispatching every inbound binary envelope as a decoded
// HostFrame and encoding outbound ClientFrames, per spec §4.6.
package transport

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/alidow/beach/pkg/envelope"
	"github.com/alidow/beach/pkg/wire"
)

const readySentinel = "__ready__"

// reservedSentinels are lifecycle text payloads that carry no frame data
// and must never be surfaced to the caller (spec's GLOSSARY "Sentinel").
var reservedSentinels = map[string]bool{
	"__ready__":        true,
	"__offer_ready__":  true,
}

const statusPrefix = "beach:status:"

// Event is one inbound unit dispatched by Recv: exactly one of Frame or
// Status is set.
type Event struct {
	Frame  wire.HostFrame
	Status string
}

// Transport bridges envelope framing and the wire codec over one duplex
// channel.
type Transport struct {
	env    *envelope.Transport
	logger *zap.Logger

	mu        sync.Mutex
	sentReady bool
}

// New wraps ch. logger may be nil.
func New(ch envelope.Channel, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{env: envelope.NewTransport(ch), logger: logger}
}

// SendReady sends the "__ready__" sentinel exactly once, announcing that
// the client is prepared to receive authoritative snapshots.
func (t *Transport) SendReady(ctx context.Context) error {
	t.mu.Lock()
	if t.sentReady {
		t.mu.Unlock()
		return nil
	}
	t.sentReady = true
	t.mu.Unlock()

	return t.env.Send(ctx, envelope.PayloadKindText, []byte(readySentinel))
}

// SendFrame encodes and enqueues an outbound ClientFrame.
func (t *Transport) SendFrame(ctx context.Context, frame wire.ClientFrame) error {
	data, err := wire.EncodeClientFrame(frame)
	if err != nil {
		return err
	}
	return t.env.Send(ctx, envelope.PayloadKindBinary, data)
}

// Recv blocks for the next dispatchable Event, skipping reserved sentinels
// transparently.
func (t *Transport) Recv(ctx context.Context) (Event, error) {
	for {
		env, err := t.env.Recv(ctx)
		if err != nil {
			return Event{}, err
		}

		if env.Kind == envelope.PayloadKindText {
			text := string(env.Payload)
			if reservedSentinels[text] {
				continue
			}
			if strings.HasPrefix(text, statusPrefix) {
				return Event{Status: strings.TrimPrefix(text, statusPrefix)}, nil
			}
			t.logger.Debug("ignoring unrecognized text payload", zap.String("text", text))
			continue
		}

		frame, err := wire.DecodeHostFrame(env.Payload)
		if err != nil {
			return Event{}, &Error{Reason: err.Error()}
		}
		return Event{Frame: frame}, nil
	}
}

// Close closes the underlying channel.
func (t *Transport) Close() error {
	return t.env.Close()
}
