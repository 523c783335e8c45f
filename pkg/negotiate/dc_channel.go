package negotiate

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var errDataChannelClosed = errors.New("negotiate: data channel closed")

// dataChannelAdapter adapts pion's callback-driven *webrtc.DataChannel to
// the blocking envelope.Channel shape (and, via send/recv, the simpler
// handshakeChannel shape used by the Noise exchange).
type dataChannelAdapter struct {
	dc   *webrtc.DataChannel
	msgs chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newDataChannelAdapter(dc *webrtc.DataChannel) *dataChannelAdapter {
	a := &dataChannelAdapter{
		dc:     dc,
		msgs:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case a.msgs <- msg.Data:
		default:
		}
	})
	dc.OnClose(func() { a.closeOnce.Do(func() { close(a.closed) }) })
	return a
}

func (a *dataChannelAdapter) Send(_ context.Context, data []byte) error {
	return a.dc.Send(data)
}

func (a *dataChannelAdapter) send(data []byte) error {
	return a.dc.Send(data)
}

func (a *dataChannelAdapter) Recv(ctx context.Context) ([]byte, error) {
	select {
	case m := <-a.msgs:
		return m, nil
	case <-a.closed:
		return nil, errDataChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *dataChannelAdapter) recv(ctx context.Context) ([]byte, error) {
	return a.Recv(ctx)
}

func (a *dataChannelAdapter) Close() error {
	a.closeOnce.Do(func() { close(a.closed) })
	return a.dc.Close()
}

// waitOpen blocks until the data channel's OnOpen fires, fails, or ctx is
// done. If the channel is already open by the time OnOpen is registered,
// pion still fires it for a channel created via OnDataChannel once its
// ReadyState is open; callers additionally check ReadyState as a fast path.
func waitOpen(ctx context.Context, dc *webrtc.DataChannel) error {
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		return nil
	}

	opened := make(chan struct{})
	var once sync.Once
	dc.OnOpen(func() { once.Do(func() { close(opened) }) })

	failed := make(chan struct{})
	dc.OnClose(func() { once.Do(func() { close(failed) }) })

	select {
	case <-opened:
		return nil
	case <-failed:
		return &DataChannelFailed{Reason: "channel closed before open"}
	case <-ctx.Done():
		return ctx.Err()
	}
}
