package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 64
	subBufferSize  = 32
)

// Client is a typed WebSocket client to the signaling broker. It exposes
// join/send verbs and a fan-out stream of ServerMessage so that the
// negotiator and any general listener can share one socket (spec §4.4,
// §9 "the signaling socket is shared between the negotiator and the
// general listener").
type Client struct {
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
	nextSubID int
	subs      map[int]chan ServerMessage
}

// Dial opens a WebSocket connection to url and starts the reader/writer
// goroutines. The caller should immediately send a join message.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling: dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		subs: make(map[int]chan ServerMessage),
	}

	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Join sends the "join" verb announcing peerID.
func (c *Client) Join(peerID, passphrase string, supportedTransports []string, preferredTransport string) error {
	return c.Send(JoinMessage(peerID, passphrase, supportedTransports, preferredTransport))
}

// Send marshals msg and enqueues it for the writer goroutine.
func (c *Client) Send(msg ClientMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("signaling: encode %s: %w", msg.Type, err)
	}
	select {
	case <-c.done:
		return c.closeError()
	default:
	}
	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return c.closeError()
	}
}

// Subscribe returns a channel receiving every ServerMessage from this point
// forward, and a cancel function the caller MUST call when done listening.
// Slow subscribers drop messages rather than block the reader loop.
func (c *Client) Subscribe() (<-chan ServerMessage, func()) {
	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		closedCh := make(chan ServerMessage)
		close(closedCh)
		return closedCh, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan ServerMessage, subBufferSize)
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if c.subs != nil {
			delete(c.subs, id)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// WaitForMessage blocks until a ServerMessage of the given type arrives, the
// timeout elapses (*Timeout), the socket closes (*Closed), or ctx is
// cancelled.
func (c *Client) WaitForMessage(ctx context.Context, want ServerMessageType, timeout time.Duration) (ServerMessage, error) {
	ch, cancel := c.Subscribe()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-ch:
			if msg.Type == want {
				return msg, nil
			}
		case <-timer.C:
			return ServerMessage{}, &Timeout{Want: want}
		case <-c.done:
			return ServerMessage{}, c.closeError()
		case <-ctx.Done():
			return ServerMessage{}, ctx.Err()
		}
	}
}

// Close closes the underlying socket and aborts every pending
// Subscribe/WaitForMessage listener with *Closed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *Client) closeError() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return &Closed{}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			ping, _ := json.Marshal(ClientMessage{Type: "ping"})
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closeErr = &Closed{}
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = nil
		c.mu.Unlock()
		c.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		c.mu.Lock()
		for _, ch := range c.subs {
			select {
			case ch <- msg:
			default:
			}
		}
		c.mu.Unlock()
	}
}
