package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// echoBroker accepts one connection, replies to "join" with join_success,
// and echoes back a canned "signal" message once it sees any other message.
func echoBroker(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch {
			case strings.Contains(string(raw), `"join"`):
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_success","peer_id":"local-1","peers":[{"peer_id":"remote-1","role":"server"}]}`))
			case strings.Contains(string(raw), `"ping"`):
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			default:
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"signal","signal":{"transport":"webrtc","signal":{"signal_type":"offer","handshake_id":"h1"}}}`))
			}
		}
	}))
}

func dialTestServer(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestJoinAndWaitForMessage(t *testing.T) {
	srv := echoBroker(t)
	defer srv.Close()

	c := dialTestServer(t, srv)
	defer c.Close()

	if err := c.Join("local-1", "", []string{"webrtc"}, "webrtc"); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg, err := c.WaitForMessage(context.Background(), MessageJoinSuccess, 2*time.Second)
	if err != nil {
		t.Fatalf("wait for join_success: %v", err)
	}
	if len(msg.Peers) != 1 || msg.Peers[0].PeerID != "remote-1" {
		t.Fatalf("unexpected peers: %+v", msg.Peers)
	}
}

func TestWaitForMessageTimeout(t *testing.T) {
	srv := echoBroker(t)
	defer srv.Close()

	c := dialTestServer(t, srv)
	defer c.Close()

	_, err := c.WaitForMessage(context.Background(), MessageTransportAccepted, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if _, ok := err.(*Timeout); !ok {
		t.Fatalf("expected *Timeout, got %T: %v", err, err)
	}
}

func TestCloseAbortsPendingWait(t *testing.T) {
	srv := echoBroker(t)
	defer srv.Close()

	c := dialTestServer(t, srv)

	resultCh := make(chan error, 1)
	go func() {
		_, err := c.WaitForMessage(context.Background(), MessageTransportAccepted, 5*time.Second)
		resultCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-resultCh:
		if _, ok := err.(*Closed); !ok {
			t.Fatalf("expected *Closed, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForMessage did not return after Close")
	}
}

func TestSubscribeFanOut(t *testing.T) {
	srv := echoBroker(t)
	defer srv.Close()

	c := dialTestServer(t, srv)
	defer c.Close()

	chA, cancelA := c.Subscribe()
	defer cancelA()
	chB, cancelB := c.Subscribe()
	defer cancelB()

	if err := c.Send(ClientMessage{Type: "negotiate_transport", ToPeer: "remote-1", Proposed: "webrtc"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	timeout := time.After(2 * time.Second)
	var gotA, gotB bool
	for !gotA || !gotB {
		select {
		case msg := <-chA:
			if msg.Type == MessageSignal {
				gotA = true
			}
		case msg := <-chB:
			if msg.Type == MessageSignal {
				gotB = true
			}
		case <-timeout:
			t.Fatal("both subscribers did not see the signal message")
		}
	}
}
