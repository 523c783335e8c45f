package brokertest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alidow/beach/pkg/signaling"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func TestJoinReceivesJoinSuccessWithRole(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := signaling.Dial(ctx, b.WSURL())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.Join("peer-a", "", []string{"webrtc"}, "webrtc"); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg, err := client.WaitForMessage(ctx, signaling.MessageJoinSuccess, 2*time.Second)
	if err != nil {
		t.Fatalf("wait for join_success: %v", err)
	}
	if msg.PeerID != "peer-a" {
		t.Fatalf("expected peer_id peer-a, got %q", msg.PeerID)
	}
	if msg.Role != "host" {
		t.Fatalf("expected first joiner to be host, got %q", msg.Role)
	}
}

func TestSecondJoinerSeesFirstInPeerListAndGetsPeerJoined(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	host, err := signaling.Dial(ctx, b.WSURL())
	if err != nil {
		t.Fatalf("dial host: %v", err)
	}
	defer host.Close()
	if err := host.Join("host-1", "", nil, "webrtc"); err != nil {
		t.Fatalf("host join: %v", err)
	}
	if _, err := host.WaitForMessage(ctx, signaling.MessageJoinSuccess, 2*time.Second); err != nil {
		t.Fatalf("host join_success: %v", err)
	}

	viewer, err := signaling.Dial(ctx, b.WSURL())
	if err != nil {
		t.Fatalf("dial viewer: %v", err)
	}
	defer viewer.Close()

	hostPeerJoined, cancelSub := host.Subscribe()
	defer cancelSub()

	if err := viewer.Join("viewer-1", "", nil, "webrtc"); err != nil {
		t.Fatalf("viewer join: %v", err)
	}
	success, err := viewer.WaitForMessage(ctx, signaling.MessageJoinSuccess, 2*time.Second)
	if err != nil {
		t.Fatalf("viewer join_success: %v", err)
	}
	found := false
	for _, p := range success.Peers {
		if p.PeerID == "host-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected viewer's join_success to list host-1, got %+v", success.Peers)
	}

	select {
	case msg := <-hostPeerJoined:
		if msg.Type != signaling.MessagePeerJoined || msg.PeerID != "viewer-1" {
			t.Fatalf("expected peer_joined for viewer-1, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer_joined on host socket")
	}
}

func TestGetOfferReturns404BeforePostOffer(t *testing.T) {
	b := New()
	defer b.Close()

	resp, err := http.Get(b.URL() + "/offer?peer_id=viewer-1")
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any offer is posted, got %d", resp.StatusCode)
	}
}

func TestPostOfferThenGetOfferRoundTrips(t *testing.T) {
	b := New()
	defer b.Close()

	offer := json.RawMessage(`{"sdp":"v=0...","type":"offer","handshake_id":"hs-1","from_peer":"host-1","to_peer":"viewer-1"}`)
	b.PostOffer("viewer-1", offer)

	resp, err := http.Get(b.URL() + "/offer?peer_id=viewer-1")
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after posting offer, got %d", resp.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode offer response: %v", err)
	}
	if got["handshake_id"] != "hs-1" {
		t.Fatalf("expected handshake_id hs-1, got %v", got["handshake_id"])
	}
}

func TestPostAnswerIsRecordedUnderToPeer(t *testing.T) {
	b := New()
	defer b.Close()

	answer := []byte(`{"sdp":"v=0...","type":"answer","handshake_id":"hs-1","from_peer":"viewer-1","to_peer":"host-1"}`)
	resp, err := http.Post(b.URL()+"/answer", "application/json", bytesReader(answer))
	if err != nil {
		t.Fatalf("post answer: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	answers := b.Answers("host-1")
	if len(answers) != 1 {
		t.Fatalf("expected 1 recorded answer, got %d", len(answers))
	}
}
