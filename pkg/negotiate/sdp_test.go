package negotiate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPollOfferRetriesOn404ThenSucceeds(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(sdpPayload{SDP: "v=0", Type: "offer", HandshakeID: "h1", FromPeer: "host-1", ToPeer: "local-1"})
	}))
	defer srv.Close()

	payload, err := pollOffer(context.Background(), srv.Client(), srv.URL, "local-1", 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("pollOffer: %v", err)
	}
	if payload.HandshakeID != "h1" || payload.FromPeer != "host-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if hits < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", hits)
	}
}

func TestPollOfferSurfacesHttpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := pollOffer(context.Background(), srv.Client(), srv.URL, "local-1", 10*time.Millisecond, time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*SignalingHttpError)
	if !ok || httpErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected SignalingHttpError 500, got %v", err)
	}
}

func TestPollOfferRejectsMissingHandshakeID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sdpPayload{SDP: "v=0", Type: "offer"})
	}))
	defer srv.Close()

	_, err := pollOffer(context.Background(), srv.Client(), srv.URL, "local-1", 10*time.Millisecond, time.Second)
	if err == nil {
		t.Fatal("expected error for missing handshake_id")
	}
}

func TestPostAnswerSucceedsOn2xx(t *testing.T) {
	var received sdpPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := postAnswer(context.Background(), srv.Client(), srv.URL, sdpPayload{SDP: "v=0answer", Type: "answer", HandshakeID: "h1"})
	if err != nil {
		t.Fatalf("postAnswer: %v", err)
	}
	if received.HandshakeID != "h1" {
		t.Fatalf("unexpected payload received by server: %+v", received)
	}
}

func TestPostAnswerSurfacesHttpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := postAnswer(context.Background(), srv.Client(), srv.URL, sdpPayload{Type: "answer", HandshakeID: "h1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if httpErr, ok := err.(*SignalingHttpError); !ok || httpErr.Status != http.StatusBadRequest {
		t.Fatalf("expected SignalingHttpError 400, got %v", err)
	}
}
