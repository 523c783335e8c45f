// Package brokertest is an in-process signaling broker for integration tests;
// its own tests drive pkg/signaling's client against it. It speaks the same WebSocket join
// protocol and HTTP offer/answer long-poll routes described in spec §4.4 and
// §6.1-§6.2, adapted from the teacher's upgrade-side WebSocket handler
// shape (reader loop / writer goroutine / ping ticker / done channel).
package brokertest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type peer struct {
	id   string
	role string
	conn *websocket.Conn
	send chan []byte
}

type sdpSlot struct {
	mu      sync.Mutex
	offer   json.RawMessage
	answers []json.RawMessage
}

// Broker is a minimal stand-in for the real signaling server: it tracks
// joined peers on one WebSocket endpoint and relays "signal" /
// "negotiate_transport" / "accept_transport" messages between them, plus
// the HTTP long-poll offer/answer routes the WebRTC negotiator uses for the
// initial SDP exchange.
type Broker struct {
	server *httptest.Server

	mu    sync.Mutex
	peers map[string]*peer

	slots sync.Map // peerID -> *sdpSlot
}

// New starts a broker listening on a loopback httptest.Server. Call URL()
// for its base address and Close() to shut it down.
func New() *Broker {
	b := &Broker{peers: make(map[string]*peer)}

	r := mux.NewRouter()
	r.HandleFunc("/ws", b.handleWS)
	r.HandleFunc("/offer", b.handleGetOffer).Methods(http.MethodGet)
	r.HandleFunc("/answer", b.handlePostAnswer).Methods(http.MethodPost)

	b.server = httptest.NewServer(r)
	return b
}

// URL returns the broker's base HTTP/WS address (e.g. http://127.0.0.1:PORT).
func (b *Broker) URL() string { return b.server.URL }

// WSURL returns URL() with the ws scheme and /ws path, suitable for
// signaling.Dial.
func (b *Broker) WSURL() string {
	u := b.server.URL
	return "ws" + u[len("http"):] + "/ws"
}

// Close shuts down the broker and every connected peer socket.
func (b *Broker) Close() {
	b.mu.Lock()
	for id, p := range b.peers {
		close(p.send)
		p.conn.Close()
		delete(b.peers, id)
	}
	b.mu.Unlock()
	b.server.Close()
}

// PostOffer publishes an SDP offer payload for peerID's eventual GET /offer,
// simulating the host side of the exchange.
func (b *Broker) PostOffer(peerID string, payload json.RawMessage) {
	slot := b.slotFor(peerID)
	slot.mu.Lock()
	slot.offer = payload
	slot.mu.Unlock()
}

// Answers returns every answer payload posted so far for peerID.
func (b *Broker) Answers(peerID string) []json.RawMessage {
	slot := b.slotFor(peerID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	out := make([]json.RawMessage, len(slot.answers))
	copy(out, slot.answers)
	return out
}

func (b *Broker) slotFor(peerID string) *sdpSlot {
	v, _ := b.slots.LoadOrStore(peerID, &sdpSlot{})
	return v.(*sdpSlot)
}

func (b *Broker) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peer_id")
	slot := b.slotFor(peerID)

	slot.mu.Lock()
	offer := slot.offer
	slot.mu.Unlock()

	if offer == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(offer)
}

func (b *Broker) handlePostAnswer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ToPeer string `json:"to_peer"`
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Answers are stored under to_peer, which the negotiator sets to the
	// offering peer; tests read them back with Answers(offeringPeerID).
	slot := b.slotFor(payload.ToPeer)
	slot.mu.Lock()
	slot.answers = append(slot.answers, json.RawMessage(body))
	slot.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (b *Broker) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	p := &peer{conn: conn, send: make(chan []byte, 64)}
	go b.writer(p)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.removePeer(p)
			return
		}
		b.handleMessage(p, raw)
	}
}

func (b *Broker) writer(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *Broker) handleMessage(p *peer, raw []byte) {
	var msg struct {
		Type                string          `json:"type"`
		PeerID              string          `json:"peer_id,omitempty"`
		ToPeer              string          `json:"to_peer,omitempty"`
		SupportedTransports []string        `json:"supported_transports,omitempty"`
		Signal              json.RawMessage `json:"signal,omitempty"`
		Proposed            string          `json:"proposed,omitempty"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "join":
		b.mu.Lock()
		p.id = msg.PeerID
		p.role = "viewer"
		if len(b.peers) == 0 {
			p.role = "host"
		}
		b.peers[p.id] = p
		peers := b.peerList()
		b.mu.Unlock()

		b.sendTo(p, map[string]any{"type": "join_success", "peer_id": p.id, "role": p.role, "peers": peers})
		b.broadcastExcept(p.id, map[string]any{"type": "peer_joined", "peer_id": p.id, "role": p.role})

	case "negotiate_transport":
		b.relay(msg.ToPeer, map[string]any{"type": "transport_proposal", "peer_id": p.id, "proposed": msg.Proposed})

	case "accept_transport":
		b.relay(msg.ToPeer, map[string]any{"type": "transport_accepted", "peer_id": p.id, "proposed": msg.Proposed})

	case "signal":
		b.relay(msg.ToPeer, map[string]any{"type": "signal", "peer_id": p.id, "signal": msg.Signal})

	case "ping":
		b.sendTo(p, map[string]any{"type": "pong"})
	}
}

func (b *Broker) peerList() []map[string]string {
	out := make([]map[string]string, 0, len(b.peers))
	for _, p := range b.peers {
		out = append(out, map[string]string{"peer_id": p.id, "role": p.role})
	}
	return out
}

func (b *Broker) relay(toPeer string, payload map[string]any) {
	b.mu.Lock()
	p, ok := b.peers[toPeer]
	b.mu.Unlock()
	if !ok {
		return
	}
	b.sendTo(p, payload)
}

func (b *Broker) broadcastExcept(exceptID string, payload map[string]any) {
	b.mu.Lock()
	targets := make([]*peer, 0, len(b.peers))
	for id, p := range b.peers {
		if id != exceptID {
			targets = append(targets, p)
		}
	}
	b.mu.Unlock()
	for _, p := range targets {
		b.sendTo(p, payload)
	}
}

func (b *Broker) sendTo(p *peer, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case p.send <- data:
	default:
	}
}

func (b *Broker) removePeer(p *peer) {
	b.mu.Lock()
	if existing, ok := b.peers[p.id]; ok && existing == p {
		delete(b.peers, p.id)
		close(p.send)
	}
	b.mu.Unlock()
}
