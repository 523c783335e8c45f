package secure

import (
	"context"
	"testing"
)

// memChannel is a trivial in-memory envelope.Channel double: Send appends to
// a queue that Recv drains in order.
type memChannel struct {
	queue  [][]byte
	closed bool
}

func (m *memChannel) Send(ctx context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.queue = append(m.queue, cp)
	return nil
}

func (m *memChannel) Recv(ctx context.Context) ([]byte, error) {
	if len(m.queue) == 0 {
		return nil, context.Canceled
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, nil
}

func (m *memChannel) Close() error {
	m.closed = true
	return nil
}

// mirroredKeyPairs builds the client/host key pair for a shared symmetric
// key: each side's send key is the other's recv key.
func mirroredKeyPairs(key [KeySize]byte) (client, host KeyPair) {
	return KeyPair{SendKey: key, RecvKey: key}, KeyPair{SendKey: key, RecvKey: key}
}

func TestChannelPassThroughWithoutKeys(t *testing.T) {
	mem := &memChannel{}
	ch, err := NewChannel(mem, nil, "hs-1", DirectionClientToHost, DirectionHostToClient)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	if err := ch.Send(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := ch.Recv(context.Background())
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected pass-through payload, got %q", got)
	}
}

func TestChannelSealRoundTrip(t *testing.T) {
	var key [KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}

	clientKeys, hostKeys := mirroredKeyPairs(key)
	mem := &memChannel{}
	client, err := NewChannel(mem, &clientKeys, "hs-1", DirectionClientToHost, DirectionHostToClient)
	if err != nil {
		t.Fatalf("new client channel: %v", err)
	}
	host, err := NewChannel(mem, &hostKeys, "hs-1", DirectionHostToClient, DirectionClientToHost)
	if err != nil {
		t.Fatalf("new host channel: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := client.Send(context.Background(), []byte("ping")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		got, err := host.Recv(context.Background())
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if string(got) != "ping" {
			t.Fatalf("round %d: expected ping, got %q", i, got)
		}
	}
}

func TestChannelRejectsTamperedCiphertext(t *testing.T) {
	var key [KeySize]byte
	clientKeys, hostKeys := mirroredKeyPairs(key)
	mem := &memChannel{}
	client, _ := NewChannel(mem, &clientKeys, "hs-1", DirectionClientToHost, DirectionHostToClient)
	host, _ := NewChannel(mem, &hostKeys, "hs-1", DirectionHostToClient, DirectionClientToHost)

	if err := client.Send(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	mem.queue[0][len(mem.queue[0])-1] ^= 0xFF

	_, err := host.Recv(context.Background())
	if err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
	ce, ok := err.(*ChannelError)
	if !ok || ce.Kind != ErrorAuth {
		t.Fatalf("expected auth ChannelError, got %v", err)
	}
	if !mem.closed {
		t.Fatal("expected channel to be closed after auth failure")
	}
}

func TestChannelRejectsWrongDirection(t *testing.T) {
	var key [KeySize]byte
	clientKeys, hostKeys := mirroredKeyPairs(key)
	mem := &memChannel{}
	client, _ := NewChannel(mem, &clientKeys, "hs-1", DirectionClientToHost, DirectionHostToClient)
	// Misconfigured peer: expects the wrong remote direction tag.
	wrongHost, _ := NewChannel(mem, &hostKeys, "hs-1", DirectionHostToClient, DirectionHostToClient)

	if err := client.Send(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, err := wrongHost.Recv(context.Background())
	if err == nil {
		t.Fatal("expected error for mismatched direction AAD")
	}
	ce, ok := err.(*ChannelError)
	if !ok || ce.Kind != ErrorAuth {
		t.Fatalf("expected auth ChannelError, got %v", err)
	}
}

func TestChannelRejectsReplayedNonce(t *testing.T) {
	var key [KeySize]byte
	clientKeys, hostKeys := mirroredKeyPairs(key)
	mem := &memChannel{}
	client, _ := NewChannel(mem, &clientKeys, "hs-1", DirectionClientToHost, DirectionHostToClient)
	host, _ := NewChannel(mem, &hostKeys, "hs-1", DirectionHostToClient, DirectionClientToHost)

	if err := client.Send(context.Background(), []byte("first")); err != nil {
		t.Fatalf("send: %v", err)
	}
	replay := make([]byte, len(mem.queue[0]))
	copy(replay, mem.queue[0])

	if _, err := host.Recv(context.Background()); err != nil {
		t.Fatalf("recv first: %v", err)
	}

	mem.closed = false
	mem.queue = append(mem.queue, replay)
	_, err := host.Recv(context.Background())
	if err == nil {
		t.Fatal("expected error replaying a consumed nonce")
	}
	ce, ok := err.(*ChannelError)
	if !ok || ce.Kind != ErrorReplay {
		t.Fatalf("expected replay ChannelError, got %v", err)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [KeySize]byte
	aad := []byte("offer|peer-a|peer-b")

	env, err := Seal(key, []byte("sdp offer body"), aad)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plaintext, err := Open(key, env, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(plaintext) != "sdp offer body" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
}

func TestOpenRejectsMismatchedAAD(t *testing.T) {
	var key [KeySize]byte
	env, err := Seal(key, []byte("sdp offer body"), []byte("offer|peer-a|peer-b"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(key, env, []byte("offer|peer-a|peer-c")); err == nil {
		t.Fatal("expected error for mismatched AAD")
	}
}

func TestDeriveKeysDeterministicPerSession(t *testing.T) {
	secret := "shared-passphrase"
	k1, err := DeriveKeys(secret, "session-1", "hs-1")
	if err != nil {
		t.Fatalf("derive k1: %v", err)
	}
	k2, err := DeriveKeys(secret, "session-1", "hs-1")
	if err != nil {
		t.Fatalf("derive k2: %v", err)
	}
	if k1.Ks != k2.Ks || k1.Kh != k2.Kh {
		t.Fatal("expected deterministic derivation for the same session id")
	}

	k3, err := DeriveKeys(secret, "session-2", "hs-1")
	if err != nil {
		t.Fatalf("derive k3: %v", err)
	}
	if k1.Ks == k3.Ks {
		t.Fatal("expected distinct session keys for distinct session ids")
	}

	k4, err := DeriveKeys(secret, "session-1", "hs-2")
	if err != nil {
		t.Fatalf("derive k4: %v", err)
	}
	if k1.Kh == k4.Kh {
		t.Fatal("expected distinct handshake keys for distinct handshake ids")
	}
}
