package secure

import (
	"context"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/alidow/beach/pkg/envelope"
)

// Direction tags the sealed AEAD's AAD so that a ciphertext produced for one
// direction can never be replayed as if it came from the other (spec §4.3).
type Direction string

const (
	DirectionClientToHost Direction = "c→s"
	DirectionHostToClient Direction = "s→c"
)

const nonceSize = chacha20poly1305.NonceSize // 12 bytes / 96 bits

// Channel wraps an envelope.Channel with per-direction AEAD protection.
// Wire form of every message: [nonce(12)][ciphertext]. When no Keys are
// installed, Channel is a transparent pass-through (spec §4.3).
type Channel struct {
	inner envelope.Channel

	handshakeID string
	sendAEAD    cipherAEAD
	recvAEAD    cipherAEAD
	sendDir     Direction
	recvDir     Direction

	mu          sync.Mutex
	sendCounter uint64
	recvCounter uint64
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewChannel wraps inner with a directional key pair: sendKey protects
// outbound messages, recvKey authenticates inbound ones (spec §4.3's
// "symmetric key pair {sendKey, recvKey}"). If keys is nil, the returned
// Channel passes every message through unmodified.
func NewChannel(inner envelope.Channel, keys *KeyPair, handshakeID string, sendDir, recvDir Direction) (*Channel, error) {
	c := &Channel{
		inner:       inner,
		handshakeID: handshakeID,
		sendDir:     sendDir,
		recvDir:     recvDir,
	}
	if keys == nil {
		return c, nil
	}

	sendAEAD, err := chacha20poly1305.New(keys.SendKey[:])
	if err != nil {
		return nil, err
	}
	recvAEAD, err := chacha20poly1305.New(keys.RecvKey[:])
	if err != nil {
		return nil, err
	}
	c.sendAEAD = sendAEAD
	c.recvAEAD = recvAEAD
	return c, nil
}

// KeyPair is the per-direction AEAD key pair installed on a secure Channel.
type KeyPair struct {
	SendKey [KeySize]byte
	RecvKey [KeySize]byte
}

func (c *Channel) sealed() bool {
	return c.sendAEAD != nil
}

func buildAAD(handshakeID string, dir Direction) []byte {
	return []byte(string(dir) + "|" + handshakeID)
}

func counterNonce(counter uint64) []byte {
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// Send encrypts data (if keys are installed) and writes it to the
// underlying channel.
func (c *Channel) Send(ctx context.Context, data []byte) error {
	if !c.sealed() {
		return c.inner.Send(ctx, data)
	}

	c.mu.Lock()
	nonce := counterNonce(c.sendCounter)
	c.sendCounter++
	c.mu.Unlock()

	aad := buildAAD(c.handshakeID, c.sendDir)
	ciphertext := c.sendAEAD.Seal(nil, nonce, data, aad)

	framed := make([]byte, 0, nonceSize+len(ciphertext))
	framed = append(framed, nonce...)
	framed = append(framed, ciphertext...)
	return c.inner.Send(ctx, framed)
}

// Recv reads the next message, decrypting it (if keys are installed) and
// enforcing strictly increasing per-direction nonces. Any failure returns a
// *ChannelError and closes the underlying channel, per spec §4.3.
func (c *Channel) Recv(ctx context.Context) ([]byte, error) {
	raw, err := c.inner.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if !c.sealed() {
		return raw, nil
	}

	if len(raw) < nonceSize {
		c.inner.Close()
		return nil, newChannelError(ErrorFraming)
	}
	nonce := raw[:nonceSize]
	ciphertext := raw[nonceSize:]

	c.mu.Lock()
	expected := c.recvCounter
	c.mu.Unlock()
	if binary.BigEndian.Uint64(nonce[4:]) != expected {
		c.inner.Close()
		return nil, newChannelError(ErrorReplay)
	}

	aad := buildAAD(c.handshakeID, c.recvDir)
	plaintext, err := c.recvAEAD.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		c.inner.Close()
		return nil, newChannelError(ErrorAuth)
	}

	c.mu.Lock()
	c.recvCounter++
	c.mu.Unlock()

	return plaintext, nil
}

// Close closes the underlying channel.
func (c *Channel) Close() error {
	return c.inner.Close()
}
