package secure

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedEnvelope is the wire form of a signaling message protected under the
// handshake key Kh (spec §4.5): SDP offers/answers and ICE candidates are
// sealed before they leave the negotiator and opened on receipt.
type SealedEnvelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts plaintext under key with a fresh random nonce and binds aad
// (label, peer ids, ...) to the ciphertext.
func Seal(key [KeySize]byte, plaintext, aad []byte) (SealedEnvelope, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return SealedEnvelope{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return SealedEnvelope{}, err
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, aad)
	return SealedEnvelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open decrypts a SealedEnvelope produced by Seal. A mismatched aad or a
// tampered ciphertext both surface as a ChannelError{Kind: ErrorAuth}.
func Open(key [KeySize]byte, env SealedEnvelope, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("secure: malformed sealed envelope nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("secure: malformed sealed envelope ciphertext: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, newChannelError(ErrorFraming)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, newChannelError(ErrorAuth)
	}
	return plaintext, nil
}
