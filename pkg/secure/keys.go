package secure

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length, in bytes, of every derived key (ChaCha20-Poly1305
// key size).
const KeySize = 32

// Keys holds the two HKDF-derived keys of one handshake (spec §4.5's
// "K_s"/"K_h"). Ks is the session key from which Kh is derived; Kh seals
// the SDP/ICE exchange during negotiation and is the PSK of the Noise
// handshake. Neither is installed on the data channel: its Channel uses the
// per-direction KeyPair that the Noise handshake produces.
type Keys struct {
	Ks [KeySize]byte
	Kh [KeySize]byte
}

// DeriveSessionKey computes K_s = HKDF(passphrase, salt=sessionID,
// info="beach-session") (spec §4.5 step 3).
func DeriveSessionKey(passphrase, sessionID string) ([KeySize]byte, error) {
	var key [KeySize]byte
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(sessionID), []byte("beach-session"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return [KeySize]byte{}, err
	}
	return key, nil
}

// DeriveHandshakeKey computes K_h = HKDF(K_s, salt=handshakeID,
// info="beach-handshake") (spec §4.5 step 3).
func DeriveHandshakeKey(sessionKey [KeySize]byte, handshakeID string) ([KeySize]byte, error) {
	var key [KeySize]byte
	r := hkdf.New(sha256.New, sessionKey[:], []byte(handshakeID), []byte("beach-handshake"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return [KeySize]byte{}, err
	}
	return key, nil
}

// DeriveKeys is a convenience wrapper combining DeriveSessionKey and
// DeriveHandshakeKey for callers that only need the pair (e.g. tests).
func DeriveKeys(passphrase, sessionID, handshakeID string) (Keys, error) {
	ks, err := DeriveSessionKey(passphrase, sessionID)
	if err != nil {
		return Keys{}, err
	}
	kh, err := DeriveHandshakeKey(ks, handshakeID)
	if err != nil {
		return Keys{}, err
	}
	return Keys{Ks: ks, Kh: kh}, nil
}
