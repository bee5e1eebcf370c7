package types

import (
	"encoding/hex"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// Hex returns the lowercase hex encoding used on the wire.
func (p X25519Public) Hex() string { return hex.EncodeToString(p[:]) }

// ParseX25519Public decodes a hex public key.
func ParseX25519Public(s string) (X25519Public, error) {
	var p X25519Public
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("public key length %d, want %d", len(b), len(p))
	}
	copy(p[:], b)
	return p, nil
}

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// SymmetricKey is the 32-byte ChaCha20-Poly1305 key bound to a topic.
type SymmetricKey [32]byte

// Slice returns the key as a []byte.
func (k SymmetricKey) Slice() []byte { return k[:] }

// Hex returns the hex encoding carried in pairing URIs.
func (k SymmetricKey) Hex() string { return hex.EncodeToString(k[:]) }

// ParseSymmetricKey decodes a hex symmetric key.
func ParseSymmetricKey(s string) (SymmetricKey, error) {
	var k SymmetricKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("decode symmetric key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("symmetric key length %d, want %d", len(b), len(k))
	}
	copy(k[:], b)
	return k, nil
}

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }
