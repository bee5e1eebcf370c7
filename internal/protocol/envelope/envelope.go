package envelope

import (
	"encoding/base64"
	"fmt"

	"wcsign/internal/crypto"
	"wcsign/internal/domain"
)

const publicKeySize = 32

// Envelope is one serialized message.
type Envelope struct {
	Type            domain.EnvelopeType
	SenderPublicKey domain.X25519Public
	IV              [crypto.NonceSize]byte
	// Sealed is ciphertext for type0 and type1, plaintext for type2.
	Sealed []byte
}

// Bytes returns the wire form.
func (e Envelope) Bytes() []byte {
	switch e.Type {
	case domain.EnvelopeType2:
		return append([]byte{byte(e.Type)}, e.Sealed...)
	case domain.EnvelopeType1:
		out := make([]byte, 0, 1+publicKeySize+len(e.IV)+len(e.Sealed))
		out = append(out, byte(e.Type))
		out = append(out, e.SenderPublicKey[:]...)
		out = append(out, e.IV[:]...)
		return append(out, e.Sealed...)
	default:
		out := make([]byte, 0, 1+len(e.IV)+len(e.Sealed))
		out = append(out, byte(e.Type))
		out = append(out, e.IV[:]...)
		return append(out, e.Sealed...)
	}
}

// Parse reads the wire form.
func Parse(b []byte) (Envelope, error) {
	if len(b) < 1 {
		return Envelope{}, fmt.Errorf("%w: empty", domain.ErrMalformedEnvelope)
	}
	e := Envelope{Type: domain.EnvelopeType(b[0])}
	rest := b[1:]
	switch e.Type {
	case domain.EnvelopeType0:
	case domain.EnvelopeType1:
		if len(rest) < publicKeySize {
			return Envelope{}, fmt.Errorf("%w: short type1 header", domain.ErrMalformedEnvelope)
		}
		copy(e.SenderPublicKey[:], rest[:publicKeySize])
		rest = rest[publicKeySize:]
	case domain.EnvelopeType2:
		e.Sealed = append([]byte(nil), rest...)
		return e, nil
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %d", domain.ErrMalformedEnvelope, b[0])
	}
	if len(rest) < len(e.IV)+16 {
		return Envelope{}, fmt.Errorf("%w: short ciphertext", domain.ErrMalformedEnvelope)
	}
	copy(e.IV[:], rest[:len(e.IV)])
	e.Sealed = append([]byte(nil), rest[len(e.IV):]...)
	return e, nil
}

// Base64 encodes the envelope for the relay.
func (e Envelope) Base64() string { return base64.StdEncoding.EncodeToString(e.Bytes()) }

// Base64URL encodes the envelope for a link-mode URL.
func (e Envelope) Base64URL() string { return base64.RawURLEncoding.EncodeToString(e.Bytes()) }

// ParseBase64 decodes a relay message.
func ParseBase64(s string) (Envelope, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	return Parse(b)
}

// ParseBase64URL decodes a link-mode envelope, with or without padding.
func ParseBase64URL(s string) (Envelope, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.URLEncoding.DecodeString(s)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	return Parse(b)
}
