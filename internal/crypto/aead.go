package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"wcsign/internal/domain"
)

// NonceSize is the ChaCha20-Poly1305 IV length.
const NonceSize = chacha20poly1305.NonceSize

var errOpen = errors.New("chacha20poly1305: message authentication failed")

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(key domain.SymmetricKey, plaintext []byte) (iv [NonceSize]byte, sealed []byte, err error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return iv, nil, err
	}
	if _, err = rand.Read(iv[:]); err != nil {
		return iv, nil, err
	}
	return iv, aead.Seal(nil, iv[:], plaintext, nil), nil
}

// Open decrypts sealed under key and iv.
func Open(key domain.SymmetricKey, iv [NonceSize]byte, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, iv[:], sealed, nil)
	if err != nil {
		return nil, errOpen
	}
	return pt, nil
}
