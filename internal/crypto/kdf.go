package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"wcsign/internal/domain"
	"wcsign/internal/util/memzero"
)

// DeriveSymmetricKey runs X25519 between priv and peer and expands the shared
// secret with HKDF-SHA256 (no salt, no info) into a 32-byte key.
func DeriveSymmetricKey(priv domain.X25519Private, peer domain.X25519Public) (domain.SymmetricKey, error) {
	var key domain.SymmetricKey
	secret, err := DH(priv, peer)
	if err != nil {
		return key, err
	}
	defer memzero.Key(&secret)

	r := hkdf.New(sha256.New, secret[:], nil, nil)
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// RandomSymmetricKey returns 32 random bytes.
func RandomSymmetricKey() (domain.SymmetricKey, error) {
	var key domain.SymmetricKey
	_, err := rand.Read(key[:])
	return key, err
}

// TopicFor returns the topic bound to key: hex(sha256(key)).
func TopicFor(key domain.SymmetricKey) domain.Topic {
	sum := sha256.Sum256(key[:])
	return domain.Topic(hex.EncodeToString(sum[:]))
}

// ResponseTopic is the topic a responder answers on when it only knows the
// requester's public key: hex(sha256(publicKey)).
func ResponseTopic(pub domain.X25519Public) domain.Topic {
	sum := sha256.Sum256(pub[:])
	return domain.Topic(hex.EncodeToString(sum[:]))
}

// RandomTopic returns a 32-byte random topic in hex.
func RandomTopic() (domain.Topic, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return domain.Topic(hex.EncodeToString(b[:])), nil
}
