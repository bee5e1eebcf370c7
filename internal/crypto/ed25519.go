package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"wcsign/internal/domain"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// Ed25519Key converts priv to the standard library representation.
func Ed25519Key(priv domain.Ed25519Private) ed25519.PrivateKey {
	return ed25519.PrivateKey(append([]byte(nil), priv[:]...))
}
