package identity

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"wcsign/internal/crypto"
	"wcsign/internal/domain"
	"wcsign/internal/util/memzero"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	keychainKey = "relay_identity"
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrIdentityExists is returned by Generate when an identity is already stored.
	ErrIdentityExists = errors.New("relay identity already exists")
)

// Service creates and loads the relay identity from a keychain.
type Service struct {
	keychain domain.Keychain
}

// New returns an identity service backed by the given keychain.
func New(k domain.Keychain) *Service { return &Service{keychain: k} }

// Generate creates and stores a new identity and returns its did:key.
func (s *Service) Generate(ctx context.Context) (string, error) {
	if _, err := s.keychain.Read(ctx, keychainKey); err == nil {
		return "", ErrIdentityExists
	} else if !errors.Is(err, domain.ErrKeyNotFound) {
		return "", err
	}
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return "", err
	}
	defer memzero.Zero(priv[:])
	if err := s.keychain.Add(ctx, keychainKey, priv[:]); err != nil {
		return "", err
	}
	return crypto.EncodeDIDKey(pub), nil
}

// Load returns the stored identity or domain.ErrKeyNotFound.
func (s *Service) Load(ctx context.Context) (domain.Ed25519Private, error) {
	var priv domain.Ed25519Private
	b, err := s.keychain.Read(ctx, keychainKey)
	if err != nil {
		return priv, err
	}
	defer memzero.Zero(b)
	if len(b) != len(priv) {
		return priv, fmt.Errorf("stored relay identity has length %d", len(b))
	}
	copy(priv[:], b)
	return priv, nil
}

// LoadOrCreate returns the stored identity, generating one on first use.
func (s *Service) LoadOrCreate(ctx context.Context) (domain.Ed25519Private, error) {
	priv, err := s.Load(ctx)
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return priv, err
	}
	if _, err := s.Generate(ctx); err != nil {
		return priv, err
	}
	return s.Load(ctx)
}

// DID returns the did:key of the stored identity.
func (s *Service) DID(ctx context.Context) (string, error) {
	priv, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(priv[:])
	var pub domain.Ed25519Public
	copy(pub[:], priv[32:])
	return crypto.EncodeDIDKey(pub), nil
}

// CheckPassphrase enforces the strength policy for keychains that persist
// beyond the process.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
