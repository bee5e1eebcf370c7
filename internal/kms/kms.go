package kms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"wcsign/internal/crypto"
	"wcsign/internal/domain"
	"wcsign/internal/util/memzero"
)

// Service is the key management service.
type Service struct {
	keychain domain.Keychain
	mu       sync.Mutex
}

// New returns a Service storing keys in keychain.
func New(keychain domain.Keychain) *Service {
	return &Service{keychain: keychain}
}

func privKey(pub domain.X25519Public) string { return "privkey/" + pub.Hex() }
func symKey(topic domain.Topic) string       { return "symkey/" + topic.String() }
func selfPubKey(topic domain.Topic) string   { return "selfpub/" + topic.String() }

// GenerateKeyPair creates an X25519 key pair and stores the private half.
func (s *Service) GenerateKeyPair(ctx context.Context) (domain.X25519Public, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return pub, fmt.Errorf("generate key pair: %w", err)
	}
	defer memzero.Key(&priv)
	if err := s.keychain.Add(ctx, privKey(pub), priv[:]); err != nil {
		return pub, fmt.Errorf("store private key: %w", err)
	}
	return pub, nil
}

func (s *Service) privateKey(ctx context.Context, pub domain.X25519Public) (domain.X25519Private, error) {
	var priv domain.X25519Private
	b, err := s.keychain.Read(ctx, privKey(pub))
	if err != nil {
		return priv, err
	}
	defer memzero.Zero(b)
	if len(b) != len(priv) {
		return priv, fmt.Errorf("stored private key has length %d", len(b))
	}
	copy(priv[:], b)
	return priv, nil
}

// AgreementKey derives the symmetric key between our key selfPub and peer
// without binding it to a topic.
func (s *Service) AgreementKey(ctx context.Context, selfPub, peer domain.X25519Public) (domain.SymmetricKey, error) {
	priv, err := s.privateKey(ctx, selfPub)
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	defer memzero.Key(&priv)
	return crypto.DeriveSymmetricKey(priv, peer)
}

// DeriveSymmetricKey agrees a key between selfPub and peer, binds it to the
// topic hex(sha256(key)) and returns that topic.
func (s *Service) DeriveSymmetricKey(ctx context.Context, selfPub, peer domain.X25519Public) (domain.Topic, error) {
	key, err := s.AgreementKey(ctx, selfPub, peer)
	if err != nil {
		return "", err
	}
	defer memzero.Key(&key)
	topic := crypto.TopicFor(key)
	if err := s.SetSymmetricKey(ctx, key, topic); err != nil {
		return "", err
	}
	return topic, nil
}

// CreateSymmetricKey binds a random key to its derived topic.
func (s *Service) CreateSymmetricKey(ctx context.Context) (domain.Topic, domain.SymmetricKey, error) {
	key, err := crypto.RandomSymmetricKey()
	if err != nil {
		return "", key, err
	}
	topic := crypto.TopicFor(key)
	if err := s.SetSymmetricKey(ctx, key, topic); err != nil {
		return "", key, err
	}
	return topic, key, nil
}

// SetSymmetricKey binds key to topic. Binding the same key twice is a no-op.
func (s *Service) SetSymmetricKey(ctx context.Context, key domain.SymmetricKey, topic domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.keychain.Read(ctx, symKey(topic))
	switch {
	case err == nil:
		defer memzero.Zero(cur)
		if bytes.Equal(cur, key[:]) {
			return nil
		}
		return domain.ErrKeyConflict
	case !errors.Is(err, domain.ErrKeyNotFound):
		return err
	}
	return s.keychain.Add(ctx, symKey(topic), key[:])
}

// GetSymmetricKey returns the key bound to topic or domain.ErrKeyNotFound.
func (s *Service) GetSymmetricKey(ctx context.Context, topic domain.Topic) (domain.SymmetricKey, error) {
	var key domain.SymmetricKey
	b, err := s.keychain.Read(ctx, symKey(topic))
	if err != nil {
		return key, err
	}
	defer memzero.Zero(b)
	if len(b) != len(key) {
		return key, fmt.Errorf("stored symmetric key has length %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// HasSymmetricKey reports whether topic is bound.
func (s *Service) HasSymmetricKey(ctx context.Context, topic domain.Topic) bool {
	_, err := s.GetSymmetricKey(ctx, topic)
	return err == nil
}

// DeleteKey unbinds topic and forgets any self public key recorded for it.
func (s *Service) DeleteKey(ctx context.Context, topic domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.keychain.Delete(ctx, symKey(topic)); err != nil {
		return err
	}
	return s.keychain.Delete(ctx, selfPubKey(topic))
}

// DeletePrivateKey forgets the private key for pub.
func (s *Service) DeletePrivateKey(ctx context.Context, pub domain.X25519Public) error {
	return s.keychain.Delete(ctx, privKey(pub))
}

// SetSelfPublicKey records which of our keys opens type1 envelopes on topic.
func (s *Service) SetSelfPublicKey(ctx context.Context, topic domain.Topic, pub domain.X25519Public) error {
	return s.keychain.Add(ctx, selfPubKey(topic), pub[:])
}

// SelfPublicKey returns the key recorded by SetSelfPublicKey.
func (s *Service) SelfPublicKey(ctx context.Context, topic domain.Topic) (domain.X25519Public, error) {
	var pub domain.X25519Public
	b, err := s.keychain.Read(ctx, selfPubKey(topic))
	if err != nil {
		return pub, err
	}
	if len(b) != len(pub) {
		return pub, fmt.Errorf("stored public key has length %d", len(b))
	}
	copy(pub[:], b)
	return pub, nil
}
