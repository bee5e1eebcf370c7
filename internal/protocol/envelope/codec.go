package envelope

import (
	"context"
	"errors"
	"fmt"

	"wcsign/internal/crypto"
	"wcsign/internal/domain"
	"wcsign/internal/util/memzero"
)

// Keys is the subset of the key management service the codec needs.
type Keys interface {
	GetSymmetricKey(ctx context.Context, topic domain.Topic) (domain.SymmetricKey, error)
	SelfPublicKey(ctx context.Context, topic domain.Topic) (domain.X25519Public, error)
	AgreementKey(ctx context.Context, selfPub, peer domain.X25519Public) (domain.SymmetricKey, error)
}

// Codec seals and opens envelopes with keys from Keys.
type Codec struct {
	keys Keys
}

// NewCodec returns a Codec over keys.
func NewCodec(keys Keys) *Codec { return &Codec{keys: keys} }

// Options select the envelope type. SenderPublicKey is required for type1.
// When ReceiverPublicKey is also set, a type1 envelope is sealed with the
// agreement between the two keys instead of the key bound to the topic.
type Options struct {
	Type              domain.EnvelopeType
	SenderPublicKey   domain.X25519Public
	ReceiverPublicKey domain.X25519Public
}

// Encrypt seals plaintext for topic.
func (c *Codec) Encrypt(ctx context.Context, topic domain.Topic, plaintext []byte, opts Options) (Envelope, error) {
	if opts.Type == domain.EnvelopeType2 {
		return Envelope{Type: domain.EnvelopeType2, Sealed: append([]byte(nil), plaintext...)}, nil
	}
	var (
		key domain.SymmetricKey
		err error
	)
	if opts.Type == domain.EnvelopeType1 && opts.ReceiverPublicKey != (domain.X25519Public{}) {
		key, err = c.keys.AgreementKey(ctx, opts.SenderPublicKey, opts.ReceiverPublicKey)
	} else {
		key, err = c.keys.GetSymmetricKey(ctx, topic)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt on %s: %w", topic, err)
	}
	defer memzero.Key(&key)

	iv, sealed, err := crypto.Seal(key, plaintext)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt on %s: %w", topic, err)
	}
	env := Envelope{Type: opts.Type, IV: iv, Sealed: sealed}
	if opts.Type == domain.EnvelopeType1 {
		env.SenderPublicKey = opts.SenderPublicKey
	}
	return env, nil
}

// Decrypt opens a type0 or type1 envelope received on topic.
func (c *Codec) Decrypt(ctx context.Context, topic domain.Topic, env Envelope) ([]byte, error) {
	if env.Type == domain.EnvelopeType2 {
		return nil, fmt.Errorf("%w: plaintext envelope outside link mode", domain.ErrDecryptionFailed)
	}
	return c.open(ctx, topic, env)
}

// DecryptLink opens an envelope that arrived over link mode, where type2
// plaintext is allowed.
func (c *Codec) DecryptLink(ctx context.Context, topic domain.Topic, env Envelope) ([]byte, error) {
	if env.Type == domain.EnvelopeType2 {
		return append([]byte(nil), env.Sealed...), nil
	}
	return c.open(ctx, topic, env)
}

func (c *Codec) open(ctx context.Context, topic domain.Topic, env Envelope) ([]byte, error) {
	key, err := c.keyFor(ctx, topic, env)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, fmt.Errorf("decrypt on %s: %w: %w", topic, domain.ErrDecryptionFailed, err)
		}
		return nil, fmt.Errorf("decrypt on %s: %w", topic, err)
	}
	defer memzero.Key(&key)

	pt, err := crypto.Open(key, env.IV, env.Sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt on %s: %w", topic, domain.ErrDecryptionFailed)
	}
	return pt, nil
}

func (c *Codec) keyFor(ctx context.Context, topic domain.Topic, env Envelope) (domain.SymmetricKey, error) {
	if env.Type != domain.EnvelopeType1 {
		return c.keys.GetSymmetricKey(ctx, topic)
	}
	self, err := c.keys.SelfPublicKey(ctx, topic)
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	return c.keys.AgreementKey(ctx, self, env.SenderPublicKey)
}
