package store

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"fmt"

	"wcsign/internal/domain"
)

const (
	keychainMetaKey    = "keychain/meta"
	keychainItemPrefix = "keychain/item/"
)

// KeychainOptions tune key derivation. Zero values select the defaults.
type KeychainOptions struct {
	ScryptN int
}

// Keychain stores secrets sealed under a passphrase-derived key.
type Keychain struct {
	kv   domain.KeyValueStore
	aead cipher.AEAD
}

// OpenKeychain derives the keychain key from passphrase. The first open on
// a backend records a salt and a check value; later opens with a different
// passphrase fail.
func OpenKeychain(ctx context.Context, kv domain.KeyValueStore, passphrase string, opts KeychainOptions) (*Keychain, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("keychain passphrase required")
	}
	raw, ok, err := kv.Get(ctx, keychainMetaKey)
	if err != nil {
		return nil, fmt.Errorf("read keychain meta: %w", err)
	}
	if ok {
		var meta keychainMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode keychain meta: %w", err)
		}
		aead, err := openMeta(passphrase, meta)
		if err != nil {
			return nil, err
		}
		return &Keychain{kv: kv, aead: aead}, nil
	}

	N, r, p := scryptParamsDefault()
	if opts.ScryptN > 0 {
		N = opts.ScryptN
	}
	meta, aead, err := newMeta(passphrase, N, r, p)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := kv.Set(ctx, keychainMetaKey, b); err != nil {
		return nil, fmt.Errorf("write keychain meta: %w", err)
	}
	return &Keychain{kv: kv, aead: aead}, nil
}

func (k *Keychain) Add(ctx context.Context, key string, secret []byte) error {
	b, err := sealBlob(k.aead, key, secret)
	if err != nil {
		return err
	}
	return k.kv.Set(ctx, keychainItemPrefix+key, b)
}

func (k *Keychain) Read(ctx context.Context, key string) ([]byte, error) {
	b, ok, err := k.kv.Get(ctx, keychainItemPrefix+key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return openBlob(k.aead, key, b)
}

func (k *Keychain) Delete(ctx context.Context, key string) error {
	return k.kv.Delete(ctx, keychainItemPrefix+key)
}

// Compile-time assertion that Keychain implements domain.Keychain.
var _ domain.Keychain = (*Keychain)(nil)
