package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the sealed keychain format.
	keychainFormatVersion = 1

	keychainCheck = "wcsign-keychain"
)

var (
	// Returned when the passphrase is incorrect or a sealed blob has been modified / corrupted.
	errWrongPassphrase = errors.New("wrong passphrase or corrupted keychain")
)

// keychainMeta is stored once per keychain: KDF parameters plus a sealed
// check value that detects a wrong passphrase on open.
type keychainMeta struct {
	V     int    `json:"v"`
	Salt  []byte `json:"salt"`
	N     int    `json:"scrypt_N"`
	R     int    `json:"scrypt_r"`
	P     int    `json:"scrypt_p"`
	Check []byte `json:"check"`
}

// blob is one sealed secret.
type blob struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// newMeta derives a key from passphrase with a fresh salt.
func newMeta(passphrase string, N, r, p int) (keychainMeta, cipher.AEAD, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:] /* #nosec G404 */); err != nil {
		return keychainMeta{}, nil, err
	}
	aead, err := deriveAEAD(passphrase, salt[:], N, r, p)
	if err != nil {
		return keychainMeta{}, nil, err
	}
	check, err := sealBlob(aead, "meta", []byte(keychainCheck))
	if err != nil {
		return keychainMeta{}, nil, err
	}
	return keychainMeta{V: keychainFormatVersion, Salt: salt[:], N: N, R: r, P: p, Check: check}, aead, nil
}

// openMeta re-derives the key recorded by meta and checks the passphrase.
func openMeta(passphrase string, meta keychainMeta) (cipher.AEAD, error) {
	if meta.V > keychainFormatVersion {
		return nil, fmt.Errorf("unsupported keychain version %d", meta.V)
	}
	aead, err := deriveAEAD(passphrase, meta.Salt, meta.N, meta.R, meta.P)
	if err != nil {
		return nil, err
	}
	pt, err := openBlob(aead, "meta", meta.Check)
	if err != nil || string(pt) != keychainCheck {
		return nil, errWrongPassphrase
	}
	return aead, nil
}

func deriveAEAD(passphrase string, salt []byte, N, r, p int) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}

// sealBlob encrypts raw bound to name as associated data.
func sealBlob(aead cipher.AEAD, name string, raw []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(blob{
		V:      keychainFormatVersion,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, []byte(name)),
	})
}

// openBlob reverses sealBlob; the name must match.
func openBlob(aead cipher.AEAD, name string, b []byte) ([]byte, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, err
	}
	if bl.V > keychainFormatVersion {
		return nil, fmt.Errorf("unsupported keychain version %d", bl.V)
	}
	pt, err := aead.Open(nil, bl.Nonce, bl.Cipher, []byte(name))
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
