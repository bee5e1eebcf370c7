package crypto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"wcsign/internal/domain"
)

const didKeyPrefix = "did:key:z"

// multicodec varint for ed25519-pub
var ed25519Multicodec = []byte{0xed, 0x01}

// EncodeDIDKey renders pub as a did:key with a base58btc multibase body.
func EncodeDIDKey(pub domain.Ed25519Public) string {
	b := append(append([]byte{}, ed25519Multicodec...), pub[:]...)
	return didKeyPrefix + base58.Encode(b)
}

// DecodeDIDKey parses a did:key produced by EncodeDIDKey.
func DecodeDIDKey(did string) (domain.Ed25519Public, error) {
	var pub domain.Ed25519Public
	body, ok := strings.CutPrefix(did, didKeyPrefix)
	if !ok {
		return pub, fmt.Errorf("not a base58btc did:key: %q", did)
	}
	raw, err := base58.Decode(body)
	if err != nil {
		return pub, fmt.Errorf("decode did:key: %w", err)
	}
	if !bytes.HasPrefix(raw, ed25519Multicodec) || len(raw) != len(ed25519Multicodec)+len(pub) {
		return pub, fmt.Errorf("did:key is not an ed25519 key")
	}
	copy(pub[:], raw[len(ed25519Multicodec):])
	return pub, nil
}
