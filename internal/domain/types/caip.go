package types

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	namespaceRe = regexp.MustCompile(`^[-a-z0-9]{3,8}$`)
	referenceRe = regexp.MustCompile(`^[-_a-zA-Z0-9]{1,32}$`)
	addressRe   = regexp.MustCompile(`^[-.%a-zA-Z0-9]{1,128}$`)
)

// Blockchain is a CAIP-2 chain id, e.g. "eip155:1".
type Blockchain struct {
	Namespace string
	Reference string
}

// ParseBlockchain parses a CAIP-2 string.
func ParseBlockchain(s string) (Blockchain, error) {
	ns, ref, ok := strings.Cut(s, ":")
	if !ok || !namespaceRe.MatchString(ns) || !referenceRe.MatchString(ref) {
		return Blockchain{}, fmt.Errorf("invalid CAIP-2 chain %q", s)
	}
	return Blockchain{Namespace: ns, Reference: ref}, nil
}

// String returns the CAIP-2 form.
func (b Blockchain) String() string { return b.Namespace + ":" + b.Reference }

// MarshalText implements encoding.TextMarshaler.
func (b Blockchain) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Blockchain) UnmarshalText(text []byte) error {
	v, err := ParseBlockchain(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Account is a CAIP-10 account id. Two accounts are equal when their
// CAIP-10 strings are equal.
type Account struct {
	Chain   Blockchain
	Address string
}

// ParseAccount parses "namespace:reference:address".
func ParseAccount(s string) (Account, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Account{}, fmt.Errorf("invalid CAIP-10 account %q", s)
	}
	chain, err := ParseBlockchain(parts[0] + ":" + parts[1])
	if err != nil {
		return Account{}, fmt.Errorf("invalid CAIP-10 account %q: %w", s, err)
	}
	if !addressRe.MatchString(parts[2]) {
		return Account{}, fmt.Errorf("invalid CAIP-10 address in %q", s)
	}
	return Account{Chain: chain, Address: parts[2]}, nil
}

// ParseDIDPKH parses a "did:pkh:<CAIP-10>" issuer.
func ParseDIDPKH(did string) (Account, error) {
	rest, ok := strings.CutPrefix(did, "did:pkh:")
	if !ok {
		return Account{}, fmt.Errorf("issuer %q is not a did:pkh", did)
	}
	return ParseAccount(rest)
}

// String returns the CAIP-10 form.
func (a Account) String() string { return a.Chain.String() + ":" + a.Address }

// DID returns the did:pkh form used as a CACAO issuer.
func (a Account) DID() string { return "did:pkh:" + a.String() }

// MarshalText implements encoding.TextMarshaler.
func (a Account) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Account) UnmarshalText(text []byte) error {
	v, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
