package cacao

import (
	"strings"

	"wcsign/internal/domain"
)

const (
	HeaderType = "caip122"
	Version    = "1"
)

// PayloadFor binds an authenticate payload to the signing account.
func PayloadFor(p domain.AuthPayload, signer domain.Account) domain.CacaoPayload {
	return domain.CacaoPayload{
		Iss:       signer.DID(),
		Domain:    p.Domain,
		Aud:       p.Aud,
		Version:   p.Version,
		Nonce:     p.Nonce,
		Iat:       p.Iat,
		Nbf:       p.Nbf,
		Exp:       p.Exp,
		Statement: p.Statement,
		RequestID: p.RequestID,
		Resources: append([]string(nil), p.Resources...),
	}
}

// New packages a payload and signature without verifying anything.
func New(p domain.CacaoPayload, sig domain.CacaoSignature) domain.Cacao {
	return domain.Cacao{H: domain.CacaoHeader{T: HeaderType}, P: p, S: sig}
}

// FormatMessage renders the EIP-4361 message for p signed by account.
// The output is byte-for-byte stable for equal inputs.
func FormatMessage(p domain.CacaoPayload, account domain.Account) string {
	var b strings.Builder
	b.WriteString(p.Domain)
	b.WriteString(" wants you to sign in with your Ethereum account:\n")
	b.WriteString(account.Address)
	b.WriteString("\n\n")

	if stmt := statement(p); stmt != "" {
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}

	line := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	line("URI", p.Aud)
	line("Version", p.Version)
	line("Chain ID", account.Chain.Reference)
	line("Nonce", p.Nonce)
	line("Issued At", p.Iat)
	if p.Exp != "" {
		line("Expiration Time", p.Exp)
	}
	if p.Nbf != "" {
		line("Not Before", p.Nbf)
	}
	if p.RequestID != "" {
		line("Request ID", p.RequestID)
	}
	if len(p.Resources) > 0 {
		b.WriteString("Resources:")
		for _, r := range p.Resources {
			b.WriteString("\n- ")
			b.WriteString(r)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func statement(p domain.CacaoPayload) string {
	recap, _, ok := FindRecap(p.Resources)
	if !ok {
		return p.Statement
	}
	extra := recap.statement()
	switch {
	case extra == "":
		return p.Statement
	case p.Statement == "":
		return extra
	default:
		return p.Statement + " " + extra
	}
}
