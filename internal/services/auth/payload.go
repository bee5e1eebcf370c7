package auth

import (
	"fmt"
	"sort"
	"time"

	"wcsign/internal/domain"
	"wcsign/internal/protocol/cacao"
)

const (
	payloadType    = "caip122"
	DefaultAuthTTL = time.Hour
)

// DefaultEvents are granted on every namespace derived from an
// authenticate response.
var DefaultEvents = []string{"chainChanged", "accountsChanged"}

// NewPayload turns the dapp's request parameters into the payload sent to
// the wallet. Requested methods are carried as a ReCap resource.
func NewPayload(p domain.AuthRequestParams, now time.Time) (domain.AuthPayload, error) {
	if len(p.Chains) == 0 {
		return domain.AuthPayload{}, fmt.Errorf("%w: no chains requested", domain.ErrAuthPayloadUnsupported)
	}
	resources := append([]string(nil), p.Resources...)
	if len(p.Methods) > 0 {
		urn, err := cacao.NewRecap(p.Chains[0].Namespace, p.Methods).URN()
		if err != nil {
			return domain.AuthPayload{}, fmt.Errorf("build recap: %w", err)
		}
		resources = append(resources, urn)
	}
	return domain.AuthPayload{
		Type:      payloadType,
		Chains:    append([]domain.Blockchain(nil), p.Chains...),
		Domain:    p.Domain,
		Aud:       p.URI,
		Version:   cacao.Version,
		Nonce:     p.Nonce,
		Iat:       now.UTC().Format(time.RFC3339),
		Nbf:       p.NotBefore,
		Exp:       p.ExpiresAt,
		Statement: p.Statement,
		RequestID: p.RequestID,
		Resources: resources,
	}, nil
}

// BuildAuthPayload narrows a received payload to what the wallet supports.
// Chains are intersected, as are the methods of any ReCap resource. An
// empty chain intersection fails with ErrAuthPayloadUnsupported.
func BuildAuthPayload(p domain.AuthPayload, chains []domain.Blockchain, methods []string) (domain.AuthPayload, error) {
	supported := make(map[domain.Blockchain]bool, len(chains))
	for _, c := range chains {
		supported[c] = true
	}
	var kept []domain.Blockchain
	for _, c := range p.Chains {
		if supported[c] {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return domain.AuthPayload{}, domain.ErrAuthPayloadUnsupported
	}

	out := p
	out.Chains = kept
	out.Resources = append([]string(nil), p.Resources...)

	recap, idx, ok := cacao.FindRecap(p.Resources)
	if !ok {
		return out, nil
	}
	family := kept[0].Namespace
	allowed := intersect(recap.Methods(family), methods)
	if len(allowed) == 0 {
		out.Resources = append(out.Resources[:idx], out.Resources[idx+1:]...)
		return out, nil
	}
	urn, err := cacao.NewRecap(family, allowed).URN()
	if err != nil {
		return domain.AuthPayload{}, fmt.Errorf("build recap: %w", err)
	}
	out.Resources[idx] = urn
	return out, nil
}

// FormatAuthMessage renders the message account must sign for p.
func FormatAuthMessage(p domain.AuthPayload, account domain.Account) string {
	return cacao.FormatMessage(cacao.PayloadFor(p, account), account)
}

// BuildSignedAuthObject packages a signature without verifying it.
func BuildSignedAuthObject(p domain.AuthPayload, sig domain.CacaoSignature, account domain.Account) domain.Cacao {
	return cacao.New(cacao.PayloadFor(p, account), sig)
}

// SessionNamespaces derives the namespaces of a session settled by an
// authenticate response. Every verified address is granted on each
// requested chain of its family, except chains whose CACAOs all failed;
// methods come from the payload's ReCap.
func SessionNamespaces(p domain.AuthPayload, accounts []domain.Account, failed ...*domain.VerificationFailedError) map[string]domain.SessionNamespace {
	addrs := map[string][]string{}
	seenAddr := map[string]bool{}
	verified := map[domain.Blockchain]bool{}
	for _, a := range accounts {
		verified[a.Chain] = true
		key := a.Chain.Namespace + "|" + a.Address
		if seenAddr[key] {
			continue
		}
		seenAddr[key] = true
		addrs[a.Chain.Namespace] = append(addrs[a.Chain.Namespace], a.Address)
	}
	rejected := map[string]bool{}
	for _, f := range failed {
		if f != nil && f.Chain != "" {
			rejected[f.Chain] = true
		}
	}

	out := map[string]domain.SessionNamespace{}
	for _, c := range p.Chains {
		family := addrs[c.Namespace]
		if len(family) == 0 || (rejected[c.String()] && !verified[c]) {
			continue
		}
		ns := out[c.Namespace]
		ns.Chains = append(ns.Chains, c)
		for _, addr := range family {
			ns.Accounts = append(ns.Accounts, domain.Account{Chain: c, Address: addr})
		}
		out[c.Namespace] = ns
	}
	for key, ns := range out {
		ns.Methods = cacao.RecapMethods(p.Resources, key)
		if ns.Methods == nil {
			ns.Methods = []string{}
		}
		ns.Events = append([]string(nil), DefaultEvents...)
		out[key] = ns
	}
	return out
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []string
	for _, x := range a {
		if in[x] {
			out = append(out, x)
		}
	}
	sort.Strings(out)
	return out
}
