package namespace

import (
	"sort"

	"wcsign/internal/domain"
)

// Capabilities is everything the responder can offer.
type Capabilities struct {
	Chains   []domain.Blockchain
	Methods  []string
	Events   []string
	Accounts []domain.Account
}

// grant accumulates one family's session namespace as sets.
type grant struct {
	chains   map[domain.Blockchain]struct{}
	accounts map[domain.Account]struct{}
	methods  map[string]struct{}
	events   map[string]struct{}
}

func newGrant() *grant {
	return &grant{
		chains:   map[domain.Blockchain]struct{}{},
		accounts: map[domain.Account]struct{}{},
		methods:  map[string]struct{}{},
		events:   map[string]struct{}{},
	}
}

func (g *grant) add(chains []domain.Blockchain, caps Capabilities, methods, events []string) {
	for _, c := range chains {
		g.chains[c] = struct{}{}
		for _, a := range caps.Accounts {
			if a.Chain == c {
				g.accounts[a] = struct{}{}
			}
		}
	}
	for _, m := range methods {
		g.methods[m] = struct{}{}
	}
	for _, e := range events {
		g.events[e] = struct{}{}
	}
}

func (g *grant) namespace() domain.SessionNamespace {
	ns := domain.SessionNamespace{
		Chains:   make([]domain.Blockchain, 0, len(g.chains)),
		Accounts: make([]domain.Account, 0, len(g.accounts)),
		Methods:  setToSorted(g.methods),
		Events:   setToSorted(g.events),
	}
	for c := range g.chains {
		ns.Chains = append(ns.Chains, c)
	}
	for a := range g.accounts {
		ns.Accounts = append(ns.Accounts, a)
	}
	sort.Slice(ns.Chains, func(i, j int) bool { return ns.Chains[i].String() < ns.Chains[j].String() })
	sort.Slice(ns.Accounts, func(i, j int) bool { return ns.Accounts[i].String() < ns.Accounts[j].String() })
	return ns
}

// Build derives session namespaces from a proposal's required and optional
// maps and the responder's capabilities.
func Build(required, optional map[string]domain.ProposalNamespace, caps Capabilities) (map[string]domain.SessionNamespace, error) {
	supported := make(map[domain.Blockchain]bool, len(caps.Chains))
	for _, c := range caps.Chains {
		supported[c] = true
	}
	servable := func(c domain.Blockchain) bool { return supported[c] && hasAccountOn(caps.Accounts, c) }

	grants := map[string]*grant{}
	at := func(family string) *grant {
		g, ok := grants[family]
		if !ok {
			g = newGrant()
			grants[family] = g
		}
		return g
	}

	for _, key := range sortedKeys(required) {
		req := required[key]
		family, chains, err := expand(key, req)
		if err != nil {
			return nil, invalid(key, domain.ReasonUnsupportedNamespace, err)
		}
		for _, c := range chains {
			if !supported[c] {
				return nil, unsatisfied(c.String(), domain.ReasonUnsupportedChains)
			}
			if !hasAccountOn(caps.Accounts, c) {
				return nil, unsatisfied(c.String(), domain.ReasonUnsupportedAccounts)
			}
		}
		if !superset(caps.Methods, req.Methods) {
			return nil, unsatisfied(key, domain.ReasonUnsupportedMethods)
		}
		if !superset(caps.Events, req.Events) {
			return nil, unsatisfied(key, domain.ReasonUnsupportedEvents)
		}
		at(family).add(chains, caps, req.Methods, req.Events)
	}

	for _, key := range sortedKeys(optional) {
		opt := optional[key]
		family, chains, err := expand(key, opt)
		if err != nil {
			continue
		}
		if !superset(caps.Methods, opt.Methods) || !superset(caps.Events, opt.Events) {
			continue
		}
		var ok []domain.Blockchain
		for _, c := range chains {
			if servable(c) {
				ok = append(ok, c)
			}
		}
		if len(ok) == 0 {
			continue
		}
		at(family).add(ok, caps, opt.Methods, opt.Events)
	}

	if len(grants) == 0 {
		return nil, &domain.NamespaceUnsatisfiedError{Reason: domain.ReasonUnsupportedNamespace}
	}
	out := make(map[string]domain.SessionNamespace, len(grants))
	for family, g := range grants {
		out[family] = g.namespace()
	}
	return out, nil
}

func setToSorted(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
