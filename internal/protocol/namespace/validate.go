package namespace

import (
	"fmt"
	"sort"
	"strings"

	"wcsign/internal/domain"
)

// expand returns the family and chains a proposal key denotes.
func expand(key string, ns domain.ProposalNamespace) (string, []domain.Blockchain, error) {
	if strings.Contains(key, ":") {
		chain, err := domain.ParseBlockchain(key)
		if err != nil {
			return "", nil, err
		}
		if len(ns.Chains) > 0 {
			return "", nil, fmt.Errorf("chain key %q must not list chains", key)
		}
		return chain.Namespace, []domain.Blockchain{chain}, nil
	}
	if _, err := domain.ParseBlockchain(key + ":0"); err != nil {
		return "", nil, fmt.Errorf("invalid namespace key %q", key)
	}
	if len(ns.Chains) == 0 {
		return "", nil, fmt.Errorf("namespace %q lists no chains", key)
	}
	for _, c := range ns.Chains {
		if c.Namespace != key {
			return "", nil, fmt.Errorf("chain %s does not belong to namespace %q", c, key)
		}
	}
	return key, ns.Chains, nil
}

func invalid(key string, r domain.Reason, err error) error {
	return fmt.Errorf("%w: %s: %v (%d)", domain.ErrInvalidNamespace, key, err, r.Code)
}

// ValidateProposal checks key syntax and chain/key consistency of a
// required or optional map.
func ValidateProposal(m map[string]domain.ProposalNamespace) error {
	for _, key := range sortedKeys(m) {
		if _, _, err := expand(key, m[key]); err != nil {
			return invalid(key, domain.ReasonUnsupportedNamespace, err)
		}
	}
	return nil
}

// ValidateSession checks that every grant has accounts and that accounts and
// chains belong to the entry's key.
func ValidateSession(m map[string]domain.SessionNamespace) error {
	if len(m) == 0 {
		return invalid("", domain.ReasonUnsupportedNamespace, fmt.Errorf("empty session namespaces"))
	}
	for _, key := range sortedKeys(m) {
		ns := m[key]
		family, chainKey := key, ""
		if strings.Contains(key, ":") {
			c, err := domain.ParseBlockchain(key)
			if err != nil {
				return invalid(key, domain.ReasonUnsupportedNamespace, err)
			}
			family, chainKey = c.Namespace, key
		}
		if len(ns.Accounts) == 0 {
			return invalid(key, domain.ReasonUnsupportedAccounts, fmt.Errorf("no accounts"))
		}
		for _, a := range ns.Accounts {
			if a.Chain.Namespace != family || (chainKey != "" && a.Chain.String() != chainKey) {
				return invalid(key, domain.ReasonUnsupportedAccounts, fmt.Errorf("account %s outside namespace", a))
			}
		}
		for _, c := range ns.Chains {
			if c.Namespace != family {
				return invalid(key, domain.ReasonUnsupportedChains, fmt.Errorf("chain %s outside namespace", c))
			}
		}
	}
	return nil
}

// ValidateApproved checks that granted satisfies every required entry:
// an account on each required chain, and a superset of methods and events.
func ValidateApproved(granted map[string]domain.SessionNamespace, required map[string]domain.ProposalNamespace) error {
	for _, key := range sortedKeys(required) {
		req := required[key]
		_, chains, err := expand(key, req)
		if err != nil {
			return invalid(key, domain.ReasonUnsupportedNamespace, err)
		}
		for _, chain := range chains {
			grant, ok := lookup(granted, chain)
			if !ok {
				return unsatisfied(chain.String(), domain.ReasonUnsupportedNamespace)
			}
			if !hasAccountOn(grant.Accounts, chain) {
				return unsatisfied(chain.String(), domain.ReasonUnsupportedChains)
			}
			if !superset(grant.Methods, req.Methods) {
				return unsatisfied(chain.String(), domain.ReasonUnsupportedMethods)
			}
			if !superset(grant.Events, req.Events) {
				return unsatisfied(chain.String(), domain.ReasonUnsupportedEvents)
			}
		}
	}
	return nil
}

func lookup(granted map[string]domain.SessionNamespace, chain domain.Blockchain) (domain.SessionNamespace, bool) {
	if ns, ok := granted[chain.Namespace]; ok {
		return ns, true
	}
	ns, ok := granted[chain.String()]
	return ns, ok
}

func unsatisfied(chain string, r domain.Reason) error {
	return &domain.NamespaceUnsatisfiedError{Chain: chain, Reason: r}
}

func hasAccountOn(accounts []domain.Account, chain domain.Blockchain) bool {
	for _, a := range accounts {
		if a.Chain == chain {
			return true
		}
	}
	return false
}

func superset(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
