package types

// ProposalNamespace is one entry of a proposal's required or optional map.
// When the map key is a bare family ("eip155") Chains lists the chains;
// when the key is a chain ("eip155:1") Chains is empty.
type ProposalNamespace struct {
	Chains  []Blockchain `json:"chains,omitempty"`
	Methods []string     `json:"methods"`
	Events  []string     `json:"events"`
}

// SessionNamespace is the responder-produced grant for one family.
type SessionNamespace struct {
	Chains   []Blockchain `json:"chains,omitempty"`
	Accounts []Account    `json:"accounts"`
	Methods  []string     `json:"methods"`
	Events   []string     `json:"events"`
}

// HasChain reports whether an account or explicit chain covers c.
func (n SessionNamespace) HasChain(c Blockchain) bool {
	for _, a := range n.Accounts {
		if a.Chain == c {
			return true
		}
	}
	for _, ch := range n.Chains {
		if ch == c {
			return true
		}
	}
	return false
}

// HasMethod reports whether m is granted.
func (n SessionNamespace) HasMethod(m string) bool { return contains(n.Methods, m) }

// HasEvent reports whether e is granted.
func (n SessionNamespace) HasEvent(e string) bool { return contains(n.Events, e) }

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
