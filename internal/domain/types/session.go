package types

import (
	"encoding/json"
	"time"
)

// Proposal is a pending session proposal. Its ID is the proposer's public key.
type Proposal struct {
	ID                 string                       `json:"id"`
	RequestID          int64                        `json:"requestId"`
	PairingTopic       Topic                        `json:"pairingTopic"`
	Relays             []RelayProtocolOptions       `json:"relays"`
	Proposer           Participant                  `json:"proposer"`
	RequiredNamespaces map[string]ProposalNamespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]ProposalNamespace `json:"optionalNamespaces,omitempty"`
	SessionProperties  map[string]string            `json:"sessionProperties,omitempty"`
	Expiry             time.Time                    `json:"expiry"`
}

// Expired reports whether the proposal can no longer be answered.
func (p Proposal) Expired(now time.Time) bool { return !now.Before(p.Expiry) }

// Session is a settled channel between two participants.
type Session struct {
	Topic              Topic                        `json:"topic"`
	PairingTopic       Topic                        `json:"pairingTopic"`
	Relay              RelayProtocolOptions         `json:"relay"`
	Self               Participant                  `json:"self"`
	Peer               Participant                  `json:"peer"`
	Controller         string                       `json:"controller"`
	Namespaces         map[string]SessionNamespace  `json:"namespaces"`
	RequiredNamespaces map[string]ProposalNamespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]ProposalNamespace `json:"optionalNamespaces,omitempty"`
	SessionProperties  map[string]string            `json:"sessionProperties,omitempty"`
	Expiry             time.Time                    `json:"expiry"`
	Acknowledged       bool                         `json:"acknowledged"`
	TransportType      TransportType                `json:"transportType"`
	UpdatedAt          time.Time                    `json:"updatedAt"`
}

// Expired reports whether the session's expiry has passed at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.Expiry) }

// SelfIsController reports whether this side may update, extend and emit.
func (s Session) SelfIsController() bool { return s.Controller == s.Self.PublicKey }

// Accounts flattens the granted accounts of every namespace.
func (s Session) Accounts() []Account {
	var out []Account
	for _, ns := range s.Namespaces {
		out = append(out, ns.Accounts...)
	}
	return out
}

// Namespace returns the grant covering chain's family.
func (s Session) Namespace(chain Blockchain) (SessionNamespace, bool) {
	ns, ok := s.Namespaces[chain.Namespace]
	if ok {
		return ns, true
	}
	ns, ok = s.Namespaces[chain.String()]
	return ns, ok
}

// SessionEvent is an event emitted by the controller.
type SessionEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Reason is a structured rejection or disconnect reason.
type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
