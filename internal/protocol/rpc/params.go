package rpc

import (
	"encoding/json"

	"wcsign/internal/domain"
)

// SessionProposeParams is the wc_sessionPropose request body.
type SessionProposeParams struct {
	Relays             []domain.RelayProtocolOptions       `json:"relays"`
	Proposer           domain.Participant                  `json:"proposer"`
	RequiredNamespaces map[string]domain.ProposalNamespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]domain.ProposalNamespace `json:"optionalNamespaces,omitempty"`
	SessionProperties  map[string]string                   `json:"sessionProperties,omitempty"`
	ExpiryTimestamp    int64                               `json:"expiryTimestamp,omitempty"`
}

// SessionProposeResponse is the wc_sessionPropose success result.
type SessionProposeResponse struct {
	Relay              domain.RelayProtocolOptions `json:"relay"`
	ResponderPublicKey string                      `json:"responderPublicKey"`
}

// SessionSettleParams is the wc_sessionSettle request body.
type SessionSettleParams struct {
	Relay             domain.RelayProtocolOptions        `json:"relay"`
	Controller        domain.Participant                 `json:"controller"`
	Namespaces        map[string]domain.SessionNamespace `json:"namespaces"`
	SessionProperties map[string]string                  `json:"sessionProperties,omitempty"`
	Expiry            int64                              `json:"expiry"`
}

// SessionUpdateParams is the wc_sessionUpdate request body.
type SessionUpdateParams struct {
	Namespaces map[string]domain.SessionNamespace `json:"namespaces"`
}

// SessionExtendParams is the wc_sessionExtend request body.
type SessionExtendParams struct {
	Expiry int64 `json:"expiry"`
}

// SessionRequestParams is the wc_sessionRequest request body.
type SessionRequestParams struct {
	Request struct {
		Method          string        `json:"method"`
		Params          domain.Params `json:"params"`
		ExpiryTimestamp int64         `json:"expiryTimestamp,omitempty"`
	} `json:"request"`
	ChainID domain.Blockchain `json:"chainId"`
}

// SessionEventParams is the wc_sessionEvent request body.
type SessionEventParams struct {
	Event struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	} `json:"event"`
	ChainID domain.Blockchain `json:"chainId"`
}

// SessionAuthenticateParams is the wc_sessionAuthenticate request body.
type SessionAuthenticateParams struct {
	Requester       domain.Participant `json:"requester"`
	AuthPayload     domain.AuthPayload `json:"authPayload"`
	ExpiryTimestamp int64              `json:"expiryTimestamp"`
}

// SessionAuthenticateResponse is the wc_sessionAuthenticate success result.
type SessionAuthenticateResponse struct {
	Cacaos    []domain.Cacao     `json:"cacaos"`
	Responder domain.Participant `json:"responder"`
}
