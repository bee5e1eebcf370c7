package types

import "time"

// AuthRequestParams is what a dapp supplies to start an authenticate flow.
type AuthRequestParams struct {
	Domain    string
	Chains    []Blockchain
	Nonce     string
	URI       string
	NotBefore string
	ExpiresAt string
	Statement string
	RequestID string
	Resources []string
	Methods   []string
	// TTL bounds how long the request stays answerable. Zero selects the
	// protocol default.
	TTL time.Duration
}

// AuthPayload is the CAIP-122 request body sent to the wallet.
type AuthPayload struct {
	Type      string       `json:"type"`
	Chains    []Blockchain `json:"chains"`
	Domain    string       `json:"domain"`
	Aud       string       `json:"aud"`
	Version   string       `json:"version"`
	Nonce     string       `json:"nonce"`
	Iat       string       `json:"iat"`
	Nbf       string       `json:"nbf,omitempty"`
	Exp       string       `json:"exp,omitempty"`
	Statement string       `json:"statement,omitempty"`
	RequestID string       `json:"requestId,omitempty"`
	Resources []string     `json:"resources,omitempty"`
}

// AuthRequest is an authenticate request pending on the wallet side.
type AuthRequest struct {
	ID        int64         `json:"id"`
	Topic     Topic         `json:"topic"`
	Payload   AuthPayload   `json:"payload"`
	Requester Participant   `json:"requester"`
	Expiry    time.Time     `json:"expiry"`
	Transport TransportType `json:"transport"`
}

// Expired reports whether the request can no longer be answered.
func (r AuthRequest) Expired(now time.Time) bool { return !now.Before(r.Expiry) }

// CacaoSignatureType selects the verification scheme.
type CacaoSignatureType string

const (
	CacaoEIP191  CacaoSignatureType = "eip191"
	CacaoEIP1271 CacaoSignatureType = "eip1271"
)

// CacaoHeader names the payload format.
type CacaoHeader struct {
	T string `json:"t"`
}

// CacaoPayload is an AuthPayload bound to one signing account via Iss.
type CacaoPayload struct {
	Iss       string   `json:"iss"`
	Domain    string   `json:"domain"`
	Aud       string   `json:"aud"`
	Version   string   `json:"version"`
	Nonce     string   `json:"nonce"`
	Iat       string   `json:"iat"`
	Nbf       string   `json:"nbf,omitempty"`
	Exp       string   `json:"exp,omitempty"`
	Statement string   `json:"statement,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// CacaoSignature is a hex signature and its scheme.
type CacaoSignature struct {
	T CacaoSignatureType `json:"t"`
	S string             `json:"s"`
	M string             `json:"m,omitempty"`
}

// Cacao is a chain-agnostic capability object authenticating one account.
type Cacao struct {
	H CacaoHeader    `json:"h"`
	P CacaoPayload   `json:"p"`
	S CacaoSignature `json:"s"`
}

// AuthResponse is delivered to the dapp when an authenticate request resolves.
type AuthResponse struct {
	ID       int64         `json:"id"`
	Topic    Topic         `json:"topic"`
	Session  *Session      `json:"session,omitempty"`
	Cacaos   []Cacao       `json:"cacaos,omitempty"`
	Accounts []Account     `json:"accounts,omitempty"`
	Error    *Reason       `json:"error,omitempty"`
	Via      TransportType `json:"via"`
}
