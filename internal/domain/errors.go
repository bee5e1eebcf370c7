package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that branch on failure category.
type Kind int

const (
	KindUnknown Kind = iota
	KindCrypto
	KindNegotiation
	KindState
	KindTimeout
	KindTransport
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindCrypto:
		return "crypto"
	case KindNegotiation:
		return "negotiation"
	case KindState:
		return "state"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Kind() Kind    { return e.kind }

func newError(kind Kind, msg string) error { return &kindError{kind: kind, msg: msg} }

var (
	// Crypto
	ErrKeyNotFound        = newError(KindCrypto, "key not found")
	ErrKeyConflict        = newError(KindCrypto, "topic already bound to a different key")
	ErrDecryptionFailed   = newError(KindCrypto, "decryption failed")
	ErrMalformedEnvelope  = newError(KindCrypto, "malformed envelope")
	ErrVerificationFailed = newError(KindCrypto, "signature verification failed")

	// Negotiation
	ErrNamespaceUnsatisfied   = newError(KindNegotiation, "namespace unsatisfied")
	ErrInvalidNamespace       = newError(KindNegotiation, "invalid namespace")
	ErrAuthPayloadUnsupported = newError(KindNegotiation, "no requested chain is supported")

	// State
	ErrProposalAlreadyResolved = newError(KindState, "proposal already resolved")
	ErrProposalNotFound        = newError(KindState, "proposal not found")
	ErrProposalExpired         = newError(KindState, "proposal expired")
	ErrNoSession               = newError(KindState, "no session for topic")
	ErrSessionExpired          = newError(KindState, "session expired")
	ErrNoPairing               = newError(KindState, "no pairing for topic")
	ErrPairingExpired          = newError(KindState, "pairing expired")
	ErrPairingAlreadyExists    = newError(KindState, "pairing already active")
	ErrInvalidURI              = newError(KindState, "invalid pairing uri")
	ErrRequestNotFound         = newError(KindState, "request not found")
	ErrRequestExpired          = newError(KindState, "request expired")
	ErrDuplicateResponse       = newError(KindState, "response already sent for request")
	ErrInvalidExpiry           = newError(KindState, "invalid expiry")
	ErrAuthRequestNotFound     = newError(KindState, "authenticate request not found")

	// Timeout
	ErrRequestTimedOut = newError(KindTimeout, "request timed out")

	// Transport
	ErrSessionDeleted       = newError(KindTransport, "session deleted while request pending")
	ErrTransport            = newError(KindTransport, "transport failure")
	ErrLinkSupportNotProven = newError(KindTransport, "peer has not proven link mode support")

	// Authorization
	ErrUnauthorizedEvent      = newError(KindAuthorization, "event not permitted by session namespaces")
	ErrUnauthorizedMethod     = newError(KindAuthorization, "method not permitted by session namespaces")
	ErrUnauthorizedChain      = newError(KindAuthorization, "chain not permitted by session namespaces")
	ErrUnauthorizedController = newError(KindAuthorization, "operation requires the session controller")
)

// KindOf returns the category of err, or KindUnknown.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// NamespaceUnsatisfiedError reports the first chain, method or event a
// namespace set failed to cover.
type NamespaceUnsatisfiedError struct {
	Chain  string
	Reason Reason
}

func (e *NamespaceUnsatisfiedError) Error() string {
	if e.Chain == "" {
		return fmt.Sprintf("namespace unsatisfied: %s", e.Reason.Message)
	}
	return fmt.Sprintf("namespace unsatisfied for %s: %s", e.Chain, e.Reason.Message)
}

func (e *NamespaceUnsatisfiedError) Is(target error) bool { return target == ErrNamespaceUnsatisfied }
func (e *NamespaceUnsatisfiedError) Kind() Kind           { return KindNegotiation }

// VerificationFailedError reports a CACAO that did not verify for Chain.
type VerificationFailedError struct {
	Chain  string
	Reason string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("verification failed for %s: %s", e.Chain, e.Reason)
}

func (e *VerificationFailedError) Is(target error) bool { return target == ErrVerificationFailed }
func (e *VerificationFailedError) Kind() Kind           { return KindCrypto }

// PeerError is an error response returned by the peer.
type PeerError struct {
	Code    int
	Message string
}

func (e *PeerError) Error() string { return fmt.Sprintf("peer error %d: %s", e.Code, e.Message) }
func (e *PeerError) Kind() Kind    { return KindState }
