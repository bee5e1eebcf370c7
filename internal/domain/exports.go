package domain

import (
	interfaces "wcsign/internal/domain/interfaces"
	types "wcsign/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Topic                = types.Topic
	TransportType        = types.TransportType
	EnvelopeType         = types.EnvelopeType
	X25519Public         = types.X25519Public
	X25519Private        = types.X25519Private
	SymmetricKey         = types.SymmetricKey
	Ed25519Public        = types.Ed25519Public
	Ed25519Private       = types.Ed25519Private
	Blockchain           = types.Blockchain
	Account              = types.Account
	ProposalNamespace    = types.ProposalNamespace
	SessionNamespace     = types.SessionNamespace
	Redirect             = types.Redirect
	AppMetadata          = types.AppMetadata
	Participant          = types.Participant
	RelayProtocolOptions = types.RelayProtocolOptions
	Pairing              = types.Pairing
	Proposal             = types.Proposal
	Session              = types.Session
	SessionEvent         = types.SessionEvent
	Reason               = types.Reason
	AuthRequestParams    = types.AuthRequestParams
	AuthPayload          = types.AuthPayload
	AuthRequest          = types.AuthRequest
	AuthResponse         = types.AuthResponse
	CacaoSignatureType   = types.CacaoSignatureType
	CacaoHeader          = types.CacaoHeader
	CacaoPayload         = types.CacaoPayload
	CacaoSignature       = types.CacaoSignature
	Cacao                = types.Cacao
	Params               = types.Params
	Request              = types.Request
	Response             = types.Response
	RPCError             = types.RPCError
	SessionRequest       = types.SessionRequest
	SessionResponse      = types.SessionResponse
	RelayMessage         = types.RelayMessage
	PublishOptions       = types.PublishOptions
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyValueStore    = interfaces.KeyValueStore
	Keychain         = interfaces.Keychain
	SessionStore     = interfaces.SessionStore
	PairingStore     = interfaces.PairingStore
	ProposalStore    = interfaces.ProposalStore
	AuthRequestStore = interfaces.AuthRequestStore
	Relay            = interfaces.Relay
	ContractCaller   = interfaces.ContractCaller
)

const (
	TransportRelay    = types.TransportRelay
	TransportLinkMode = types.TransportLinkMode

	EnvelopeType0 = types.EnvelopeType0
	EnvelopeType1 = types.EnvelopeType1
	EnvelopeType2 = types.EnvelopeType2

	CacaoEIP191  = types.CacaoEIP191
	CacaoEIP1271 = types.CacaoEIP1271
)

var (
	ParseBlockchain   = types.ParseBlockchain
	ParseAccount      = types.ParseAccount
	ParseDIDPKH       = types.ParseDIDPKH
	ParseX25519Public = types.ParseX25519Public
	ParseSymmetricKey = types.ParseSymmetricKey
	NewParams         = types.NewParams
)
