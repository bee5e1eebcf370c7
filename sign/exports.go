package sign

import (
	"wcsign/internal/config"
	"wcsign/internal/domain"
	decryptsvc "wcsign/internal/services/decryption"
	signsvc "wcsign/internal/services/sign"
)

// Configuration and collaborators.
type (
	Config         = config.Config
	Relay          = domain.Relay
	KeyValueStore  = domain.KeyValueStore
	ContractCaller = domain.ContractCaller
	Decrypter      = decryptsvc.Service
)

// Protocol data.
type (
	Topic             = domain.Topic
	TransportType     = domain.TransportType
	Blockchain        = domain.Blockchain
	Account           = domain.Account
	ProposalNamespace = domain.ProposalNamespace
	SessionNamespace  = domain.SessionNamespace
	AppMetadata       = domain.AppMetadata
	Redirect          = domain.Redirect
	Participant       = domain.Participant
	Pairing           = domain.Pairing
	Proposal          = domain.Proposal
	Session           = domain.Session
	SessionEvent      = domain.SessionEvent
	SessionRequest    = domain.SessionRequest
	SessionResponse   = domain.SessionResponse
	Reason            = domain.Reason
	Params            = domain.Params
	AuthRequestParams = domain.AuthRequestParams
	AuthPayload       = domain.AuthPayload
	AuthRequest       = domain.AuthRequest
	AuthResponse      = domain.AuthResponse
	Cacao             = domain.Cacao
	CacaoSignature    = domain.CacaoSignature
)

// Engine operation parameters and events.
type (
	ConnectParams  = signsvc.ConnectParams
	Connection     = signsvc.Connection
	RequestParams  = signsvc.RequestParams
	Authentication = signsvc.Authentication
	Rejection      = signsvc.Rejection
	Deletion       = signsvc.Deletion
	Update         = signsvc.Update
	Extension      = signsvc.Extension
	Event          = signsvc.Event
	PingResponse   = signsvc.PingResponse
)

const (
	TransportRelay    = domain.TransportRelay
	TransportLinkMode = domain.TransportLinkMode

	CacaoEIP191  = domain.CacaoEIP191
	CacaoEIP1271 = domain.CacaoEIP1271
)

var (
	ParseBlockchain = domain.ParseBlockchain
	ParseAccount    = domain.ParseAccount
	NewParams       = domain.NewParams
	KindOf          = domain.KindOf
)

// Errors callers commonly match with errors.Is.
var (
	ErrNamespaceUnsatisfied    = domain.ErrNamespaceUnsatisfied
	ErrProposalAlreadyResolved = domain.ErrProposalAlreadyResolved
	ErrProposalExpired         = domain.ErrProposalExpired
	ErrNoSession               = domain.ErrNoSession
	ErrRequestTimedOut         = domain.ErrRequestTimedOut
	ErrSessionDeleted          = domain.ErrSessionDeleted
	ErrDuplicateResponse       = domain.ErrDuplicateResponse
	ErrVerificationFailed      = domain.ErrVerificationFailed
	ErrLinkSupportNotProven    = domain.ErrLinkSupportNotProven
	ErrUnauthorizedMethod      = domain.ErrUnauthorizedMethod
	ErrUnauthorizedEvent       = domain.ErrUnauthorizedEvent
	ErrUnauthorizedController  = domain.ErrUnauthorizedController
)

// Rejection reasons.
var (
	ReasonUserRejected        = domain.ReasonUserRejected
	ReasonUnsupportedChains   = domain.ReasonUnsupportedChains
	ReasonUnsupportedMethods  = domain.ReasonUnsupportedMethods
	ReasonUnsupportedEvents   = domain.ReasonUnsupportedEvents
	ReasonUnsupportedAccounts = domain.ReasonUnsupportedAccounts
	ReasonUserDisconnected    = domain.ReasonUserDisconnected
)
