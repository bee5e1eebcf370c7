package domain

// Well-known rejection and disconnect reasons.
var (
	ReasonInvalidEvent          = Reason{Code: 1002, Message: "Invalid event request."}
	ReasonInvalidUpdate         = Reason{Code: 1003, Message: "Invalid update request."}
	ReasonInvalidExtend         = Reason{Code: 1004, Message: "Invalid extend request."}
	ReasonUserRejected          = Reason{Code: 5000, Message: "User rejected."}
	ReasonUserRejectedChains    = Reason{Code: 5001, Message: "User rejected chains."}
	ReasonUserRejectedMethods   = Reason{Code: 5002, Message: "User rejected methods."}
	ReasonUserRejectedEvents    = Reason{Code: 5003, Message: "User rejected events."}
	ReasonUnsupportedChains     = Reason{Code: 5100, Message: "Unsupported chains."}
	ReasonUnsupportedMethods    = Reason{Code: 5101, Message: "Unsupported methods."}
	ReasonUnsupportedEvents     = Reason{Code: 5102, Message: "Unsupported events."}
	ReasonUnsupportedAccounts   = Reason{Code: 5103, Message: "Unsupported accounts."}
	ReasonUnsupportedNamespace  = Reason{Code: 5104, Message: "Unsupported namespace key."}
	ReasonUserDisconnected      = Reason{Code: 6000, Message: "User disconnected."}
	ReasonSessionSettleFailed   = Reason{Code: 7000, Message: "Session settlement failed."}
	ReasonSessionRequestExpired = Reason{Code: 8000, Message: "Session request expired."}
	ReasonMethodUnsupported     = Reason{Code: 10001, Message: "Method unsupported."}
	ReasonSignatureInvalid      = Reason{Code: 11002, Message: "Signature verification failed."}
)
