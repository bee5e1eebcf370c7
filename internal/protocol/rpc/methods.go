package rpc

import "time"

// Method names.
const (
	MethodSessionPropose      = "wc_sessionPropose"
	MethodSessionSettle       = "wc_sessionSettle"
	MethodSessionUpdate       = "wc_sessionUpdate"
	MethodSessionExtend       = "wc_sessionExtend"
	MethodSessionRequest      = "wc_sessionRequest"
	MethodSessionEvent        = "wc_sessionEvent"
	MethodSessionDelete       = "wc_sessionDelete"
	MethodSessionPing         = "wc_sessionPing"
	MethodSessionAuthenticate = "wc_sessionAuthenticate"
	MethodPairingDelete       = "wc_pairingDelete"
	MethodPairingPing         = "wc_pairingPing"
)

// Policy is the relay publish policy of one direction of a method.
type Policy struct {
	Tag    int
	TTL    time.Duration
	Prompt bool
}

// Spec is the request policy, success-response policy and rejection
// policy of a method.
type Spec struct {
	Request  Policy
	Response Policy
	Reject   Policy
}

const day = 24 * time.Hour

var specs = map[string]Spec{
	MethodSessionPropose: {
		Request:  Policy{Tag: 1100, TTL: 5 * time.Minute, Prompt: true},
		Response: Policy{Tag: 1101, TTL: 5 * time.Minute},
		Reject:   Policy{Tag: 1120, TTL: 5 * time.Minute},
	},
	MethodSessionSettle: {
		Request:  Policy{Tag: 1102, TTL: 5 * time.Minute},
		Response: Policy{Tag: 1103, TTL: 5 * time.Minute},
	},
	MethodSessionUpdate: {
		Request:  Policy{Tag: 1104, TTL: day},
		Response: Policy{Tag: 1105, TTL: day},
	},
	MethodSessionExtend: {
		Request:  Policy{Tag: 1106, TTL: day},
		Response: Policy{Tag: 1107, TTL: day},
	},
	MethodSessionRequest: {
		Request:  Policy{Tag: 1108, TTL: 5 * time.Minute, Prompt: true},
		Response: Policy{Tag: 1109, TTL: 5 * time.Minute},
	},
	MethodSessionEvent: {
		Request:  Policy{Tag: 1110, TTL: 5 * time.Minute, Prompt: true},
		Response: Policy{Tag: 1111, TTL: 5 * time.Minute},
	},
	MethodSessionDelete: {
		Request:  Policy{Tag: 1112, TTL: day},
		Response: Policy{Tag: 1113, TTL: day},
	},
	MethodSessionPing: {
		Request:  Policy{Tag: 1114, TTL: 30 * time.Second},
		Response: Policy{Tag: 1115, TTL: 30 * time.Second},
	},
	MethodSessionAuthenticate: {
		Request:  Policy{Tag: 1116, TTL: time.Hour, Prompt: true},
		Response: Policy{Tag: 1117, TTL: time.Hour},
		Reject:   Policy{Tag: 1118, TTL: time.Hour},
	},
	MethodPairingDelete: {
		Request:  Policy{Tag: 1000, TTL: day},
		Response: Policy{Tag: 1001, TTL: day},
	},
	MethodPairingPing: {
		Request:  Policy{Tag: 1002, TTL: 30 * time.Second},
		Response: Policy{Tag: 1003, TTL: 30 * time.Second},
	},
}

var fallback = Spec{
	Request:  Policy{Tag: 0, TTL: 5 * time.Minute},
	Response: Policy{Tag: 0, TTL: 5 * time.Minute},
}

// SpecFor returns the policies for method. Unknown methods get a neutral
// five-minute policy with no tag.
func SpecFor(method string) Spec {
	if s, ok := specs[method]; ok {
		if s.Reject.Tag == 0 {
			s.Reject = s.Response
		}
		return s
	}
	return fallback
}
