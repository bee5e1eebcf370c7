package sign

import (
	"time"

	"wcsign/internal/domain"
)

// Rejection is a proposal refused by the wallet. Proposal is the same
// record on both sides.
type Rejection struct {
	Proposal domain.Proposal
	Reason   domain.Reason
}

// Deletion is a session or pairing torn down by the peer or locally.
type Deletion struct {
	Topic  domain.Topic
	Reason domain.Reason
}

// Update carries namespaces replaced by the controller.
type Update struct {
	Topic      domain.Topic
	Namespaces map[string]domain.SessionNamespace
}

// Extension carries a session's new expiry.
type Extension struct {
	Topic  domain.Topic
	Expiry time.Time
}

// Event is an event emitted by the controller on a session.
type Event struct {
	Topic   domain.Topic
	ChainID domain.Blockchain
	Event   domain.SessionEvent
}

// PingResponse reports a successful ping round trip.
type PingResponse struct {
	Topic domain.Topic
	RTT   time.Duration
}
