package types

// Topic identifies an encrypted channel. It is the hex SHA-256 of the
// channel's symmetric key for sessions, or random for pairings.
type Topic string

// String returns the string form of the topic.
func (t Topic) String() string { return string(t) }

// TransportType names the path an envelope travelled on.
type TransportType string

const (
	TransportRelay    TransportType = "relay"
	TransportLinkMode TransportType = "link_mode"
)

// String returns the string form of the transport type.
func (t TransportType) String() string { return string(t) }

// EnvelopeType selects the envelope serialization.
type EnvelopeType byte

const (
	// EnvelopeType0 is sealed with the topic's symmetric key.
	EnvelopeType0 EnvelopeType = 0
	// EnvelopeType1 is sealed with a key agreed against the attached sender key.
	EnvelopeType1 EnvelopeType = 1
	// EnvelopeType2 carries plaintext and is only valid over link mode.
	EnvelopeType2 EnvelopeType = 2
)
