package types

import "time"

// Pairing is the bootstrap channel created by a proposer and joined by a
// responder through a pairing URI.
type Pairing struct {
	Topic        Topic                `json:"topic"`
	Relay        RelayProtocolOptions `json:"relay"`
	PeerMetadata *AppMetadata         `json:"peerMetadata,omitempty"`
	Expiry       time.Time            `json:"expiry"`
	Active       bool                 `json:"active"`
	Methods      []string             `json:"methods,omitempty"`
}

// Expired reports whether the pairing's TTL has elapsed at now.
func (p Pairing) Expired(now time.Time) bool { return !now.Before(p.Expiry) }

// SupportsMethod reports whether the pairing URI advertised method m.
func (p Pairing) SupportsMethod(m string) bool { return contains(p.Methods, m) }
