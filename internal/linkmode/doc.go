// Package linkmode decides whether a message may bypass the relay and go
// straight to the peer's universal link, and converts envelopes to and from
// the link URLs handed to the platform.
//
// A universal link is only used once the peer has proven it handles link
// mode, either by advertising it in metadata exchanged over an
// authenticated channel or by sending us a link-mode envelope. Proofs are
// persisted under "linkmode/" in the key-value store.
package linkmode
