// Package pairing manages the bootstrap channel between two apps.
//
// The proposer creates a pairing and shares its URI out of band; the
// responder pairs with the URI and both sides then exchange session
// proposals and authenticate requests on the pairing topic. A pairing is
// inactive with a five minute lifetime until the first exchange succeeds,
// then active for thirty days. Once expired or deleted its topic accepts
// no further envelopes.
package pairing
