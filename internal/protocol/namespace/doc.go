// Package namespace validates proposal and session namespace maps and
// derives a session grant from a proposal and a responder's capabilities.
//
// Every function here is pure: no I/O, no clocks, deterministic output
// (all sets are returned sorted).
//
// # Keys
//
// A key is either a bare family ("eip155"), whose entry lists its chains, or
// a chain ("eip155:1"), whose entry lists none. Expansion turns both forms
// into (family, chains).
//
// # Build
//
// Required entries must be met in full: every chain supported with at least
// one account, and the responder's methods and events a superset of the
// requested ones. Any failure aborts with a NamespaceUnsatisfiedError.
// Optional entries contribute the chains the responder can serve, but only
// when the method and event superset rule holds for the entry; otherwise the
// entry is skipped. Entries of the same family are unioned.
package namespace
