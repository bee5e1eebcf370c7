// Package identity manages the client's relay identity.
//
// The identity is an Ed25519 key pair kept in the keychain. Its public key,
// rendered as a did:key, is the issuer of the JWT the relay client presents
// when it connects. The same identity is reused across restarts so the relay
// sees one stable client.
package identity
