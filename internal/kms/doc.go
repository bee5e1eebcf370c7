// Package kms owns asymmetric key pairs and topic to symmetric-key bindings.
//
// Private keys are stored in the keychain under their public key. A topic is
// bound to exactly one symmetric key for its lifetime; rebinding a topic to
// different key material fails with domain.ErrKeyConflict, and the only way
// to free a topic is DeleteKey.
//
// Keychain layout
//
//	privkey/<public key hex>   X25519 private key
//	symkey/<topic>             32-byte symmetric key
//	selfpub/<topic>            our public key for a response topic (type1)
package kms
