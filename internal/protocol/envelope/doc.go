// Package envelope serializes and seals the wire envelope.
//
// # Layout
//
//	type0: 0x00 | iv(12) | sealed
//	type1: 0x01 | sender public key(32) | iv(12) | sealed
//	type2: 0x02 | plaintext
//
// Sealed bytes are ChaCha20-Poly1305 ciphertext plus tag under the topic's
// symmetric key. A type1 envelope is opened with the key agreed between the
// attached sender key and the public key we recorded for the topic. Type2
// carries no encryption and is only accepted from link mode, where the
// channel itself is trusted.
//
// Relay messages are base64 (standard alphabet); link-mode URLs use
// base64url without padding.
//
// # Errors
//
// Decrypt never drops a bad envelope silently. An unbound topic yields an
// error matching both domain.ErrDecryptionFailed and domain.ErrKeyNotFound;
// a tag mismatch yields domain.ErrDecryptionFailed.
package envelope
