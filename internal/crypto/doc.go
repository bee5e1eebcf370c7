// Package crypto exposes the primitives the engines are built on.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicX25519, DH)
//   - HKDF-SHA256 symmetric key derivation and topic computation
//     (DeriveSymmetricKey, TopicFor, ResponseTopic)
//   - ChaCha20-Poly1305 sealing with random IVs (Seal, Open)
//   - Ed25519 keys for the relay client identity and their did:key form
//     (GenerateEd25519, EncodeDIDKey, DecodeDIDKey)
//
// # Notes
//
// Functions return fixed-size array types defined in internal/domain.
// Shared secrets are zeroed with memzero once the derived key is read.
package crypto
