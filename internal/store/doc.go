// Package store provides persistence for the engines.
//
// Key-value backends implement domain.KeyValueStore:
//   - MemoryStore, process-local
//   - FileStore, a JSON map on disk written via temp file and rename
//   - RedisStore, backed by go-redis
//
// Keychain seals secrets with ChaCha20-Poly1305 under a key derived once from
// a passphrase with scrypt, and keeps the sealed blobs in any backend.
//
// The typed stores (sessions, pairings, proposals, authenticate requests)
// serialise records as JSON under a per-kind key prefix. All methods are safe
// for concurrent use.
package store
