// Package decryption opens push-delivered envelopes outside the running
// engine, typically from a notification extension that shares the client's
// storage but has no relay connection.
package decryption
