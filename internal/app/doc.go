// Package app wires application dependencies for the client and the CLI.
//
// It builds the concrete stores, relay connection, key management, engines
// and decryption service from a loaded config.Config, exposing them via the
// Wire struct. Client runs the relay pump and the expiry sweeper together.
package app
