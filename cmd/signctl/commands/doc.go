// Package commands defines the signctl CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init            Create the relay identity in the keychain
//   - did             Print the relay identity as a did:key
//   - uri inspect     Decode a wc: pairing URI
//   - cacao message   Print the sign-in message a CACAO signs
//   - cacao verify    Verify a CACAO signature
//   - decrypt         Open a push-delivered envelope
//
// # Implementation
//
// The root command loads the configuration and builds the dependency graph
// (storage, keychain, key management, verifier) before any subcommand runs.
// signctl never talks to a relay; an in-process hub stands in for one so the
// same wiring as a running client can be reused offline.
package commands
