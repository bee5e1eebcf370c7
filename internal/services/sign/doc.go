// Package sign is the session engine.
//
// It drives proposals to settled sessions, the one-shot authenticate flow
// with its fallback proposal, session updates, extensions, events, pings
// and deletion, and application requests over either the relay or link
// mode. Everything observable by the host application is published on
// typed feeds.
package sign
