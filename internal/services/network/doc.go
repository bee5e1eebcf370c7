// Package network moves JSON-RPC messages between the sign engines and the
// peer over either transport.
//
// Outbound, it encodes a request or response, seals it for the topic and
// either publishes it on the relay or renders it as a link-mode URL for the
// caller to deliver. Inbound, it decrypts relay messages and dispatched
// link URLs, records requests for duplicate suppression, hands requests to
// the registered method handler and matches responses to their requests.
//
// Inbound processing is serialized by a single lock so handlers observe
// messages in arrival order. Handlers run under that lock and must never
// wait for a response from the peer.
package network
