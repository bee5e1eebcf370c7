// Package correlator pairs JSON-RPC responses with the requests that caused
// them and remembers inbound requests so duplicates and double answers can
// be refused.
//
// Outbound requests are keyed by id. A request may accept its response on
// more than one topic: an authenticate request is sent on a pairing topic
// and answered on a response topic derived from the requester's key.
// Inbound requests are keyed by (topic, id).
package correlator
