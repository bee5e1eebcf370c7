// Command relay runs the in-memory development relay.
//
// Clients connect with a websocket to / and speak the irn JSON-RPC methods
// irn_publish, irn_subscribe and irn_unsubscribe; messages on a subscribed
// topic are pushed as irn_subscription. Published messages are retained for
// their TTL and replayed to later subscribers. The relay only sees sealed
// envelopes and never holds keys.
//
// HTTP endpoints
//
//	GET /         websocket upgrade; ?auth=<jwt> carries the client did:key
//	GET /health   liveness
//	GET /metrics  prometheus collectors
//
// All state is held in memory and lost on process exit.
package main
