// Package relay implements the publish/subscribe collaborator the sign
// engines talk through.
//
// Three pieces share one wire protocol (JSON-RPC 2.0 over websocket with
// irn_publish, irn_subscribe, irn_unsubscribe and the server-pushed
// irn_subscription):
//
//   - Client dials a relay, authenticating with an EdDSA JWT whose issuer is
//     the client's did:key.
//   - Hub is an in-process broker. Tests run two engines against one Hub;
//     embedders can use it directly.
//   - Server fronts a Hub with the websocket protocol for cmd/relay.
//
// A relay only ever sees base64 ciphertext and topics. Messages published
// to a topic are retained for their TTL and delivered to clients that
// subscribe later. A client never receives its own publishes.
package relay
