// Package rpc holds the JSON-RPC 2.0 framing of the sign protocol: request
// id generation, the method table with relay tags and TTLs, and the params
// and result shapes of every wc_* method.
package rpc
