package types

import (
	"encoding/json"
	"errors"
	"time"
)

// Params is a raw JSON payload decoded on demand by whoever knows its shape.
type Params []byte

// NewParams serializes v.
func NewParams(v any) (Params, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Params(b), nil
}

// Decode unmarshals the payload into v.
func (p Params) Decode(v any) error {
	if len(p) == 0 {
		return errors.New("empty params")
	}
	return json.Unmarshal(p, v)
}

// MarshalJSON emits the raw payload.
func (p Params) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON keeps a copy of the raw payload.
func (p *Params) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// Response is a JSON-RPC 2.0 response carrying either Result or Error.
type Response struct {
	ID      int64     `json:"id"`
	JSONRPC string    `json:"jsonrpc"`
	Result  Params    `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// IsError reports whether the response carries an error.
func (r Response) IsError() bool { return r.Error != nil }

// SessionRequest is an application request received on a session.
type SessionRequest struct {
	ID        int64         `json:"id"`
	Topic     Topic         `json:"topic"`
	Method    string        `json:"method"`
	Params    Params        `json:"params"`
	ChainID   Blockchain    `json:"chainId"`
	Expiry    time.Time     `json:"expiry,omitempty"`
	Transport TransportType `json:"transport"`
}

// SessionResponse is the answer to a SessionRequest as seen by the requester.
type SessionResponse struct {
	ID      int64      `json:"id"`
	Topic   Topic      `json:"topic"`
	ChainID Blockchain `json:"chainId"`
	Result  Params     `json:"result,omitempty"`
	Error   *RPCError  `json:"error,omitempty"`
}
