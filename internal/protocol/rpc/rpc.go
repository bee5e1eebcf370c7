package rpc

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"wcsign/internal/domain"
)

const Version = "2.0"

var lastID atomic.Int64

// NewID returns a request id: milliseconds times 1000 plus a random
// suffix, forced strictly increasing within the process.
func NewID() int64 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	id := time.Now().UnixMilli()*1000 + int64(binary.BigEndian.Uint16(b[:])%1000)
	for {
		last := lastID.Load()
		if id <= last {
			id = last + 1
		}
		if lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

func NewRequest(method string, params any) (domain.Request, error) {
	p, err := domain.NewParams(params)
	if err != nil {
		return domain.Request{}, fmt.Errorf("encode %s params: %w", method, err)
	}
	return domain.Request{ID: NewID(), JSONRPC: Version, Method: method, Params: p}, nil
}

// NewResult builds a success response.
func NewResult(id int64, result any) (domain.Response, error) {
	p, err := domain.NewParams(result)
	if err != nil {
		return domain.Response{}, fmt.Errorf("encode result: %w", err)
	}
	return domain.Response{ID: id, JSONRPC: Version, Result: p}, nil
}

// NewError builds an error response.
func NewError(id int64, code int, message string) domain.Response {
	return domain.Response{ID: id, JSONRPC: Version, Error: &domain.RPCError{Code: code, Message: message}}
}

// NewReasonError builds an error response from a protocol reason.
func NewReasonError(id int64, r domain.Reason) domain.Response {
	return NewError(id, r.Code, r.Message)
}

// Message is either a request or a response after decoding.
type Message struct {
	Request  *domain.Request
	Response *domain.Response
}

// Decode classifies a decrypted payload. Anything with a method is a
// request; anything with a result or error is a response.
func Decode(b []byte) (Message, error) {
	var head struct {
		ID      *int64          `json:"id"`
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return Message{}, fmt.Errorf("decode json-rpc: %w", err)
	}
	if head.ID == nil {
		return Message{}, fmt.Errorf("decode json-rpc: missing id")
	}
	if head.Method != "" {
		var req domain.Request
		if err := json.Unmarshal(b, &req); err != nil {
			return Message{}, fmt.Errorf("decode request: %w", err)
		}
		return Message{Request: &req}, nil
	}
	if head.Result == nil && head.Error == nil {
		return Message{}, fmt.Errorf("decode json-rpc: neither method nor result")
	}
	var resp domain.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return Message{}, fmt.Errorf("decode response: %w", err)
	}
	return Message{Response: &resp}, nil
}
