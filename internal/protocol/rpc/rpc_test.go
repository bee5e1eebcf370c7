package rpc_test

import (
	"encoding/json"
	"testing"

	"wcsign/internal/protocol/rpc"
)

func TestDecode_ClassifiesRequestAndResponse(t *testing.T) {
	req, err := rpc.NewRequest(rpc.MethodSessionPing, struct{}{})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	b, _ := json.Marshal(req)
	msg, err := rpc.Decode(b)
	if err != nil {
		t.Fatalf("Decode request: %v", err)
	}
	if msg.Request == nil || msg.Request.Method != rpc.MethodSessionPing || msg.Request.ID != req.ID {
		t.Fatalf("unexpected request decode: %+v", msg)
	}

	resp, _ := rpc.NewResult(req.ID, true)
	b, _ = json.Marshal(resp)
	msg, err = rpc.Decode(b)
	if err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if msg.Response == nil || msg.Response.IsError() || string(msg.Response.Result) != "true" {
		t.Fatalf("unexpected response decode: %+v", msg)
	}

	b, _ = json.Marshal(rpc.NewError(req.ID, 5000, "User rejected."))
	msg, err = rpc.Decode(b)
	if err != nil {
		t.Fatalf("Decode error response: %v", err)
	}
	if msg.Response == nil || msg.Response.Error == nil || msg.Response.Error.Code != 5000 {
		t.Fatalf("unexpected error decode: %+v", msg)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, in := range []string{`{}`, `{"id":1,"jsonrpc":"2.0"}`, `not json`} {
		if _, err := rpc.Decode([]byte(in)); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}

func TestNewID_Increasing(t *testing.T) {
	a := rpc.NewID()
	b := rpc.NewID()
	if b/1000 < a/1000 {
		t.Fatalf("ids went backwards: %d then %d", a, b)
	}
}

func TestSpecFor_Tags(t *testing.T) {
	s := rpc.SpecFor(rpc.MethodSessionPropose)
	if s.Request.Tag != 1100 || s.Response.Tag != 1101 || s.Reject.Tag != 1120 {
		t.Fatalf("propose tags = %+v", s)
	}
	if got := rpc.SpecFor(rpc.MethodSessionPing).Reject.Tag; got != 1115 {
		t.Fatalf("ping reject tag = %d, want response tag 1115", got)
	}
}
