package relay

import (
	"encoding/json"
	"time"
)

const (
	methodPublish      = "irn_publish"
	methodSubscribe    = "irn_subscribe"
	methodUnsubscribe  = "irn_unsubscribe"
	methodSubscription = "irn_subscription"

	jsonrpcVersion = "2.0"
)

// frame is either a request (Method set) or a response.
type frame struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *frameError     `json:"error,omitempty"`
}

type frameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *frameError) Error() string { return e.Message }

type publishParams struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	TTL     int64  `json:"ttl"`
	Tag     int    `json:"tag"`
	Prompt  bool   `json:"prompt,omitempty"`
}

type topicParams struct {
	Topic string `json:"topic"`
	ID    string `json:"id,omitempty"`
}

type subscriptionData struct {
	Topic       string `json:"topic"`
	Message     string `json:"message"`
	PublishedAt int64  `json:"publishedAt"`
	Tag         int    `json:"tag"`
}

type subscriptionParams struct {
	ID   string           `json:"id"`
	Data subscriptionData `json:"data"`
}

func newRequestFrame(id int64, method string, params any) (frame, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return frame{}, err
	}
	return frame{ID: id, JSONRPC: jsonrpcVersion, Method: method, Params: b}, nil
}

func newResultFrame(id int64, result any) frame {
	b, _ := json.Marshal(result)
	return frame{ID: id, JSONRPC: jsonrpcVersion, Result: b}
}

func newErrorFrame(id int64, code int, msg string) frame {
	return frame{ID: id, JSONRPC: jsonrpcVersion, Error: &frameError{Code: code, Message: msg}}
}

func ttlSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s <= 0 {
		return 300
	}
	return s
}
