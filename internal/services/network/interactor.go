package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/linkmode"
	"wcsign/internal/metrics"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/protocol/rpc"
)

// Inbound is a request delivered to a method handler.
type Inbound struct {
	Topic     domain.Topic
	Request   domain.Request
	Transport domain.TransportType
	// SenderPublicKey is set for type1 envelopes.
	SenderPublicKey domain.X25519Public
}

// RequestHandler processes one inbound request.
type RequestHandler func(ctx context.Context, in Inbound) error

// ResponseHandler processes the response to a request we sent.
type ResponseHandler func(ctx context.Context, r correlator.Resolved, via domain.TransportType) error

// TopicGuard vets the topic of an inbound envelope before decryption.
type TopicGuard func(ctx context.Context, topic domain.Topic) error

// SendOptions tune one outbound message.
type SendOptions struct {
	Envelope envelope.Options
	// Topic publishes a response somewhere other than the request's topic.
	Topic domain.Topic
	// AlsoOn lists extra topics the response to a request may arrive on.
	AlsoOn []domain.Topic
	// Timeout is how long the caller waits for the response. A request
	// stays correlated for the longer of Timeout and its method's TTL.
	Timeout time.Duration
}

func (o SendOptions) lifetime(method string) time.Duration {
	return max(rpc.SpecFor(method).Request.TTL, o.Timeout)
}

// Interactor is the networking hub of one client.
type Interactor struct {
	relay domain.Relay
	codec *envelope.Codec
	corr  *correlator.Correlator
	log   zerolog.Logger

	inbound sync.Mutex

	mu         sync.RWMutex
	requests   map[string]RequestHandler
	responses  map[string]ResponseHandler
	guards     []TopicGuard
	subscribed map[domain.Topic]bool
}

func New(relay domain.Relay, codec *envelope.Codec, corr *correlator.Correlator, log zerolog.Logger) *Interactor {
	return &Interactor{
		relay:      relay,
		codec:      codec,
		corr:       corr,
		log:        log.With().Str("component", "network").Logger(),
		requests:   make(map[string]RequestHandler),
		responses:  make(map[string]ResponseHandler),
		subscribed: make(map[domain.Topic]bool),
	}
}

// Correlator exposes the request store.
func (n *Interactor) Correlator() *correlator.Correlator { return n.corr }

// Handle registers the handler for inbound requests of method.
func (n *Interactor) Handle(method string, h RequestHandler) {
	n.mu.Lock()
	n.requests[method] = h
	n.mu.Unlock()
}

// HandleResponse registers the handler for responses to requests of method.
func (n *Interactor) HandleResponse(method string, h ResponseHandler) {
	n.mu.Lock()
	n.responses[method] = h
	n.mu.Unlock()
}

// Guard adds a topic check run before any inbound envelope is opened.
func (n *Interactor) Guard(g TopicGuard) {
	n.mu.Lock()
	n.guards = append(n.guards, g)
	n.mu.Unlock()
}

func (n *Interactor) Subscribe(ctx context.Context, topic domain.Topic) error {
	if err := n.relay.Subscribe(ctx, topic); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	n.mu.Lock()
	n.subscribed[topic] = true
	n.mu.Unlock()
	return nil
}

// Unsubscribe leaves topic and fails any request still waiting on it with
// ErrSessionDeleted.
func (n *Interactor) Unsubscribe(ctx context.Context, topic domain.Topic) error {
	n.corr.CancelTopic(topic)
	n.mu.Lock()
	delete(n.subscribed, topic)
	n.mu.Unlock()
	if err := n.relay.Unsubscribe(ctx, topic); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// Subscribed reports whether topic is currently subscribed.
func (n *Interactor) Subscribed(topic domain.Topic) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.subscribed[topic]
}

// Request publishes a request on topic and registers it for correlation.
// It does not wait for the response.
func (n *Interactor) Request(ctx context.Context, topic domain.Topic, method string, params any, opts SendOptions) (domain.Request, *correlator.Pending, error) {
	req, err := rpc.NewRequest(method, params)
	if err != nil {
		return domain.Request{}, nil, err
	}
	policy := rpc.SpecFor(method).Request
	pending := n.corr.Register(topic, req, opts.lifetime(method), opts.AlsoOn...)

	env, err := n.seal(ctx, topic, req, opts.Envelope)
	if err != nil {
		n.corr.Cancel(req.ID, err)
		return domain.Request{}, nil, err
	}
	if err := n.publish(ctx, topic, env, policy); err != nil {
		n.corr.Cancel(req.ID, err)
		return domain.Request{}, nil, err
	}
	n.log.Debug().Str("method", method).Int64("id", req.ID).Str("topic", topic.String()).Msg("request sent")
	return req, pending, nil
}

// RequestAndWait sends a request and blocks for its response. A peer error
// is returned as *domain.PeerError.
func (n *Interactor) RequestAndWait(ctx context.Context, topic domain.Topic, method string, params any, timeout time.Duration) (domain.Response, error) {
	done := metrics.TrackRequest(method)
	_, pending, err := n.Request(ctx, topic, method, params, SendOptions{Timeout: timeout})
	if err != nil {
		done("send_error")
		return domain.Response{}, err
	}
	resp, err := pending.Wait(ctx, timeout)
	switch {
	case err != nil:
		done(outcome(err))
		return domain.Response{}, err
	case resp.IsError():
		done("peer_error")
		return resp, &domain.PeerError{Code: resp.Error.Code, Message: resp.Error.Message}
	default:
		done("ok")
		return resp, nil
	}
}

// RequestLink encodes a request as a link-mode URL for universal. The
// response is correlated as usual when it comes back through Dispatch or
// the relay.
func (n *Interactor) RequestLink(ctx context.Context, topic domain.Topic, universal, method string, params any, opts SendOptions) (domain.Request, *correlator.Pending, string, error) {
	req, err := rpc.NewRequest(method, params)
	if err != nil {
		return domain.Request{}, nil, "", err
	}
	pending := n.corr.Register(topic, req, opts.lifetime(method), opts.AlsoOn...)
	env, err := n.seal(ctx, topic, req, opts.Envelope)
	if err != nil {
		n.corr.Cancel(req.ID, err)
		return domain.Request{}, nil, "", err
	}
	link, err := linkmode.EnvelopeURL(universal, topic, env)
	if err != nil {
		n.corr.Cancel(req.ID, err)
		return domain.Request{}, nil, "", err
	}
	metrics.RecordEnvelope("out", domain.TransportLinkMode.String(), byte(env.Type))
	return req, pending, link, nil
}

// Respond answers the inbound request (topic, id) with result.
func (n *Interactor) Respond(ctx context.Context, topic domain.Topic, id int64, result any, opts SendOptions) error {
	resp, err := rpc.NewResult(id, result)
	if err != nil {
		return err
	}
	_, err = n.respond(ctx, topic, resp, opts, "")
	return err
}

// RespondError answers the inbound request (topic, id) with reason.
func (n *Interactor) RespondError(ctx context.Context, topic domain.Topic, id int64, reason domain.Reason, opts SendOptions) error {
	_, err := n.respond(ctx, topic, rpc.NewReasonError(id, reason), opts, "")
	return err
}

// RespondLink answers (topic, id) as a link-mode URL for universal.
func (n *Interactor) RespondLink(ctx context.Context, topic domain.Topic, id int64, universal string, result any, opts SendOptions) (string, error) {
	resp, err := rpc.NewResult(id, result)
	if err != nil {
		return "", err
	}
	return n.respond(ctx, topic, resp, opts, universal)
}

// RespondErrorLink answers (topic, id) with reason as a link-mode URL.
func (n *Interactor) RespondErrorLink(ctx context.Context, topic domain.Topic, id int64, universal string, reason domain.Reason, opts SendOptions) (string, error) {
	return n.respond(ctx, topic, rpc.NewReasonError(id, reason), opts, universal)
}

// respond claims the request, seals resp and either publishes it or, when
// universal is set, returns it as a link URL. A failed send releases the
// claim so the caller may retry.
func (n *Interactor) respond(ctx context.Context, topic domain.Topic, resp domain.Response, opts SendOptions, universal string) (string, error) {
	in, err := n.corr.MarkResponded(topic, resp.ID)
	if err != nil {
		return "", err
	}
	target := topic
	if opts.Topic != "" {
		target = opts.Topic
	}
	spec := rpc.SpecFor(in.Request.Method)
	policy := spec.Response
	if resp.IsError() {
		policy = spec.Reject
	}

	env, err := n.seal(ctx, target, resp, opts.Envelope)
	if err != nil {
		n.corr.Unmark(topic, resp.ID)
		return "", err
	}
	if universal != "" {
		link, err := linkmode.EnvelopeURL(universal, target, env)
		if err != nil {
			n.corr.Unmark(topic, resp.ID)
			return "", err
		}
		metrics.RecordEnvelope("out", domain.TransportLinkMode.String(), byte(env.Type))
		return link, nil
	}
	if err := n.publish(ctx, target, env, policy); err != nil {
		n.corr.Unmark(topic, resp.ID)
		return "", err
	}
	return "", nil
}

func (n *Interactor) seal(ctx context.Context, topic domain.Topic, msg any, opts envelope.Options) (envelope.Envelope, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("encode message: %w", err)
	}
	return n.codec.Encrypt(ctx, topic, b, opts)
}

func (n *Interactor) publish(ctx context.Context, topic domain.Topic, env envelope.Envelope, policy rpc.Policy) error {
	err := n.relay.Publish(ctx, topic, env.Base64(), domain.PublishOptions{
		Tag:    policy.Tag,
		TTL:    policy.TTL,
		Prompt: policy.Prompt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransport) {
			return fmt.Errorf("publish on %s: %w", topic, err)
		}
		return fmt.Errorf("publish on %s: %w: %w", topic, domain.ErrTransport, err)
	}
	metrics.RecordEnvelope("out", domain.TransportRelay.String(), byte(env.Type))
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrRequestTimedOut):
		return "timeout"
	case errors.Is(err, domain.ErrSessionDeleted):
		return "cancelled"
	default:
		return "error"
	}
}
