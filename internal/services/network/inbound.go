package network

import (
	"context"
	"fmt"

	"wcsign/internal/domain"
	"wcsign/internal/linkmode"
	"wcsign/internal/metrics"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/protocol/rpc"
)

// Run pumps relay messages until ctx ends or the relay closes its channel.
func (n *Interactor) Run(ctx context.Context) error {
	msgs := n.relay.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			env, err := envelope.ParseBase64(m.Message)
			if err != nil {
				n.log.Warn().Err(err).Str("topic", m.Topic.String()).Msg("malformed relay message")
				continue
			}
			// One bad envelope never stops the pump.
			if err := n.Receive(ctx, m.Topic, env, domain.TransportRelay); err != nil {
				n.log.Debug().Err(err).Str("topic", m.Topic.String()).Msg("relay envelope dropped")
			}
		}
	}
}

// Dispatch processes a link-mode URL delivered to this app.
func (n *Interactor) Dispatch(ctx context.Context, link string) error {
	topic, env, err := linkmode.ParseURL(link)
	if err != nil {
		return err
	}
	return n.Receive(ctx, topic, env, domain.TransportLinkMode)
}

// Receive processes one envelope that arrived on topic.
func (n *Interactor) Receive(ctx context.Context, topic domain.Topic, env envelope.Envelope, via domain.TransportType) error {
	n.inbound.Lock()
	defer n.inbound.Unlock()

	n.mu.RLock()
	guards := n.guards
	n.mu.RUnlock()
	for _, g := range guards {
		if err := g(ctx, topic); err != nil {
			n.log.Warn().Err(err).Str("topic", topic.String()).Msg("envelope rejected on dead topic")
			return err
		}
	}

	var (
		plaintext []byte
		err       error
	)
	if via == domain.TransportLinkMode {
		plaintext, err = n.codec.DecryptLink(ctx, topic, env)
	} else {
		plaintext, err = n.codec.Decrypt(ctx, topic, env)
	}
	if err != nil {
		metrics.RecordDecryptFailure()
		n.log.Warn().Err(err).Str("topic", topic.String()).Str("via", via.String()).Msg("decrypt failed")
		return err
	}
	metrics.RecordEnvelope("in", via.String(), byte(env.Type))

	msg, err := rpc.Decode(plaintext)
	if err != nil {
		n.log.Warn().Err(err).Str("topic", topic.String()).Msg("undecodable payload")
		return err
	}
	if env.Type == domain.EnvelopeType2 && !plaintextAllowed(msg) {
		err := fmt.Errorf("%w: plaintext envelope may only carry %s", domain.ErrDecryptionFailed, rpc.MethodSessionAuthenticate)
		metrics.RecordDecryptFailure()
		n.log.Warn().Err(err).Str("topic", topic.String()).Msg("unsealed envelope refused")
		return err
	}
	if msg.Request != nil {
		return n.onRequest(ctx, topic, *msg.Request, env, via)
	}
	return n.onResponse(ctx, topic, *msg.Response, via)
}

// plaintextAllowed reports whether an unsealed link-mode payload is the
// authenticate request that opens a link-mode exchange. The requester holds
// no key shared with the wallet yet, so nothing else may travel unsealed.
func plaintextAllowed(msg rpc.Message) bool {
	return msg.Request != nil && msg.Request.Method == rpc.MethodSessionAuthenticate
}

func (n *Interactor) onRequest(ctx context.Context, topic domain.Topic, req domain.Request, env envelope.Envelope, via domain.TransportType) error {
	ttl := rpc.SpecFor(req.Method).Request.TTL
	if dup := n.corr.Record(topic, req, via, ttl); dup {
		return nil
	}
	n.mu.RLock()
	h, ok := n.requests[req.Method]
	n.mu.RUnlock()
	if !ok {
		n.log.Warn().Str("method", req.Method).Msg("no handler for method")
		if err := n.RespondError(ctx, topic, req.ID, domain.ReasonMethodUnsupported, SendOptions{}); err != nil {
			return fmt.Errorf("reject %s: %w", req.Method, err)
		}
		return nil
	}
	in := Inbound{Topic: topic, Request: req, Transport: via}
	if env.Type == domain.EnvelopeType1 {
		in.SenderPublicKey = env.SenderPublicKey
	}
	if err := h(ctx, in); err != nil {
		n.log.Warn().Err(err).Str("method", req.Method).Int64("id", req.ID).Msg("request handler failed")
		return err
	}
	return nil
}

func (n *Interactor) onResponse(ctx context.Context, topic domain.Topic, resp domain.Response, via domain.TransportType) error {
	r, ok := n.corr.Resolve(topic, resp)
	if !ok {
		return nil
	}
	n.mu.RLock()
	h := n.responses[r.Request.Method]
	n.mu.RUnlock()
	if h == nil {
		return nil
	}
	if err := h(ctx, r, via); err != nil {
		n.log.Warn().Err(err).Str("method", r.Request.Method).Int64("id", resp.ID).Msg("response handler failed")
		return err
	}
	return nil
}
