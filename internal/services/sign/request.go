package sign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/metrics"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/network"
)

// RequestParams describe one application request on a session.
type RequestParams struct {
	Topic   domain.Topic
	ChainID domain.Blockchain
	Method  string
	Params  any
	// Expiry bounds how long the peer may take to answer. Zero means the
	// engine's request timeout.
	Expiry time.Duration
}

// Request sends an application request and waits for the answer. A
// refusal by the peer is returned as *domain.PeerError together with the
// response.
func (e *Engine) Request(ctx context.Context, p RequestParams) (domain.SessionResponse, error) {
	sess, err := e.session(ctx, p.Topic)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	params, timeout, err := e.requestParams(sess, p)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	done := metrics.TrackRequest(rpc.MethodSessionRequest)
	_, pending, err := e.net.Request(ctx, p.Topic, rpc.MethodSessionRequest, params, network.SendOptions{Timeout: timeout})
	if err != nil {
		done("send_error")
		return domain.SessionResponse{}, err
	}
	resp, err := pending.Wait(ctx, timeout)
	if err != nil {
		done("error")
		return domain.SessionResponse{}, err
	}
	out := domain.SessionResponse{ID: resp.ID, Topic: p.Topic, ChainID: p.ChainID, Result: resp.Result, Error: resp.Error}
	if resp.IsError() {
		done("peer_error")
		return out, &domain.PeerError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	done("ok")
	return out, nil
}

// requestParams checks p against the session grant before anything is
// sent and builds the wire params.
func (e *Engine) requestParams(sess domain.Session, p RequestParams) (rpc.SessionRequestParams, time.Duration, error) {
	var params rpc.SessionRequestParams
	if err := permitsMethod(sess, p.ChainID, p.Method); err != nil {
		return params, 0, err
	}
	raw, err := domain.NewParams(p.Params)
	if err != nil {
		return params, 0, fmt.Errorf("encode request params: %w", err)
	}
	timeout := e.opts.RequestTimeout
	if p.Expiry > 0 {
		timeout = p.Expiry
		params.Request.ExpiryTimestamp = e.now().Add(p.Expiry).Unix()
	}
	params.Request.Method = p.Method
	params.Request.Params = raw
	params.ChainID = p.ChainID
	return params, timeout, nil
}

// Respond answers an inbound session request with result. An answer to a
// request whose expiry has passed is replaced by an expiry rejection and
// fails with ErrRequestExpired.
func (e *Engine) Respond(ctx context.Context, topic domain.Topic, id int64, result any) error {
	if _, err := e.session(ctx, topic); err != nil {
		return err
	}
	if err := e.checkOpen(ctx, topic, id, ""); err != nil {
		return err
	}
	return e.net.Respond(ctx, topic, id, result, network.SendOptions{})
}

// RespondError refuses an inbound session request with reason.
func (e *Engine) RespondError(ctx context.Context, topic domain.Topic, id int64, reason domain.Reason) error {
	if _, err := e.session(ctx, topic); err != nil {
		return err
	}
	return e.net.RespondError(ctx, topic, id, reason, network.SendOptions{})
}

// checkOpen refuses to answer expired requests. The expiry rejection goes
// out over universal when set.
func (e *Engine) checkOpen(ctx context.Context, topic domain.Topic, id int64, universal string) error {
	in, ok := e.net.Correlator().Lookup(topic, id)
	if !ok {
		return fmt.Errorf("%w: %d on %s", domain.ErrRequestNotFound, id, topic)
	}
	if in.Responded {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateResponse, id)
	}
	req, err := toSessionRequest(in)
	if err != nil || req.Expiry.IsZero() || e.now().Before(req.Expiry) {
		return nil
	}
	if universal != "" {
		_, err = e.net.RespondErrorLink(ctx, topic, id, universal, domain.ReasonSessionRequestExpired, network.SendOptions{})
	} else {
		err = e.net.RespondError(ctx, topic, id, domain.ReasonSessionRequestExpired, network.SendOptions{})
	}
	if err != nil {
		e.log.Debug().Err(err).Int64("id", id).Msg("send expiry rejection")
	}
	return fmt.Errorf("%w: %d", domain.ErrRequestExpired, id)
}

// PendingRequests lists inbound session requests still awaiting an answer.
func (e *Engine) PendingRequests(ctx context.Context) ([]domain.SessionRequest, error) {
	var out []domain.SessionRequest
	now := e.now()
	for _, in := range e.net.Correlator().Open() {
		if in.Request.Method != rpc.MethodSessionRequest {
			continue
		}
		req, err := toSessionRequest(in)
		if err != nil {
			continue
		}
		if !req.Expiry.IsZero() && !now.Before(req.Expiry) {
			continue
		}
		if _, err := e.session(ctx, in.Topic); err != nil {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func toSessionRequest(in correlator.Inbound) (domain.SessionRequest, error) {
	var params rpc.SessionRequestParams
	if err := in.Request.Params.Decode(&params); err != nil {
		return domain.SessionRequest{}, err
	}
	req := domain.SessionRequest{
		ID:        in.Request.ID,
		Topic:     in.Topic,
		Method:    params.Request.Method,
		Params:    params.Request.Params,
		ChainID:   params.ChainID,
		Transport: in.Transport,
	}
	if params.Request.ExpiryTimestamp > 0 {
		req.Expiry = unix(params.Request.ExpiryTimestamp)
	}
	return req, nil
}

// replayRequests hands every open request to a new SessionRequests
// subscriber and stamps them so an immediate duplicate emission is
// suppressed.
func (e *Engine) replayRequests(send func(domain.SessionRequest)) {
	pending, err := e.PendingRequests(context.Background())
	if err != nil {
		e.log.Warn().Err(err).Msg("replay pending requests")
		return
	}
	now := e.now()
	for _, req := range pending {
		e.mu.Lock()
		e.emitted[req.ID] = now
		e.mu.Unlock()
		send(req)
	}
}

// emitRequest publishes req unless it went out within the debounce window.
func (e *Engine) emitRequest(req domain.SessionRequest) {
	now := e.now()
	e.mu.Lock()
	last, seen := e.emitted[req.ID]
	if seen && now.Sub(last) < e.opts.Debounce {
		e.mu.Unlock()
		e.log.Debug().Int64("id", req.ID).Msg("session request emission debounced")
		return
	}
	e.emitted[req.ID] = now
	e.mu.Unlock()
	e.requests.Send(req)
}

func (e *Engine) onRequest(ctx context.Context, in network.Inbound) error {
	sess, ok, err := e.peerSession(ctx, in)
	if !ok {
		return err
	}
	rec, found := e.net.Correlator().Lookup(in.Topic, in.Request.ID)
	if !found {
		return fmt.Errorf("%w: %d", domain.ErrRequestNotFound, in.Request.ID)
	}
	req, err := toSessionRequest(rec)
	if err != nil {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonUnsupportedMethods, network.SendOptions{})
	}
	if err := permitsMethod(sess, req.ChainID, req.Method); err != nil {
		reason := domain.ReasonUnsupportedMethods
		if errors.Is(err, domain.ErrUnauthorizedChain) {
			reason = domain.ReasonUnsupportedChains
		}
		e.log.Warn().Err(err).Int64("id", req.ID).Msg("request outside session namespaces")
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, reason, network.SendOptions{})
	}
	if !req.Expiry.IsZero() && !e.now().Before(req.Expiry) {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonSessionRequestExpired, network.SendOptions{})
	}
	if in.Transport == domain.TransportLinkMode {
		if err := e.links.ProveFrom(ctx, sess.Peer.Metadata); err != nil {
			e.log.Debug().Err(err).Msg("record link proof")
		}
	}
	e.emitRequest(req)
	return nil
}

func (e *Engine) onRequestResponse(_ context.Context, r correlator.Resolved, _ domain.TransportType) error {
	var params rpc.SessionRequestParams
	if err := r.Request.Params.Decode(&params); err != nil {
		return err
	}
	e.responses.Send(domain.SessionResponse{
		ID:      r.Response.ID,
		Topic:   r.Topic,
		ChainID: params.ChainID,
		Result:  r.Response.Result,
		Error:   r.Response.Error,
	})
	return nil
}
