package sign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wcsign/internal/correlator"
	"wcsign/internal/crypto"
	"wcsign/internal/domain"
	"wcsign/internal/protocol/cacao"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/auth"
	"wcsign/internal/services/network"
)

// Authentication is the requester's handle on a sent authenticate request.
type Authentication struct {
	URI          string
	PairingTopic domain.Topic
	RequestID    int64
	Payload      domain.AuthPayload
	// FallbackProposal is the proposal sent alongside for wallets that do
	// not answer authenticate requests. Empty in link mode.
	FallbackProposal string
	// Link is the envelope URL to hand to the wallet in link mode.
	Link string
}

// Authenticate starts a one-shot sign-in on a new pairing. A fallback
// proposal travels with it; whichever the wallet answers settles the
// exchange, reported on AuthResponses or on Settles respectively.
func (e *Engine) Authenticate(ctx context.Context, params domain.AuthRequestParams) (Authentication, error) {
	payload, err := auth.NewPayload(params, e.now())
	if err != nil {
		return Authentication{}, err
	}
	pr, uri, err := e.pairings.Create(ctx, rpc.MethodSessionAuthenticate)
	if err != nil {
		return Authentication{}, err
	}
	ex, req, err := e.startAuthenticate(ctx, pr.Topic, payload, params.TTL, "")
	if err != nil {
		return Authentication{}, err
	}

	optional := map[string]domain.ProposalNamespace{}
	for _, c := range payload.Chains {
		ns := optional[c.Namespace]
		ns.Chains = append(ns.Chains, c)
		ns.Methods = cacao.RecapMethods(payload.Resources, c.Namespace)
		if ns.Methods == nil {
			ns.Methods = []string{}
		}
		ns.Events = append([]string(nil), auth.DefaultEvents...)
		optional[c.Namespace] = ns
	}
	a := Authentication{URI: uri, PairingTopic: pr.Topic, RequestID: req.ID, Payload: payload}
	out, err := e.propose(ctx, pr.Topic, nil, optional, nil, ex)
	switch {
	case errors.Is(err, domain.ErrProposalAlreadyResolved):
		// the wallet answered authenticate before the fallback went out
		return a, nil
	case err != nil:
		e.dropExchange(ctx, ex)
		return Authentication{}, err
	}
	a.FallbackProposal = out.proposal.ID
	return a, nil
}

// AuthenticateLinkMode sends the authenticate request to wallet directly.
// The wallet must have proven link-mode support; the returned Link is
// handed to the platform instead of being published.
func (e *Engine) AuthenticateLinkMode(ctx context.Context, params domain.AuthRequestParams, wallet domain.AppMetadata) (Authentication, error) {
	if _, err := e.links.Route(ctx, wallet, true); err != nil {
		return Authentication{}, err
	}
	payload, err := auth.NewPayload(params, e.now())
	if err != nil {
		return Authentication{}, err
	}
	topic, err := crypto.RandomTopic()
	if err != nil {
		return Authentication{}, err
	}
	ex, req, err := e.startAuthenticate(ctx, topic, payload, params.TTL, wallet.UniversalLink())
	if err != nil {
		return Authentication{}, err
	}
	return Authentication{
		PairingTopic: topic,
		RequestID:    req.ID,
		Payload:      payload,
		Link:         ex.link,
	}, nil
}

// startAuthenticate prepares the response topic and sends the request on
// topic, over link mode when universal is set.
func (e *Engine) startAuthenticate(
	ctx context.Context,
	topic domain.Topic,
	payload domain.AuthPayload,
	ttl time.Duration,
	universal string,
) (*exchange, domain.Request, error) {
	if ttl <= 0 {
		ttl = auth.DefaultAuthTTL
	}
	selfPub, err := e.keys.GenerateKeyPair(ctx)
	if err != nil {
		return nil, domain.Request{}, err
	}
	responseTopic := crypto.ResponseTopic(selfPub)
	if err := e.keys.SetSelfPublicKey(ctx, responseTopic, selfPub); err != nil {
		return nil, domain.Request{}, err
	}
	if err := e.net.Subscribe(ctx, responseTopic); err != nil {
		return nil, domain.Request{}, err
	}

	params := rpc.SessionAuthenticateParams{
		Requester:       e.participant(selfPub),
		AuthPayload:     payload,
		ExpiryTimestamp: e.now().Add(ttl).Unix(),
	}
	ex := &exchange{
		payload:       payload,
		pairingTopic:  topic,
		responseTopic: responseTopic,
		requesterPub:  selfPub,
		expiry:        unix(params.ExpiryTimestamp),
	}
	e.mu.Lock()
	e.exchanges[selfPub.Hex()] = ex
	e.mu.Unlock()

	opts := network.SendOptions{AlsoOn: []domain.Topic{responseTopic}}
	var (
		req  domain.Request
		link string
	)
	if universal != "" {
		opts.Envelope.Type = domain.EnvelopeType2
		req, _, link, err = e.net.RequestLink(ctx, topic, universal, rpc.MethodSessionAuthenticate, params, opts)
	} else {
		req, _, err = e.net.Request(ctx, topic, rpc.MethodSessionAuthenticate, params, opts)
	}
	if err != nil {
		e.dropExchange(ctx, ex)
		return nil, domain.Request{}, err
	}
	e.mu.Lock()
	ex.authID = req.ID
	ex.link = link
	e.mu.Unlock()
	return ex, req, nil
}

// dropExchange forgets the losing side of an exchange: the fallback
// proposal or the authenticate request and its response topic.
func (e *Engine) dropExchange(ctx context.Context, ex *exchange) {
	e.mu.Lock()
	delete(e.exchanges, ex.requesterPub.Hex())
	authID := ex.authID
	var fallbackID int64
	if ex.fallback != nil {
		delete(e.sent, ex.fallback.proposal.ID)
		fallbackID = ex.fallback.proposal.RequestID
	}
	e.mu.Unlock()

	corr := e.net.Correlator()
	if authID != 0 {
		corr.Cancel(authID, domain.ErrProposalAlreadyResolved)
	}
	if fallbackID != 0 {
		corr.Cancel(fallbackID, domain.ErrProposalAlreadyResolved)
	}
	if err := e.net.Unsubscribe(ctx, ex.responseTopic); err != nil {
		e.log.Debug().Err(err).Msg("leave response topic")
	}
	if err := e.keys.DeleteKey(ctx, ex.responseTopic); err != nil {
		e.log.Debug().Err(err).Msg("drop response topic key")
	}
}

// onAuthenticate stores an authenticate request on the wallet. A wallet
// with nobody listening on AuthRequests leaves it unanswered so that the
// fallback proposal is used instead.
func (e *Engine) onAuthenticate(ctx context.Context, in network.Inbound) error {
	var params rpc.SessionAuthenticateParams
	if err := in.Request.Params.Decode(&params); err != nil {
		return err
	}
	if in.Transport == domain.TransportLinkMode {
		if err := e.links.ProveFrom(ctx, params.Requester.Metadata); err != nil {
			e.log.Debug().Err(err).Msg("record link proof")
		}
	}
	if !e.authRequests.HasSubscribers() {
		e.log.Debug().Int64("id", in.Request.ID).Msg("authenticate unsupported, awaiting fallback proposal")
		return nil
	}
	req := domain.AuthRequest{
		ID:        in.Request.ID,
		Topic:     in.Topic,
		Payload:   params.AuthPayload,
		Requester: params.Requester,
		Expiry:    unix(params.ExpiryTimestamp),
		Transport: in.Transport,
	}
	if params.ExpiryTimestamp == 0 {
		req.Expiry = e.now().Add(auth.DefaultAuthTTL)
	}
	if err := e.authReqs.Save(ctx, req); err != nil {
		return err
	}
	if err := e.pairings.UpdateMetadata(ctx, in.Topic, params.Requester.Metadata); err != nil {
		e.log.Debug().Err(err).Msg("record requester metadata")
	}
	e.authRequests.Send(req)
	return nil
}

// ApproveSessionAuthenticate answers an authenticate request with cacaos
// and settles a session over the verified accounts. When no CACAO
// verifies, nothing is sent and the first verification error is returned.
func (e *Engine) ApproveSessionAuthenticate(ctx context.Context, id int64, cacaos []domain.Cacao) (domain.Session, error) {
	sess, _, err := e.approveAuthenticate(ctx, id, cacaos, false)
	return sess, err
}

// ApproveSessionAuthenticateLinkMode is ApproveSessionAuthenticate with
// the answer returned as a link for the requester's universal link.
func (e *Engine) ApproveSessionAuthenticateLinkMode(ctx context.Context, id int64, cacaos []domain.Cacao) (domain.Session, string, error) {
	return e.approveAuthenticate(ctx, id, cacaos, true)
}

func (e *Engine) approveAuthenticate(ctx context.Context, id int64, cacaos []domain.Cacao, link bool) (domain.Session, string, error) {
	req, release, err := e.claimAuth(ctx, id)
	if err != nil {
		return domain.Session{}, "", err
	}
	answered := false
	defer func() { release(answered) }()

	universal := ""
	if link {
		if _, err := e.links.Route(ctx, req.Requester.Metadata, true); err != nil {
			return domain.Session{}, "", err
		}
		universal = req.Requester.Metadata.UniversalLink()
	}

	accounts, failed := e.verifier.VerifyAll(ctx, cacaos)
	if len(accounts) == 0 {
		if len(failed) > 0 {
			return domain.Session{}, "", failed[0]
		}
		return domain.Session{}, "", fmt.Errorf("%w: no cacaos", domain.ErrVerificationFailed)
	}
	requesterPub, err := domain.ParseX25519Public(req.Requester.PublicKey)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("requester key: %w", err)
	}
	selfPub, err := e.keys.GenerateKeyPair(ctx)
	if err != nil {
		return domain.Session{}, "", err
	}
	topic, err := e.keys.DeriveSymmetricKey(ctx, selfPub, requesterPub)
	if err != nil {
		return domain.Session{}, "", err
	}

	result := rpc.SessionAuthenticateResponse{Cacaos: cacaos, Responder: e.participant(selfPub)}
	opts := e.authAnswerOptions(selfPub, requesterPub)
	var out string
	if link {
		out, err = e.net.RespondLink(ctx, req.Topic, id, universal, result, opts)
	} else {
		err = e.net.Respond(ctx, req.Topic, id, result, opts)
	}
	if err != nil {
		return domain.Session{}, "", err
	}
	answered = true

	now := e.now()
	sess := domain.Session{
		Topic:              topic,
		PairingTopic:       req.Topic,
		Relay:              domain.RelayProtocolOptions{Protocol: relayProtocol},
		Self:               result.Responder,
		Peer:               req.Requester,
		Controller:         selfPub.Hex(),
		Namespaces:         auth.SessionNamespaces(req.Payload, accounts, failed...),
		RequiredNamespaces: map[string]domain.ProposalNamespace{},
		Expiry:             unix(now.Add(SessionTTL).Unix()),
		Acknowledged:       true,
		TransportType:      req.Transport,
		UpdatedAt:          now,
	}
	if err := e.net.Subscribe(ctx, topic); err != nil {
		return domain.Session{}, "", err
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return domain.Session{}, "", err
	}
	if err := e.authReqs.Delete(ctx, id); err != nil {
		e.log.Warn().Err(err).Int64("id", id).Msg("drop answered auth request")
	}
	if err := e.pairings.Activate(ctx, req.Topic); err != nil {
		e.log.Debug().Err(err).Msg("activate pairing")
	}
	return sess, out, nil
}

// RejectSessionAuthenticate refuses an authenticate request with reason.
func (e *Engine) RejectSessionAuthenticate(ctx context.Context, id int64, reason domain.Reason) error {
	req, release, err := e.claimAuth(ctx, id)
	if err != nil {
		return err
	}
	sent := false
	defer func() { release(sent) }()

	requesterPub, err := domain.ParseX25519Public(req.Requester.PublicKey)
	if err != nil {
		return fmt.Errorf("requester key: %w", err)
	}
	selfPub, err := e.keys.GenerateKeyPair(ctx)
	if err != nil {
		return err
	}
	if err := e.net.RespondError(ctx, req.Topic, id, reason, e.authAnswerOptions(selfPub, requesterPub)); err != nil {
		return err
	}
	sent = true
	if err := e.authReqs.Delete(ctx, id); err != nil {
		e.log.Warn().Err(err).Int64("id", id).Msg("drop rejected auth request")
	}
	return nil
}

// authAnswerOptions seal an authenticate answer for the requester's
// response topic with a key only the requester can agree.
func (e *Engine) authAnswerOptions(selfPub, requesterPub domain.X25519Public) network.SendOptions {
	return network.SendOptions{
		Topic: crypto.ResponseTopic(requesterPub),
		Envelope: envelope.Options{
			Type:              domain.EnvelopeType1,
			SenderPublicKey:   selfPub,
			ReceiverPublicKey: requesterPub,
		},
	}
}

func (e *Engine) claimAuth(ctx context.Context, id int64) (domain.AuthRequest, func(bool), error) {
	e.mu.Lock()
	if e.claimedAuth[id] {
		e.mu.Unlock()
		return domain.AuthRequest{}, nil, fmt.Errorf("%w: %d", domain.ErrProposalAlreadyResolved, id)
	}
	e.claimedAuth[id] = true
	e.mu.Unlock()

	unclaim := func() {
		e.mu.Lock()
		delete(e.claimedAuth, id)
		e.mu.Unlock()
	}
	req, ok, err := e.authReqs.Get(ctx, id)
	switch {
	case err != nil:
		unclaim()
		return domain.AuthRequest{}, nil, err
	case !ok:
		unclaim()
		return domain.AuthRequest{}, nil, fmt.Errorf("%w: %d", domain.ErrAuthRequestNotFound, id)
	case req.Expired(e.now()):
		unclaim()
		return domain.AuthRequest{}, nil, fmt.Errorf("%w: %d", domain.ErrRequestExpired, id)
	}
	return req, func(keep bool) {
		if !keep {
			unclaim()
		}
	}, nil
}

// onAuthenticateResponse runs on the requester. The first answer to the
// exchange wins; a success verifies the CACAOs again before settling.
func (e *Engine) onAuthenticateResponse(ctx context.Context, r correlator.Resolved, via domain.TransportType) error {
	var sent rpc.SessionAuthenticateParams
	if err := r.Request.Params.Decode(&sent); err != nil {
		return err
	}
	e.mu.Lock()
	ex, ok := e.exchanges[sent.Requester.PublicKey]
	if ok && ex.resolved {
		ok = false
	}
	if ok {
		ex.resolved = true
	}
	e.mu.Unlock()
	if !ok {
		e.log.Debug().Int64("id", r.Request.ID).Msg("authenticate answer for a settled exchange")
		return nil
	}
	defer e.dropExchange(ctx, ex)

	resp := domain.AuthResponse{ID: r.Request.ID, Topic: ex.pairingTopic, Via: via}
	if r.Response.IsError() {
		resp.Error = &domain.Reason{Code: r.Response.Error.Code, Message: r.Response.Error.Message}
		e.authResponses.Send(resp)
		return nil
	}

	var answer rpc.SessionAuthenticateResponse
	if err := r.Response.Result.Decode(&answer); err != nil {
		return fmt.Errorf("decode authenticate answer: %w", err)
	}
	accounts, failed := e.verifier.VerifyAll(ctx, answer.Cacaos)
	resp.Cacaos = answer.Cacaos
	if len(accounts) == 0 {
		reason := domain.ReasonSignatureInvalid
		resp.Error = &reason
		e.authResponses.Send(resp)
		return nil
	}
	peer, err := domain.ParseX25519Public(answer.Responder.PublicKey)
	if err != nil {
		return fmt.Errorf("responder key: %w", err)
	}
	topic, err := e.keys.DeriveSymmetricKey(ctx, ex.requesterPub, peer)
	if err != nil {
		return err
	}
	if err := e.net.Subscribe(ctx, topic); err != nil {
		return err
	}

	now := e.now()
	sess := domain.Session{
		Topic:              topic,
		PairingTopic:       ex.pairingTopic,
		Relay:              domain.RelayProtocolOptions{Protocol: relayProtocol},
		Self:               e.participant(ex.requesterPub),
		Peer:               answer.Responder,
		Controller:         answer.Responder.PublicKey,
		Namespaces:         auth.SessionNamespaces(ex.payload, accounts, failed...),
		RequiredNamespaces: map[string]domain.ProposalNamespace{},
		Expiry:             unix(now.Add(SessionTTL).Unix()),
		Acknowledged:       true,
		TransportType:      via,
		UpdatedAt:          now,
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := e.pairings.Activate(ctx, ex.pairingTopic); err != nil {
		e.log.Debug().Err(err).Msg("activate pairing")
	}
	if err := e.pairings.UpdateMetadata(ctx, ex.pairingTopic, answer.Responder.Metadata); err != nil {
		e.log.Debug().Err(err).Msg("record responder metadata")
	}
	if via == domain.TransportLinkMode {
		if err := e.links.ProveFrom(ctx, answer.Responder.Metadata); err != nil {
			e.log.Debug().Err(err).Msg("record link proof")
		}
	}
	resp.Session = &sess
	resp.Accounts = accounts
	e.authResponses.Send(resp)
	return nil
}
