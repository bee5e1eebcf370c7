package sign

import (
	"context"
	"errors"
	"fmt"

	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/protocol/namespace"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/network"
)

// ConnectParams describe a session proposal.
type ConnectParams struct {
	RequiredNamespaces map[string]domain.ProposalNamespace
	OptionalNamespaces map[string]domain.ProposalNamespace
	SessionProperties  map[string]string
	// PairingTopic reuses an existing pairing instead of creating one.
	PairingTopic domain.Topic
}

// Connection is the proposer's handle on a sent proposal.
type Connection struct {
	// URI is empty when an existing pairing was reused.
	URI          string
	PairingTopic domain.Topic
	Proposal     domain.Proposal
}

// Connect proposes a session. The settled session arrives on Settles, a
// refusal on Rejections.
func (e *Engine) Connect(ctx context.Context, p ConnectParams) (Connection, error) {
	if err := namespace.ValidateProposal(p.RequiredNamespaces); err != nil {
		return Connection{}, err
	}
	if err := namespace.ValidateProposal(p.OptionalNamespaces); err != nil {
		return Connection{}, err
	}

	conn := Connection{PairingTopic: p.PairingTopic}
	if conn.PairingTopic == "" {
		pr, uri, err := e.pairings.Create(ctx)
		if err != nil {
			return Connection{}, err
		}
		conn.PairingTopic, conn.URI = pr.Topic, uri
	} else if _, err := e.pairings.Get(ctx, conn.PairingTopic); err != nil {
		return Connection{}, err
	}

	out, err := e.propose(ctx, conn.PairingTopic, p.RequiredNamespaces, p.OptionalNamespaces, p.SessionProperties, nil)
	if err != nil {
		return Connection{}, err
	}
	conn.Proposal = out.proposal
	return conn, nil
}

// propose sends wc_sessionPropose on pairingTopic and remembers it. When ex
// is set the proposal is its fallback and is not sent once ex resolved.
func (e *Engine) propose(
	ctx context.Context,
	pairingTopic domain.Topic,
	required, optional map[string]domain.ProposalNamespace,
	props map[string]string,
	ex *exchange,
) (*outgoing, error) {
	selfPub, err := e.keys.GenerateKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	if required == nil {
		required = map[string]domain.ProposalNamespace{}
	}
	expiry := unix(e.now().Add(ProposalTTL).Unix())
	params := rpc.SessionProposeParams{
		Relays:             []domain.RelayProtocolOptions{{Protocol: relayProtocol}},
		Proposer:           e.participant(selfPub),
		RequiredNamespaces: required,
		OptionalNamespaces: optional,
		SessionProperties:  props,
		ExpiryTimestamp:    expiry.Unix(),
	}

	// Register before publishing so a fast answer always finds the record.
	out := &outgoing{
		proposal: domain.Proposal{
			ID:                 selfPub.Hex(),
			PairingTopic:       pairingTopic,
			Relays:             params.Relays,
			Proposer:           params.Proposer,
			RequiredNamespaces: required,
			OptionalNamespaces: optional,
			SessionProperties:  props,
			Expiry:             expiry,
		},
		selfPub:  selfPub,
		exchange: ex,
	}
	e.mu.Lock()
	if ex != nil && ex.resolved {
		e.mu.Unlock()
		return nil, domain.ErrProposalAlreadyResolved
	}
	e.sent[out.proposal.ID] = out
	if ex != nil {
		ex.fallback = out
	}
	e.mu.Unlock()

	req, _, err := e.net.Request(ctx, pairingTopic, rpc.MethodSessionPropose, params, network.SendOptions{})
	if err != nil {
		e.mu.Lock()
		delete(e.sent, out.proposal.ID)
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Lock()
	out.proposal.RequestID = req.ID
	e.mu.Unlock()
	return out, nil
}

// Approve answers a stored proposal with namespaces and settles the
// session. namespaces must satisfy every required namespace of the
// proposal; otherwise Approve fails before anything is sent.
//
// Steps:
//  1. Claim the proposal so a concurrent Approve or Reject loses.
//  2. Validate namespaces against the proposal.
//  3. Agree the session key, subscribe its topic and answer the proposal.
//  4. Persist the session and send settle.
//
// A failure after the key is agreed drops the key and the subscription.
func (e *Engine) Approve(
	ctx context.Context,
	proposalID string,
	namespaces map[string]domain.SessionNamespace,
	props map[string]string,
) (domain.Session, error) {
	prop, release, err := e.claimProposal(ctx, proposalID)
	if err != nil {
		return domain.Session{}, err
	}
	settled := false
	defer func() { release(settled) }()

	if err := namespace.ValidateSession(namespaces); err != nil {
		return domain.Session{}, err
	}
	if err := namespace.ValidateApproved(namespaces, prop.RequiredNamespaces); err != nil {
		return domain.Session{}, err
	}
	proposerPub, err := domain.ParseX25519Public(prop.Proposer.PublicKey)
	if err != nil {
		return domain.Session{}, fmt.Errorf("proposer key: %w", err)
	}

	selfPub, err := e.keys.GenerateKeyPair(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	topic, err := e.keys.DeriveSymmetricKey(ctx, selfPub, proposerPub)
	if err != nil {
		e.abandonSession(ctx, "", selfPub)
		return domain.Session{}, err
	}
	if err := e.net.Subscribe(ctx, topic); err != nil {
		e.abandonSession(ctx, topic, selfPub)
		return domain.Session{}, err
	}
	relay := domain.RelayProtocolOptions{Protocol: relayProtocol}
	if len(prop.Relays) > 0 {
		relay = prop.Relays[0]
	}
	answer := rpc.SessionProposeResponse{Relay: relay, ResponderPublicKey: selfPub.Hex()}
	if err := e.net.Respond(ctx, prop.PairingTopic, prop.RequestID, answer, network.SendOptions{}); err != nil {
		e.abandonSession(ctx, topic, selfPub)
		return domain.Session{}, err
	}
	// The proposer has its answer; the proposal cannot be answered again.
	settled = true
	if props == nil {
		props = prop.SessionProperties
	}

	now := e.now()
	sess := domain.Session{
		Topic:              topic,
		PairingTopic:       prop.PairingTopic,
		Relay:              relay,
		Self:               e.participant(selfPub),
		Peer:               prop.Proposer,
		Controller:         selfPub.Hex(),
		Namespaces:         namespaces,
		RequiredNamespaces: prop.RequiredNamespaces,
		OptionalNamespaces: prop.OptionalNamespaces,
		SessionProperties:  props,
		Expiry:             unix(now.Add(SessionTTL).Unix()),
		TransportType:      domain.TransportRelay,
		UpdatedAt:          now,
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		e.abandonSession(ctx, topic, selfPub)
		return domain.Session{}, fmt.Errorf("store session %s: %w", topic, err)
	}
	if err := e.props.Delete(ctx, prop.ID); err != nil {
		e.log.Warn().Err(err).Str("proposal", prop.ID).Msg("drop approved proposal")
	}
	if err := e.pairings.Activate(ctx, prop.PairingTopic); err != nil {
		e.log.Debug().Err(err).Msg("activate pairing")
	}
	if err := e.pairings.UpdateMetadata(ctx, prop.PairingTopic, prop.Proposer.Metadata); err != nil {
		e.log.Debug().Err(err).Msg("record proposer metadata")
	}

	settle := rpc.SessionSettleParams{
		Relay:             relay,
		Controller:        sess.Self,
		Namespaces:        namespaces,
		SessionProperties: props,
		Expiry:            sess.Expiry.Unix(),
	}
	if _, _, err := e.net.Request(ctx, topic, rpc.MethodSessionSettle, settle, network.SendOptions{}); err != nil {
		return sess, fmt.Errorf("settle: %w", err)
	}
	return sess, nil
}

// abandonSession drops the key material and subscription of a session
// that was never stored. topic is empty when no key was bound yet.
func (e *Engine) abandonSession(ctx context.Context, topic domain.Topic, selfPub domain.X25519Public) {
	if topic != "" {
		if err := e.net.Unsubscribe(ctx, topic); err != nil {
			e.log.Debug().Err(err).Str("topic", topic.String()).Msg("unsubscribe abandoned session")
		}
		if err := e.keys.DeleteKey(ctx, topic); err != nil {
			e.log.Warn().Err(err).Str("topic", topic.String()).Msg("drop abandoned session key")
		}
	}
	if err := e.keys.DeletePrivateKey(ctx, selfPub); err != nil {
		e.log.Warn().Err(err).Msg("drop abandoned session private key")
	}
}

// Reject refuses a stored proposal with reason.
func (e *Engine) Reject(ctx context.Context, proposalID string, reason domain.Reason) error {
	prop, release, err := e.claimProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	sent := false
	defer func() { release(sent) }()

	if err := e.net.RespondError(ctx, prop.PairingTopic, prop.RequestID, reason, network.SendOptions{}); err != nil {
		return err
	}
	sent = true
	if err := e.props.Delete(ctx, prop.ID); err != nil {
		e.log.Warn().Err(err).Str("proposal", prop.ID).Msg("drop rejected proposal")
	}
	e.rejections.Send(Rejection{Proposal: prop, Reason: reason})
	return nil
}

// claimProposal loads proposalID and marks it in flight. release(true)
// makes the claim permanent; release(false) lets a later call retry.
func (e *Engine) claimProposal(ctx context.Context, proposalID string) (domain.Proposal, func(bool), error) {
	e.mu.Lock()
	if e.claimed[proposalID] {
		e.mu.Unlock()
		return domain.Proposal{}, nil, fmt.Errorf("%w: %s", domain.ErrProposalAlreadyResolved, proposalID)
	}
	e.claimed[proposalID] = true
	e.mu.Unlock()

	unclaim := func() {
		e.mu.Lock()
		delete(e.claimed, proposalID)
		e.mu.Unlock()
	}
	prop, ok, err := e.props.Get(ctx, proposalID)
	switch {
	case err != nil:
		unclaim()
		return domain.Proposal{}, nil, err
	case !ok:
		unclaim()
		return domain.Proposal{}, nil, fmt.Errorf("%w: %s", domain.ErrProposalNotFound, proposalID)
	case prop.Expired(e.now()):
		unclaim()
		return domain.Proposal{}, nil, fmt.Errorf("%w: %s", domain.ErrProposalExpired, proposalID)
	}
	return prop, func(keep bool) {
		if !keep {
			unclaim()
		}
	}, nil
}

// onPropose stores an inbound proposal and announces it. A proposal that
// accompanies an authenticate request is held back when this wallet
// answers authenticate requests itself.
func (e *Engine) onPropose(ctx context.Context, in network.Inbound) error {
	var params rpc.SessionProposeParams
	if err := in.Request.Params.Decode(&params); err != nil {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonUnsupportedNamespace, network.SendOptions{})
	}
	for _, m := range []map[string]domain.ProposalNamespace{params.RequiredNamespaces, params.OptionalNamespaces} {
		if err := namespace.ValidateProposal(m); err != nil {
			return e.net.RespondError(ctx, in.Topic, in.Request.ID, reasonOf(err), network.SendOptions{})
		}
	}

	if pr, err := e.pairings.Get(ctx, in.Topic); err == nil &&
		pr.SupportsMethod(rpc.MethodSessionAuthenticate) && e.authRequests.HasSubscribers() {
		e.log.Debug().Int64("id", in.Request.ID).Msg("fallback proposal suppressed")
		return nil
	}

	prop := domain.Proposal{
		ID:                 params.Proposer.PublicKey,
		RequestID:          in.Request.ID,
		PairingTopic:       in.Topic,
		Relays:             params.Relays,
		Proposer:           params.Proposer,
		RequiredNamespaces: params.RequiredNamespaces,
		OptionalNamespaces: params.OptionalNamespaces,
		SessionProperties:  params.SessionProperties,
		Expiry:             e.now().Add(ProposalTTL),
	}
	if params.ExpiryTimestamp > 0 {
		prop.Expiry = unix(params.ExpiryTimestamp)
	}
	if prop.RequiredNamespaces == nil {
		prop.RequiredNamespaces = map[string]domain.ProposalNamespace{}
	}
	if err := e.props.Save(ctx, prop); err != nil {
		return err
	}
	if err := e.pairings.UpdateMetadata(ctx, in.Topic, params.Proposer.Metadata); err != nil {
		e.log.Debug().Err(err).Msg("record proposer metadata")
	}
	e.proposals.Send(prop)
	return nil
}

// onProposeResponse runs on the proposer when the wallet answers.
func (e *Engine) onProposeResponse(ctx context.Context, r correlator.Resolved, _ domain.TransportType) error {
	var params rpc.SessionProposeParams
	if err := r.Request.Params.Decode(&params); err != nil {
		return err
	}
	id := params.Proposer.PublicKey

	e.mu.Lock()
	out, ok := e.sent[id]
	delete(e.sent, id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrProposalNotFound, id)
	}
	prop, ex := out.proposal, out.exchange
	if ex != nil {
		if ex.resolved {
			e.mu.Unlock()
			e.log.Debug().Str("proposal", id).Msg("fallback answer after authenticate resolved")
			return nil
		}
		ex.resolved = true
	}
	e.mu.Unlock()
	if ex != nil {
		e.dropExchange(ctx, ex)
	}

	if r.Response.IsError() {
		e.rejections.Send(Rejection{
			Proposal: prop,
			Reason:   domain.Reason{Code: r.Response.Error.Code, Message: r.Response.Error.Message},
		})
		return nil
	}
	var answer rpc.SessionProposeResponse
	if err := r.Response.Result.Decode(&answer); err != nil {
		return fmt.Errorf("decode propose answer: %w", err)
	}
	peer, err := domain.ParseX25519Public(answer.ResponderPublicKey)
	if err != nil {
		return fmt.Errorf("responder key: %w", err)
	}
	topic, err := e.keys.DeriveSymmetricKey(ctx, out.selfPub, peer)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.settling[topic] = out
	e.mu.Unlock()
	if err := e.net.Subscribe(ctx, topic); err != nil {
		return err
	}
	if err := e.pairings.Activate(ctx, prop.PairingTopic); err != nil {
		e.log.Debug().Err(err).Msg("activate pairing")
	}
	return nil
}

// onSettle runs on the proposer when the wallet settles the session.
func (e *Engine) onSettle(ctx context.Context, in network.Inbound) error {
	e.mu.Lock()
	out, ok := e.settling[in.Topic]
	delete(e.settling, in.Topic)
	e.mu.Unlock()
	if !ok {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonSessionSettleFailed, network.SendOptions{})
	}

	var params rpc.SessionSettleParams
	if err := in.Request.Params.Decode(&params); err != nil {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonSessionSettleFailed, network.SendOptions{})
	}
	if err := e.checkGrant(params.Namespaces, out.proposal.RequiredNamespaces); err != nil {
		e.log.Warn().Err(err).Str("topic", in.Topic.String()).Msg("settle does not satisfy proposal")
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, reasonOf(err), network.SendOptions{})
	}

	now := e.now()
	sess := domain.Session{
		Topic:              in.Topic,
		PairingTopic:       out.proposal.PairingTopic,
		Relay:              params.Relay,
		Self:               out.proposal.Proposer,
		Peer:               params.Controller,
		Controller:         params.Controller.PublicKey,
		Namespaces:         params.Namespaces,
		RequiredNamespaces: out.proposal.RequiredNamespaces,
		OptionalNamespaces: out.proposal.OptionalNamespaces,
		SessionProperties:  params.SessionProperties,
		Expiry:             unix(params.Expiry),
		Acknowledged:       true,
		TransportType:      in.Transport,
		UpdatedAt:          now,
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := e.pairings.UpdateMetadata(ctx, sess.PairingTopic, params.Controller.Metadata); err != nil {
		e.log.Debug().Err(err).Msg("record wallet metadata")
	}
	if err := e.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{}); err != nil {
		return err
	}
	e.settles.Send(sess)
	return nil
}

// onSettleResponse runs on the wallet when the proposer acknowledges.
func (e *Engine) onSettleResponse(ctx context.Context, r correlator.Resolved, _ domain.TransportType) error {
	if r.Response.IsError() {
		e.log.Warn().Str("topic", r.Topic.String()).Str("reason", r.Response.Error.Message).Msg("settle refused")
		return e.teardown(ctx, r.Topic)
	}
	if err := e.sessions.Acknowledge(ctx, r.Topic); err != nil {
		return err
	}
	sess, ok, err := e.sessions.Get(ctx, r.Topic)
	if err != nil || !ok {
		return err
	}
	e.settles.Send(sess)
	return nil
}

// checkGrant validates namespaces received from the peer against the
// required namespaces they must satisfy.
func (e *Engine) checkGrant(granted map[string]domain.SessionNamespace, required map[string]domain.ProposalNamespace) error {
	if err := namespace.ValidateSession(granted); err != nil {
		return err
	}
	return namespace.ValidateApproved(granted, required)
}

func reasonOf(err error) domain.Reason {
	var nu *domain.NamespaceUnsatisfiedError
	if errors.As(err, &nu) {
		return nu.Reason
	}
	return domain.ReasonUnsupportedNamespace
}
