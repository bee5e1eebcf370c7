package sign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wcsign/internal/domain"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/network"
)

func unix(sec int64) time.Time { return time.Unix(sec, 0) }

// Update replaces the namespaces of a session this side controls. The new
// map must still satisfy the session's required namespaces.
func (e *Engine) Update(ctx context.Context, topic domain.Topic, namespaces map[string]domain.SessionNamespace) error {
	sess, err := e.controlled(ctx, topic)
	if err != nil {
		return err
	}
	if err := e.checkGrant(namespaces, sess.RequiredNamespaces); err != nil {
		return err
	}
	params := rpc.SessionUpdateParams{Namespaces: namespaces}
	if _, err := e.net.RequestAndWait(ctx, topic, rpc.MethodSessionUpdate, params, e.opts.RequestTimeout); err != nil {
		return fmt.Errorf("update %s: %w", topic, err)
	}
	sess.Namespaces = namespaces
	sess.UpdatedAt = e.now()
	return e.sessions.Save(ctx, sess)
}

// Extend pushes the expiry of a session this side controls to now plus
// the session lifetime.
func (e *Engine) Extend(ctx context.Context, topic domain.Topic) (time.Time, error) {
	sess, err := e.controlled(ctx, topic)
	if err != nil {
		return time.Time{}, err
	}
	expiry := unix(e.now().Add(SessionTTL).Unix())
	params := rpc.SessionExtendParams{Expiry: expiry.Unix()}
	if _, err := e.net.RequestAndWait(ctx, topic, rpc.MethodSessionExtend, params, e.opts.RequestTimeout); err != nil {
		return time.Time{}, fmt.Errorf("extend %s: %w", topic, err)
	}
	sess.Expiry = expiry
	sess.UpdatedAt = e.now()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return time.Time{}, err
	}
	return expiry, nil
}

// Emit sends event on chain to the peer. Events the session namespaces do
// not grant for chain fail with ErrUnauthorizedEvent and are never sent.
func (e *Engine) Emit(ctx context.Context, topic domain.Topic, chain domain.Blockchain, event domain.SessionEvent) error {
	sess, err := e.controlled(ctx, topic)
	if err != nil {
		return err
	}
	if err := permitsEvent(sess, chain, event.Name); err != nil {
		return err
	}
	var params rpc.SessionEventParams
	params.Event.Name = event.Name
	params.Event.Data = event.Data
	params.ChainID = chain
	_, _, err = e.net.Request(ctx, topic, rpc.MethodSessionEvent, params, network.SendOptions{})
	return err
}

// Ping round-trips a liveness check on a session or pairing topic.
func (e *Engine) Ping(ctx context.Context, topic domain.Topic) error {
	start := e.now()
	_, isSession, err := e.sessions.Get(ctx, topic)
	if err != nil {
		return err
	}
	if isSession {
		if _, err := e.session(ctx, topic); err != nil {
			return err
		}
		_, err = e.net.RequestAndWait(ctx, topic, rpc.MethodSessionPing, struct{}{}, e.opts.PingTimeout)
	} else {
		err = e.pairings.Ping(ctx, topic, e.opts.PingTimeout)
	}
	if err != nil {
		return err
	}
	e.pings.Send(PingResponse{Topic: topic, RTT: e.now().Sub(start)})
	return nil
}

// Disconnect deletes a session, or a pairing when topic names one, and
// tells the peer. Requests still waiting on the session fail with
// ErrSessionDeleted.
func (e *Engine) Disconnect(ctx context.Context, topic domain.Topic) error {
	_, ok, err := e.sessions.Get(ctx, topic)
	if err != nil {
		return err
	}
	if !ok {
		return e.pairings.Delete(ctx, topic)
	}
	reason := domain.ReasonUserDisconnected
	if _, _, err := e.net.Request(ctx, topic, rpc.MethodSessionDelete, reason, network.SendOptions{}); err != nil {
		e.log.Warn().Err(err).Str("topic", topic.String()).Msg("session delete notification failed")
	}
	if err := e.teardown(ctx, topic); err != nil {
		return err
	}
	e.deletes.Send(Deletion{Topic: topic, Reason: reason})
	return nil
}

// permitsEvent reports whether sess grants event on chain.
func permitsEvent(sess domain.Session, chain domain.Blockchain, event string) error {
	ns, ok := sess.Namespace(chain)
	if !ok || !ns.HasChain(chain) {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorizedChain, chain)
	}
	if !ns.HasEvent(event) {
		return fmt.Errorf("%w: %s on %s", domain.ErrUnauthorizedEvent, event, chain)
	}
	return nil
}

// permitsMethod reports whether sess grants method on chain.
func permitsMethod(sess domain.Session, chain domain.Blockchain, method string) error {
	ns, ok := sess.Namespace(chain)
	if !ok || !ns.HasChain(chain) {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorizedChain, chain)
	}
	if !ns.HasMethod(method) {
		return fmt.Errorf("%w: %s on %s", domain.ErrUnauthorizedMethod, method, chain)
	}
	return nil
}

// peerSession loads the session an inbound request arrived on, refusing
// it when the session is gone.
func (e *Engine) peerSession(ctx context.Context, in network.Inbound) (domain.Session, bool, error) {
	sess, err := e.session(ctx, in.Topic)
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, domain.ErrNoSession) && !errors.Is(err, domain.ErrSessionExpired) {
		return domain.Session{}, false, err
	}
	return domain.Session{}, false, e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonUserDisconnected, network.SendOptions{})
}

func (e *Engine) onUpdate(ctx context.Context, in network.Inbound) error {
	sess, ok, err := e.peerSession(ctx, in)
	if !ok {
		return err
	}
	var params rpc.SessionUpdateParams
	if sess.SelfIsController() || in.Request.Params.Decode(&params) != nil {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonInvalidUpdate, network.SendOptions{})
	}
	if err := e.checkGrant(params.Namespaces, sess.RequiredNamespaces); err != nil {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, reasonOf(err), network.SendOptions{})
	}
	sess.Namespaces = params.Namespaces
	sess.UpdatedAt = e.now()
	if _, err := e.sessions.SetIfNewer(ctx, sess); err != nil {
		return err
	}
	if err := e.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{}); err != nil {
		return err
	}
	e.updates.Send(Update{Topic: in.Topic, Namespaces: params.Namespaces})
	return nil
}

func (e *Engine) onExtend(ctx context.Context, in network.Inbound) error {
	sess, ok, err := e.peerSession(ctx, in)
	if !ok {
		return err
	}
	var params rpc.SessionExtendParams
	if err := in.Request.Params.Decode(&params); err != nil {
		return err
	}
	expiry := unix(params.Expiry)
	now := e.now()
	// the new expiry may not shrink the session or exceed one lifetime
	if sess.SelfIsController() || expiry.Before(sess.Expiry) || expiry.After(now.Add(SessionTTL+time.Minute)) {
		e.log.Warn().Str("topic", in.Topic.String()).Time("expiry", expiry).Msg("extend refused")
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonInvalidExtend, network.SendOptions{})
	}
	sess.Expiry = expiry
	sess.UpdatedAt = now
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := e.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{}); err != nil {
		return err
	}
	e.extends.Send(Extension{Topic: in.Topic, Expiry: expiry})
	return nil
}

func (e *Engine) onEvent(ctx context.Context, in network.Inbound) error {
	sess, ok, err := e.peerSession(ctx, in)
	if !ok {
		return err
	}
	var params rpc.SessionEventParams
	if err := in.Request.Params.Decode(&params); err != nil {
		return err
	}
	if sess.SelfIsController() {
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonInvalidEvent, network.SendOptions{})
	}
	if err := permitsEvent(sess, params.ChainID, params.Event.Name); err != nil {
		e.log.Warn().Err(err).Str("topic", in.Topic.String()).Msg("event outside session namespaces")
		return e.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonUnsupportedEvents, network.SendOptions{})
	}
	if err := e.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{}); err != nil {
		return err
	}
	e.sessionEvents.Send(Event{
		Topic:   in.Topic,
		ChainID: params.ChainID,
		Event:   domain.SessionEvent{Name: params.Event.Name, Data: params.Event.Data},
	})
	return nil
}

func (e *Engine) onDelete(ctx context.Context, in network.Inbound) error {
	var reason domain.Reason
	if err := in.Request.Params.Decode(&reason); err != nil {
		reason = domain.ReasonUserDisconnected
	}
	if err := e.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{}); err != nil {
		e.log.Debug().Err(err).Msg("ack session delete")
	}
	if err := e.teardown(ctx, in.Topic); err != nil {
		return err
	}
	e.deletes.Send(Deletion{Topic: in.Topic, Reason: reason})
	return nil
}

func (e *Engine) onPing(ctx context.Context, in network.Inbound) error {
	if _, ok, err := e.peerSession(ctx, in); !ok {
		return err
	}
	return e.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{})
}
