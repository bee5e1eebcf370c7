package sign

import (
	"context"

	"wcsign/internal/domain"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/network"
)

// RequestLinkMode sends an application request as a link-mode URL for
// the peer's universal link. The answer arrives on Responses once the
// returned link's reply is dispatched back with DispatchEnvelope.
func (e *Engine) RequestLinkMode(ctx context.Context, p RequestParams) (link string, id int64, err error) {
	sess, err := e.session(ctx, p.Topic)
	if err != nil {
		return "", 0, err
	}
	if _, err := e.links.Route(ctx, sess.Peer.Metadata, true); err != nil {
		return "", 0, err
	}
	params, timeout, err := e.requestParams(sess, p)
	if err != nil {
		return "", 0, err
	}
	req, _, link, err := e.net.RequestLink(ctx, p.Topic, sess.Peer.Metadata.UniversalLink(), rpc.MethodSessionRequest, params, network.SendOptions{Timeout: timeout})
	if err != nil {
		return "", 0, err
	}
	return link, req.ID, nil
}

// RespondLinkMode answers an inbound session request as a link-mode URL
// for the peer's universal link.
func (e *Engine) RespondLinkMode(ctx context.Context, topic domain.Topic, id int64, result any) (string, error) {
	sess, err := e.session(ctx, topic)
	if err != nil {
		return "", err
	}
	if _, err := e.links.Route(ctx, sess.Peer.Metadata, true); err != nil {
		return "", err
	}
	universal := sess.Peer.Metadata.UniversalLink()
	if err := e.checkOpen(ctx, topic, id, universal); err != nil {
		return "", err
	}
	return e.net.RespondLink(ctx, topic, id, universal, result, network.SendOptions{})
}

// DispatchEnvelope processes a link-mode URL that was opened in this app.
func (e *Engine) DispatchEnvelope(ctx context.Context, link string) error {
	return e.net.Dispatch(ctx, link)
}
