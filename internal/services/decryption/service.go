package decryption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wcsign/internal/domain"
	"wcsign/internal/metrics"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/protocol/rpc"
)

// ErrUnexpectedPayload is returned when the envelope decrypts to something
// other than the requested message.
var ErrUnexpectedPayload = errors.New("decrypted payload is not the expected request")

const proposalTTL = 5 * time.Minute

// Service decrypts single envelopes with keys from the shared keychain.
type Service struct {
	codec    *envelope.Codec
	sessions domain.SessionStore
	now      func() time.Time
}

// New returns a Service reading keys through codec and sessions from store.
func New(codec *envelope.Codec, sessions domain.SessionStore) *Service {
	return &Service{codec: codec, sessions: sessions, now: time.Now}
}

// DecryptProposal opens a base64 wc_sessionPropose envelope received on a
// pairing topic.
func (s *Service) DecryptProposal(ctx context.Context, topic domain.Topic, ciphertext string) (domain.Proposal, error) {
	req, err := s.open(ctx, topic, ciphertext, rpc.MethodSessionPropose)
	if err != nil {
		return domain.Proposal{}, err
	}
	var params rpc.SessionProposeParams
	if err := req.Params.Decode(&params); err != nil {
		return domain.Proposal{}, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	prop := domain.Proposal{
		ID:                 params.Proposer.PublicKey,
		RequestID:          req.ID,
		PairingTopic:       topic,
		Relays:             params.Relays,
		Proposer:           params.Proposer,
		RequiredNamespaces: params.RequiredNamespaces,
		OptionalNamespaces: params.OptionalNamespaces,
		SessionProperties:  params.SessionProperties,
		Expiry:             s.now().Add(proposalTTL),
	}
	if params.ExpiryTimestamp > 0 {
		prop.Expiry = time.Unix(params.ExpiryTimestamp, 0)
	}
	if prop.RequiredNamespaces == nil {
		prop.RequiredNamespaces = map[string]domain.ProposalNamespace{}
	}
	return prop, nil
}

// DecryptRequest opens a base64 wc_sessionRequest envelope received on a
// session topic.
func (s *Service) DecryptRequest(ctx context.Context, topic domain.Topic, ciphertext string) (domain.SessionRequest, error) {
	req, err := s.open(ctx, topic, ciphertext, rpc.MethodSessionRequest)
	if err != nil {
		return domain.SessionRequest{}, err
	}
	var params rpc.SessionRequestParams
	if err := req.Params.Decode(&params); err != nil {
		return domain.SessionRequest{}, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	out := domain.SessionRequest{
		ID:        req.ID,
		Topic:     topic,
		Method:    params.Request.Method,
		Params:    params.Request.Params,
		ChainID:   params.ChainID,
		Transport: domain.TransportRelay,
	}
	if params.Request.ExpiryTimestamp > 0 {
		out.Expiry = time.Unix(params.Request.ExpiryTimestamp, 0)
	}
	return out, nil
}

// Metadata returns the peer's metadata for the session on topic.
func (s *Service) Metadata(ctx context.Context, topic domain.Topic) (domain.AppMetadata, bool, error) {
	sess, ok, err := s.sessions.Get(ctx, topic)
	if err != nil || !ok {
		return domain.AppMetadata{}, false, err
	}
	return sess.Peer.Metadata, true, nil
}

func (s *Service) open(ctx context.Context, topic domain.Topic, ciphertext, method string) (domain.Request, error) {
	env, err := envelope.ParseBase64(ciphertext)
	if err != nil {
		return domain.Request{}, err
	}
	plain, err := s.codec.Decrypt(ctx, topic, env)
	if err != nil {
		metrics.RecordDecryptFailure()
		return domain.Request{}, err
	}
	msg, err := rpc.Decode(plain)
	if err != nil {
		return domain.Request{}, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	if msg.Request == nil || msg.Request.Method != method {
		return domain.Request{}, fmt.Errorf("%w: want %s", ErrUnexpectedPayload, method)
	}
	return *msg.Request, nil
}
