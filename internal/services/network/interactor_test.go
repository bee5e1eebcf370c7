package network_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/kms"
	"wcsign/internal/linkmode"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/relay"
	"wcsign/internal/services/network"
	"wcsign/internal/store"
)

type peer struct {
	kms *kms.Service
	net *network.Interactor
}

func newPeer(t *testing.T, ctx context.Context, r domain.Relay) peer {
	t.Helper()
	kc, err := store.OpenKeychain(ctx, store.NewMemoryStore(), "test", store.KeychainOptions{ScryptN: 1 << 10})
	if err != nil {
		t.Fatalf("OpenKeychain: %v", err)
	}
	k := kms.New(kc)
	n := network.New(r, envelope.NewCodec(k), correlator.New(zerolog.Nop()), zerolog.Nop())
	go func() { _ = n.Run(ctx) }()
	return peer{kms: k, net: n}
}

// sharedTopic binds one random key to a topic on both peers and subscribes
// them.
func sharedTopic(t *testing.T, ctx context.Context, a, b peer) domain.Topic {
	t.Helper()
	topic, key, err := a.kms.CreateSymmetricKey(ctx)
	if err != nil {
		t.Fatalf("CreateSymmetricKey: %v", err)
	}
	if err := b.kms.SetSymmetricKey(ctx, key, topic); err != nil {
		t.Fatalf("SetSymmetricKey: %v", err)
	}
	for _, p := range []peer{a, b} {
		if err := p.net.Subscribe(ctx, topic); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	return topic
}

func setup(t *testing.T) (context.Context, peer, peer, domain.Topic) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := relay.NewHub()
	a, b := newPeer(t, ctx, hub.Client()), newPeer(t, ctx, hub.Client())
	return ctx, a, b, sharedTopic(t, ctx, a, b)
}

func TestRequestAndWait_RoundTrip(t *testing.T) {
	ctx, a, b, topic := setup(t)

	b.net.Handle(rpc.MethodSessionPing, func(ctx context.Context, in network.Inbound) error {
		if in.Transport != domain.TransportRelay {
			t.Errorf("transport = %s", in.Transport)
		}
		return b.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{})
	})

	resp, err := a.net.RequestAndWait(ctx, topic, rpc.MethodSessionPing, struct{}{}, 2*time.Second)
	if err != nil {
		t.Fatalf("RequestAndWait: %v", err)
	}
	if string(resp.Result) != "true" {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestRequestAndWait_PeerErrorIsTyped(t *testing.T) {
	ctx, a, b, topic := setup(t)
	b.net.Handle(rpc.MethodSessionRequest, func(ctx context.Context, in network.Inbound) error {
		return b.net.RespondError(ctx, in.Topic, in.Request.ID, domain.ReasonUserRejected, network.SendOptions{})
	})

	_, err := a.net.RequestAndWait(ctx, topic, rpc.MethodSessionRequest, map[string]string{"k": "v"}, 2*time.Second)
	var pe *domain.PeerError
	if !errors.As(err, &pe) || pe.Code != 5000 {
		t.Fatalf("want PeerError 5000, got %v", err)
	}
}

func TestUnhandledMethodIsRejected(t *testing.T) {
	ctx, a, _, topic := setup(t)
	_, err := a.net.RequestAndWait(ctx, topic, "wc_unknownMethod", struct{}{}, 2*time.Second)
	var pe *domain.PeerError
	if !errors.As(err, &pe) || pe.Code != domain.ReasonMethodUnsupported.Code {
		t.Fatalf("want method unsupported, got %v", err)
	}
}

func TestRespond_SecondAnswerRefused(t *testing.T) {
	ctx, a, b, topic := setup(t)
	dup := make(chan error, 1)
	b.net.Handle(rpc.MethodSessionRequest, func(ctx context.Context, in network.Inbound) error {
		if err := b.net.Respond(ctx, in.Topic, in.Request.ID, "first", network.SendOptions{}); err != nil {
			return err
		}
		dup <- b.net.Respond(ctx, in.Topic, in.Request.ID, "second", network.SendOptions{})
		return nil
	})

	resp, err := a.net.RequestAndWait(ctx, topic, rpc.MethodSessionRequest, struct{}{}, 2*time.Second)
	if err != nil || string(resp.Result) != `"first"` {
		t.Fatalf("resp = %s, %v", resp.Result, err)
	}
	if err := <-dup; !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("want ErrDuplicateResponse, got %v", err)
	}
}

func TestGuardRejectsDeadTopic(t *testing.T) {
	ctx, a, b, topic := setup(t)
	dead := errors.New("topic expired")
	b.net.Guard(func(_ context.Context, tp domain.Topic) error {
		if tp == topic {
			return dead
		}
		return nil
	})
	called := make(chan struct{}, 1)
	b.net.Handle(rpc.MethodSessionPing, func(context.Context, network.Inbound) error {
		called <- struct{}{}
		return nil
	})

	if _, _, err := a.net.Request(ctx, topic, rpc.MethodSessionPing, struct{}{}, network.SendOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	select {
	case <-called:
		t.Fatal("handler ran for a guarded topic")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeFailsWaiters(t *testing.T) {
	ctx, a, b, topic := setup(t)
	b.net.Handle(rpc.MethodSessionRequest, func(context.Context, network.Inbound) error { return nil })
	_, pending, err := a.net.Request(ctx, topic, rpc.MethodSessionRequest, struct{}{}, network.SendOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := a.net.Unsubscribe(ctx, topic); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	_, err = pending.Wait(ctx, time.Second)
	if !errors.Is(err, domain.ErrSessionDeleted) {
		t.Fatalf("want ErrSessionDeleted, got %v", err)
	}
	if a.net.Subscribed(topic) {
		t.Fatal("topic still subscribed")
	}
}

func TestLinkMode_RequestAndRespondThroughURLs(t *testing.T) {
	ctx, a, b, topic := setup(t)
	const universal = "https://peer.example/wc"

	b.net.Handle(rpc.MethodSessionRequest, func(context.Context, network.Inbound) error { return nil })

	_, pending, link, err := a.net.RequestLink(ctx, topic, universal, rpc.MethodSessionRequest, struct{}{}, network.SendOptions{})
	if err != nil {
		t.Fatalf("RequestLink: %v", err)
	}
	if err := b.net.Dispatch(ctx, link); err != nil {
		t.Fatalf("Dispatch request: %v", err)
	}
	open := b.net.Correlator().Open()
	if len(open) != 1 || open[0].Transport != domain.TransportLinkMode {
		t.Fatalf("open = %+v", open)
	}

	back, err := b.net.RespondLink(ctx, topic, open[0].Request.ID, "https://self.example/wc", "done", network.SendOptions{})
	if err != nil {
		t.Fatalf("RespondLink: %v", err)
	}
	if err := a.net.Dispatch(ctx, back); err != nil {
		t.Fatalf("Dispatch response: %v", err)
	}
	resp, err := pending.Wait(ctx, time.Second)
	if err != nil || string(resp.Result) != `"done"` {
		t.Fatalf("resp = %s, %v", resp.Result, err)
	}
}

func linkURL(t *testing.T, topic domain.Topic, env envelope.Envelope) string {
	t.Helper()
	u, err := linkmode.EnvelopeURL("https://self.example/wc", topic, env)
	if err != nil {
		t.Fatalf("EnvelopeURL: %v", err)
	}
	return u
}

func TestDispatch_PlaintextOnlyOpensAuthenticate(t *testing.T) {
	ctx, a, _, topic := setup(t)
	var handled []string
	for _, m := range []string{rpc.MethodSessionRequest, rpc.MethodSessionAuthenticate} {
		a.net.Handle(m, func(_ context.Context, in network.Inbound) error {
			handled = append(handled, in.Request.Method)
			return nil
		})
	}

	forged := envelope.Envelope{Type: domain.EnvelopeType2, Sealed: []byte(`{"id":7,"jsonrpc":"2.0","method":"wc_sessionRequest","params":{}}`)}
	if err := a.net.Dispatch(ctx, linkURL(t, topic, forged)); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("want ErrDecryptionFailed, got %v", err)
	}
	if len(a.net.Correlator().Open()) != 0 {
		t.Fatal("plaintext request was recorded")
	}

	opening := envelope.Envelope{Type: domain.EnvelopeType2, Sealed: []byte(`{"id":8,"jsonrpc":"2.0","method":"wc_sessionAuthenticate","params":{}}`)}
	if err := a.net.Dispatch(ctx, linkURL(t, topic, opening)); err != nil {
		t.Fatalf("Dispatch authenticate: %v", err)
	}
	if len(handled) != 1 || handled[0] != rpc.MethodSessionAuthenticate {
		t.Fatalf("handled = %v", handled)
	}
}

func TestDispatch_Type2RejectedOverRelayPath(t *testing.T) {
	ctx, a, _, topic := setup(t)
	env := envelope.Envelope{Type: domain.EnvelopeType2, Sealed: []byte(`{"id":1,"jsonrpc":"2.0","method":"wc_sessionPing","params":{}}`)}
	if err := a.net.Receive(ctx, topic, env, domain.TransportRelay); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("want ErrDecryptionFailed, got %v", err)
	}
}
