package sign_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/relay"
	"wcsign/sign"
)

func newClient(t *testing.T, ctx context.Context, hub *relay.Hub, name string) *sign.Client {
	t.Helper()
	cfg := sign.DefaultConfig()
	cfg.Keychain.ScryptN = 1 << 10
	cfg.Metadata.Name = name
	log := zerolog.Nop()
	c, err := sign.NewWithDeps(ctx, cfg, sign.Deps{Relay: hub.Client(), Log: &log})
	if err != nil {
		t.Fatalf("NewWithDeps: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	go func() { _ = c.Run(ctx) }()
	return c
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestClient_SessionRequestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := relay.NewHub()
	dapp := newClient(t, ctx, hub, "dapp")
	wallet := newClient(t, ctx, hub, "wallet")

	chain, err := sign.ParseBlockchain("eip155:1")
	if err != nil {
		t.Fatalf("ParseBlockchain: %v", err)
	}
	acct, err := sign.ParseAccount("eip155:1:0x724d0D2DaD3fbB0C168f947B87Fa5DBe36F1A8bf")
	if err != nil {
		t.Fatalf("ParseAccount: %v", err)
	}

	props, stopProps := wallet.Proposals().Subscribe()
	defer stopProps()
	settles, stopSettles := dapp.Settles().Subscribe()
	defer stopSettles()

	conn, err := dapp.Connect(ctx, sign.ConnectParams{
		RequiredNamespaces: map[string]sign.ProposalNamespace{
			"eip155": {Chains: []sign.Blockchain{chain}, Methods: []string{"personal_sign"}, Events: []string{}},
		},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := wallet.Pair(ctx, conn.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)
	grant := map[string]sign.SessionNamespace{
		"eip155": {Accounts: []sign.Account{acct}, Methods: []string{"personal_sign"}, Events: []string{}},
	}
	if _, err := wallet.Approve(ctx, prop.ID, grant, nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	sess := recv(t, settles)

	requests, stopRequests := wallet.SessionRequests().Subscribe()
	defer stopRequests()
	go func() {
		req := <-requests
		_ = wallet.Respond(ctx, req.Topic, req.ID, "0xsigned")
	}()

	resp, err := dapp.Request(ctx, sign.RequestParams{
		Topic:   sess.Topic,
		ChainID: chain,
		Method:  "personal_sign",
		Params:  []string{"0x48656c6c6f", acct.Address},
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(resp.Result) != `"0xsigned"` {
		t.Fatalf("result = %s", resp.Result)
	}

	_, err = dapp.Request(ctx, sign.RequestParams{Topic: sess.Topic, ChainID: chain, Method: "eth_sendTransaction", Params: []any{}})
	if !errors.Is(err, sign.ErrUnauthorizedMethod) {
		t.Fatalf("want ErrUnauthorizedMethod, got %v", err)
	}

	pairings, err := wallet.Pairings(ctx)
	if err != nil || len(pairings) != 1 {
		t.Fatalf("Pairings = %v %v", pairings, err)
	}
}
