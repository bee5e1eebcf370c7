package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"wcsign/internal/app"
	"wcsign/internal/config"
	"wcsign/internal/domain"
	"wcsign/internal/relay"
	"wcsign/internal/services/auth"
	signsvc "wcsign/internal/services/sign"
)

func testConfig(name string) config.Config {
	cfg := config.Default()
	cfg.Keychain.ScryptN = 1 << 10
	cfg.Metadata.Name = name
	return cfg
}

func newClient(t *testing.T, ctx context.Context, hub *relay.Hub, cfg config.Config) *app.Client {
	t.Helper()
	log := zerolog.Nop()
	w, err := app.NewWire(ctx, cfg, app.Overrides{Relay: hub.Client(), Log: &log})
	if err != nil {
		t.Fatalf("NewWire: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	c := app.New(w)
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

func TestClient_ConnectOverHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := relay.NewHub()
	dapp := newClient(t, ctx, hub, testConfig("dapp"))
	wallet := newClient(t, ctx, hub, testConfig("wallet"))

	chain, _ := domain.ParseBlockchain("eip155:1")
	acct, _ := domain.ParseAccount("eip155:1:0x724d0D2DaD3fbB0C168f947B87Fa5DBe36F1A8bf")

	props, stop := wallet.Sign.Proposals().Subscribe()
	defer stop()
	settles, stopSettles := dapp.Sign.Settles().Subscribe()
	defer stopSettles()

	conn, err := dapp.Sign.Connect(ctx, signsvc.ConnectParams{
		RequiredNamespaces: map[string]domain.ProposalNamespace{
			"eip155": {Chains: []domain.Blockchain{chain}, Methods: []string{"personal_sign"}, Events: []string{}},
		},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := wallet.Pairings.Pair(ctx, conn.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)
	if prop.Proposer.Metadata.Name != "dapp" {
		t.Fatalf("proposer metadata = %+v", prop.Proposer.Metadata)
	}
	granted := map[string]domain.SessionNamespace{
		"eip155": {Accounts: []domain.Account{acct}, Methods: []string{"personal_sign"}, Events: []string{}},
	}
	if _, err := wallet.Sign.Approve(ctx, prop.ID, granted, nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	sess := recv(t, settles)
	if sess.Peer.Metadata.Name != "wallet" {
		t.Fatalf("peer metadata = %+v", sess.Peer.Metadata)
	}

	md, ok, err := wallet.Decryption.Metadata(ctx, sess.Topic)
	if err != nil || !ok || md.Name != "dapp" {
		t.Fatalf("Decryption.Metadata = %+v %v %v", md, ok, err)
	}
}

func TestNewWire_RedisStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig("wallet")
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.RedisAddr = mr.Addr()
	cfg.Keychain.Passphrase = "Correct-Horse-9-Battery"
	hub := relay.NewHub()
	log := zerolog.Nop()

	first, err := app.NewWire(ctx, cfg, app.Overrides{Relay: hub.Client(), Log: &log})
	if err != nil {
		t.Fatalf("NewWire: %v", err)
	}
	did, err := first.Identity.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pr, _, err := first.Pairings.Create(ctx)
	if err != nil {
		t.Fatalf("Create pairing: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := app.NewWire(ctx, cfg, app.Overrides{Relay: hub.Client(), Log: &log})
	if err != nil {
		t.Fatalf("NewWire after restart: %v", err)
	}
	defer second.Close()
	got, err := second.Identity.DID(ctx)
	if err != nil || got != did {
		t.Fatalf("DID = %s %v, want %s", got, err, did)
	}
	if _, err := second.Pairings.Get(ctx, pr.Topic); err != nil {
		t.Fatalf("pairing lost across restart: %v", err)
	}
	if err := second.Sign.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !second.Net.Subscribed(pr.Topic) {
		t.Fatal("restored pairing topic is not subscribed")
	}
}

func TestClient_SupportedAuthPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newClient(t, ctx, relay.NewHub(), testConfig("wallet"))

	c1, _ := domain.ParseBlockchain("eip155:1")
	c137, _ := domain.ParseBlockchain("eip155:137")
	p, err := auth.NewPayload(domain.AuthRequestParams{
		Domain:  "app.example",
		Chains:  []domain.Blockchain{c1, c137},
		Nonce:   "1",
		URI:     "https://app.example/login",
		Methods: []string{"personal_sign", "wallet_switchEthereumChain"},
	}, time.Now())
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	got, err := c.SupportedAuthPayload(p)
	if err != nil {
		t.Fatalf("SupportedAuthPayload: %v", err)
	}
	if len(got.Chains) != 1 || got.Chains[0] != c1 {
		t.Fatalf("chains = %v", got.Chains)
	}
}

func TestNewWire_RejectsBadAuthChain(t *testing.T) {
	cfg := testConfig("wallet")
	cfg.Auth.Chains = []string{"not-a-chain"}
	log := zerolog.Nop()
	if _, err := app.NewWire(context.Background(), cfg, app.Overrides{Relay: relay.NewHub().Client(), Log: &log}); err == nil {
		t.Fatal("expected error for invalid chain")
	}
}
