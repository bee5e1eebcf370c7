package pairing_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/kms"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/relay"
	"wcsign/internal/services/network"
	"wcsign/internal/services/pairing"
	"wcsign/internal/store"
)

func TestURI_RoundTrip(t *testing.T) {
	key := domain.SymmetricKey{1, 2, 3}
	u := pairing.URI{
		Topic:   "7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9",
		Version: "2",
		SymKey:  key,
		Relay:   domain.RelayProtocolOptions{Protocol: "irn"},
		Expiry:  time.Unix(1700000000, 0),
		Methods: []string{"wc_sessionAuthenticate"},
	}
	s := u.String()
	want := "wc:7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9@2?relay-protocol=irn&symKey=" +
		key.Hex() + "&expiryTimestamp=1700000000&methods=wc_sessionAuthenticate"
	if s != want {
		t.Fatalf("String() =\n%s\nwant\n%s", s, want)
	}
	got, err := pairing.ParseURI(s)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if got.Topic != u.Topic || got.SymKey != key || got.Relay.Protocol != "irn" || !got.Expiry.Equal(u.Expiry) {
		t.Fatalf("parsed %+v", got)
	}
	if len(got.Methods) != 1 || got.Methods[0] != "wc_sessionAuthenticate" {
		t.Fatalf("methods = %v", got.Methods)
	}
}

func TestParseURI_BracketedMethods(t *testing.T) {
	raw := "wc:abc@2?relay-protocol=irn&symKey=" + strings.Repeat("00", 32) + "&methods=[wc_sessionAuthenticate,wc_sessionPropose]"
	u, err := pairing.ParseURI(raw)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if len(u.Methods) != 2 || u.Methods[1] != "wc_sessionPropose" {
		t.Fatalf("methods = %v", u.Methods)
	}
	if !u.Expiry.IsZero() {
		t.Fatalf("expiry = %v, want zero", u.Expiry)
	}
}

func TestParseURI_Rejects(t *testing.T) {
	key := strings.Repeat("ab", 32)
	cases := map[string]string{
		"scheme":   "https:abc@2?relay-protocol=irn&symKey=" + key,
		"version":  "wc:abc@1?relay-protocol=irn&symKey=" + key,
		"no topic": "wc:@2?relay-protocol=irn&symKey=" + key,
		"no relay": "wc:abc@2?symKey=" + key,
		"bad key":  "wc:abc@2?relay-protocol=irn&symKey=zz",
		"expiry":   "wc:abc@2?relay-protocol=irn&symKey=" + key + "&expiryTimestamp=soon",
	}
	for name, raw := range cases {
		if _, err := pairing.ParseURI(raw); !errors.Is(err, domain.ErrInvalidURI) {
			t.Errorf("%s: err = %v, want ErrInvalidURI", name, err)
		}
	}
}

type side struct {
	kms *kms.Service
	svc *pairing.Service
}

func newSide(t *testing.T, ctx context.Context, hub *relay.Hub) side {
	t.Helper()
	kv := store.NewMemoryStore()
	kc, err := store.OpenKeychain(ctx, kv, "test", store.KeychainOptions{ScryptN: 1 << 10})
	if err != nil {
		t.Fatalf("OpenKeychain: %v", err)
	}
	k := kms.New(kc)
	n := network.New(hub.Client(), envelope.NewCodec(k), correlator.New(zerolog.Nop()), zerolog.Nop())
	svc := pairing.New(k, store.NewPairingStore(kv), n, zerolog.Nop())
	go func() { _ = n.Run(ctx) }()
	return side{kms: k, svc: svc}
}

func setup(t *testing.T) (context.Context, side, side) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := relay.NewHub()
	return ctx, newSide(t, ctx, hub), newSide(t, ctx, hub)
}

func TestCreatePairPing(t *testing.T) {
	ctx, a, b := setup(t)

	p, uri, err := a.svc.Create(ctx, "wc_sessionAuthenticate")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Active {
		t.Fatal("created pairing should be inactive")
	}
	if !p.SupportsMethod("wc_sessionAuthenticate") {
		t.Fatalf("methods = %v", p.Methods)
	}

	joined, err := b.svc.Pair(ctx, uri)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if joined.Topic != p.Topic || !joined.Active {
		t.Fatalf("joined = %+v", joined)
	}
	if time.Until(joined.Expiry) < pairing.ActiveTTL-time.Minute {
		t.Fatalf("active expiry too short: %v", joined.Expiry)
	}

	if err := b.svc.Ping(ctx, p.Topic, 2*time.Second); err != nil {
		t.Fatalf("Ping from responder: %v", err)
	}
	if err := a.svc.Ping(ctx, p.Topic, 2*time.Second); err != nil {
		t.Fatalf("Ping from proposer: %v", err)
	}
}

func TestPair_DuplicateActive(t *testing.T) {
	ctx, a, b := setup(t)
	_, uri, err := a.svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := b.svc.Pair(ctx, uri); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if _, err := b.svc.Pair(ctx, uri); !errors.Is(err, domain.ErrPairingAlreadyExists) {
		t.Fatalf("second Pair err = %v", err)
	}
}

func TestPair_ExpiredURI(t *testing.T) {
	ctx, _, b := setup(t)
	u := pairing.URI{
		Topic:   "abc",
		Version: "2",
		Relay:   domain.RelayProtocolOptions{Protocol: "irn"},
		Expiry:  time.Now().Add(-time.Minute),
	}
	if _, err := b.svc.Pair(ctx, u.String()); !errors.Is(err, domain.ErrPairingExpired) {
		t.Fatalf("err = %v, want ErrPairingExpired", err)
	}
}

func TestDelete_ExpiresBothSides(t *testing.T) {
	ctx, a, b := setup(t)
	p, uri, err := a.svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := b.svc.Pair(ctx, uri); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	deleted, cancel := b.svc.Deletes().Subscribe()
	defer cancel()

	if err := a.svc.Delete(ctx, p.Topic); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case topic := <-deleted:
		if topic != p.Topic {
			t.Fatalf("deleted %s, want %s", topic, p.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the delete")
	}

	for name, s := range map[string]side{"proposer": a, "responder": b} {
		if _, err := s.svc.Get(ctx, p.Topic); !errors.Is(err, domain.ErrNoPairing) {
			t.Errorf("%s Get err = %v", name, err)
		}
		if s.kms.HasSymmetricKey(ctx, p.Topic) {
			t.Errorf("%s still holds the pairing key", name)
		}
		if err := s.svc.Accept(ctx, p.Topic); err == nil {
			t.Errorf("%s still accepts envelopes on a deleted pairing", name)
		}
	}
}

func TestSweep_ExpiresStalePairings(t *testing.T) {
	ctx, a, _ := setup(t)
	p, _, err := a.svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	gone, err := a.svc.Sweep(ctx, time.Now())
	if err != nil || len(gone) != 0 {
		t.Fatalf("early sweep = %v, %v", gone, err)
	}
	gone, err = a.svc.Sweep(ctx, time.Now().Add(pairing.InactiveTTL+time.Minute))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(gone) != 1 || gone[0] != p.Topic {
		t.Fatalf("swept %v", gone)
	}
	all, err := a.svc.All(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("All = %v, %v", all, err)
	}
}
