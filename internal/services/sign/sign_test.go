package sign_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/kms"
	"wcsign/internal/linkmode"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/relay"
	"wcsign/internal/services/auth"
	"wcsign/internal/services/network"
	"wcsign/internal/services/pairing"
	"wcsign/internal/services/sign"
	"wcsign/internal/store"
)

const (
	testKeyHex  = "462c1dad6832d7d96ccf87bd6a686a4110e114aaaebd5512e552c0e3a87b480f"
	testAddress = "0x724d0D2DaD3fbB0C168f947B87Fa5DBe36F1A8bf"
)

type peer struct {
	eng      *sign.Engine
	keys     *kms.Service
	net      *network.Interactor
	pairings *pairing.Service
	links    *linkmode.Dispatcher
	meta     domain.AppMetadata
}

// newPeer builds one client on hub. wrap, when given, decorates the
// session store.
func newPeer(t *testing.T, ctx context.Context, hub *relay.Hub, name string, wrap ...func(domain.SessionStore) domain.SessionStore) peer {
	t.Helper()
	kv := store.NewMemoryStore()
	kc, err := store.OpenKeychain(ctx, kv, "test", store.KeychainOptions{ScryptN: 1 << 10})
	if err != nil {
		t.Fatalf("OpenKeychain: %v", err)
	}
	log := zerolog.Nop()
	k := kms.New(kc)
	n := network.New(hub.Client(), envelope.NewCodec(k), correlator.New(log), log)
	var sessions domain.SessionStore = store.NewSessionStore(kv)
	for _, w := range wrap {
		sessions = w(sessions)
	}
	p := peer{
		keys:     k,
		net:      n,
		pairings: pairing.New(k, store.NewPairingStore(kv), n, log),
		links:    linkmode.New(kv, log),
		meta: domain.AppMetadata{
			Name:     name,
			URL:      "https://" + name + ".example",
			Icons:    []string{},
			Redirect: &domain.Redirect{Universal: "https://" + name + ".example/wc", LinkMode: true},
		},
	}
	p.eng = sign.New(sign.Deps{
		Keys:         k,
		Net:          n,
		Pairings:     p.pairings,
		Sessions:     sessions,
		Proposals:    store.NewProposalStore(kv),
		AuthRequests: store.NewAuthRequestStore(kv),
		Verifier:     auth.NewVerifier(nil, log),
		Links:        p.links,
		Metadata:     p.meta,
		Log:          log,
	}, sign.Options{RequestTimeout: 5 * time.Second, PingTimeout: 5 * time.Second})
	go func() { _ = n.Run(ctx) }()
	return p
}

func setup(t *testing.T) (context.Context, peer, peer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := relay.NewHub()
	return ctx, newPeer(t, ctx, hub, "dapp"), newPeer(t, ctx, hub, "wallet")
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("feed closed")
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func quiet[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event %+v", v)
	case <-time.After(d):
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func mustChain(t *testing.T, s string) domain.Blockchain {
	t.Helper()
	c, err := domain.ParseBlockchain(s)
	if err != nil {
		t.Fatalf("ParseBlockchain(%s): %v", s, err)
	}
	return c
}

func account(t *testing.T, chain string) domain.Account {
	t.Helper()
	a, err := domain.ParseAccount(chain + ":" + testAddress)
	if err != nil {
		t.Fatalf("ParseAccount: %v", err)
	}
	return a
}

func required(t *testing.T) map[string]domain.ProposalNamespace {
	return map[string]domain.ProposalNamespace{
		"eip155": {
			Chains:  []domain.Blockchain{mustChain(t, "eip155:1")},
			Methods: []string{"personal_sign"},
			Events:  []string{"chainChanged"},
		},
	}
}

func granted(t *testing.T, chains ...string) map[string]domain.SessionNamespace {
	ns := domain.SessionNamespace{
		Methods: []string{"eth_sendTransaction", "personal_sign"},
		Events:  []string{"accountsChanged", "chainChanged"},
	}
	for _, c := range chains {
		ns.Accounts = append(ns.Accounts, account(t, c))
	}
	return map[string]domain.SessionNamespace{"eip155": ns}
}

// connect settles a session proposed by d and approved by w and returns
// the session as each side stores it.
func connect(t *testing.T, ctx context.Context, d, w peer) (domain.Session, domain.Session) {
	t.Helper()
	props, cancelProps := w.eng.Proposals().Subscribe()
	defer cancelProps()
	dSettles, cancelD := d.eng.Settles().Subscribe()
	defer cancelD()
	wSettles, cancelW := w.eng.Settles().Subscribe()
	defer cancelW()

	conn, err := d.eng.Connect(ctx, sign.ConnectParams{RequiredNamespaces: required(t)})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := w.pairings.Pair(ctx, conn.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)
	if prop.ID != conn.Proposal.ID {
		t.Fatalf("proposal id = %s, want %s", prop.ID, conn.Proposal.ID)
	}
	if _, err := w.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	return recv(t, dSettles), recv(t, wSettles)
}

func TestConnectApprove_SettlesBothSides(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, ws := connect(t, ctx, dapp, wallet)

	if ds.Topic != ws.Topic {
		t.Fatalf("topics differ: %s vs %s", ds.Topic, ws.Topic)
	}
	if !ws.SelfIsController() || ds.SelfIsController() {
		t.Fatal("wallet must control the session")
	}
	if ds.Controller != ws.Self.PublicKey {
		t.Fatalf("controller = %s", ds.Controller)
	}
	if !ds.Acknowledged || !ws.Acknowledged {
		t.Fatal("session not acknowledged")
	}
	if len(ds.Accounts()) != 1 || ds.Accounts()[0] != account(t, "eip155:1") {
		t.Fatalf("accounts = %v", ds.Accounts())
	}
	if ds.Peer.Metadata.Name != "wallet" || ws.Peer.Metadata.Name != "dapp" {
		t.Fatalf("peer metadata: %q / %q", ds.Peer.Metadata.Name, ws.Peer.Metadata.Name)
	}
	pending, err := wallet.eng.PendingProposals(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending proposals = %v, %v", pending, err)
	}
}

func TestApprove_UnsatisfiedGrantSendsNothingAndCanRetry(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	props, cancel := wallet.eng.Proposals().Subscribe()
	defer cancel()
	rejections, cancelR := dapp.eng.Rejections().Subscribe()
	defer cancelR()

	conn, err := dapp.eng.Connect(ctx, sign.ConnectParams{RequiredNamespaces: required(t)})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := wallet.pairings.Pair(ctx, conn.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)

	short := granted(t, "eip155:137")
	_, err = wallet.eng.Approve(ctx, prop.ID, short, nil)
	if !errors.Is(err, domain.ErrNamespaceUnsatisfied) {
		t.Fatalf("want ErrNamespaceUnsatisfied, got %v", err)
	}
	quiet(t, rejections, 100*time.Millisecond)

	if _, err := wallet.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); err != nil {
		t.Fatalf("Approve after fix: %v", err)
	}
	if _, err := wallet.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); !errors.Is(err, domain.ErrProposalAlreadyResolved) {
		t.Fatalf("second Approve: %v", err)
	}
}

func TestReject_SameProposalOnBothSides(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	props, cancel := wallet.eng.Proposals().Subscribe()
	defer cancel()
	dRej, cancelD := dapp.eng.Rejections().Subscribe()
	defer cancelD()

	conn, err := dapp.eng.Connect(ctx, sign.ConnectParams{RequiredNamespaces: required(t)})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := wallet.pairings.Pair(ctx, conn.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)
	if err := wallet.eng.Reject(ctx, prop.ID, domain.ReasonUserRejected); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	rej := recv(t, dRej)
	if rej.Proposal.ID != conn.Proposal.ID || rej.Reason.Code != domain.ReasonUserRejected.Code {
		t.Fatalf("rejection = %+v", rej)
	}
	if _, err := wallet.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); !errors.Is(err, domain.ErrProposalAlreadyResolved) {
		t.Fatalf("Approve after Reject: %v", err)
	}
}

func TestApproveReject_ConcurrentFirstWriterWins(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	props, cancel := wallet.eng.Proposals().Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		conn, err := dapp.eng.Connect(ctx, sign.ConnectParams{RequiredNamespaces: required(t)})
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if _, err := wallet.pairings.Pair(ctx, conn.URI); err != nil {
			t.Fatalf("Pair: %v", err)
		}
		prop := recv(t, props)
		grant := granted(t, "eip155:1")

		start := make(chan struct{})
		errs := make(chan error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, err := wallet.eng.Approve(ctx, prop.ID, grant, nil)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			<-start
			errs <- wallet.eng.Reject(ctx, prop.ID, domain.ReasonUserRejected)
		}()
		close(start)
		wg.Wait()
		close(errs)

		won, lost := 0, 0
		for err := range errs {
			switch {
			case err == nil:
				won++
			case errors.Is(err, domain.ErrProposalAlreadyResolved):
				lost++
			default:
				t.Fatalf("round %d: unexpected error %v", i, err)
			}
		}
		if won != 1 || lost != 1 {
			t.Fatalf("round %d: %d succeeded, %d lost", i, won, lost)
		}
	}
}

type failingSave struct {
	domain.SessionStore
	attempted chan domain.Session
}

func (f failingSave) Save(_ context.Context, s domain.Session) error {
	select {
	case f.attempted <- s:
	default:
	}
	return errors.New("disk full")
}

func TestApprove_StoreFailureDropsSessionKey(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	t.Cleanup(cancelCtx)
	hub := relay.NewHub()
	attempted := make(chan domain.Session, 1)
	dapp := newPeer(t, ctx, hub, "dapp")
	wallet := newPeer(t, ctx, hub, "wallet", func(s domain.SessionStore) domain.SessionStore {
		return failingSave{SessionStore: s, attempted: attempted}
	})
	props, cancel := wallet.eng.Proposals().Subscribe()
	defer cancel()

	conn, err := dapp.eng.Connect(ctx, sign.ConnectParams{RequiredNamespaces: required(t)})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := wallet.pairings.Pair(ctx, conn.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)

	if _, err := wallet.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); err == nil {
		t.Fatal("Approve succeeded with a failing store")
	}
	var sess domain.Session
	select {
	case sess = <-attempted:
	default:
		t.Fatal("session was never saved")
	}
	if _, err := wallet.keys.GetSymmetricKey(ctx, sess.Topic); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("session key kept: %v", err)
	}
	if wallet.net.Subscribed(sess.Topic) {
		t.Fatal("session topic still subscribed")
	}
	if got, err := wallet.eng.Sessions(ctx); err != nil || len(got) != 0 {
		t.Fatalf("sessions = %v, %v", got, err)
	}
	if _, err := wallet.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); !errors.Is(err, domain.ErrProposalAlreadyResolved) {
		t.Fatalf("second Approve: %v", err)
	}
}

type result struct {
	resp domain.SessionResponse
	err  error
}

func sendRequest(ctx context.Context, d peer, p sign.RequestParams) <-chan result {
	out := make(chan result, 1)
	go func() {
		resp, err := d.eng.Request(ctx, p)
		out <- result{resp, err}
	}()
	return out
}

func TestRequestRespond_ResultErrorAndDuplicate(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, _ := connect(t, ctx, dapp, wallet)
	reqs, cancel := wallet.eng.SessionRequests().Subscribe()
	defer cancel()

	p := sign.RequestParams{Topic: ds.Topic, ChainID: mustChain(t, "eip155:1"), Method: "personal_sign", Params: []string{"0x68656c6c6f", testAddress}}
	done := sendRequest(ctx, dapp, p)
	req := recv(t, reqs)
	if req.Method != "personal_sign" || req.ChainID != p.ChainID {
		t.Fatalf("request = %+v", req)
	}
	var got []string
	if err := req.Params.Decode(&got); err != nil || len(got) != 2 {
		t.Fatalf("params = %v, %v", got, err)
	}
	if err := wallet.eng.Respond(ctx, req.Topic, req.ID, "0xsigned"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if err := wallet.eng.Respond(ctx, req.Topic, req.ID, "0xagain"); !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("second Respond: %v", err)
	}
	r := recv(t, done)
	if r.err != nil {
		t.Fatalf("Request: %v", r.err)
	}
	var sig string
	if err := r.resp.Result.Decode(&sig); err != nil || sig != "0xsigned" {
		t.Fatalf("result = %q, %v", sig, err)
	}

	done = sendRequest(ctx, dapp, p)
	req = recv(t, reqs)
	if err := wallet.eng.RespondError(ctx, req.Topic, req.ID, domain.ReasonUserRejected); err != nil {
		t.Fatalf("RespondError: %v", err)
	}
	r = recv(t, done)
	var pe *domain.PeerError
	if !errors.As(r.err, &pe) || pe.Code != domain.ReasonUserRejected.Code {
		t.Fatalf("want peer error 5000, got %v", r.err)
	}
}

func TestRequest_UngrantedMethodNeverSent(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, _ := connect(t, ctx, dapp, wallet)
	reqs, cancel := wallet.eng.SessionRequests().Subscribe()
	defer cancel()

	_, err := dapp.eng.Request(ctx, sign.RequestParams{Topic: ds.Topic, ChainID: mustChain(t, "eip155:1"), Method: "eth_signTypedData"})
	if !errors.Is(err, domain.ErrUnauthorizedMethod) {
		t.Fatalf("want ErrUnauthorizedMethod, got %v", err)
	}
	_, err = dapp.eng.Request(ctx, sign.RequestParams{Topic: ds.Topic, ChainID: mustChain(t, "eip155:5"), Method: "personal_sign"})
	if !errors.Is(err, domain.ErrUnauthorizedChain) {
		t.Fatalf("want ErrUnauthorizedChain, got %v", err)
	}
	quiet(t, reqs, 100*time.Millisecond)
}

func TestSessionRequests_ReplayedToLateSubscriberOnce(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, _ := connect(t, ctx, dapp, wallet)

	done := sendRequest(ctx, dapp, sign.RequestParams{Topic: ds.Topic, ChainID: mustChain(t, "eip155:1"), Method: "personal_sign", Params: []string{"0x00"}})
	eventually(t, func() bool {
		pending, err := wallet.eng.PendingRequests(ctx)
		return err == nil && len(pending) == 1
	})

	reqs, cancel := wallet.eng.SessionRequests().Subscribe()
	defer cancel()
	req := recv(t, reqs)
	quiet(t, reqs, 100*time.Millisecond)

	if err := wallet.eng.Respond(ctx, req.Topic, req.ID, true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r := recv(t, done); r.err != nil {
		t.Fatalf("Request: %v", r.err)
	}
	pending, err := wallet.eng.PendingRequests(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after answer = %v, %v", pending, err)
	}
}

func TestUpdateExtendEmit_ControllerOnly(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, ws := connect(t, ctx, dapp, wallet)
	updates, cancelU := dapp.eng.Updates().Subscribe()
	defer cancelU()
	extends, cancelX := dapp.eng.Extends().Subscribe()
	defer cancelX()
	evs, cancelE := dapp.eng.Events().Subscribe()
	defer cancelE()

	wider := granted(t, "eip155:1", "eip155:137")
	if err := wallet.eng.Update(ctx, ws.Topic, wider); err != nil {
		t.Fatalf("Update: %v", err)
	}
	u := recv(t, updates)
	if len(u.Namespaces["eip155"].Accounts) != 2 {
		t.Fatalf("update = %+v", u)
	}
	if err := dapp.eng.Update(ctx, ds.Topic, wider); !errors.Is(err, domain.ErrUnauthorizedController) {
		t.Fatalf("dapp Update: %v", err)
	}

	expiry, err := wallet.eng.Extend(ctx, ws.Topic)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if x := recv(t, extends); !x.Expiry.Equal(expiry) {
		t.Fatalf("extend expiry = %v, want %v", x.Expiry, expiry)
	}

	ev := domain.SessionEvent{Name: "chainChanged", Data: json.RawMessage(`"0x89"`)}
	if err := wallet.eng.Emit(ctx, ws.Topic, mustChain(t, "eip155:137"), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got := recv(t, evs)
	if got.Event.Name != "chainChanged" || string(got.Event.Data) != `"0x89"` || got.ChainID.String() != "eip155:137" {
		t.Fatalf("event = %+v", got)
	}
	err = wallet.eng.Emit(ctx, ws.Topic, mustChain(t, "eip155:1"), domain.SessionEvent{Name: "balanceChanged"})
	if !errors.Is(err, domain.ErrUnauthorizedEvent) {
		t.Fatalf("want ErrUnauthorizedEvent, got %v", err)
	}
	quiet(t, evs, 100*time.Millisecond)
}

func TestPing_SessionAndPairing(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, _ := connect(t, ctx, dapp, wallet)
	pings, cancel := dapp.eng.PingResponses().Subscribe()
	defer cancel()

	if err := dapp.eng.Ping(ctx, ds.Topic); err != nil {
		t.Fatalf("session Ping: %v", err)
	}
	if p := recv(t, pings); p.Topic != ds.Topic {
		t.Fatalf("ping = %+v", p)
	}
	if err := dapp.eng.Ping(ctx, ds.PairingTopic); err != nil {
		t.Fatalf("pairing Ping: %v", err)
	}
	if p := recv(t, pings); p.Topic != ds.PairingTopic {
		t.Fatalf("ping = %+v", p)
	}
}

func TestDisconnect_FailsPendingRequests(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, ws := connect(t, ctx, dapp, wallet)
	reqs, cancelR := wallet.eng.SessionRequests().Subscribe()
	defer cancelR()
	deletes, cancelD := dapp.eng.Deletes().Subscribe()
	defer cancelD()

	done := sendRequest(ctx, dapp, sign.RequestParams{Topic: ds.Topic, ChainID: mustChain(t, "eip155:1"), Method: "personal_sign"})
	recv(t, reqs)
	if err := wallet.eng.Disconnect(ctx, ws.Topic); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if r := recv(t, done); !errors.Is(r.err, domain.ErrSessionDeleted) {
		t.Fatalf("pending request: %v", r.err)
	}
	if d := recv(t, deletes); d.Topic != ds.Topic || d.Reason.Code != domain.ReasonUserDisconnected.Code {
		t.Fatalf("deletion = %+v", d)
	}
	for _, p := range []peer{dapp, wallet} {
		sessions, err := p.eng.Sessions(ctx)
		if err != nil || len(sessions) != 0 {
			t.Fatalf("%s sessions = %v, %v", p.meta.Name, sessions, err)
		}
	}
	if err := dapp.eng.Ping(ctx, ds.Topic); err == nil {
		t.Fatal("ping on deleted session succeeded")
	}
}

func TestSweep_KeepsRequestWithinCallerExpiry(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, _ := connect(t, ctx, dapp, wallet)
	reqs, cancel := wallet.eng.SessionRequests().Subscribe()
	defer cancel()

	p := sign.RequestParams{Topic: ds.Topic, ChainID: mustChain(t, "eip155:1"), Method: "personal_sign", Expiry: time.Hour}
	done := sendRequest(ctx, dapp, p)
	req := recv(t, reqs)

	// past the protocol TTL of a session request, well inside the caller's hour
	if err := dapp.eng.Sweep(ctx, time.Now().Add(6*time.Minute)); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	quiet(t, done, 50*time.Millisecond)

	if err := wallet.eng.Respond(ctx, req.Topic, req.ID, "0x01"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r := recv(t, done); r.err != nil {
		t.Fatalf("Request: %v", r.err)
	}
}

func TestSweep_ExpiresSessions(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	_, ws := connect(t, ctx, dapp, wallet)
	expired, cancel := wallet.eng.Expirations().Subscribe()
	defer cancel()

	if err := wallet.eng.Sweep(ctx, time.Now()); err != nil {
		t.Fatalf("Sweep now: %v", err)
	}
	quiet(t, expired, 50*time.Millisecond)

	if err := wallet.eng.Sweep(ctx, ws.Expiry.Add(time.Second)); err != nil {
		t.Fatalf("Sweep later: %v", err)
	}
	if s := recv(t, expired); s.Topic != ws.Topic {
		t.Fatalf("expired = %s", s.Topic)
	}
	if _, err := wallet.eng.Extend(ctx, ws.Topic); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("Extend on expired session: %v", err)
	}
}

func authParams(t *testing.T) domain.AuthRequestParams {
	return domain.AuthRequestParams{
		Domain:    "app.example",
		Chains:    []domain.Blockchain{mustChain(t, "eip155:1")},
		Nonce:     "42",
		URI:       "https://app.example/login",
		Statement: "Sign in to app.example",
		Methods:   []string{"personal_sign"},
	}
}

func signCacao(t *testing.T, p domain.AuthPayload, acct domain.Account) domain.Cacao {
	t.Helper()
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	msg := auth.FormatAuthMessage(p, acct)
	hash := ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg)) + msg))
	sig, err := ethcrypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[64] += 27
	return auth.BuildSignedAuthObject(p, domain.CacaoSignature{T: domain.CacaoEIP191, S: "0x" + hex.EncodeToString(sig)}, acct)
}

func TestDispatchEnvelope_UnsealedDeleteIgnored(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	ds, _ := connect(t, ctx, dapp, wallet)

	forged := envelope.Envelope{
		Type:   domain.EnvelopeType2,
		Sealed: []byte(`{"id":42,"jsonrpc":"2.0","method":"wc_sessionDelete","params":{"code":6000,"message":"User disconnected."}}`),
	}
	link, err := linkmode.EnvelopeURL(wallet.meta.Redirect.Universal, ds.Topic, forged)
	if err != nil {
		t.Fatalf("EnvelopeURL: %v", err)
	}
	if err := wallet.eng.DispatchEnvelope(ctx, link); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("want ErrDecryptionFailed, got %v", err)
	}
	sessions, err := wallet.eng.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Topic != ds.Topic {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestAuthenticate_OneShotSession(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	authReqs, cancelA := wallet.eng.AuthRequests().Subscribe()
	defer cancelA()
	props, cancelP := wallet.eng.Proposals().Subscribe()
	defer cancelP()
	answers, cancelR := dapp.eng.AuthResponses().Subscribe()
	defer cancelR()

	a, err := dapp.eng.Authenticate(ctx, authParams(t))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := wallet.pairings.Pair(ctx, a.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	req := recv(t, authReqs)
	if req.ID != a.RequestID || req.Payload.Domain != "app.example" {
		t.Fatalf("auth request = %+v", req)
	}
	quiet(t, props, 50*time.Millisecond)

	acct := account(t, "eip155:1")
	ws, err := wallet.eng.ApproveSessionAuthenticate(ctx, req.ID, []domain.Cacao{signCacao(t, req.Payload, acct)})
	if err != nil {
		t.Fatalf("ApproveSessionAuthenticate: %v", err)
	}
	got := recv(t, answers)
	if got.Error != nil || got.Session == nil {
		t.Fatalf("auth response = %+v", got)
	}
	if got.Session.Topic != ws.Topic || got.Session.Controller != ws.Self.PublicKey {
		t.Fatalf("sessions differ: %+v vs %+v", got.Session, ws)
	}
	if len(got.Accounts) != 1 || got.Accounts[0] != acct {
		t.Fatalf("accounts = %v", got.Accounts)
	}
	if !got.Session.Namespaces["eip155"].HasMethod("personal_sign") {
		t.Fatalf("namespaces = %+v", got.Session.Namespaces)
	}

	// the session works like any other
	reqs, cancel := wallet.eng.SessionRequests().Subscribe()
	defer cancel()
	done := sendRequest(ctx, dapp, sign.RequestParams{Topic: ws.Topic, ChainID: acct.Chain, Method: "personal_sign"})
	r := recv(t, reqs)
	if err := wallet.eng.Respond(ctx, r.Topic, r.ID, "0x01"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res := recv(t, done); res.err != nil {
		t.Fatalf("Request: %v", res.err)
	}
}

func TestAuthenticate_TwoChainsUnionAccounts(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	authReqs, cancelA := wallet.eng.AuthRequests().Subscribe()
	defer cancelA()
	answers, cancelR := dapp.eng.AuthResponses().Subscribe()
	defer cancelR()

	params := authParams(t)
	params.Chains = []domain.Blockchain{mustChain(t, "eip155:1"), mustChain(t, "eip155:137")}
	params.Methods = []string{"personal_sign", "eth_sendTransaction"}
	a, err := dapp.eng.Authenticate(ctx, params)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := wallet.pairings.Pair(ctx, a.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	req := recv(t, authReqs)

	cacaos := []domain.Cacao{
		signCacao(t, req.Payload, account(t, "eip155:1")),
		signCacao(t, req.Payload, account(t, "eip155:137")),
	}
	if _, err := wallet.eng.ApproveSessionAuthenticate(ctx, req.ID, cacaos); err != nil {
		t.Fatalf("ApproveSessionAuthenticate: %v", err)
	}
	got := recv(t, answers)
	if got.Error != nil || got.Session == nil {
		t.Fatalf("auth response = %+v", got)
	}
	if len(got.Accounts) != 2 {
		t.Fatalf("accounts = %v", got.Accounts)
	}
	ns := got.Session.Namespaces["eip155"]
	if len(ns.Accounts) != 2 {
		t.Fatalf("namespace accounts = %v", ns.Accounts)
	}
	for _, m := range params.Methods {
		if !ns.HasMethod(m) {
			t.Fatalf("method %s missing from %v", m, ns.Methods)
		}
	}
}

func TestAuthenticate_BadSignatureThenReject(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	authReqs, cancelA := wallet.eng.AuthRequests().Subscribe()
	defer cancelA()
	answers, cancelR := dapp.eng.AuthResponses().Subscribe()
	defer cancelR()

	a, err := dapp.eng.Authenticate(ctx, authParams(t))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := wallet.pairings.Pair(ctx, a.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	req := recv(t, authReqs)

	other := req.Payload
	other.Nonce = "tampered"
	bad := signCacao(t, other, account(t, "eip155:1"))
	bad.P = signCacao(t, req.Payload, account(t, "eip155:1")).P
	_, err = wallet.eng.ApproveSessionAuthenticate(ctx, req.ID, []domain.Cacao{bad})
	var vf *domain.VerificationFailedError
	if !errors.As(err, &vf) || vf.Chain != "eip155:1" {
		t.Fatalf("want verification failure on eip155:1, got %v", err)
	}
	quiet(t, answers, 100*time.Millisecond)

	if err := wallet.eng.RejectSessionAuthenticate(ctx, req.ID, domain.ReasonUserRejected); err != nil {
		t.Fatalf("RejectSessionAuthenticate: %v", err)
	}
	got := recv(t, answers)
	if got.Error == nil || got.Error.Code != domain.ReasonUserRejected.Code || got.Session != nil {
		t.Fatalf("auth response = %+v", got)
	}
	if _, err := wallet.eng.ApproveSessionAuthenticate(ctx, req.ID, nil); !errors.Is(err, domain.ErrProposalAlreadyResolved) {
		t.Fatalf("Approve after Reject: %v", err)
	}
}

func TestAuthenticate_FallbackProposalWhenWalletLacksAuth(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	props, cancelP := wallet.eng.Proposals().Subscribe()
	defer cancelP()
	settles, cancelS := dapp.eng.Settles().Subscribe()
	defer cancelS()
	answers, cancelR := dapp.eng.AuthResponses().Subscribe()
	defer cancelR()

	a, err := dapp.eng.Authenticate(ctx, authParams(t))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if a.FallbackProposal == "" {
		t.Fatal("no fallback proposal")
	}
	if _, err := wallet.pairings.Pair(ctx, a.URI); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	prop := recv(t, props)
	if prop.ID != a.FallbackProposal {
		t.Fatalf("proposal = %s, want %s", prop.ID, a.FallbackProposal)
	}
	opt := prop.OptionalNamespaces["eip155"]
	if len(opt.Chains) != 1 || len(opt.Methods) != 1 || opt.Methods[0] != "personal_sign" {
		t.Fatalf("fallback namespaces = %+v", opt)
	}
	if _, err := wallet.eng.Approve(ctx, prop.ID, granted(t, "eip155:1"), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	s := recv(t, settles)
	if s.PairingTopic != a.PairingTopic {
		t.Fatalf("settled on %s", s.PairingTopic)
	}
	quiet(t, answers, 100*time.Millisecond)
}

func TestLinkMode_AuthenticateAndRequestWithoutRelay(t *testing.T) {
	ctx, dapp, wallet := setup(t)
	authReqs, cancelA := wallet.eng.AuthRequests().Subscribe()
	defer cancelA()
	answers, cancelR := dapp.eng.AuthResponses().Subscribe()
	defer cancelR()

	if _, err := dapp.eng.AuthenticateLinkMode(ctx, authParams(t), wallet.meta); !errors.Is(err, domain.ErrLinkSupportNotProven) {
		t.Fatalf("unproven wallet: %v", err)
	}
	if err := dapp.links.ProveFrom(ctx, wallet.meta); err != nil {
		t.Fatalf("ProveFrom: %v", err)
	}
	a, err := dapp.eng.AuthenticateLinkMode(ctx, authParams(t), wallet.meta)
	if err != nil {
		t.Fatalf("AuthenticateLinkMode: %v", err)
	}
	if a.Link == "" || a.URI != "" {
		t.Fatalf("authentication = %+v", a)
	}
	if err := wallet.eng.DispatchEnvelope(ctx, a.Link); err != nil {
		t.Fatalf("wallet dispatch: %v", err)
	}
	req := recv(t, authReqs)
	if req.Transport != domain.TransportLinkMode {
		t.Fatalf("transport = %s", req.Transport)
	}
	if !wallet.links.IsProven(ctx, dapp.meta.UniversalLink()) {
		t.Fatal("inbound link envelope did not prove the dapp")
	}

	ws, back, err := wallet.eng.ApproveSessionAuthenticateLinkMode(ctx, req.ID, []domain.Cacao{signCacao(t, req.Payload, account(t, "eip155:1"))})
	if err != nil {
		t.Fatalf("ApproveSessionAuthenticateLinkMode: %v", err)
	}
	if err := dapp.eng.DispatchEnvelope(ctx, back); err != nil {
		t.Fatalf("dapp dispatch: %v", err)
	}
	got := recv(t, answers)
	if got.Session == nil || got.Session.Topic != ws.Topic || got.Via != domain.TransportLinkMode {
		t.Fatalf("auth response = %+v", got)
	}

	reqs, cancel := wallet.eng.SessionRequests().Subscribe()
	defer cancel()
	responses, cancelResp := dapp.eng.Responses().Subscribe()
	defer cancelResp()
	link, id, err := dapp.eng.RequestLinkMode(ctx, sign.RequestParams{Topic: ws.Topic, ChainID: mustChain(t, "eip155:1"), Method: "personal_sign"})
	if err != nil {
		t.Fatalf("RequestLinkMode: %v", err)
	}
	if err := wallet.eng.DispatchEnvelope(ctx, link); err != nil {
		t.Fatalf("wallet dispatch request: %v", err)
	}
	sr := recv(t, reqs)
	if sr.ID != id || sr.Transport != domain.TransportLinkMode {
		t.Fatalf("session request = %+v", sr)
	}
	answer, err := wallet.eng.RespondLinkMode(ctx, sr.Topic, sr.ID, "0xsigned")
	if err != nil {
		t.Fatalf("RespondLinkMode: %v", err)
	}
	if err := dapp.eng.DispatchEnvelope(ctx, answer); err != nil {
		t.Fatalf("dapp dispatch answer: %v", err)
	}
	resp := recv(t, responses)
	var sig string
	if resp.ID != id || resp.Result.Decode(&sig) != nil || sig != "0xsigned" {
		t.Fatalf("response = %+v", resp)
	}
}
