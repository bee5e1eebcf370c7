package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"wcsign/internal/config"
	"wcsign/internal/correlator"
	"wcsign/internal/domain"
	"wcsign/internal/kms"
	"wcsign/internal/linkmode"
	"wcsign/internal/logging"
	"wcsign/internal/metrics"
	"wcsign/internal/protocol/envelope"
	"wcsign/internal/relay"
	authsvc "wcsign/internal/services/auth"
	decryptsvc "wcsign/internal/services/decryption"
	identitysvc "wcsign/internal/services/identity"
	"wcsign/internal/services/network"
	pairingsvc "wcsign/internal/services/pairing"
	signsvc "wcsign/internal/services/sign"
	"wcsign/internal/store"
)

// Wire bundles all stores, services, and clients built from a config.
type Wire struct {
	Config     config.Config
	Log        zerolog.Logger
	KV         domain.KeyValueStore
	Keychain   *store.Keychain
	Identity   *identitysvc.Service
	Keys       *kms.Service
	Codec      *envelope.Codec
	Relay      domain.Relay
	Net        *network.Interactor
	Pairings   *pairingsvc.Service
	Links      *linkmode.Dispatcher
	Verifier   *authsvc.Verifier
	Sign       *signsvc.Engine
	Decryption *decryptsvc.Service

	// AuthChains are the chains this app signs authenticate requests for.
	AuthChains []domain.Blockchain

	closers []func() error
}

// NewWire constructs the dependency graph from cfg.
func NewWire(ctx context.Context, cfg config.Config, ov Overrides) (*Wire, error) {
	w := &Wire{Config: cfg}
	built := false
	defer func() {
		if !built {
			_ = w.Close()
		}
	}()

	if ov.Log != nil {
		w.Log = *ov.Log
	} else {
		w.Log = logging.New(logging.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	}
	metrics.Register()

	for _, raw := range cfg.Auth.Chains {
		c, err := domain.ParseBlockchain(raw)
		if err != nil {
			return nil, fmt.Errorf("auth chain %q: %w", raw, err)
		}
		w.AuthChains = append(w.AuthChains, c)
	}

	// Storage and keys
	w.KV = ov.KV
	if w.KV == nil {
		kv, closeKV, err := openKV(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		w.KV = kv
		w.onClose(closeKV)
	}
	passphrase := cfg.Keychain.Passphrase
	if passphrase == "" && ov.KV == nil && cfg.Storage.Backend == config.BackendMemory {
		// The memory keychain dies with the process; a throwaway passphrase will do.
		var b [16]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		passphrase = hex.EncodeToString(b[:])
	}
	var err error
	w.Keychain, err = store.OpenKeychain(ctx, w.KV, passphrase, store.KeychainOptions{ScryptN: cfg.Keychain.ScryptN})
	if err != nil {
		return nil, err
	}
	w.Identity = identitysvc.New(w.Keychain)
	w.Keys = kms.New(w.Keychain)
	w.Codec = envelope.NewCodec(w.Keys)

	// Relay connection, authenticated with the stored identity
	w.Relay = ov.Relay
	if w.Relay == nil {
		id, err := w.Identity.LoadOrCreate(ctx)
		if err != nil {
			return nil, fmt.Errorf("relay identity: %w", err)
		}
		rc, err := relay.Dial(ctx, cfg.Relay.URL, relay.ClientOptions{
			Identity:  id,
			ProjectID: cfg.Relay.ProjectID,
			Timeout:   cfg.Relay.PublishTimeout.Duration,
			Log:       w.Log,
		})
		if err != nil {
			return nil, err
		}
		w.Relay = rc
		w.onClose(rc.Close)
	}

	// Engines
	w.Net = network.New(w.Relay, w.Codec, correlator.New(w.Log), w.Log)
	w.Pairings = pairingsvc.New(w.Keys, store.NewPairingStore(w.KV), w.Net, w.Log)
	w.Links = linkmode.New(w.KV, w.Log)

	caller := ov.Caller
	if caller == nil && cfg.Auth.EthRPCURL != "" {
		eth := authsvc.NewEthCaller(cfg.Auth.EthRPCURL)
		w.onClose(func() error { eth.Close(); return nil })
		caller = eth
	}
	w.Verifier = authsvc.NewVerifier(caller, w.Log)

	sessions := store.NewSessionStore(w.KV)
	w.Sign = signsvc.New(signsvc.Deps{
		Keys:         w.Keys,
		Net:          w.Net,
		Pairings:     w.Pairings,
		Sessions:     sessions,
		Proposals:    store.NewProposalStore(w.KV),
		AuthRequests: store.NewAuthRequestStore(w.KV),
		Verifier:     w.Verifier,
		Links:        w.Links,
		Metadata:     metadataFrom(cfg.Metadata),
		Log:          w.Log,
	}, signsvc.Options{
		RequestTimeout: cfg.Timeouts.Request.Duration,
		PingTimeout:    cfg.Timeouts.Ping.Duration,
		Debounce:       cfg.Timeouts.Debounce.Duration,
		SweepInterval:  cfg.Timeouts.SweepInterval.Duration,
	})
	w.Decryption = decryptsvc.New(w.Codec, sessions)
	built = true
	return w, nil
}

func (w *Wire) onClose(f func() error) {
	if f != nil {
		w.closers = append(w.closers, f)
	}
}

// Close releases the relay connection and storage, newest first.
func (w *Wire) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	w.closers = nil
	return errors.Join(errs...)
}
