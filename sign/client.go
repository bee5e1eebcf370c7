package sign

import (
	"context"

	"github.com/rs/zerolog"

	"wcsign/internal/app"
	"wcsign/internal/config"
	"wcsign/internal/events"
	signsvc "wcsign/internal/services/sign"
)

// Client is a sign client. The embedded engine provides the session,
// authenticate and link mode operations.
type Client struct {
	*signsvc.Engine

	app *app.Client
}

// Deps supply collaborators that New would otherwise build from config.
// Nil fields select the configured component.
type Deps struct {
	Relay  Relay
	Store  KeyValueStore
	Caller ContractCaller
	Log    *zerolog.Logger
}

// New connects to the configured relay and opens the configured storage.
func New(ctx context.Context, cfg Config) (*Client, error) {
	return NewWithDeps(ctx, cfg, Deps{})
}

// NewWithDeps builds a client around the given collaborators.
func NewWithDeps(ctx context.Context, cfg Config, d Deps) (*Client, error) {
	w, err := app.NewWire(ctx, cfg, app.Overrides{Relay: d.Relay, KV: d.Store, Caller: d.Caller, Log: d.Log})
	if err != nil {
		return nil, err
	}
	return &Client{Engine: w.Sign, app: app.New(w)}, nil
}

// DefaultConfig returns an in-memory configuration for a local relay.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a TOML file and applies .env and WCSIGN_* overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Run restores subscriptions and processes relay traffic and expiries until
// ctx is cancelled.
func (c *Client) Run(ctx context.Context) error { return c.app.Run(ctx) }

// Close releases the relay connection and storage.
func (c *Client) Close() error { return c.app.Close() }

// Pair joins the pairing described by a wc: URI.
func (c *Client) Pair(ctx context.Context, uri string) (Pairing, error) {
	return c.app.Pairings.Pair(ctx, uri)
}

// Pairings lists stored pairings.
func (c *Client) Pairings(ctx context.Context) ([]Pairing, error) {
	return c.app.Pairings.All(ctx)
}

// DisconnectPairing deletes a pairing and notifies the peer.
func (c *Client) DisconnectPairing(ctx context.Context, topic Topic) error {
	return c.app.Pairings.Delete(ctx, topic)
}

// PairingDeletes emits pairing topics deleted by either side.
func (c *Client) PairingDeletes() *events.Feed[Topic] { return c.app.Pairings.Deletes() }

// SupportedAuthPayload narrows an authenticate payload to the chains and
// methods configured under [auth].
func (c *Client) SupportedAuthPayload(p AuthPayload) (AuthPayload, error) {
	return c.app.SupportedAuthPayload(p)
}

// Decryption returns the service that opens push-delivered envelopes.
func (c *Client) Decryption() *Decrypter { return c.app.Decryption }

// DID returns the did:key the client presents to the relay.
func (c *Client) DID(ctx context.Context) (string, error) { return c.app.Identity.DID(ctx) }
