package linkmode

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"wcsign/internal/domain"
	"wcsign/internal/protocol/envelope"
)

const (
	proofPrefix = "linkmode/"

	paramEnvelope = "wc_ev"
	paramTopic    = "topic"
)

// Dispatcher routes outbound messages between relay and link mode.
type Dispatcher struct {
	kv  domain.KeyValueStore
	log zerolog.Logger

	mu     sync.RWMutex
	proven map[string]bool
}

func New(kv domain.KeyValueStore, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		kv:     kv,
		log:    log.With().Str("component", "linkmode").Logger(),
		proven: make(map[string]bool),
	}
}

// Prove records that universal is a working link-mode target.
func (d *Dispatcher) Prove(ctx context.Context, universal string) error {
	if universal == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.proven[universal] {
		return nil
	}
	if err := d.kv.Set(ctx, proofPrefix+universal, []byte("true")); err != nil {
		return fmt.Errorf("persist link proof: %w", err)
	}
	d.proven[universal] = true
	d.log.Debug().Str("link", universal).Msg("link mode proven")
	return nil
}

// ProveFrom records proof when peer advertises link mode.
func (d *Dispatcher) ProveFrom(ctx context.Context, peer domain.AppMetadata) error {
	if !peer.SupportsLinkMode() {
		return nil
	}
	return d.Prove(ctx, peer.UniversalLink())
}

// IsProven reports whether universal has been proven.
func (d *Dispatcher) IsProven(ctx context.Context, universal string) bool {
	if universal == "" {
		return false
	}
	d.mu.RLock()
	ok := d.proven[universal]
	d.mu.RUnlock()
	if ok {
		return true
	}
	_, found, err := d.kv.Get(ctx, proofPrefix+universal)
	if err != nil || !found {
		return false
	}
	d.mu.Lock()
	d.proven[universal] = true
	d.mu.Unlock()
	return true
}

// Route picks the transport for a message to peer. Without linkRequested
// the relay is always used. A link-mode request to a peer that has not
// proven support fails with ErrLinkSupportNotProven.
func (d *Dispatcher) Route(ctx context.Context, peer domain.AppMetadata, linkRequested bool) (domain.TransportType, error) {
	if !linkRequested {
		return domain.TransportRelay, nil
	}
	link := peer.UniversalLink()
	if !peer.SupportsLinkMode() || !d.IsProven(ctx, link) {
		return "", fmt.Errorf("%w: %q", domain.ErrLinkSupportNotProven, link)
	}
	return domain.TransportLinkMode, nil
}

// EnvelopeURL renders env for delivery to universal.
func EnvelopeURL(universal string, topic domain.Topic, env envelope.Envelope) (string, error) {
	if universal == "" {
		return "", fmt.Errorf("%w: peer has no universal link", domain.ErrLinkSupportNotProven)
	}
	sep := "?"
	if strings.Contains(universal, "?") {
		sep = "&"
	}
	return universal + sep + paramEnvelope + "=" + env.Base64URL() + "&" + paramTopic + "=" + url.QueryEscape(topic.String()), nil
}

// ParseURL extracts the topic and envelope from a link-mode URL.
func ParseURL(raw string) (domain.Topic, envelope.Envelope, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", envelope.Envelope{}, fmt.Errorf("%w: link url: %w", domain.ErrMalformedEnvelope, err)
	}
	q := u.Query()
	topic, ev := q.Get(paramTopic), q.Get(paramEnvelope)
	if topic == "" || ev == "" {
		return "", envelope.Envelope{}, fmt.Errorf("%w: link url lacks %s or %s", domain.ErrMalformedEnvelope, paramEnvelope, paramTopic)
	}
	env, err := envelope.ParseBase64URL(ev)
	if err != nil {
		return "", envelope.Envelope{}, err
	}
	return domain.Topic(topic), env, nil
}
