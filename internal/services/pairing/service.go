package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wcsign/internal/domain"
	"wcsign/internal/events"
	"wcsign/internal/protocol/rpc"
	"wcsign/internal/services/network"
)

const (
	InactiveTTL = 5 * time.Minute
	ActiveTTL   = 30 * 24 * time.Hour
)

// Keys is the part of the key management service pairings use.
type Keys interface {
	CreateSymmetricKey(ctx context.Context) (domain.Topic, domain.SymmetricKey, error)
	SetSymmetricKey(ctx context.Context, key domain.SymmetricKey, topic domain.Topic) error
	DeleteKey(ctx context.Context, topic domain.Topic) error
}

// Service owns the pairing lifecycle.
type Service struct {
	keys  Keys
	store domain.PairingStore
	net   *network.Interactor
	log   zerolog.Logger
	now   func() time.Time

	deletes *events.Feed[domain.Topic]

	mu   sync.Mutex
	dead map[domain.Topic]struct{}
}

func New(keys Keys, store domain.PairingStore, net *network.Interactor, log zerolog.Logger) *Service {
	log = log.With().Str("component", "pairing").Logger()
	s := &Service{
		keys:    keys,
		store:   store,
		net:     net,
		log:     log,
		now:     time.Now,
		deletes: events.NewFeed[domain.Topic]("pairing_deletes", log),
		dead:    make(map[domain.Topic]struct{}),
	}
	net.Guard(s.Accept)
	net.Handle(rpc.MethodPairingPing, s.onPing)
	net.Handle(rpc.MethodPairingDelete, s.onDelete)
	return s
}

// Deletes emits the topic of every pairing the peer deleted.
func (s *Service) Deletes() *events.Feed[domain.Topic] { return s.deletes }

// Create starts a new inactive pairing and returns its URI. methods are
// advertised to the responder, e.g. wc_sessionAuthenticate.
func (s *Service) Create(ctx context.Context, methods ...string) (domain.Pairing, string, error) {
	topic, key, err := s.keys.CreateSymmetricKey(ctx)
	if err != nil {
		return domain.Pairing{}, "", fmt.Errorf("create pairing key: %w", err)
	}
	p := domain.Pairing{
		Topic:   topic,
		Relay:   domain.RelayProtocolOptions{Protocol: relayProtocol},
		Expiry:  s.now().Add(InactiveTTL),
		Methods: append([]string(nil), methods...),
	}
	if err := s.store.Save(ctx, p); err != nil {
		return domain.Pairing{}, "", err
	}
	if err := s.net.Subscribe(ctx, topic); err != nil {
		return domain.Pairing{}, "", err
	}
	uri := URI{
		Topic:   topic,
		Version: uriVersion,
		SymKey:  key,
		Relay:   p.Relay,
		Expiry:  p.Expiry,
		Methods: p.Methods,
	}
	s.log.Debug().Str("topic", topic.String()).Msg("pairing created")
	return p, uri.String(), nil
}

// Pair joins the pairing described by rawURI.
func (s *Service) Pair(ctx context.Context, rawURI string) (domain.Pairing, error) {
	u, err := ParseURI(rawURI)
	if err != nil {
		return domain.Pairing{}, err
	}
	now := s.now()
	if !u.Expiry.IsZero() && !now.Before(u.Expiry) {
		return domain.Pairing{}, fmt.Errorf("%w: uri expired at %s", domain.ErrPairingExpired, u.Expiry.UTC().Format(time.RFC3339))
	}
	existing, ok, err := s.store.Get(ctx, u.Topic)
	if err != nil {
		return domain.Pairing{}, err
	}
	if ok && existing.Active && !existing.Expired(now) {
		return domain.Pairing{}, domain.ErrPairingAlreadyExists
	}

	if err := s.keys.SetSymmetricKey(ctx, u.SymKey, u.Topic); err != nil {
		return domain.Pairing{}, fmt.Errorf("bind pairing key: %w", err)
	}
	p := domain.Pairing{
		Topic:   u.Topic,
		Relay:   u.Relay,
		Expiry:  now.Add(ActiveTTL),
		Active:  true,
		Methods: u.Methods,
	}
	if err := s.store.Save(ctx, p); err != nil {
		return domain.Pairing{}, err
	}
	s.mu.Lock()
	delete(s.dead, u.Topic)
	s.mu.Unlock()
	if err := s.net.Subscribe(ctx, u.Topic); err != nil {
		return domain.Pairing{}, err
	}
	s.log.Debug().Str("topic", u.Topic.String()).Msg("paired")
	return p, nil
}

// Get returns the pairing stored under topic.
func (s *Service) Get(ctx context.Context, topic domain.Topic) (domain.Pairing, error) {
	p, ok, err := s.store.Get(ctx, topic)
	if err != nil {
		return domain.Pairing{}, err
	}
	if !ok {
		return domain.Pairing{}, domain.ErrNoPairing
	}
	return p, nil
}

// All lists stored pairings.
func (s *Service) All(ctx context.Context) ([]domain.Pairing, error) { return s.store.All(ctx) }

// Activate marks the pairing as used and extends it to the active TTL.
func (s *Service) Activate(ctx context.Context, topic domain.Topic) error {
	p, err := s.Get(ctx, topic)
	if err != nil {
		return err
	}
	p.Active = true
	p.Expiry = s.now().Add(ActiveTTL)
	return s.store.Save(ctx, p)
}

// UpdateMetadata records the peer's metadata once it is known.
func (s *Service) UpdateMetadata(ctx context.Context, topic domain.Topic, md domain.AppMetadata) error {
	p, err := s.Get(ctx, topic)
	if err != nil {
		return err
	}
	p.PeerMetadata = &md
	return s.store.Save(ctx, p)
}

// Expire tears the pairing down locally: unsubscribe, forget the key and
// the record. Expiring an unknown topic is not an error.
func (s *Service) Expire(ctx context.Context, topic domain.Topic) error {
	s.mu.Lock()
	s.dead[topic] = struct{}{}
	s.mu.Unlock()

	var errs []error
	if err := s.net.Unsubscribe(ctx, topic); err != nil {
		errs = append(errs, err)
	}
	if err := s.keys.DeleteKey(ctx, topic); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Delete(ctx, topic); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Delete notifies the peer with wc_pairingDelete and expires the pairing.
// The notification is best effort.
func (s *Service) Delete(ctx context.Context, topic domain.Topic) error {
	if _, err := s.Get(ctx, topic); err != nil {
		return err
	}
	if _, _, err := s.net.Request(ctx, topic, rpc.MethodPairingDelete, domain.ReasonUserDisconnected, network.SendOptions{}); err != nil {
		s.log.Warn().Err(err).Str("topic", topic.String()).Msg("pairing delete notification failed")
	}
	return s.Expire(ctx, topic)
}

// Ping round-trips wc_pairingPing.
func (s *Service) Ping(ctx context.Context, topic domain.Topic, timeout time.Duration) error {
	if _, err := s.Get(ctx, topic); err != nil {
		return err
	}
	_, err := s.net.RequestAndWait(ctx, topic, rpc.MethodPairingPing, struct{}{}, timeout)
	return err
}

// Accept is the inbound guard: envelopes on expired or deleted pairing
// topics are refused. Topics that were never pairings pass.
func (s *Service) Accept(ctx context.Context, topic domain.Topic) error {
	s.mu.Lock()
	_, dead := s.dead[topic]
	s.mu.Unlock()
	if dead {
		return fmt.Errorf("%w: %s", domain.ErrNoPairing, topic)
	}
	p, ok, err := s.store.Get(ctx, topic)
	if err != nil || !ok {
		return err
	}
	if p.Expired(s.now()) {
		return fmt.Errorf("%w: %s", domain.ErrPairingExpired, topic)
	}
	return nil
}

// Sweep expires every pairing past its expiry and returns their topics.
func (s *Service) Sweep(ctx context.Context, now time.Time) ([]domain.Topic, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	var gone []domain.Topic
	for _, p := range all {
		if !p.Expired(now) {
			continue
		}
		if err := s.Expire(ctx, p.Topic); err != nil {
			return gone, err
		}
		gone = append(gone, p.Topic)
	}
	return gone, nil
}

func (s *Service) onPing(ctx context.Context, in network.Inbound) error {
	return s.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{})
}

func (s *Service) onDelete(ctx context.Context, in network.Inbound) error {
	if err := s.net.Respond(ctx, in.Topic, in.Request.ID, true, network.SendOptions{}); err != nil {
		s.log.Debug().Err(err).Msg("ack pairing delete")
	}
	if err := s.Expire(ctx, in.Topic); err != nil {
		return err
	}
	s.deletes.Send(in.Topic)
	return nil
}
