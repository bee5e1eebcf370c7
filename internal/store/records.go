package store

import (
	"context"
	"strconv"

	"wcsign/internal/domain"
)

// PairingStore persists pairings keyed by topic.
type PairingStore struct{ c collection[domain.Pairing] }

// NewPairingStore returns a PairingStore over kv.
func NewPairingStore(kv domain.KeyValueStore) *PairingStore {
	return &PairingStore{c: collection[domain.Pairing]{kv: kv, prefix: "pairing/"}}
}

func (s *PairingStore) Save(ctx context.Context, p domain.Pairing) error {
	return s.c.put(ctx, p.Topic.String(), p)
}

func (s *PairingStore) Get(ctx context.Context, topic domain.Topic) (domain.Pairing, bool, error) {
	return s.c.get(ctx, topic.String())
}

func (s *PairingStore) All(ctx context.Context) ([]domain.Pairing, error) { return s.c.all(ctx) }

func (s *PairingStore) Delete(ctx context.Context, topic domain.Topic) error {
	return s.c.del(ctx, topic.String())
}

// ProposalStore persists session proposals keyed by proposer public key.
type ProposalStore struct{ c collection[domain.Proposal] }

// NewProposalStore returns a ProposalStore over kv.
func NewProposalStore(kv domain.KeyValueStore) *ProposalStore {
	return &ProposalStore{c: collection[domain.Proposal]{kv: kv, prefix: "proposal/"}}
}

func (s *ProposalStore) Save(ctx context.Context, p domain.Proposal) error {
	return s.c.put(ctx, p.ID, p)
}

func (s *ProposalStore) Get(ctx context.Context, id string) (domain.Proposal, bool, error) {
	return s.c.get(ctx, id)
}

func (s *ProposalStore) All(ctx context.Context) ([]domain.Proposal, error) { return s.c.all(ctx) }

func (s *ProposalStore) Delete(ctx context.Context, id string) error { return s.c.del(ctx, id) }

// AuthRequestStore persists authenticate requests keyed by RPC id.
type AuthRequestStore struct{ c collection[domain.AuthRequest] }

// NewAuthRequestStore returns an AuthRequestStore over kv.
func NewAuthRequestStore(kv domain.KeyValueStore) *AuthRequestStore {
	return &AuthRequestStore{c: collection[domain.AuthRequest]{kv: kv, prefix: "authreq/"}}
}

func (s *AuthRequestStore) Save(ctx context.Context, r domain.AuthRequest) error {
	return s.c.put(ctx, strconv.FormatInt(r.ID, 10), r)
}

func (s *AuthRequestStore) Get(ctx context.Context, id int64) (domain.AuthRequest, bool, error) {
	return s.c.get(ctx, strconv.FormatInt(id, 10))
}

func (s *AuthRequestStore) All(ctx context.Context) ([]domain.AuthRequest, error) {
	return s.c.all(ctx)
}

func (s *AuthRequestStore) Delete(ctx context.Context, id int64) error {
	return s.c.del(ctx, strconv.FormatInt(id, 10))
}

var (
	_ domain.PairingStore     = (*PairingStore)(nil)
	_ domain.ProposalStore    = (*ProposalStore)(nil)
	_ domain.AuthRequestStore = (*AuthRequestStore)(nil)
)
