package interfaces

import (
	"context"

	domaintypes "wcsign/internal/domain/types"
)

// KeyValueStore is the persistence collaborator. Writes are last-write-wins
// per key; there are no transactions.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Keychain holds secret material. Read returns ErrKeyNotFound for unknown keys.
type Keychain interface {
	Add(ctx context.Context, key string, secret []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SessionStore persists settled sessions.
type SessionStore interface {
	Save(ctx context.Context, s domaintypes.Session) error
	// SetIfNewer stores s unless a stored copy has a later UpdatedAt.
	SetIfNewer(ctx context.Context, s domaintypes.Session) (bool, error)
	Get(ctx context.Context, topic domaintypes.Topic) (domaintypes.Session, bool, error)
	All(ctx context.Context) ([]domaintypes.Session, error)
	Delete(ctx context.Context, topic domaintypes.Topic) error
	DeleteByPairing(ctx context.Context, pairingTopic domaintypes.Topic) ([]domaintypes.Topic, error)
	Acknowledge(ctx context.Context, topic domaintypes.Topic) error
}

// PairingStore persists pairings.
type PairingStore interface {
	Save(ctx context.Context, p domaintypes.Pairing) error
	Get(ctx context.Context, topic domaintypes.Topic) (domaintypes.Pairing, bool, error)
	All(ctx context.Context) ([]domaintypes.Pairing, error)
	Delete(ctx context.Context, topic domaintypes.Topic) error
}

// ProposalStore persists session proposals keyed by proposer public key.
type ProposalStore interface {
	Save(ctx context.Context, p domaintypes.Proposal) error
	Get(ctx context.Context, id string) (domaintypes.Proposal, bool, error)
	All(ctx context.Context) ([]domaintypes.Proposal, error)
	Delete(ctx context.Context, id string) error
}

// AuthRequestStore persists authenticate requests keyed by RPC id.
type AuthRequestStore interface {
	Save(ctx context.Context, r domaintypes.AuthRequest) error
	Get(ctx context.Context, id int64) (domaintypes.AuthRequest, bool, error)
	All(ctx context.Context) ([]domaintypes.AuthRequest, error)
	Delete(ctx context.Context, id int64) error
}
