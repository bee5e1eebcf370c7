package store

import (
	"context"
	"sync"

	"wcsign/internal/domain"
)

// SessionStore persists sessions keyed by topic.
type SessionStore struct {
	mu sync.Mutex
	c  collection[domain.Session]
}

// NewSessionStore returns a SessionStore over kv.
func NewSessionStore(kv domain.KeyValueStore) *SessionStore {
	return &SessionStore{c: collection[domain.Session]{kv: kv, prefix: "session/"}}
}

func (s *SessionStore) Save(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.put(ctx, sess.Topic.String(), sess)
}

// SetIfNewer keeps whichever copy has the later UpdatedAt. It reports
// whether sess was written.
func (s *SessionStore) SetIfNewer(ctx context.Context, sess domain.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.c.get(ctx, sess.Topic.String())
	if err != nil {
		return false, err
	}
	if ok && cur.UpdatedAt.After(sess.UpdatedAt) {
		return false, nil
	}
	return true, s.c.put(ctx, sess.Topic.String(), sess)
}

func (s *SessionStore) Get(ctx context.Context, topic domain.Topic) (domain.Session, bool, error) {
	return s.c.get(ctx, topic.String())
}

func (s *SessionStore) All(ctx context.Context) ([]domain.Session, error) {
	return s.c.all(ctx)
}

func (s *SessionStore) Delete(ctx context.Context, topic domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.del(ctx, topic.String())
}

// DeleteByPairing removes every session spawned from pairingTopic and
// returns their topics.
func (s *SessionStore) DeleteByPairing(ctx context.Context, pairingTopic domain.Topic) ([]domain.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.c.all(ctx)
	if err != nil {
		return nil, err
	}
	var removed []domain.Topic
	for _, sess := range all {
		if sess.PairingTopic != pairingTopic {
			continue
		}
		if err := s.c.del(ctx, sess.Topic.String()); err != nil {
			return removed, err
		}
		removed = append(removed, sess.Topic)
	}
	return removed, nil
}

// Acknowledge marks the session as confirmed by the peer.
func (s *SessionStore) Acknowledge(ctx context.Context, topic domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok, err := s.c.get(ctx, topic.String())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNoSession
	}
	sess.Acknowledged = true
	return s.c.put(ctx, topic.String(), sess)
}

// Compile-time assertion that SessionStore implements domain.SessionStore.
var _ domain.SessionStore = (*SessionStore)(nil)
