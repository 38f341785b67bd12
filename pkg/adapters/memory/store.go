// Package memory provides in-memory adapters for the session store, the
// audit log and the escalation store. Safe for concurrent use; intended
// for tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/rxflow/pkg/domain"
)

type sessionEntry struct {
	sess     *domain.Session
	deadline time.Time // zero means no expiry
}

// SessionStore implements ports.SessionStore in memory.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*sessionEntry
	ttl  time.Duration
	now  func() time.Time
}

// StoreOption configures the SessionStore.
type StoreOption func(*SessionStore)

// WithTTL sets the expiration for sessions. Zero disables expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *SessionStore) { s.ttl = ttl }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore(opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		data: make(map[string]*sessionEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a deep copy of the session, or ErrSessionNotFound when
// missing or expired. Expired entries are pruned lazily.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !entry.deadline.IsZero() && s.now().After(entry.deadline) {
		delete(s.data, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	return entry.sess.Clone(), nil
}

// Put persists the session unconditionally, bumping its version and
// refreshing the TTL deadline.
func (s *SessionStore) Put(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := session.Clone()
	if entry, ok := s.data[session.ID]; ok {
		cp.Version = entry.sess.Version + 1
	} else {
		cp.Version = 1
	}
	session.Version = cp.Version
	s.data[session.ID] = &sessionEntry{sess: cp, deadline: s.deadline()}
	return nil
}

// CompareAndPut persists only if the stored version still matches.
func (s *SessionStore) CompareAndPut(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if entry.sess.Version != expectedVersion {
		return domain.ErrStaleSession
	}

	cp := session.Clone()
	cp.Version = expectedVersion + 1
	session.Version = cp.Version
	s.data[session.ID] = &sessionEntry{sess: cp, deadline: s.deadline()}
	return nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns live session IDs, pruning expired entries.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids := make([]string, 0, len(s.data))
	for id, entry := range s.data {
		if !entry.deadline.IsZero() && now.After(entry.deadline) {
			delete(s.data, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SessionStore) deadline() time.Time {
	if s.ttl == 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

// EscalationStore implements ports.EscalationStore in memory. Cases do
// not expire: they must survive session TTL.
type EscalationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EscalationCase
}

// NewEscalationStore creates a new in-memory escalation store.
func NewEscalationStore() *EscalationStore {
	return &EscalationStore{data: make(map[string]*domain.EscalationCase)}
}

// Save persists the case.
func (s *EscalationStore) Save(ctx context.Context, esc *domain.EscalationCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *esc
	s.data[esc.ID] = &cp
	return nil
}

// Get retrieves a case by ID.
func (s *EscalationStore) Get(ctx context.Context, escalationID string) (*domain.EscalationCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	esc, ok := s.data[escalationID]
	if !ok {
		return nil, domain.ErrEscalationNotFound
	}
	cp := *esc
	return &cp, nil
}
