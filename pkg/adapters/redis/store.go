// Package redis provides Redis-backed adapters: the session store with
// TTL and optimistic concurrency, the append-only audit log, and the
// distributed session locker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/rxflow/pkg/domain"
)

// Store implements ports.SessionStore and ports.EscalationStore on Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for sessions. Escalation cases never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "rxflow:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "session:index"
}

func (s *Store) escalationKey(id string) string {
	return s.prefix + "escalation:" + id
}

// Get retrieves the session from Redis.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Put persists the session unconditionally, bumping its version and
// refreshing the TTL. The caller's session has its Version updated.
func (s *Store) Put(ctx context.Context, session *domain.Session) error {
	cur, err := s.Get(ctx, session.ID)
	switch {
	case err == nil:
		session.Version = cur.Version + 1
	case errors.Is(err, domain.ErrSessionNotFound):
		session.Version = 1
	default:
		return err
	}
	return s.write(ctx, session)
}

// CompareAndPut persists the session only if the stored version still
// matches expectedVersion, using a WATCH transaction.
func (s *Store) CompareAndPut(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	key := s.sessionKey(session.ID)

	txf := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, backend.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get from redis: %w", err)
		}

		var cur domain.Session
		if err := json.Unmarshal([]byte(val), &cur); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if cur.Version != expectedVersion {
			return domain.ErrStaleSession
		}

		session.Version = expectedVersion + 1
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{
				Score:  s.indexScore(),
				Member: session.ID,
			})
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, backend.TxFailedErr) {
		// Another writer slipped in between read and commit.
		return domain.ErrStaleSession
	}
	return err
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live sessions from the ZSET index, lazily pruning expired
// members.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Save persists an escalation case. Cases carry no TTL: they must
// survive session expiry.
func (s *Store) Save(ctx context.Context, esc *domain.EscalationCase) error {
	data, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}
	if err := s.client.Set(ctx, s.escalationKey(esc.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save escalation: %w", err)
	}
	return nil
}

// GetEscalation retrieves a case by ID. Named to avoid clashing with the
// session Get on the shared Store type; ports.EscalationStore is
// satisfied by the Escalations view.
func (s *Store) GetEscalation(ctx context.Context, escalationID string) (*domain.EscalationCase, error) {
	val, err := s.client.Get(ctx, s.escalationKey(escalationID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrEscalationNotFound
		}
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}

	var esc domain.EscalationCase
	if err := json.Unmarshal([]byte(val), &esc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal escalation: %w", err)
	}
	return &esc, nil
}

// Escalations returns the ports.EscalationStore view of this store.
func (s *Store) Escalations() *EscalationView {
	return &EscalationView{store: s}
}

// EscalationView adapts Store to ports.EscalationStore.
type EscalationView struct {
	store *Store
}

// Save persists the case.
func (v *EscalationView) Save(ctx context.Context, esc *domain.EscalationCase) error {
	return v.store.Save(ctx, esc)
}

// Get retrieves a case by ID.
func (v *EscalationView) Get(ctx context.Context, escalationID string) (*domain.EscalationCase, error) {
	return v.store.GetEscalation(ctx, escalationID)
}

// write stores the session JSON and updates the ZSET index.
func (s *Store) write(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  s.indexScore(),
		Member: session.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// indexScore is the expiry instant used for lazy index pruning.
func (s *Store) indexScore() float64 {
	if s.ttl == 0 {
		return 4102444800 // 2100-01-01, far enough
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
