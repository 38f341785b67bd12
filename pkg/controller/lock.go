package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/rxflow/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// sessionLocks serializes turns for the same session within one process,
// using reference counting to garbage collect unused locks. An optional
// distributed locker extends the single-writer discipline across replicas.
type sessionLocks struct {
	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

func newSessionLocks(locker ports.DistributedLocker, lockTTL time.Duration, logger *slog.Logger) *sessionLocks {
	return &sessionLocks{
		locks:   make(map[string]*lockEntry),
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// acquire gets or creates a lock entry and increments its reference count.
func (s *sessionLocks) acquire(sessionID string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		s.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (s *sessionLocks) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.locks, sessionID)
	}
}

// withLock executes fn while holding the per-session lock (and the
// distributed lock, when configured). The lock spans load through
// persistence and audit commit, so a session is never mutated twice
// concurrently.
func (s *sessionLocks) withLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := s.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.release(sessionID)
	}()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, sessionID, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				s.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
