package ports

import (
	"context"

	"github.com/aretw0/rxflow/pkg/domain"
)

// SessionStore persists workflow sessions. Entries expire on the store's
// TTL; every put refreshes the deadline so an active conversation never
// expires mid-turn.
type SessionStore interface {
	// Get retrieves the session for an ID.
	// Returns domain.ErrSessionNotFound if it does not exist or has expired.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Put persists the session unconditionally and refreshes its TTL.
	// The stored Version is incremented.
	Put(ctx context.Context, session *domain.Session) error

	// CompareAndPut persists the session only if the stored version still
	// equals expectedVersion. Returns domain.ErrStaleSession on mismatch.
	CompareAndPut(ctx context.Context, session *domain.Session, expectedVersion int64) error

	// Delete removes the session.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of live (unexpired) sessions.
	List(ctx context.Context) ([]string, error)
}

// EscalationStore persists escalation cases. Cases survive independently
// of session TTL: a reviewer may acknowledge long after the conversation
// expired.
type EscalationStore interface {
	// Save persists the case, creating or replacing it.
	Save(ctx context.Context, esc *domain.EscalationCase) error

	// Get retrieves a case by ID.
	// Returns domain.ErrEscalationNotFound if unknown.
	Get(ctx context.Context, escalationID string) (*domain.EscalationCase, error)
}
