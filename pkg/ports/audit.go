package ports

import (
	"context"

	"github.com/aretw0/rxflow/pkg/domain"
)

// AuditLog is the append-only transition record. There is no update or
// delete operation, by contract.
type AuditLog interface {
	// Append writes a record keyed by an idempotency token.
	// Returns domain.ErrDuplicateToken if the token was already appended;
	// callers treat that as success (the original append stands).
	Append(ctx context.Context, rec domain.AuditRecord, token string) error

	// ListBySession returns all records for a session in append order.
	ListBySession(ctx context.Context, sessionID string) ([]domain.AuditRecord, error)
}
