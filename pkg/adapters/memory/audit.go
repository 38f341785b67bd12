package memory

import (
	"context"
	"sync"

	"github.com/aretw0/rxflow/pkg/domain"
)

// AuditLog implements ports.AuditLog in memory. Appends are keyed by
// idempotency token; there is no update or delete.
type AuditLog struct {
	mu      sync.RWMutex
	records []domain.AuditRecord
	tokens  map[string]struct{}
}

// NewAuditLog creates a new in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{tokens: make(map[string]struct{})}
}

// Append writes a record unless its token was already used.
func (l *AuditLog) Append(ctx context.Context, rec domain.AuditRecord, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.tokens[token]; seen {
		return domain.ErrDuplicateToken
	}
	l.tokens[token] = struct{}{}
	l.records = append(l.records, rec)
	return nil
}

// ListBySession returns all records for a session in append order.
func (l *AuditLog) ListBySession(ctx context.Context, sessionID string) ([]domain.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.AuditRecord
	for _, rec := range l.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the total number of records. Used in tests.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
