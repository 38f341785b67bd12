package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/rxflow/pkg/domain"
)

// AuditLog implements ports.AuditLog on Redis: a per-session list of
// records guarded by SETNX idempotency tokens. No update or delete
// operations exist.
type AuditLog struct {
	client *backend.Client
	prefix string
}

// NewAuditLog creates a Redis audit log.
func NewAuditLog(client *backend.Client, prefix string) *AuditLog {
	if prefix == "" {
		prefix = "rxflow:"
	}
	return &AuditLog{client: client, prefix: prefix}
}

func (l *AuditLog) tokenKey(token string) string {
	return l.prefix + "audit:token:" + token
}

func (l *AuditLog) sessionKey(sessionID string) string {
	return l.prefix + "audit:session:" + sessionID
}

// Append claims the token with SETNX, then pushes the record onto the
// session's list. A claimed token means the record was already written.
func (l *AuditLog) Append(ctx context.Context, rec domain.AuditRecord, token string) error {
	claimed, err := l.client.SetNX(ctx, l.tokenKey(token), rec.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim audit token: %w", err)
	}
	if !claimed {
		return domain.ErrDuplicateToken
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := l.client.RPush(ctx, l.sessionKey(rec.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListBySession returns all records for a session in append order.
func (l *AuditLog) ListBySession(ctx context.Context, sessionID string) ([]domain.AuditRecord, error) {
	vals, err := l.client.LRange(ctx, l.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := make([]domain.AuditRecord, 0, len(vals))
	for _, val := range vals {
		var rec domain.AuditRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
