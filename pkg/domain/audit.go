package domain

import (
	"fmt"
	"time"
)

// AuditRecord is the immutable record of one state transition.
// Records are append-only: the core never updates or deletes them.
type AuditRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	FromState State     `json:"from_state"`
	ToState   State     `json:"to_state"`
	// Trigger is the event intent or, for breaker transitions, the reason code.
	Trigger   string    `json:"trigger"`
	Actor     string    `json:"actor"`
	TurnSeq   int       `json:"turn_seq"`
	Timestamp time.Time `json:"timestamp"`
}

// IdempotencyToken derives the per-turn token that keys audit appends.
// The same (session, turn) pair always yields the same token, so a
// replayed turn is rejected by the log instead of appended twice.
func IdempotencyToken(sessionID string, turnSeq int) string {
	return fmt.Sprintf("%s:%d", sessionID, turnSeq)
}
