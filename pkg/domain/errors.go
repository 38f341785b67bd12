package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidTransition is returned when an event names a transition that the
// current state does not define. The session is left unchanged.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrStaleSession is returned when a turn detects that the session was
// mutated concurrently (version mismatch). The caller must reload and retry.
var ErrStaleSession = errors.New("stale session")

// ErrDuplicateToken is returned by the audit log when an idempotency token
// has already been appended. Callers treat this as success.
var ErrDuplicateToken = errors.New("duplicate idempotency token")

// ErrEscalationNotFound is returned when an escalation ID is unknown.
var ErrEscalationNotFound = errors.New("escalation not found")

// ErrEvaluatorUnavailable is returned when an evaluator times out or errors.
// It is recovered locally by converting to an UNAVAILABLE verdict, never
// surfaced raw to the caller.
var ErrEvaluatorUnavailable = errors.New("evaluator unavailable")
