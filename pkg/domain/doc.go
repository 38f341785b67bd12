// Package domain contains the core types of the refill workflow:
// the session snapshot, transition events, evaluator verdicts,
// audit records and escalation cases.
//
// Types here carry no behavior beyond construction and validation.
// All decision logic lives in pkg/workflow; all I/O lives behind
// the interfaces in pkg/ports.
package domain
