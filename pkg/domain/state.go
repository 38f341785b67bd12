package domain

import "time"

// State is a workflow state. The set is closed: the engine only ever
// returns members of this enum, and the transition table is static.
type State string

const (
	StateCollectRequest     State = "COLLECT_REQUEST"
	StateSafetyCheck        State = "SAFETY_CHECK"
	StateBackendCheck       State = "BACKEND_CHECK"
	StateDispensed          State = "DISPENSED"
	StatePAApprovalNeeded   State = "PA_APPROVAL_NEEDED"
	StateEscalateHandoff    State = "ESCALATE_HANDOFF"
	StateEscalationComplete State = "ESCALATION_COMPLETE"
)

// Valid reports whether s is a member of the defined state set.
func (s State) Valid() bool {
	switch s {
	case StateCollectRequest, StateSafetyCheck, StateBackendCheck,
		StateDispensed, StatePAApprovalNeeded,
		StateEscalateHandoff, StateEscalationComplete:
		return true
	}
	return false
}

// Terminal reports whether the state ends the conversation.
func (s State) Terminal() bool {
	return s == StateDispensed || s == StateEscalationComplete
}

// Session represents one conversation's workflow state. It is mutated
// exactly once per turn by the Session Controller, under the per-session
// lock, and persisted through ports.SessionStore.
type Session struct {
	// ID is the conversation identifier.
	ID string `json:"id"`

	// CurrentState is always a member of the defined state set.
	CurrentState State `json:"current_state"`

	// PatientRef is an opaque patient identifier (MRN). It is unverified
	// until the identity evaluator confirms it.
	PatientRef string `json:"patient_ref,omitempty"`

	// Entities maps slot name to collected value.
	Entities map[string]string `json:"entities"`

	// RetryCounts tracks clarification retries per slot. The pseudo-slot
	// "turn" counts turn-level clarify retries. Counters reset when the
	// slot fills successfully.
	RetryCounts map[string]int `json:"retry_counts"`

	// ConfidenceHistory holds the confidence of recent turns, oldest first.
	ConfidenceHistory []float64 `json:"confidence_history"`

	// EscalationID references the open escalation case, if any. The case
	// itself is owned by the Escalation Coordinator and survives session TTL.
	EscalationID string `json:"escalation_id,omitempty"`

	// OrderID is set when the backend dispenses the refill.
	OrderID string `json:"order_id,omitempty"`

	// TurnSeq is the sequence number of the last applied turn.
	TurnSeq int `json:"turn_seq"`

	// LastOutput is the response of the last applied turn, kept for
	// idempotent replay of a duplicated turn.
	LastOutput *TurnOutput `json:"last_output,omitempty"`

	// Version supports optimistic concurrency (compare-and-put).
	// Incremented by the store on every successful put.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a clean session starting at COLLECT_REQUEST.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CurrentState: StateCollectRequest,
		Entities:     make(map[string]string),
		RetryCounts:  make(map[string]int),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so a turn can work on a snapshot without
// mutating the loaded session before commit.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Entities = make(map[string]string, len(s.Entities))
	for k, v := range s.Entities {
		cp.Entities[k] = v
	}
	cp.RetryCounts = make(map[string]int, len(s.RetryCounts))
	for k, v := range s.RetryCounts {
		cp.RetryCounts[k] = v
	}
	cp.ConfidenceHistory = append([]float64(nil), s.ConfidenceHistory...)
	if s.LastOutput != nil {
		out := *s.LastOutput
		cp.LastOutput = &out
	}
	return &cp
}

// Retries returns the retry counter for a slot.
func (s *Session) Retries(slot string) int {
	return s.RetryCounts[slot]
}
