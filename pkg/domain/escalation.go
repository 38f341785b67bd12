package domain

import "time"

// Role identifies the human reviewer an escalation is routed to.
type Role string

const (
	RolePhysician Role = "PHYSICIAN"
	RolePA        Role = "PA"
)

// EscalationStatus is the lifecycle of an escalation case.
type EscalationStatus string

const (
	EscalationPending      EscalationStatus = "PENDING"
	EscalationAcknowledged EscalationStatus = "ACKNOWLEDGED"
	EscalationResolved     EscalationStatus = "RESOLVED"
)

// ContextPackage is the minimized context handed to the reviewer.
// It is built from an explicit allow-list of fields; nothing outside
// these fields is ever copied out of the session.
type ContextPackage struct {
	PatientRef       string     `json:"patient_ref,omitempty"`
	DrugName         string     `json:"drug_name,omitempty"`
	Dose             string     `json:"dose,omitempty"`
	Quantity         string     `json:"quantity,omitempty"`
	Reason           ReasonCode `json:"reason"`
	UtteranceExcerpt string     `json:"utterance_excerpt,omitempty"`
}

// EscalationCase is created when a circuit breaker fires. It is owned by
// the Escalation Coordinator and survives independently of session TTL;
// the session references it by ID only.
type EscalationCase struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	ReasonCode ReasonCode       `json:"reason_code"`
	Context    ContextPackage   `json:"context"`
	TargetRole Role             `json:"target_role"`
	Status     EscalationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
