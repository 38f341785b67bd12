package ports

import (
	"context"

	"github.com/aretw0/rxflow/pkg/domain"
)

// EvaluatorRequest carries the session fields relevant to one check.
// Evaluators never receive the whole session.
type EvaluatorRequest struct {
	SessionID  string
	PatientRef string
	Slots      domain.RefillSlots
}

// Evaluator is a single safety or availability check. Implementations must
// respond within the caller's context deadline; the controller converts
// expiry into an UNAVAILABLE verdict.
//
// The engine never depends on which concrete evaluator produced a verdict;
// the uniform verdict shape is the whole interface.
type Evaluator interface {
	// Name is the stable key used in TransitionEvent.Verdicts.
	Name() string

	// Evaluate runs the check and returns a verdict. Non-PASS outcomes
	// carry a mandatory reason code.
	Evaluate(ctx context.Context, req EvaluatorRequest) (domain.Verdict, error)
}

// Candidate is one disambiguation match with its similarity score.
type Candidate struct {
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

// Resolver maps a free-text entity value to ranked known candidates,
// highest score first.
type Resolver interface {
	Resolve(ctx context.Context, value string) ([]Candidate, error)
}

// BackendResult is the pharmacy backend's answer for a refill.
type BackendResult struct {
	Available  bool   `json:"available"`
	PARequired bool   `json:"pa_required"`
	OrderID    string `json:"order_id,omitempty"`
}

// BackendConnector checks inventory and prior-authorization status and,
// when clear, reserves the order. Timeouts and open availability breakers
// surface as domain.ErrEvaluatorUnavailable.
type BackendConnector interface {
	CheckAndReserve(ctx context.Context, req EvaluatorRequest) (BackendResult, error)
}

// Notifier delivers an escalation to the human reviewer channel.
type Notifier interface {
	Notify(ctx context.Context, esc domain.EscalationCase) error
}
