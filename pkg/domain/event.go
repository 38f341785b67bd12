package domain

// Intent is the classified intent of an utterance, produced by the
// upstream NLU layer. The core never inspects raw text.
type Intent string

const (
	IntentRequestRefill Intent = "RequestRefill"
	IntentCancelRequest Intent = "CancelRequest"
	IntentStatusInquiry Intent = "StatusInquiry"
	IntentClarification Intent = "Clarification"
	IntentAcknowledge   Intent = "Acknowledge"
)

// Outcome classifies an evaluator verdict.
type Outcome string

const (
	OutcomePass               Outcome = "PASS"
	OutcomeFail               Outcome = "FAIL"
	OutcomeRequiresEscalation Outcome = "REQUIRES_ESCALATION"
	OutcomeUnavailable        Outcome = "UNAVAILABLE"
)

// Verdict is the structured outcome of a safety or availability check.
// Non-PASS outcomes always carry a reason code. Verdicts are consumed by
// the breaker policy and the engine and never mutated.
type Verdict struct {
	Outcome    Outcome        `json:"outcome"`
	ReasonCode ReasonCode     `json:"reason_code,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Pass is the zero-reason PASS verdict.
func Pass() Verdict { return Verdict{Outcome: OutcomePass} }

// Unavailable builds the verdict a timed-out or failed evaluator maps to.
func Unavailable(reason ReasonCode) Verdict {
	return Verdict{Outcome: OutcomeUnavailable, ReasonCode: reason}
}

// Evaluator names used as keys in TransitionEvent.Verdicts.
const (
	EvaluatorIdentity       = "identity"
	EvaluatorAllergy        = "allergy"
	EvaluatorInteraction    = "interaction"
	EvaluatorDosage         = "dosage"
	EvaluatorControlled     = "controlled_substance"
	EvaluatorDisambiguation = "disambiguation"
	EvaluatorBackend        = "backend"
)

// TransitionEvent is the input that drives one state change. It is
// immutable once constructed for a turn, which is what makes replays safe.
type TransitionEvent struct {
	Intent Intent `json:"intent"`

	// Confidence is in [0,1]. States that gate on it treat absence as 0.
	Confidence float64 `json:"confidence"`

	// Entities are the slot values extracted for this turn.
	Entities map[string]string `json:"entities,omitempty"`

	// Verdicts maps evaluator name to its verdict for this turn.
	Verdicts map[string]Verdict `json:"verdicts,omitempty"`

	TurnSeq int `json:"turn_seq"`
}

// Verdict returns the named verdict, or a PASS-free zero value with ok=false
// when the evaluator did not run this turn.
func (e TransitionEvent) Verdict(name string) (Verdict, bool) {
	v, ok := e.Verdicts[name]
	return v, ok
}
