package domain

// DirectiveType identifies a side effect the engine asks the host to perform.
// The engine itself performs none of them; it only emits the ordered list.
type DirectiveType string

const (
	// DirectiveAudit records the transition in the audit log. Emitted on
	// every state change, before any user-facing directive.
	DirectiveAudit DirectiveType = "AUDIT"

	// DirectivePrompt asks the host to show a message to the user.
	DirectivePrompt DirectiveType = "PROMPT"

	// DirectiveClarify asks the host to re-prompt for a slot, optionally
	// presenting candidates. It does not change the workflow state.
	DirectiveClarify DirectiveType = "CLARIFY"

	// DirectivePersistEntity records a confirmed slot value on the session.
	DirectivePersistEntity DirectiveType = "PERSIST_ENTITY"

	// DirectiveInvokeEvaluator tells the controller which evaluator the
	// next turn requires.
	DirectiveInvokeEvaluator DirectiveType = "INVOKE_EVALUATOR"

	// DirectiveEscalate asks the coordinator to open an escalation case.
	DirectiveEscalate DirectiveType = "ESCALATE"

	// DirectiveCompleteOrder marks the refill as dispensed.
	DirectiveCompleteOrder DirectiveType = "COMPLETE_ORDER"
)

// Directive is one host-side effect requested by the engine.
type Directive struct {
	Type DirectiveType `json:"type"`

	// Prompt text for PROMPT and CLARIFY.
	Prompt string `json:"prompt,omitempty"`

	// Slot and Value for PERSIST_ENTITY; Slot alone for CLARIFY.
	Slot  string `json:"slot,omitempty"`
	Value string `json:"value,omitempty"`

	// Candidates for CLARIFY sub-turns driven by disambiguation.
	Candidates []string `json:"candidates,omitempty"`

	// Evaluator name for INVOKE_EVALUATOR.
	Evaluator string `json:"evaluator,omitempty"`

	// Reason for ESCALATE.
	Reason ReasonCode `json:"reason,omitempty"`

	// Trigger for AUDIT: the event intent or breaker reason code.
	Trigger string `json:"trigger,omitempty"`

	// Actor for AUDIT: which component produced the decision.
	Actor string `json:"actor,omitempty"`
}

// Actors recorded on audit directives.
const (
	ActorEngine  = "transition_engine"
	ActorBreaker = "circuit_breaker"
)
