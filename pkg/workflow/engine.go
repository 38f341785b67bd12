package workflow

import (
	"fmt"

	"github.com/aretw0/rxflow/pkg/domain"
)

// validTransitions defines the legal state transitions. Each key is a
// source state, the value the set of valid targets. Self-loops (clarify
// sub-turns) are not transitions and are not listed.
var validTransitions = map[domain.State]map[domain.State]bool{
	domain.StateCollectRequest: {
		domain.StateSafetyCheck:     true,
		domain.StateEscalateHandoff: true,
	},
	domain.StateSafetyCheck: {
		domain.StateBackendCheck:    true,
		domain.StateEscalateHandoff: true,
	},
	domain.StateBackendCheck: {
		domain.StateDispensed:        true,
		domain.StatePAApprovalNeeded: true,
		domain.StateEscalateHandoff:  true,
	},
	domain.StatePAApprovalNeeded: {
		domain.StateEscalateHandoff: true,
	},
	domain.StateEscalateHandoff: {
		domain.StateEscalationComplete: true,
	},
}

// IsValidTransition checks if a state transition is legal.
func IsValidTransition(from, to domain.State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Engine computes state transitions. It is a pure mapping from
// (state, event, verdicts) to (next state, directives): identical inputs
// always yield identical outputs, which is what makes turn replays safe.
// The breaker policy is evaluated first, so forced escalations always
// take precedence over the nominal table.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine with the given breaker policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy exposes the breaker policy the engine evaluates.
func (e *Engine) Policy() Policy { return e.policy }

// Advance computes the next state and the ordered directive list for one
// event against a read-only session snapshot. The session is never
// mutated here; directives are applied by the Session Controller.
//
// An event naming a transition the current state does not define is
// rejected with domain.ErrInvalidTransition.
func (e *Engine) Advance(sess *domain.Session, ev domain.TransitionEvent) (domain.State, []domain.Directive, error) {
	if !sess.CurrentState.Valid() {
		return "", nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidTransition, sess.CurrentState)
	}
	if sess.CurrentState.Terminal() {
		return "", nil, fmt.Errorf("%w: session is terminal in %s", domain.ErrInvalidTransition, sess.CurrentState)
	}

	// Breaker precedence: a fired trigger forces ESCALATE_HANDOFF no
	// matter what the nominal table would select.
	if d := e.policy.Evaluate(sess, ev); d.Fired {
		return e.escalate(sess, d.Reason)
	} else if d.Clarify {
		return sess.CurrentState, []domain.Directive{{
			Type:   domain.DirectiveClarify,
			Slot:   domain.SlotTurn,
			Prompt: "Could you rephrase that? I want to make sure I understood your request.",
		}}, nil
	}

	switch sess.CurrentState {
	case domain.StateCollectRequest:
		return e.advanceCollect(sess, ev)
	case domain.StateSafetyCheck:
		return e.advanceSafety(sess, ev)
	case domain.StateBackendCheck:
		return e.advanceBackend(sess, ev)
	case domain.StatePAApprovalNeeded:
		return e.advancePriorAuth(sess, ev)
	case domain.StateEscalateHandoff:
		return e.advanceHandoff(sess, ev)
	}
	return "", nil, fmt.Errorf("%w: no transitions from %s", domain.ErrInvalidTransition, sess.CurrentState)
}

// escalate builds the forced-escalation result shared by every breaker path.
func (e *Engine) escalate(sess *domain.Session, reason domain.ReasonCode) (domain.State, []domain.Directive, error) {
	next := domain.StateEscalateHandoff
	if sess.CurrentState == next {
		// Already handed off; a second trigger only re-prompts.
		return next, []domain.Directive{{
			Type:   domain.DirectivePrompt,
			Prompt: "Your request is with a reviewer. You will be notified once it is handled.",
		}}, nil
	}
	if !IsValidTransition(sess.CurrentState, next) {
		return "", nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, sess.CurrentState, next)
	}
	return next, []domain.Directive{
		{Type: domain.DirectiveAudit, Trigger: string(reason), Actor: domain.ActorBreaker},
		{Type: domain.DirectiveEscalate, Reason: reason},
		{Type: domain.DirectivePrompt, Prompt: "Your request needs a human review. A clinician has been notified."},
	}, nil
}

func (e *Engine) advanceCollect(sess *domain.Session, ev domain.TransitionEvent) (domain.State, []domain.Directive, error) {
	switch ev.Intent {
	case domain.IntentRequestRefill, domain.IntentClarification:
	case domain.IntentStatusInquiry:
		return sess.CurrentState, []domain.Directive{{
			Type:   domain.DirectivePrompt,
			Prompt: "Your refill request is still being collected.",
		}}, nil
	default:
		return "", nil, fmt.Errorf("%w: intent %s not accepted in %s", domain.ErrInvalidTransition, ev.Intent, sess.CurrentState)
	}

	// Merge the turn's entities over what the session already holds to
	// evaluate completeness; persistence happens via directives.
	merged := make(map[string]string, len(sess.Entities)+len(ev.Entities))
	for k, v := range sess.Entities {
		merged[k] = v
	}
	// Malformed values are never merged or persisted: they clarify until
	// the slot's retry budget runs out, then force MAX_RETRIES.
	var directives []domain.Directive
	var badSlot, badPrompt string
	for _, slot := range []string{domain.SlotPatientID, domain.SlotDrugName, domain.SlotDose, domain.SlotQuantity, domain.SlotFrequency} {
		v, ok := ev.Entities[slot]
		if !ok || v == "" {
			continue
		}
		if err := domain.ValidateSlotValue(slot, v); err != nil {
			if badSlot == "" {
				badSlot, badPrompt = slot, err.Error()
			}
			continue
		}
		merged[slot] = v
		directives = append(directives, domain.Directive{
			Type: domain.DirectivePersistEntity, Slot: slot, Value: v,
		})
	}
	if badSlot != "" {
		if sess.Retries(badSlot) >= e.policy.MaxRetries {
			return e.escalate(sess, domain.ReasonMaxRetries)
		}
		return sess.CurrentState, append(directives, domain.Directive{
			Type:   domain.DirectiveClarify,
			Slot:   badSlot,
			Prompt: badPrompt,
		}), nil
	}

	slots, err := domain.DecodeSlots(merged)
	if err != nil {
		return "", nil, err
	}
	if err := slots.Validate(); err != nil {
		// A stored value that predates per-value validation; same budget.
		slot := invalidSlot(slots)
		if sess.Retries(slot) >= e.policy.MaxRetries {
			return e.escalate(sess, domain.ReasonMaxRetries)
		}
		return sess.CurrentState, append(directives, domain.Directive{
			Type:   domain.DirectiveClarify,
			Slot:   slot,
			Prompt: err.Error(),
		}), nil
	}

	if missing := slots.Missing(); len(missing) > 0 {
		return sess.CurrentState, append(directives, domain.Directive{
			Type:   domain.DirectiveClarify,
			Slot:   missing[0],
			Prompt: fmt.Sprintf("Please provide the %s for this refill.", missing[0]),
		}), nil
	}

	// Entities complete. Identity must be confirmed before leaving.
	v, ok := ev.Verdict(domain.EvaluatorIdentity)
	if !ok {
		return sess.CurrentState, append(directives, domain.Directive{
			Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorIdentity,
		}), nil
	}
	if v.Outcome != domain.OutcomePass {
		// Non-PASS identity is a breaker trigger; reaching here means the
		// policy was bypassed, which is a programming error.
		return "", nil, fmt.Errorf("%w: identity verdict %s not handled by breaker", domain.ErrInvalidTransition, v.Outcome)
	}

	directives = append(directives,
		domain.Directive{Type: domain.DirectiveAudit, Trigger: string(ev.Intent), Actor: domain.ActorEngine},
		domain.Directive{Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorAllergy},
		domain.Directive{Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorInteraction},
		domain.Directive{Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorDosage},
		domain.Directive{Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorControlled},
	)
	return domain.StateSafetyCheck, directives, nil
}

func (e *Engine) advanceSafety(sess *domain.Session, ev domain.TransitionEvent) (domain.State, []domain.Directive, error) {
	// All four safety evaluators must report PASS. Any FAIL,
	// REQUIRES_ESCALATION or UNAVAILABLE was already diverted by the
	// breaker; a missing verdict means the check still has to run.
	for _, name := range []string{domain.EvaluatorAllergy, domain.EvaluatorInteraction, domain.EvaluatorDosage, domain.EvaluatorControlled} {
		v, ok := ev.Verdict(name)
		if !ok {
			return sess.CurrentState, []domain.Directive{{
				Type: domain.DirectiveInvokeEvaluator, Evaluator: name,
			}}, nil
		}
		if v.Outcome != domain.OutcomePass {
			return "", nil, fmt.Errorf("%w: %s verdict %s not handled by breaker", domain.ErrInvalidTransition, name, v.Outcome)
		}
	}
	return domain.StateBackendCheck, []domain.Directive{
		{Type: domain.DirectiveAudit, Trigger: string(ev.Intent), Actor: domain.ActorEngine},
		{Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorBackend},
	}, nil
}

func (e *Engine) advanceBackend(sess *domain.Session, ev domain.TransitionEvent) (domain.State, []domain.Directive, error) {
	v, ok := ev.Verdict(domain.EvaluatorBackend)
	if !ok {
		return sess.CurrentState, []domain.Directive{{
			Type: domain.DirectiveInvokeEvaluator, Evaluator: domain.EvaluatorBackend,
		}}, nil
	}
	if v.Outcome != domain.OutcomePass {
		return "", nil, fmt.Errorf("%w: backend verdict %s not handled by breaker", domain.ErrInvalidTransition, v.Outcome)
	}

	if paRequired, _ := v.Detail["pa_required"].(bool); paRequired {
		return domain.StatePAApprovalNeeded, []domain.Directive{
			{Type: domain.DirectiveAudit, Trigger: string(ev.Intent), Actor: domain.ActorEngine},
			{Type: domain.DirectivePrompt, Prompt: "This medication requires prior authorization. Routing to your care team."},
		}, nil
	}

	orderID, _ := v.Detail["order_id"].(string)
	return domain.StateDispensed, []domain.Directive{
		{Type: domain.DirectiveAudit, Trigger: string(ev.Intent), Actor: domain.ActorEngine},
		{Type: domain.DirectiveCompleteOrder, Value: orderID},
		{Type: domain.DirectivePrompt, Prompt: "Your refill has been processed."},
	}, nil
}

func (e *Engine) advancePriorAuth(sess *domain.Session, ev domain.TransitionEvent) (domain.State, []domain.Directive, error) {
	// Routing resolved: the prior-auth handoff becomes a formal
	// escalation to the PA role.
	return domain.StateEscalateHandoff, []domain.Directive{
		{Type: domain.DirectiveAudit, Trigger: string(domain.ReasonPriorAuth), Actor: domain.ActorEngine},
		{Type: domain.DirectiveEscalate, Reason: domain.ReasonPriorAuth},
		{Type: domain.DirectivePrompt, Prompt: "Your care team has been asked to authorize this refill."},
	}, nil
}

func (e *Engine) advanceHandoff(sess *domain.Session, ev domain.TransitionEvent) (domain.State, []domain.Directive, error) {
	if ev.Intent == domain.IntentAcknowledge {
		return domain.StateEscalationComplete, []domain.Directive{
			{Type: domain.DirectiveAudit, Trigger: string(ev.Intent), Actor: domain.ActorEngine},
			{Type: domain.DirectivePrompt, Prompt: "A reviewer has taken over your request."},
		}, nil
	}
	return sess.CurrentState, []domain.Directive{{
		Type:   domain.DirectivePrompt,
		Prompt: "Your request is with a reviewer. You will be notified once it is handled.",
	}}, nil
}

// invalidSlot picks the slot a validation error most likely refers to.
func invalidSlot(s domain.RefillSlots) string {
	if s.PatientID != "" {
		if err := (domain.RefillSlots{PatientID: s.PatientID}).Validate(); err != nil {
			return domain.SlotPatientID
		}
	}
	if s.Dose != "" {
		if err := (domain.RefillSlots{Dose: s.Dose}).Validate(); err != nil {
			return domain.SlotDose
		}
	}
	return domain.SlotQuantity
}
