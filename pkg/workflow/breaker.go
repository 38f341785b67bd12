package workflow

import (
	"sort"

	"github.com/aretw0/rxflow/pkg/domain"
)

// Default thresholds for the breaker policy.
const (
	DefaultConfidenceFloor = 0.70
	DefaultClarifyCeiling  = 0.85
	DefaultMaxRetries      = 3
)

// Decision is the outcome of one breaker evaluation.
type Decision struct {
	// Fired forces the next state to ESCALATE_HANDOFF with Reason.
	Fired  bool
	Reason domain.ReasonCode

	// Clarify asks for a re-prompt instead of a state change. Set when
	// confidence lands in the clarify band and the retry budget still
	// has room. Never set together with Fired.
	Clarify bool
}

// Policy is the circuit-breaker rule set. It is a pure predicate over
// (session, event, verdicts); trigger order is fixed and the first match
// wins. It is always evaluated before the nominal transition table, so
// breaker transitions take precedence.
type Policy struct {
	// ConfidenceFloor trips LOW_CONFIDENCE below it at gated states.
	ConfidenceFloor float64

	// ClarifyCeiling bounds the re-prompt band [floor, ceiling).
	ClarifyCeiling float64

	// MaxRetries is the per-slot clarification budget before MAX_RETRIES.
	MaxRetries int

	// AutoConfirmScore and ClarifyScore bound how resolver candidates are
	// consumed: auto-confirm above, clarify between, escalate below.
	AutoConfirmScore float64
	ClarifyScore     float64
}

// DefaultPolicy returns the documented production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceFloor:  DefaultConfidenceFloor,
		ClarifyCeiling:   DefaultClarifyCeiling,
		MaxRetries:       DefaultMaxRetries,
		AutoConfirmScore: DefaultAutoConfirmScore,
		ClarifyScore:     DefaultClarifyScore,
	}
}

// gated reports whether the state gates on event confidence.
func gated(s domain.State) bool {
	return s == domain.StateCollectRequest || s == domain.StateSafetyCheck
}

func nonPass(v domain.Verdict, ok bool) bool {
	return ok && (v.Outcome == domain.OutcomeFail || v.Outcome == domain.OutcomeRequiresEscalation)
}

// Evaluate runs the trigger list in priority order against a read-only
// session snapshot and the turn's event.
func (p Policy) Evaluate(sess *domain.Session, ev domain.TransitionEvent) Decision {
	fired := func(reason domain.ReasonCode) Decision {
		return Decision{Fired: true, Reason: reason}
	}

	// (1) Confidence below the floor at a gated state. Absent confidence
	// is zero, which always trips here.
	if gated(sess.CurrentState) && ev.Confidence < p.ConfidenceFloor {
		return fired(domain.ReasonLowConfidence)
	}

	// (2) Identity verification failure.
	if nonPass(ev.Verdict(domain.EvaluatorIdentity)) {
		return fired(domain.ReasonIdentityUnverified)
	}

	// (3) Major drug-drug interaction.
	if nonPass(ev.Verdict(domain.EvaluatorInteraction)) {
		return fired(domain.ReasonDrugInteraction)
	}

	// (4) Direct allergy match.
	if nonPass(ev.Verdict(domain.EvaluatorAllergy)) {
		return fired(domain.ReasonAllergyMatch)
	}

	// (5) Controlled-substance schedule requiring co-signature.
	if nonPass(ev.Verdict(domain.EvaluatorControlled)) {
		return fired(domain.ReasonControlled)
	}

	// (5b) Any remaining escalating verdict, e.g. disambiguation below
	// the similarity floor. Names are walked in sorted order so the
	// evaluation stays deterministic. The verdict's own reason code is kept.
	for _, name := range sortedVerdictNames(ev.Verdicts) {
		switch name {
		case domain.EvaluatorIdentity, domain.EvaluatorInteraction,
			domain.EvaluatorAllergy, domain.EvaluatorControlled:
			continue
		}
		v := ev.Verdicts[name]
		if v.Outcome == domain.OutcomeFail || v.Outcome == domain.OutcomeRequiresEscalation {
			reason := v.ReasonCode
			if reason == "" {
				reason = domain.ReasonDrugUnrecognized
			}
			return fired(reason)
		}
	}

	// (6) Backend or evaluator timeout/error. Every UNAVAILABLE verdict
	// feeds this trigger; unavailability is never retried indefinitely.
	for _, v := range ev.Verdicts {
		if v.Outcome == domain.OutcomeUnavailable {
			return fired(domain.ReasonBackendUnavailable)
		}
	}

	// (7) Retry budget exhausted for any slot or for turn-level clarifies.
	for _, n := range sess.RetryCounts {
		if n > p.MaxRetries {
			return fired(domain.ReasonMaxRetries)
		}
	}

	// Clarify band: re-prompt instead of transition, while budget lasts.
	if gated(sess.CurrentState) && ev.Confidence < p.ClarifyCeiling {
		if sess.Retries(domain.SlotTurn) >= p.MaxRetries {
			return fired(domain.ReasonMaxRetries)
		}
		return Decision{Clarify: true}
	}

	return Decision{}
}

func sortedVerdictNames(verdicts map[string]domain.Verdict) []string {
	names := make([]string, 0, len(verdicts))
	for name := range verdicts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
