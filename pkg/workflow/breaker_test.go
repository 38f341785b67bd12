package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/workflow"
)

func newSession(state domain.State) *domain.Session {
	sess := domain.NewSession("sess-1", time.Now())
	sess.CurrentState = state
	return sess
}

func TestPolicy_LowConfidenceFires(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateCollectRequest), domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.5,
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonLowConfidence, d.Reason)
}

func TestPolicy_MissingConfidenceTreatedAsZero(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateSafetyCheck), domain.TransitionEvent{
		Intent: domain.IntentClarification,
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonLowConfidence, d.Reason)
}

func TestPolicy_ConfidenceNotGatedOutsideGatedStates(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateBackendCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.1,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorBackend: domain.Pass(),
		},
	})

	assert.False(t, d.Fired)
	assert.False(t, d.Clarify)
}

func TestPolicy_ClarifyBand(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateCollectRequest), domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.78,
	})

	assert.False(t, d.Fired)
	assert.True(t, d.Clarify)
}

func TestPolicy_ClarifyBandExhaustedFiresMaxRetries(t *testing.T) {
	p := workflow.DefaultPolicy()
	sess := newSession(domain.StateCollectRequest)
	sess.RetryCounts[domain.SlotTurn] = p.MaxRetries

	d := p.Evaluate(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.78,
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonMaxRetries, d.Reason)
}

func TestPolicy_BoundaryConfidences(t *testing.T) {
	p := workflow.DefaultPolicy()

	// Exactly at the floor: clarify band, not LOW_CONFIDENCE.
	d := p.Evaluate(newSession(domain.StateCollectRequest), domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.70,
	})
	assert.False(t, d.Fired)
	assert.True(t, d.Clarify)

	// Exactly at the ceiling: band is half-open, no clarify.
	d = p.Evaluate(newSession(domain.StateCollectRequest), domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.85,
	})
	assert.False(t, d.Fired)
	assert.False(t, d.Clarify)
}

func TestPolicy_TriggerPriorityOrder(t *testing.T) {
	p := workflow.DefaultPolicy()

	// Identity failure beats interaction, allergy and controlled findings.
	d := p.Evaluate(newSession(domain.StateSafetyCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorIdentity:    {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonIdentityUnverified},
			domain.EvaluatorInteraction: {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonDrugInteraction},
			domain.EvaluatorAllergy:     {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonAllergyMatch},
			domain.EvaluatorControlled:  {Outcome: domain.OutcomeRequiresEscalation, ReasonCode: domain.ReasonControlled},
		},
	})
	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonIdentityUnverified, d.Reason)

	// Interaction beats allergy.
	d = p.Evaluate(newSession(domain.StateSafetyCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorInteraction: {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonDrugInteraction},
			domain.EvaluatorAllergy:     {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonAllergyMatch},
		},
	})
	assert.Equal(t, domain.ReasonDrugInteraction, d.Reason)

	// Allergy beats controlled.
	d = p.Evaluate(newSession(domain.StateSafetyCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorAllergy:    {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonAllergyMatch},
			domain.EvaluatorControlled: {Outcome: domain.OutcomeRequiresEscalation, ReasonCode: domain.ReasonControlled},
		},
	})
	assert.Equal(t, domain.ReasonAllergyMatch, d.Reason)
}

func TestPolicy_EscalatingVerdictBeatsUnavailable(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateSafetyCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorControlled: {Outcome: domain.OutcomeRequiresEscalation, ReasonCode: domain.ReasonControlled},
			domain.EvaluatorAllergy:    domain.Unavailable(domain.ReasonBackendUnavailable),
		},
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonControlled, d.Reason)
}

func TestPolicy_UnavailableFiresBackendUnavailable(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateBackendCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorBackend: domain.Unavailable(domain.ReasonBackendUnavailable),
		},
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonBackendUnavailable, d.Reason)
}

func TestPolicy_DisambiguationVerdictKeepsItsReason(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateCollectRequest), domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorDisambiguation: {
				Outcome:    domain.OutcomeRequiresEscalation,
				ReasonCode: domain.ReasonDrugUnrecognized,
			},
		},
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonDrugUnrecognized, d.Reason)
}

func TestPolicy_RetryBudgetExceededFires(t *testing.T) {
	p := workflow.DefaultPolicy()
	sess := newSession(domain.StateCollectRequest)
	sess.RetryCounts[domain.SlotDose] = p.MaxRetries + 1

	d := p.Evaluate(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.99,
	})

	assert.True(t, d.Fired)
	assert.Equal(t, domain.ReasonMaxRetries, d.Reason)
}

func TestPolicy_CleanPassDoesNotFire(t *testing.T) {
	p := workflow.DefaultPolicy()

	d := p.Evaluate(newSession(domain.StateSafetyCheck), domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.92,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorAllergy:     domain.Pass(),
			domain.EvaluatorInteraction: domain.Pass(),
			domain.EvaluatorControlled:  domain.Pass(),
		},
	})

	assert.False(t, d.Fired)
	assert.False(t, d.Clarify)
}

func TestPolicy_Deterministic(t *testing.T) {
	p := workflow.DefaultPolicy()
	ev := domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.99,
		Verdicts: map[string]domain.Verdict{
			"aux_a": {Outcome: domain.OutcomeRequiresEscalation, ReasonCode: domain.ReasonDrugUnrecognized},
			"aux_b": {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonPriorAuth},
		},
	}

	first := p.Evaluate(newSession(domain.StateCollectRequest), ev)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, p.Evaluate(newSession(domain.StateCollectRequest), ev))
	}
}
