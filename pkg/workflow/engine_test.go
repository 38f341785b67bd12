package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/workflow"
)

func completeEntities() map[string]string {
	return map[string]string{
		domain.SlotPatientID: "123456",
		domain.SlotDrugName:  "Lisinopril",
		domain.SlotDose:      "10mg",
		domain.SlotQuantity:  "30",
	}
}

func directiveTypes(directives []domain.Directive) []domain.DirectiveType {
	types := make([]domain.DirectiveType, len(directives))
	for i, d := range directives {
		types[i] = d.Type
	}
	return types
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, workflow.IsValidTransition(domain.StateCollectRequest, domain.StateSafetyCheck))
	assert.True(t, workflow.IsValidTransition(domain.StateBackendCheck, domain.StatePAApprovalNeeded))
	assert.True(t, workflow.IsValidTransition(domain.StateEscalateHandoff, domain.StateEscalationComplete))

	assert.False(t, workflow.IsValidTransition(domain.StateCollectRequest, domain.StateDispensed))
	assert.False(t, workflow.IsValidTransition(domain.StateDispensed, domain.StateCollectRequest))
	assert.False(t, workflow.IsValidTransition(domain.StateSafetyCheck, domain.StateCollectRequest))
}

func TestEngine_TerminalStatesReject(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())

	for _, state := range []domain.State{domain.StateDispensed, domain.StateEscalationComplete} {
		sess := newSession(state)
		_, _, err := eng.Advance(sess, domain.TransitionEvent{
			Intent:     domain.IntentRequestRefill,
			Confidence: 0.99,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "state %s", state)
	}
}

func TestEngine_UnknownStateRejects(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession("BOGUS")

	_, _, err := eng.Advance(sess, domain.TransitionEvent{Intent: domain.IntentRequestRefill})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestEngine_CollectMissingSlotsClarifies(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities: map[string]string{
			domain.SlotPatientID: "123456",
			domain.SlotDrugName:  "Lisinopril",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateCollectRequest, next)

	// Provided slots persist even though the turn ends in a clarify.
	types := directiveTypes(directives)
	assert.Contains(t, types, domain.DirectivePersistEntity)

	last := directives[len(directives)-1]
	assert.Equal(t, domain.DirectiveClarify, last.Type)
	assert.Equal(t, domain.SlotDose, last.Slot)
}

func TestEngine_CollectInvalidSlotClarifies(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())

	cases := []struct {
		name     string
		entities map[string]string
		slot     string
	}{
		{"bad mrn", map[string]string{domain.SlotPatientID: "12"}, domain.SlotPatientID},
		{"bad dose", map[string]string{domain.SlotPatientID: "123456", domain.SlotDose: "ten"}, domain.SlotDose},
		{"bad quantity", map[string]string{domain.SlotPatientID: "123456", domain.SlotDose: "10mg", domain.SlotQuantity: "999"}, domain.SlotQuantity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := newSession(domain.StateCollectRequest)
			next, directives, err := eng.Advance(sess, domain.TransitionEvent{
				Intent:     domain.IntentRequestRefill,
				Confidence: 0.95,
				Entities:   tc.entities,
			})

			require.NoError(t, err)
			assert.Equal(t, domain.StateCollectRequest, next)
			last := directives[len(directives)-1]
			assert.Equal(t, domain.DirectiveClarify, last.Type)
			assert.Equal(t, tc.slot, last.Slot)
		})
	}
}

func TestEngine_CollectInvalidValueNeverPersists(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)

	_, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities: map[string]string{
			domain.SlotPatientID: "123456",
			domain.SlotDose:      "badvalue",
		},
	})

	require.NoError(t, err)
	for _, d := range directives {
		if d.Type == domain.DirectivePersistEntity {
			assert.NotEqual(t, domain.SlotDose, d.Slot)
		}
	}
	// The well-formed slot still persists alongside the clarify.
	assert.Contains(t, directiveTypes(directives), domain.DirectivePersistEntity)
}

func TestEngine_CollectInvalidSlotBudgetEscalates(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)
	sess.RetryCounts[domain.SlotDose] = workflow.DefaultMaxRetries

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities: map[string]string{
			domain.SlotPatientID: "123456",
			domain.SlotDose:      "badvalue",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	assert.Equal(t,
		[]domain.DirectiveType{domain.DirectiveAudit, domain.DirectiveEscalate, domain.DirectivePrompt},
		directiveTypes(directives),
	)
	assert.Equal(t, domain.ReasonMaxRetries, directives[1].Reason)
}

func TestEngine_CollectCompleteRequestsIdentity(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities:   completeEntities(),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateCollectRequest, next)
	last := directives[len(directives)-1]
	assert.Equal(t, domain.DirectiveInvokeEvaluator, last.Type)
	assert.Equal(t, domain.EvaluatorIdentity, last.Evaluator)
}

func TestEngine_CollectIdentityPassAdvancesToSafety(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities:   completeEntities(),
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorIdentity: domain.Pass(),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateSafetyCheck, next)

	types := directiveTypes(directives)
	assert.Contains(t, types, domain.DirectiveAudit)

	var evaluators []string
	for _, d := range directives {
		if d.Type == domain.DirectiveInvokeEvaluator {
			evaluators = append(evaluators, d.Evaluator)
		}
	}
	assert.ElementsMatch(t, []string{domain.EvaluatorAllergy, domain.EvaluatorInteraction, domain.EvaluatorDosage, domain.EvaluatorControlled}, evaluators)
}

func TestEngine_CollectIdentityFailureEscalates(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities:   completeEntities(),
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorIdentity: {Outcome: domain.OutcomeFail, ReasonCode: domain.ReasonIdentityUnverified},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	assert.Equal(t,
		[]domain.DirectiveType{domain.DirectiveAudit, domain.DirectiveEscalate, domain.DirectivePrompt},
		directiveTypes(directives),
	)
	assert.Equal(t, domain.ReasonIdentityUnverified, directives[1].Reason)
	assert.Equal(t, domain.ActorBreaker, directives[0].Actor)
}

func TestEngine_StatusInquirySelfLoops(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentStatusInquiry,
		Confidence: 0.95,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateCollectRequest, next)
	require.Len(t, directives, 1)
	assert.Equal(t, domain.DirectivePrompt, directives[0].Type)
}

func TestEngine_SafetyAllPassAdvancesToBackend(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateSafetyCheck)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.95,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorAllergy:     domain.Pass(),
			domain.EvaluatorInteraction: domain.Pass(),
			domain.EvaluatorDosage:      domain.Pass(),
			domain.EvaluatorControlled:  domain.Pass(),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateBackendCheck, next)
	assert.Equal(t,
		[]domain.DirectiveType{domain.DirectiveAudit, domain.DirectiveInvokeEvaluator},
		directiveTypes(directives),
	)
}

func TestEngine_SafetyFindingEscalates(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateSafetyCheck)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.95,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorAllergy:     domain.Pass(),
			domain.EvaluatorInteraction: domain.Pass(),
			domain.EvaluatorDosage:      domain.Pass(),
			domain.EvaluatorControlled:  {Outcome: domain.OutcomeRequiresEscalation, ReasonCode: domain.ReasonControlled},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	assert.Equal(t, domain.ReasonControlled, directives[1].Reason)
}

func TestEngine_BackendPassDispenses(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateBackendCheck)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.95,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorBackend: {
				Outcome: domain.OutcomePass,
				Detail:  map[string]any{"pa_required": false, "order_id": "ord-42"},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateDispensed, next)
	assert.Equal(t,
		[]domain.DirectiveType{domain.DirectiveAudit, domain.DirectiveCompleteOrder, domain.DirectivePrompt},
		directiveTypes(directives),
	)
	assert.Equal(t, "ord-42", directives[1].Value)
}

func TestEngine_BackendPARequiredRoutesToPriorAuth(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateBackendCheck)

	next, _, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.95,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorBackend: {
				Outcome: domain.OutcomePass,
				Detail:  map[string]any{"pa_required": true},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatePAApprovalNeeded, next)
}

func TestEngine_BackendUnavailableEscalates(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateBackendCheck)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.95,
		Verdicts: map[string]domain.Verdict{
			domain.EvaluatorBackend: domain.Unavailable(domain.ReasonBackendUnavailable),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	assert.Equal(t, domain.ReasonBackendUnavailable, directives[1].Reason)
}

func TestEngine_PriorAuthEscalatesToPA(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StatePAApprovalNeeded)

	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.95,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	assert.Equal(t, domain.ReasonPriorAuth, directives[1].Reason)
}

func TestEngine_HandoffOnlyAckCompletes(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())

	// A user turn during handoff self-loops.
	sess := newSession(domain.StateEscalateHandoff)
	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentStatusInquiry,
		Confidence: 0.95,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	require.Len(t, directives, 1)
	assert.Equal(t, domain.DirectivePrompt, directives[0].Type)

	// The reviewer acknowledgment completes the escalation.
	next, _, err = eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentAcknowledge,
		Confidence: 1.0,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalationComplete, next)
}

func TestEngine_HandoffSecondTriggerOnlyReprompts(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateEscalateHandoff)

	// Low confidence during handoff must not open a second escalation.
	next, directives, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentClarification,
		Confidence: 0.1,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateEscalateHandoff, next)
	assert.NotContains(t, directiveTypes(directives), domain.DirectiveEscalate)
}

func TestEngine_AdvanceDoesNotMutateSession(t *testing.T) {
	eng := workflow.NewEngine(workflow.DefaultPolicy())
	sess := newSession(domain.StateCollectRequest)
	sess.Entities[domain.SlotPatientID] = "123456"
	before := sess.Clone()

	_, _, err := eng.Advance(sess, domain.TransitionEvent{
		Intent:     domain.IntentRequestRefill,
		Confidence: 0.95,
		Entities:   map[string]string{domain.SlotDrugName: "Lisinopril"},
	})

	require.NoError(t, err)
	assert.Equal(t, before.CurrentState, sess.CurrentState)
	assert.Equal(t, before.Entities, sess.Entities)
	assert.Equal(t, before.RetryCounts, sess.RetryCounts)
}
