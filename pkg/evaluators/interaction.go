package evaluators

import (
	"context"
	"strings"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

type severity string

const (
	severityMajor    severity = "major"
	severityModerate severity = "moderate"
)

type drugPair struct {
	a, b string
}

func pairKey(a, b string) drugPair {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return drugPair{a: a, b: b}
}

// interactionTable holds known pairwise interactions keyed by the
// normalized drug pair.
var interactionTable = map[drugPair]severity{
	pairKey("warfarin", "ibuprofen"):    severityMajor,
	pairKey("warfarin", "amoxicillin"):  severityModerate,
	pairKey("lisinopril", "losartan"):   severityModerate,
	pairKey("sertraline", "ibuprofen"):  severityModerate,
	pairKey("oxycodone", "alprazolam"):  severityMajor,
	pairKey("oxycodone", "sertraline"):  severityModerate,
	pairKey("atorvastatin", "warfarin"): severityModerate,
}

// InteractionChecker screens the requested drug against the patient's
// active medication list.
type InteractionChecker struct {
	directory Directory
}

// NewInteractionChecker creates a drug-interaction evaluator.
func NewInteractionChecker(directory Directory) *InteractionChecker {
	return &InteractionChecker{directory: directory}
}

// Name implements ports.Evaluator.
func (c *InteractionChecker) Name() string { return domain.EvaluatorInteraction }

// Evaluate implements ports.Evaluator. A major interaction is a FAIL;
// a moderate one is REQUIRES_ESCALATION. When multiple interactions
// exist the most severe wins.
func (c *InteractionChecker) Evaluate(ctx context.Context, req ports.EvaluatorRequest) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}

	patient, ok := c.directory.Lookup(req.PatientRef)
	if !ok {
		return domain.Verdict{}, domain.ErrEvaluatorUnavailable
	}

	var worst severity
	var against string
	for _, med := range patient.ActiveMedications {
		sev, found := interactionTable[pairKey(req.Slots.DrugName, med)]
		if !found {
			continue
		}
		if worst == "" || sev == severityMajor {
			worst, against = sev, med
		}
		if worst == severityMajor {
			break
		}
	}

	switch worst {
	case severityMajor:
		return domain.Verdict{
			Outcome:    domain.OutcomeFail,
			ReasonCode: domain.ReasonDrugInteraction,
			Detail:     map[string]any{"severity": "major", "with": against},
		}, nil
	case severityModerate:
		return domain.Verdict{
			Outcome:    domain.OutcomeRequiresEscalation,
			ReasonCode: domain.ReasonDrugInteraction,
			Detail:     map[string]any{"severity": "moderate", "with": against},
		}, nil
	}
	return domain.Pass(), nil
}
