package evaluators

import (
	"context"
	"strings"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

// crossSensitivities maps an allergy substance to drug classes with
// documented cross-reactivity. A class hit is a moderate finding:
// escalate for review rather than block outright.
var crossSensitivities = map[string][]string{
	"penicillin": {"penicillin", "cephalosporin"},
	"aspirin":    {"NSAID"},
	"sulfa":      {"sulfonamide"},
}

// AllergyChecker cross-references patient allergies with the requested
// drug's ingredients and class.
type AllergyChecker struct {
	directory Directory
	formulary Formulary
}

// NewAllergyChecker creates an allergy evaluator.
func NewAllergyChecker(directory Directory, formulary Formulary) *AllergyChecker {
	return &AllergyChecker{directory: directory, formulary: formulary}
}

// Name implements ports.Evaluator.
func (c *AllergyChecker) Name() string { return domain.EvaluatorAllergy }

// Evaluate implements ports.Evaluator. A direct ingredient match is a
// FAIL (do not dispense); a class cross-sensitivity is
// REQUIRES_ESCALATION (physician review).
func (c *AllergyChecker) Evaluate(ctx context.Context, req ports.EvaluatorRequest) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}

	patient, ok := c.directory.Lookup(req.PatientRef)
	if !ok {
		return domain.Verdict{}, domain.ErrEvaluatorUnavailable
	}
	drug, ok := c.formulary.Lookup(req.Slots.DrugName)
	if !ok {
		return domain.Verdict{}, domain.ErrEvaluatorUnavailable
	}

	for _, allergy := range patient.Allergies {
		a := strings.ToLower(allergy)
		for _, ingredient := range drug.Ingredients {
			if a == strings.ToLower(ingredient) {
				return domain.Verdict{
					Outcome:    domain.OutcomeFail,
					ReasonCode: domain.ReasonAllergyMatch,
					Detail: map[string]any{
						"severity":  "major",
						"substance": allergy,
					},
				}, nil
			}
		}
		for _, class := range crossSensitivities[a] {
			if strings.EqualFold(class, drug.Class) {
				return domain.Verdict{
					Outcome:    domain.OutcomeRequiresEscalation,
					ReasonCode: domain.ReasonAllergyMatch,
					Detail: map[string]any{
						"severity":  "moderate",
						"substance": allergy,
						"class":     drug.Class,
					},
				}, nil
			}
		}
	}
	return domain.Pass(), nil
}
