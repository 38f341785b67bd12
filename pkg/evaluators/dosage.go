package evaluators

import (
	"context"
	"regexp"
	"strconv"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

var doseValuePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(mg|mcg|g|mL)$`)

// DosageChecker validates the requested dose against the formulary's
// per-drug range. A dose outside the range is a moderate finding:
// escalate for physician review rather than block.
type DosageChecker struct {
	formulary Formulary
}

// NewDosageChecker creates a dosage evaluator.
func NewDosageChecker(formulary Formulary) *DosageChecker {
	return &DosageChecker{formulary: formulary}
}

// Name implements ports.Evaluator.
func (c *DosageChecker) Name() string { return domain.EvaluatorDosage }

// Evaluate implements ports.Evaluator. Liquid doses (mL) carry no
// comparable strength and pass through, as do drugs without a configured
// range.
func (c *DosageChecker) Evaluate(ctx context.Context, req ports.EvaluatorRequest) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}

	drug, ok := c.formulary.Lookup(req.Slots.DrugName)
	if !ok {
		return domain.Verdict{}, domain.ErrEvaluatorUnavailable
	}
	if drug.MinDoseMg == 0 && drug.MaxDoseMg == 0 {
		return domain.Pass(), nil
	}

	mg, ok := doseInMilligrams(req.Slots.Dose)
	if !ok {
		return domain.Pass(), nil
	}
	if mg < drug.MinDoseMg || mg > drug.MaxDoseMg {
		return domain.Verdict{
			Outcome:    domain.OutcomeRequiresEscalation,
			ReasonCode: domain.ReasonDoseOutOfRange,
			Detail: map[string]any{
				"severity": "moderate",
				"dose":     req.Slots.Dose,
				"min_mg":   drug.MinDoseMg,
				"max_mg":   drug.MaxDoseMg,
			},
		}, nil
	}
	return domain.Pass(), nil
}

// doseInMilligrams parses a dose string and normalizes it to mg.
// Returns ok=false for liquid (mL) and unparseable doses.
func doseInMilligrams(dose string) (float64, bool) {
	m := doseValuePattern.FindStringSubmatch(dose)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "mg":
		return value, true
	case "mcg":
		return value / 1000, true
	case "g":
		return value * 1000, true
	}
	return 0, false
}
