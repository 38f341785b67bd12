package evaluators

import (
	"context"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

// ControlledChecker flags DEA Schedule II and III drugs, which refill
// policy does not allow to dispense without physician sign-off.
// Schedule IV and V pass through.
type ControlledChecker struct {
	formulary Formulary
}

// NewControlledChecker creates a controlled-substance evaluator.
func NewControlledChecker(formulary Formulary) *ControlledChecker {
	return &ControlledChecker{formulary: formulary}
}

// Name implements ports.Evaluator.
func (c *ControlledChecker) Name() string { return domain.EvaluatorControlled }

// Evaluate implements ports.Evaluator.
func (c *ControlledChecker) Evaluate(ctx context.Context, req ports.EvaluatorRequest) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}

	drug, ok := c.formulary.Lookup(req.Slots.DrugName)
	if !ok {
		return domain.Verdict{}, domain.ErrEvaluatorUnavailable
	}

	switch drug.Schedule {
	case "II", "III":
		return domain.Verdict{
			Outcome:    domain.OutcomeRequiresEscalation,
			ReasonCode: domain.ReasonControlled,
			Detail:     map[string]any{"schedule": drug.Schedule},
		}, nil
	}
	return domain.Pass(), nil
}
