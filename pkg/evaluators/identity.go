package evaluators

import (
	"context"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

// IdentityVerifier checks that the claimed MRN resolves to a known
// patient. A missing or unknown MRN is a FAIL verdict, which the breaker
// converts into an IDENTITY_UNVERIFIED escalation.
type IdentityVerifier struct {
	directory Directory
}

// NewIdentityVerifier creates an identity evaluator over the directory.
func NewIdentityVerifier(directory Directory) *IdentityVerifier {
	return &IdentityVerifier{directory: directory}
}

// Name implements ports.Evaluator.
func (v *IdentityVerifier) Name() string { return domain.EvaluatorIdentity }

// Evaluate implements ports.Evaluator.
func (v *IdentityVerifier) Evaluate(ctx context.Context, req ports.EvaluatorRequest) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}
	if req.PatientRef == "" {
		return domain.Verdict{
			Outcome:    domain.OutcomeFail,
			ReasonCode: domain.ReasonIdentityUnverified,
		}, nil
	}
	if _, ok := v.directory.Lookup(req.PatientRef); !ok {
		return domain.Verdict{
			Outcome:    domain.OutcomeFail,
			ReasonCode: domain.ReasonIdentityUnverified,
		}, nil
	}
	return domain.Pass(), nil
}
