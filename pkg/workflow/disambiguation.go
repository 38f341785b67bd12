package workflow

import "github.com/aretw0/rxflow/pkg/ports"

// Default similarity cutoffs for consuming disambiguation results.
const (
	// DefaultAutoConfirmScore auto-confirms the top candidate above it.
	DefaultAutoConfirmScore = 0.95

	// DefaultClarifyScore presents candidates to the user between it and
	// the auto-confirm cutoff; below it the request escalates.
	DefaultClarifyScore = 0.75

	// maxClarifyCandidates caps the candidates shown in a clarify sub-turn.
	maxClarifyCandidates = 3
)

// ResolveAction classifies how a disambiguation result is consumed.
type ResolveAction int

const (
	// ResolveAuto confirms the top candidate without asking.
	ResolveAuto ResolveAction = iota

	// ResolveClarify presents the top candidates in a sub-turn. The
	// workflow state does not change.
	ResolveClarify

	// ResolveEscalate treats the value as unrecognized: the resolver
	// verdict becomes REQUIRES_ESCALATION and the breaker fires.
	ResolveEscalate
)

// ResolveDecision is the consumed form of a resolver result.
type ResolveDecision struct {
	Action     ResolveAction
	Confirmed  string   // top candidate when Action == ResolveAuto
	Candidates []string // up to three candidates when Action == ResolveClarify
}

// ConsumeResolution applies the policy's similarity cutoffs to a ranked
// candidate list (highest score first). An empty list always escalates.
func (p Policy) ConsumeResolution(candidates []ports.Candidate) ResolveDecision {
	if len(candidates) == 0 || candidates[0].Score < p.ClarifyScore {
		return ResolveDecision{Action: ResolveEscalate}
	}
	if candidates[0].Score > p.AutoConfirmScore {
		return ResolveDecision{Action: ResolveAuto, Confirmed: candidates[0].Value}
	}

	n := len(candidates)
	if n > maxClarifyCandidates {
		n = maxClarifyCandidates
	}
	names := make([]string, 0, n)
	for _, c := range candidates[:n] {
		names = append(names, c.Value)
	}
	return ResolveDecision{Action: ResolveClarify, Candidates: names}
}
