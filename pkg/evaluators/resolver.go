package evaluators

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/aretw0/rxflow/pkg/ports"
)

// minCandidateScore prunes candidates with essentially no resemblance
// to the input before ranking.
const minCandidateScore = 0.4

// FormularyResolver implements ports.Resolver by edit-distance matching
// against formulary drug names. An exact match scores 1.0.
type FormularyResolver struct {
	formulary Formulary
}

// NewFormularyResolver creates a resolver over the formulary.
func NewFormularyResolver(formulary Formulary) *FormularyResolver {
	return &FormularyResolver{formulary: formulary}
}

// Resolve returns formulary candidates ranked by normalized Levenshtein
// similarity, highest first. Ties break alphabetically so the ranking
// is stable.
func (r *FormularyResolver) Resolve(ctx context.Context, value string) ([]ports.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := strings.ToLower(strings.TrimSpace(value))
	if input == "" {
		return nil, nil
	}

	candidates := make([]ports.Candidate, 0, len(r.formulary))
	for _, name := range r.formulary.Names() {
		score := similarity(input, strings.ToLower(name))
		if score < minCandidateScore {
			continue
		}
		candidates = append(candidates, ports.Candidate{Value: name, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Value < candidates[j].Value
	})
	return candidates, nil
}

// similarity is 1 - dist/maxlen, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
