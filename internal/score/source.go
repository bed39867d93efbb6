// Package score resolves trust scores from receiver-controlled sources.
//
// Every source in this package fails closed: a resolution error surfaces as
// score 0 plus the error, and the decision engine classifies that 0 as a
// denial. No source ever reads anything derived from the presented token
// beyond the subject identifier it is asked about.
package score

import (
	"context"
	"fmt"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// clamp bounds a backend-reported score to the valid range.
func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// StaticSource serves scores from a fixed in-memory table. It backs local
// development and tests; unknown subjects resolve to an error, not a default.
type StaticSource struct {
	scores map[string]int
}

// NewStaticSource creates a source over the given subject table.
func NewStaticSource(scores map[string]int) *StaticSource {
	copied := make(map[string]int, len(scores))
	for subject, s := range scores {
		copied[subject] = clamp(s)
	}
	return &StaticSource{scores: copied}
}

// Resolve looks up the subject in the table.
func (s *StaticSource) Resolve(_ context.Context, subject string) (int, error) {
	v, ok := s.scores[subject]
	if !ok {
		return 0, fmt.Errorf("%w: unknown subject", domain.ErrScoreUnavailable)
	}
	return v, nil
}
