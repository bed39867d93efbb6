package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

func TestClassifierVerdicts(t *testing.T) {
	ctx := context.Background()
	classifier, err := NewClassifier(ctx)
	require.NoError(t, err)

	thresholds := domain.Thresholds{Allow: 70, Monitor: 50}

	tests := []struct {
		score    int
		expected domain.Decision
	}{
		{100, domain.DecisionAllow},
		{70, domain.DecisionAllow},
		{69, domain.DecisionMonitor},
		{50, domain.DecisionMonitor},
		{49, domain.DecisionDeny},
		{0, domain.DecisionDeny},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			decision, err := classifier.Classify(ctx, tt.score, thresholds)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, decision)
		})
	}
}

func TestClassifierHonorsThresholdChanges(t *testing.T) {
	ctx := context.Background()
	classifier, err := NewClassifier(ctx)
	require.NoError(t, err)

	decision, err := classifier.Classify(ctx, 60, domain.Thresholds{Allow: 70, Monitor: 50})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionMonitor, decision)

	// Same score, stricter thresholds: the module is threshold-agnostic, only
	// the input changes.
	decision, err = classifier.Classify(ctx, 60, domain.Thresholds{Allow: 90, Monitor: 80})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeny, decision)
}

// The Rego module and the plain Go comparison must agree on every input.
func TestClassifierMatchesPureClassification(t *testing.T) {
	ctx := context.Background()
	classifier, err := NewClassifier(ctx)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		monitor := rapid.IntRange(0, 100).Draw(rt, "monitor")
		allow := rapid.IntRange(monitor, 100).Draw(rt, "allow")
		score := rapid.IntRange(0, 100).Draw(rt, "score")
		thresholds := domain.Thresholds{Allow: allow, Monitor: monitor}

		decision, err := classifier.Classify(ctx, score, thresholds)
		if err != nil {
			rt.Fatalf("classify failed: %v", err)
		}
		if expected := thresholds.Classify(score); decision != expected {
			rt.Fatalf("score %d with thresholds %+v: rego says %s, comparison says %s",
				score, thresholds, decision, expected)
		}
	})
}
