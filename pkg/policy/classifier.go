// Package policy evaluates the score classification step of the decision
// pipeline through an embedded OPA engine.
//
// The classification itself is three comparisons; routing it through Rego
// keeps the verdict boundary declarative and lets operators audit the exact
// rule text the gateway ships with. The engine stays fail-closed: the module
// defaults to DENY, and an evaluation error is surfaced to the caller instead
// of a verdict.
package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// classifierModule is the built-in Rego module. Thresholds arrive as input so
// a configuration reload never requires recompilation.
const classifierModule = `package insightbridge.decision

default verdict := "DENY"

verdict := "ALLOW" if input.score >= input.thresholds.allow

verdict := "MONITOR" if {
	input.score >= input.thresholds.monitor
	input.score < input.thresholds.allow
}
`

const classifierQuery = "data.insightbridge.decision.verdict"

// Classifier maps a resolved trust score onto a verdict via a prepared Rego
// query. Safe for concurrent use.
type Classifier struct {
	mu       sync.RWMutex
	prepared rego.PreparedEvalQuery
}

// NewClassifier compiles the built-in module and prepares the verdict query.
// Compilation errors surface here, at startup, not per request.
func NewClassifier(ctx context.Context) (*Classifier, error) {
	prepared, err := rego.New(
		rego.Query(classifierQuery),
		rego.Module("classifier.rego", classifierModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile classifier module: %w", err)
	}
	return &Classifier{prepared: prepared}, nil
}

// Classify evaluates the verdict for score under the given thresholds.
func (c *Classifier) Classify(ctx context.Context, score int, t domain.Thresholds) (domain.Decision, error) {
	input := map[string]any{
		"score": score,
		"thresholds": map[string]any{
			"allow":   t.Allow,
			"monitor": t.Monitor,
		},
	}

	c.mu.RLock()
	prepared := c.prepared
	c.mu.RUnlock()

	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("classifier eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("classifier eval: empty result set")
	}

	verdict, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("classifier eval: unexpected result type %T", results[0].Expressions[0].Value)
	}

	switch strings.ToUpper(verdict) {
	case string(domain.DecisionAllow):
		return domain.DecisionAllow, nil
	case string(domain.DecisionMonitor):
		return domain.DecisionMonitor, nil
	case string(domain.DecisionDeny):
		return domain.DecisionDeny, nil
	default:
		return "", fmt.Errorf("classifier eval: unknown verdict %q", verdict)
	}
}
