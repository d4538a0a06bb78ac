package gates

import (
	"context"
	"fmt"

	"github.com/codemend/codemend/internal/types"
)

// StaticRecheckGate re-runs an analyzer over the candidate artifact and
// fails when the fix introduced more issues than the artifact had before.
// Advisory: analyzers are noisy enough that a count regression is a signal
// for the report, not grounds to reject an otherwise valid fix.
type StaticRecheckGate struct {
	analyzer      types.Analyzer
	baselineCount int
}

// NewStaticRecheckGate creates the advisory re-analysis gate. baselineCount
// is the issue count of the artifact before the candidate fix was applied.
func NewStaticRecheckGate(analyzer types.Analyzer, baselineCount int) *StaticRecheckGate {
	return &StaticRecheckGate{analyzer: analyzer, baselineCount: baselineCount}
}

func (g *StaticRecheckGate) Name() string { return "static" }
func (g *StaticRecheckGate) Tier() Tier   { return TierAdvisory }

func (g *StaticRecheckGate) Check(ctx context.Context, artifact *types.Artifact) (bool, string, error) {
	result, err := g.analyzer.Analyze(ctx, artifact)
	if err != nil {
		return false, "", fmt.Errorf("re-analysis failed: %w", err)
	}

	count := len(result.Issues)
	if count > g.baselineCount {
		return false, fmt.Sprintf("issue count regressed: %d before, %d after", g.baselineCount, count), nil
	}
	return true, fmt.Sprintf("issue count %d (baseline %d)", count, g.baselineCount), nil
}
