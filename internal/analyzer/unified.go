package analyzer

import (
	"context"
	"time"

	"github.com/codemend/codemend/internal/types"
)

// Score weights for combining the two passes. The LLM sees intent and
// context the pattern scan cannot, so its score counts for more.
const (
	staticWeight = 0.4
	llmWeight    = 0.6
)

// UnifiedAnalyzer runs the static scan first, hands its findings to the LLM
// as evidence, and merges both result sets. Implements types.Analyzer.
type UnifiedAnalyzer struct {
	static *StaticAnalyzer
	llm    *LLMAnalyzer
}

// NewUnifiedAnalyzer creates the combined analyzer
func NewUnifiedAnalyzer(static *StaticAnalyzer, llm *LLMAnalyzer) *UnifiedAnalyzer {
	return &UnifiedAnalyzer{static: static, llm: llm}
}

var _ types.Analyzer = (*UnifiedAnalyzer)(nil)

// Analyze combines both passes. Issues are merged by fingerprint with the
// static finding winning ties (it carries an exact location); the quality
// score is the weighted average of the two passes.
func (a *UnifiedAnalyzer) Analyze(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
	staticResult, err := a.static.Analyze(ctx, artifact)
	if err != nil {
		return nil, err
	}

	llmResult, err := a.llm.analyze(ctx, artifact, staticResult)
	if err != nil {
		return nil, err
	}

	merged := &types.AnalysisResult{
		Language:     staticResult.Language,
		LineCount:    staticResult.LineCount,
		SyntaxValid:  staticResult.SyntaxValid,
		QualityScore: combineScores(staticResult.QualityScore, llmResult.QualityScore),
		AnalyzedAt:   time.Now(),
	}

	seen := make(map[string]bool)
	for _, issue := range staticResult.Issues {
		seen[issue.Fingerprint()] = true
		merged.Issues = append(merged.Issues, issue)
	}
	for _, issue := range llmResult.Issues {
		fp := issue.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		merged.Issues = append(merged.Issues, issue)
	}

	merged.Recommendations = mergeRecommendations(staticResult.Recommendations, llmResult.Recommendations)
	return merged, nil
}

func combineScores(staticScore, llmScore int) int {
	combined := int(float64(staticScore)*staticWeight + float64(llmScore)*llmWeight)
	if combined < 1 {
		combined = 1
	}
	if combined > 10 {
		combined = 10
	}
	return combined
}

func mergeRecommendations(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var merged []string
	for _, rec := range append(append([]string{}, a...), b...) {
		if seen[rec] {
			continue
		}
		seen[rec] = true
		merged = append(merged, rec)
	}
	return merged
}
