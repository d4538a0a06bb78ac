package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codemend/codemend/internal/ai"
	"github.com/codemend/codemend/internal/types"
)

// LLMAnalyzer asks the model for a quality assessment of the artifact.
// Implements types.Analyzer.
type LLMAnalyzer struct {
	client ai.Completer
}

// NewLLMAnalyzer creates an LLM-backed analyzer
func NewLLMAnalyzer(client ai.Completer) *LLMAnalyzer {
	return &LLMAnalyzer{client: client}
}

var _ types.Analyzer = (*LLMAnalyzer)(nil)

// analysisResponse is the wire shape the model is asked to produce
type analysisResponse struct {
	QualityScore int `json:"quality_score"`
	Issues       []struct {
		Type        string `json:"type"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Line        int    `json:"line"`
	} `json:"issues"`
	Recommendations   []string `json:"recommendations"`
	OverallAssessment string   `json:"overall_assessment"`
}

// Analyze sends the artifact to the model and converts the response into an
// AnalysisResult. Model findings the response format cannot express cleanly
// (bad category, missing severity) are normalized rather than dropped.
func (a *LLMAnalyzer) Analyze(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
	return a.analyze(ctx, artifact, nil)
}

// analyze optionally hands previously collected static findings to the model
// as supplemental evidence (the unified analyzer path)
func (a *LLMAnalyzer) analyze(ctx context.Context, artifact *types.Artifact, static *types.AnalysisResult) (*types.AnalysisResult, error) {
	language := artifact.Language
	if language == "" {
		language = DetectLanguage(artifact.Path)
	}

	text, err := a.client.Complete(ctx, "analysis", buildAnalysisPromptWithStatic(artifact, language, static))
	if err != nil {
		return nil, &types.AnalysisError{Path: artifact.Path, Err: err}
	}

	var resp analysisResponse
	if err := ai.ExtractJSON(text, &resp); err != nil {
		return nil, &types.AnalysisError{Path: artifact.Path, Err: err}
	}

	score := resp.QualityScore
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}

	result := &types.AnalysisResult{
		Language:        language,
		LineCount:       artifact.LineCount(),
		SyntaxValid:     true,
		QualityScore:    score,
		Recommendations: resp.Recommendations,
		AnalyzedAt:      time.Now(),
	}

	seen := make(map[string]bool)
	for _, ri := range resp.Issues {
		if strings.TrimSpace(ri.Description) == "" {
			continue
		}
		issue := &types.Issue{
			Category:    normalizeCategory(ri.Type),
			Severity:    normalizeSeverity(ri.Severity),
			File:        artifact.Path,
			Line:        ri.Line,
			Description: ri.Description,
			Source:      "llm",
		}
		if issue.Line < 0 {
			issue.Line = 0
		}
		// The model occasionally reports one finding twice
		fp := issue.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		result.Issues = append(result.Issues, issue)
	}

	return result, nil
}

func normalizeCategory(t string) types.Category {
	c := types.Category(strings.ToLower(strings.TrimSpace(t)))
	if c.IsValid() {
		return c
	}
	return types.CategoryQuality
}

func normalizeSeverity(s string) types.Severity {
	sev := types.Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.IsValid() {
		return sev
	}
	return types.SeverityMedium
}

func buildAnalysisPrompt(artifact *types.Artifact, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this %s code for quality, security, and best practices:\n\n", language)
	fmt.Fprintf(&b, "```%s\n%s\n```\n\n", language, artifact.Content)
	b.WriteString(`Provide analysis in this JSON format:
{
    "quality_score": <1-10>,
    "issues": [
        {"type": "security|performance|quality|bug|style", "severity": "high|medium|low", "description": "...", "line": <number>}
    ],
    "recommendations": ["specific actionable advice"],
    "overall_assessment": "brief summary"
}`)
	return b.String()
}

func buildAnalysisPromptWithStatic(artifact *types.Artifact, language string, static *types.AnalysisResult) string {
	base := buildAnalysisPrompt(artifact, language)
	if static == nil || len(static.Issues) == 0 {
		return base
	}
	evidence, err := json.MarshalIndent(static.Issues, "", "  ")
	if err != nil {
		return base
	}
	return base + "\n\nStatic analysis already found these issues:\n" + string(evidence)
}
