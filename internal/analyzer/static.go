// Package analyzer provides the analysis collaborators: a heuristic static
// scanner, an LLM-backed analyzer, and a unified analyzer merging both.
package analyzer

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/codemend/codemend/internal/types"
)

// languageByExt maps file extensions to language names
var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".go":   "go",
	".rs":   "rust",
	".rb":   "ruby",
	".php":  "php",
	".c":    "c",
	".cpp":  "cpp",
}

// DetectLanguage returns the language for a path, or "" when unsupported
func DetectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// Heuristic patterns. These are deliberately coarse: the static pass exists
// to catch the obvious problems cheaply so LLM rounds can focus on the rest.
var (
	evalRegex    = regexp.MustCompile(`\b(eval|exec)\s*\(`)
	openRegex    = regexp.MustCompile(`\b\w+\s*=\s*open\s*\(`)
	noneCmpRegex = regexp.MustCompile(`[!=]= *None\b`)
	secretRegex  = regexp.MustCompile(`(?i)\b(password|passwd|secret|api_key|apikey|token)\s*=\s*["'][^"']+["']`)
	bareExcept   = regexp.MustCompile(`^\s*except\s*:`)
	todoRegex    = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)
	funcStart    = regexp.MustCompile(`^\s*(def |func |function )`)
)

// longFunctionLines is the line count past which a function is flagged
const longFunctionLines = 60

// todoThreshold is the TODO/FIXME count past which density is flagged
const todoThreshold = 3

// StaticAnalyzer scans an artifact with heuristic pattern checks.
// Implements types.Analyzer.
type StaticAnalyzer struct{}

// NewStaticAnalyzer creates a heuristic static analyzer
func NewStaticAnalyzer() *StaticAnalyzer {
	return &StaticAnalyzer{}
}

var _ types.Analyzer = (*StaticAnalyzer)(nil)

// Analyze scans the artifact and scores it. Unsupported file types fail with
// an *types.AnalysisError; the caller decides whether that aborts the run.
func (a *StaticAnalyzer) Analyze(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
	language := artifact.Language
	if language == "" {
		language = DetectLanguage(artifact.Path)
	}
	if language == "" {
		return nil, &types.AnalysisError{
			Path: artifact.Path,
			Err:  fmt.Errorf("unsupported file type %q", filepath.Ext(artifact.Path)),
		}
	}

	issues := a.scan(artifact, language)
	syntaxValid := checkSyntax(artifact, language, &issues)

	return &types.AnalysisResult{
		Language:        language,
		LineCount:       artifact.LineCount(),
		SyntaxValid:     syntaxValid,
		QualityScore:    scoreIssues(issues),
		Issues:          issues,
		Recommendations: recommendations(issues),
		AnalyzedAt:      time.Now(),
	}, nil
}

// recommendations summarizes issue categories into actionable advice
func recommendations(issues []*types.Issue) []string {
	categories := make(map[types.Category]bool)
	for _, issue := range issues {
		categories[issue.Category] = true
	}

	var recs []string
	if categories[types.CategorySecurity] {
		recs = append(recs, "Address security vulnerabilities immediately")
	}
	if categories[types.CategoryBug] {
		recs = append(recs, "Fix syntax and correctness errors before proceeding")
	}
	if categories[types.CategoryStyle] {
		recs = append(recs, "Follow coding style guidelines")
	}
	return recs
}

func (a *StaticAnalyzer) scan(artifact *types.Artifact, language string) []*types.Issue {
	var issues []*types.Issue
	add := func(cat types.Category, sev types.Severity, line int, desc string) {
		issues = append(issues, &types.Issue{
			Category:    cat,
			Severity:    sev,
			File:        artifact.Path,
			Line:        line,
			Description: desc,
			Source:      "static",
		})
	}

	lines := strings.Split(artifact.Content, "\n")
	todos := 0
	funcLine := 0

	for n, line := range lines {
		lineno := n + 1

		if (language == "python" || language == "javascript" || language == "typescript") &&
			evalRegex.MatchString(line) && !strings.HasPrefix(strings.TrimSpace(line), "#") {
			add(types.CategorySecurity, types.SeverityHigh, lineno, "use of eval/exec on dynamic input")
		}
		if language == "python" && openRegex.MatchString(line) && !strings.Contains(line, "with ") {
			add(types.CategoryQuality, types.SeverityMedium, lineno, "file opened without context manager, may not be closed")
		}
		if language == "python" && noneCmpRegex.MatchString(line) {
			add(types.CategoryStyle, types.SeverityLow, lineno, "comparison with None should use is / is not")
		}
		if secretRegex.MatchString(line) {
			add(types.CategorySecurity, types.SeverityHigh, lineno, "hardcoded credential in source")
		}
		if language == "python" && bareExcept.MatchString(line) {
			add(types.CategoryQuality, types.SeverityMedium, lineno, "bare except clause swallows all errors")
		}
		if todoRegex.MatchString(line) {
			todos++
		}

		if funcStart.MatchString(line) {
			if funcLine > 0 && lineno-funcLine > longFunctionLines {
				add(types.CategoryQuality, types.SeverityLow, funcLine,
					fmt.Sprintf("function longer than %d lines, consider splitting", longFunctionLines))
			}
			funcLine = lineno
		}
	}
	if funcLine > 0 && len(lines)-funcLine > longFunctionLines {
		add(types.CategoryQuality, types.SeverityLow, funcLine,
			fmt.Sprintf("function longer than %d lines, consider splitting", longFunctionLines))
	}

	if todos >= todoThreshold {
		issues = append(issues, &types.Issue{
			Category:    types.CategoryQuality,
			Severity:    types.SeverityLow,
			File:        artifact.Path,
			Line:        1,
			Description: fmt.Sprintf("high TODO/FIXME density (%d markers)", todos),
			Source:      "static",
		})
	}

	return issues
}

// checkSyntax validates Go sources with the real parser; other languages are
// assumed valid here because the validation gates do their own structural
// check on every candidate fix.
func checkSyntax(artifact *types.Artifact, language string, issues *[]*types.Issue) bool {
	if language != "go" {
		return true
	}

	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, artifact.Path, artifact.Content, 0)
	if err == nil {
		return true
	}

	*issues = append(*issues, &types.Issue{
		Category:    types.CategoryBug,
		Severity:    types.SeverityHigh,
		File:        artifact.Path,
		Line:        1,
		Description: fmt.Sprintf("syntax error: %v", err),
		Source:      "static",
	})
	return false
}

// scoreIssues maps issues to a 1-10 quality score: high costs 3, medium 2,
// low 1, floored at 1.
func scoreIssues(issues []*types.Issue) int {
	if len(issues) == 0 {
		return 10
	}

	penalty := 0
	for _, issue := range issues {
		switch issue.Severity {
		case types.SeverityHigh:
			penalty += 3
		case types.SeverityMedium:
			penalty += 2
		default:
			penalty++
		}
	}
	if penalty > 9 {
		penalty = 9
	}
	return 10 - penalty
}
