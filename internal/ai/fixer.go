package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/codemend/codemend/internal/types"
)

// Completer is the slice of Client the fixer and analyzer need, split out so
// tests can script responses without an API key.
type Completer interface {
	Complete(ctx context.Context, operation, prompt string) (string, error)
}

// Fixer generates code fixes with the LLM. Implements types.FixGenerator.
type Fixer struct {
	client Completer
}

// NewFixer creates an LLM-backed fix generator
func NewFixer(client Completer) *Fixer {
	return &Fixer{client: client}
}

var _ types.FixGenerator = (*Fixer)(nil)

// fixResponse is the wire shape the model is asked to produce
type fixResponse struct {
	Fixes []struct {
		IssueDescription string `json:"issue_description"`
		LineNumber       int    `json:"line_number"`
		OriginalCode     string `json:"original_code"`
		FixedCode        string `json:"fixed_code"`
		Explanation      string `json:"explanation"`
	} `json:"fixes"`
	CompleteFixedFile string `json:"complete_fixed_file"`
}

// Propose asks the model for a fix to one issue. Returns (nil, nil) when the
// model produces neither a targeted replacement nor a full rewrite.
func (f *Fixer) Propose(ctx context.Context, issue *types.Issue, artifact *types.Artifact) (*types.Fix, error) {
	prompt := buildFixPrompt(issue, artifact)

	text, err := f.client.Complete(ctx, "fix_generation", prompt)
	if err != nil {
		return nil, &types.FixGenerationError{Fingerprint: issue.Fingerprint(), Err: err}
	}

	var resp fixResponse
	if err := ExtractJSON(text, &resp); err != nil {
		return nil, &types.FixGenerationError{Fingerprint: issue.Fingerprint(), Err: err}
	}

	fix := &types.Fix{
		File:         artifact.Path,
		Line:         issue.Line,
		Fingerprints: []string{issue.Fingerprint()},
		State:        types.FixProposed,
	}

	if len(resp.Fixes) > 0 {
		first := resp.Fixes[0]
		fix.Description = first.IssueDescription
		fix.Original = first.OriginalCode
		fix.Replacement = first.FixedCode
		if first.LineNumber > 0 {
			fix.Line = first.LineNumber
		}
	}
	if fix.Description == "" {
		fix.Description = issue.Description
	}
	fix.FixedContent = resp.CompleteFixedFile

	// The model sometimes returns an explanation with no usable change
	if fix.FixedContent == "" && (fix.Original == "" || fix.Replacement == "") {
		return nil, nil
	}
	if fix.FixedContent != "" && strings.TrimSpace(fix.FixedContent) == "" {
		return nil, nil
	}

	return fix, nil
}

func buildFixPrompt(issue *types.Issue, artifact *types.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a specific code fix for the following issue.\n\n")
	fmt.Fprintf(&b, "ORIGINAL CODE (%s):\n```%s\n%s\n```\n\n", artifact.Path, artifact.Language, artifact.Content)
	fmt.Fprintf(&b, "ISSUE TO FIX:\n")
	fmt.Fprintf(&b, "- category: %s\n- severity: %s\n- location: %s\n- description: %s\n\n",
		issue.Category, issue.Severity, issue.Location(), issue.Description)
	b.WriteString(`Provide the fix in this JSON format:
{
    "fixes": [
        {
            "issue_description": "description of the issue",
            "line_number": <line>,
            "original_code": "exact code to replace",
            "fixed_code": "replacement code",
            "explanation": "why this fix works"
        }
    ],
    "complete_fixed_file": "entire file content with the fix applied"
}

Ensure the fix is minimal and safe. Do not change unrelated code.`)
	return b.String()
}
