// Package report renders run results for the terminal and writes JSON
// result files.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/codemend/codemend/internal/converge"
	"github.com/codemend/codemend/internal/types"
)

// Printer renders results to a writer
type Printer struct {
	out io.Writer
}

// NewPrinter creates a printer writing to stdout
func NewPrinter() *Printer {
	return &Printer{out: os.Stdout}
}

// NewPrinterTo creates a printer writing to w
func NewPrinterTo(w io.Writer) *Printer {
	return &Printer{out: w}
}

// PrintAnalysis renders one analysis result
func (p *Printer) PrintAnalysis(path string, result *types.AnalysisResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(p.out, "\n%s %s (%s, %d lines)\n", cyan("Analysis:"), path, result.Language, result.LineCount)
	fmt.Fprintf(p.out, "Quality score: %s\n", p.scoreString(result.QualityScore))

	if len(result.Issues) == 0 {
		fmt.Fprintf(p.out, "%s\n", color.GreenString("No issues found"))
	} else {
		fmt.Fprintf(p.out, "Issues (%d):\n", len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Fprintf(p.out, "  %s %s [%s] %s\n",
				p.severityString(issue.Severity), issue.Location(), issue.Category, issue.Description)
		}
	}

	for _, rec := range result.Recommendations {
		fmt.Fprintf(p.out, "  - %s\n", rec)
	}
}

// PrintConvergence renders the round-by-round quality trend of a fix run
func (p *Printer) PrintConvergence(result *converge.Result) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(p.out, "\n%s\n", cyan("Convergence rounds:"))

	for _, round := range result.Rounds {
		fmt.Fprintf(p.out, "  round %d: quality %s, fixes %d/%d validated, issues +%d/-%d (=%d)\n",
			round.Round, p.scoreString(round.QualityScore),
			round.FixesValidated, round.FixesGenerated,
			round.IssuesNew, round.IssuesResolved, round.IssuesPersist)
	}

	fmt.Fprintf(p.out, "Stop reason: %s\n", p.stopString(result.StopReason))
}

// PrintWorkflow renders the per-step outcomes of a coordinated run
func (p *Printer) PrintWorkflow(result *types.WorkflowResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(p.out, "\n%s\n", cyan("Workflow steps:"))

	for _, step := range result.Steps {
		line := fmt.Sprintf("  %s %-16s", p.stepString(step.Status), step.Name)
		if step.Summary != "" {
			line += " " + step.Summary
		}
		if step.Error != "" {
			line += " " + color.RedString(step.Error)
		}
		if step.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", step.Attempts)
		}
		fmt.Fprintln(p.out, line)
	}

	fmt.Fprintf(p.out, "Status: %s", p.workflowString(result.Status))
	if result.PRReference != "" {
		fmt.Fprintf(p.out, "  PR: %s", color.CyanString(result.PRReference))
	}
	fmt.Fprintln(p.out)
}

func (p *Printer) scoreString(score int) string {
	switch {
	case score >= 8:
		return color.GreenString("%d/10", score)
	case score >= 5:
		return color.YellowString("%d/10", score)
	default:
		return color.RedString("%d/10", score)
	}
}

func (p *Printer) severityString(sev types.Severity) string {
	switch sev {
	case types.SeverityHigh:
		return color.RedString("[high]  ")
	case types.SeverityMedium:
		return color.YellowString("[medium]")
	default:
		return color.New(color.FgHiBlack).Sprint("[low]   ")
	}
}

func (p *Printer) stopString(reason types.StopReason) string {
	switch reason {
	case types.StopConverged:
		return color.GreenString(string(reason))
	case types.StopCancelled:
		return color.RedString(string(reason))
	default:
		return color.YellowString(string(reason))
	}
}

func (p *Printer) stepString(status types.StepStatus) string {
	switch status {
	case types.StepCompleted:
		return color.GreenString("✓")
	case types.StepFailed:
		return color.RedString("✗")
	case types.StepSkipped:
		return color.YellowString("-")
	default:
		return " "
	}
}

func (p *Printer) workflowString(status types.WorkflowStatus) string {
	switch status {
	case types.WorkflowSuccess:
		return color.GreenString(string(status))
	case types.WorkflowFailed:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

// WriteJSON writes a result structure as indented JSON
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
