package types

import (
	"fmt"
	"time"
)

// StepStatus represents the state of a workflow step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// IsValid checks if the step status value is valid
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepRunning, StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Terminal reports whether the status is a terminal step state
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// CanTransitionTo checks if a transition from this status to the target is valid.
//
//	pending -> running | skipped
//	running -> completed | failed | running (retry)
//	failed  -> running (retry) | skipped (non-critical exhaustion)
func (s StepStatus) CanTransitionTo(target StepStatus) bool {
	switch s {
	case StepPending:
		return target == StepRunning || target == StepSkipped
	case StepRunning:
		return target == StepCompleted || target == StepFailed || target == StepRunning
	case StepFailed:
		return target == StepRunning || target == StepSkipped
	}
	return false
}

// WorkflowStatus is the overall outcome of a workflow run
type WorkflowStatus string

const (
	WorkflowSuccess WorkflowStatus = "success"
	WorkflowPartial WorkflowStatus = "partial"
	WorkflowFailed  WorkflowStatus = "failed"
)

// IsValid checks if the workflow status value is valid
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowSuccess, WorkflowPartial, WorkflowFailed:
		return true
	}
	return false
}

// StepOutcome records how one step finished
type StepOutcome struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Summary  string        `json:"summary,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// WorkflowResult is the terminal record of a workflow run. No fields are
// mutated after the result is returned to the caller.
type WorkflowResult struct {
	Status      WorkflowStatus `json:"status"`
	Steps       []StepOutcome  `json:"steps"`
	PRReference string         `json:"pr_reference,omitempty"` // artifact from the VCS collaborator, if any
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// StepOutcome returns the recorded outcome for a named step, or nil
func (r *WorkflowResult) StepOutcome(name string) *StepOutcome {
	for idx := range r.Steps {
		if r.Steps[idx].Name == name {
			return &r.Steps[idx]
		}
	}
	return nil
}

// StopReason explains why a convergence loop stopped
type StopReason string

const (
	// StopConverged means the issue set emptied or the quality target was met
	StopConverged StopReason = "converged"

	// StopMaxRounds means the round limit was reached without convergence
	StopMaxRounds StopReason = "max_rounds"

	// StopStalled means a round produced zero validated fixes. This is the
	// anti-oscillation guard: a fix generator can deterministically fail to
	// improve a file, and without this the loop would spin until max_rounds.
	StopStalled StopReason = "stalled"

	// StopCancelled means the run-level cancellation signal fired between rounds
	StopCancelled StopReason = "cancelled"
)

// IsValid checks if the stop reason value is valid
func (s StopReason) IsValid() bool {
	switch s {
	case StopConverged, StopMaxRounds, StopStalled, StopCancelled:
		return true
	}
	return false
}

// RoundRecord captures one iteration of the convergence loop. The ordered
// sequence of records is the quality trend; it is append-only.
type RoundRecord struct {
	Round          int             `json:"round"`
	Analysis       *AnalysisResult `json:"analysis"`
	FixesGenerated int             `json:"fixes_generated"`
	FixesApplied   int             `json:"fixes_applied"`
	FixesValidated int             `json:"fixes_validated"`
	QualityScore   int             `json:"quality_score"`
	IssuesNew      int             `json:"issues_new"`
	IssuesResolved int             `json:"issues_resolved"`
	IssuesPersist  int             `json:"issues_persisting"`
}

// Validate checks if the round record has valid field values
func (r *RoundRecord) Validate() error {
	if r.Round < 1 {
		return fmt.Errorf("round must be positive (got %d)", r.Round)
	}
	if r.Analysis == nil {
		return fmt.Errorf("analysis is required")
	}
	if r.FixesValidated > r.FixesApplied {
		return fmt.Errorf("fixes_validated (%d) cannot exceed fixes_applied (%d)", r.FixesValidated, r.FixesApplied)
	}
	if r.FixesApplied > r.FixesGenerated {
		return fmt.Errorf("fixes_applied (%d) cannot exceed fixes_generated (%d)", r.FixesApplied, r.FixesGenerated)
	}
	return nil
}
