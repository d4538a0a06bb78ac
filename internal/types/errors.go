package types

import "fmt"

// The error taxonomy. Collaborator errors (analysis, fix generation,
// integration) are caught at step boundaries and converted into step failure
// outcomes; they never escape the engine uncaught. EngineError is the one
// exception: it marks a programming or configuration defect (for example a
// dependency cycle) detected at workflow construction time and is fatal
// immediately. A blocking gate failure is not an error at all - it is a
// recorded ValidationResult outcome.

// AnalysisError indicates a collaborator could not analyze an artifact
type AnalysisError struct {
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed for %s: %v", e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// FixGenerationError indicates the fix generator failed outright.
// A generator returning no fix for an issue is not an error; it signals
// "cannot address" and the issue is left for a later round.
type FixGenerationError struct {
	Fingerprint string
	Err         error
}

func (e *FixGenerationError) Error() string {
	return fmt.Sprintf("fix generation failed for issue %s: %v", e.Fingerprint, e.Err)
}

func (e *FixGenerationError) Unwrap() error { return e.Err }

// IntegrationError indicates a VCS or pull-request operation failed
type IntegrationError struct {
	Op  string // "create_branch", "commit", "push", "open_pull_request"
	Err error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration %s failed: %v", e.Op, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// EngineError indicates a workflow misconfiguration such as a dependency
// cycle or a step depending on an undeclared step. Detected at construction
// time, never surfaced mid-run.
type EngineError struct {
	Reason string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("workflow engine misconfigured: %s", e.Reason)
}
