package types

import "context"

// Analyzer is the capability contract for producing an AnalysisResult from
// an artifact. Implementations live outside the orchestration core (static
// scanners, LLM-backed analyzers, combinations of both).
type Analyzer interface {
	// Analyze inspects the artifact and returns a fresh AnalysisResult.
	// Returns an *AnalysisError when the input is unreadable or unsupported.
	Analyze(ctx context.Context, artifact *Artifact) (*AnalysisResult, error)
}

// FixGenerator is the capability contract for proposing a fix to one issue.
type FixGenerator interface {
	// Propose returns a candidate fix for the issue, or (nil, nil) when the
	// generator cannot address it. The artifact provides surrounding context.
	Propose(ctx context.Context, issue *Issue, artifact *Artifact) (*Fix, error)
}

// VCS is the capability contract for the integration step: branch, commit,
// push, and pull-request submission. Every failed operation returns an
// *IntegrationError naming the operation.
type VCS interface {
	CreateBranch(ctx context.Context, name string) error
	Commit(ctx context.Context, artifact *Artifact, message string) error
	Push(ctx context.Context, branch string) error

	// OpenPullRequest submits a PR for the pushed branch and returns its
	// reference (URL or number, backend-dependent).
	OpenPullRequest(ctx context.Context, title, description string) (string, error)
}
