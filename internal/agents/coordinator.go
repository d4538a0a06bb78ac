// Package agents coordinates the fixed role sequence
// coordinator -> analysis -> fix-generation -> validation -> integration
// over a single artifact. Each role is a workflow step delegating to an
// external collaborator; the shared AgentContext carries typed slots so a
// role can only consume what earlier roles produced.
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codemend/codemend/internal/converge"
	"github.com/codemend/codemend/internal/gates"
	"github.com/codemend/codemend/internal/types"
	"github.com/codemend/codemend/internal/workflow"
)

// Role names, in execution order
const (
	RoleCoordinator   = "coordinator"
	RoleAnalysis      = "analysis"
	RoleFixGeneration = "fix-generation"
	RoleValidation    = "validation"
	RoleIntegration   = "integration"
)

// Config controls one coordinated run
type Config struct {
	// MaxFixes caps how many issues get fix proposals (default 10)
	MaxFixes int

	// CreatePR makes the integration role open a pull request. It also
	// promotes integration to a critical step: a requested PR that cannot
	// be opened fails the whole run rather than silently degrading.
	CreatePR bool

	// Branch is the integration branch name (required when a VCS backend
	// is configured)
	Branch string

	// CommitMessage overrides the default commit message
	CommitMessage string

	// PRTitle overrides the default pull request title
	PRTitle string

	// IntegrationAttempts is the integration step's retry budget (default 1)
	IntegrationAttempts int
}

// Coordinator wires the collaborators behind each role
type Coordinator struct {
	analyzer  types.Analyzer
	fixer     types.FixGenerator
	validator *gates.Validator
	vcs       types.VCS // nil disables integration side effects
	cfg       Config
}

// New creates a coordinator. The VCS backend may be nil for dry runs; the
// coordinator role rejects that combination when a PR was requested.
func New(analyzer types.Analyzer, fixer types.FixGenerator, validator *gates.Validator, vcs types.VCS, cfg Config) (*Coordinator, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if fixer == nil {
		return nil, fmt.Errorf("fix generator is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.MaxFixes < 1 {
		cfg.MaxFixes = 10
	}
	if cfg.IntegrationAttempts < 1 {
		cfg.IntegrationAttempts = 1
	}
	if cfg.CommitMessage == "" {
		cfg.CommitMessage = "Apply automated code improvements"
	}

	return &Coordinator{
		analyzer:  analyzer,
		fixer:     fixer,
		validator: validator,
		vcs:       vcs,
		cfg:       cfg,
	}, nil
}

// Coordinate runs the role sequence against the artifact. The returned error
// is non-nil only for an engine misconfiguration, which is a programming
// defect; every collaborator failure is recorded inside the result.
func (c *Coordinator) Coordinate(ctx context.Context, artifact *types.Artifact) (*types.WorkflowResult, error) {
	actx := NewAgentContext()

	steps := []workflow.Step{
		{
			Name:     RoleCoordinator,
			Critical: true,
			Run:      c.coordinate(actx, artifact),
		},
		{
			Name:      RoleAnalysis,
			DependsOn: []string{RoleCoordinator},
			Critical:  true,
			Run:       c.analyze(actx, artifact),
		},
		{
			Name:      RoleFixGeneration,
			DependsOn: []string{RoleAnalysis},
			Run:       c.generateFixes(actx, artifact),
		},
		{
			Name:      RoleValidation,
			DependsOn: []string{RoleFixGeneration},
			Run:       c.validate(actx, artifact),
		},
		{
			Name:      RoleIntegration,
			DependsOn: []string{RoleValidation},
			Critical:  c.cfg.CreatePR,
			Attempts:  c.cfg.IntegrationAttempts,
			Run:       c.integrate(actx),
		},
	}

	engine, err := workflow.NewEngine(steps)
	if err != nil {
		return nil, err
	}

	result := engine.Execute(ctx, actx.Workflow())
	if ref, ok := actx.PRReference(); ok {
		result.PRReference = ref
	}
	return result, nil
}

// coordinate plans the run: it checks the inputs every later role assumes
// and commits the role sequence to the context.
func (c *Coordinator) coordinate(actx *AgentContext, artifact *types.Artifact) workflow.StepFunc {
	return func(ctx context.Context, wfctx *workflow.Context) (string, error) {
		if artifact == nil || strings.TrimSpace(artifact.Content) == "" {
			return "", fmt.Errorf("artifact is empty")
		}
		if c.cfg.CreatePR && c.vcs == nil {
			return "", fmt.Errorf("pull request requested but no VCS backend configured")
		}
		if c.vcs != nil && c.cfg.Branch == "" {
			return "", fmt.Errorf("VCS backend configured but no branch name")
		}

		roles := []string{RoleAnalysis, RoleFixGeneration, RoleValidation, RoleIntegration}
		if err := actx.setPlan(RoleCoordinator, roles); err != nil {
			return "", err
		}
		actx.Logf(RoleCoordinator, "planned %d roles for %s", len(roles), artifact.Path)
		return fmt.Sprintf("planned %d roles", len(roles)), nil
	}
}

func (c *Coordinator) analyze(actx *AgentContext, artifact *types.Artifact) workflow.StepFunc {
	return func(ctx context.Context, wfctx *workflow.Context) (string, error) {
		findings, err := c.analyzer.Analyze(ctx, artifact)
		if err != nil {
			return "", &types.AnalysisError{Path: artifact.Path, Err: err}
		}
		if err := findings.Validate(); err != nil {
			return "", &types.AnalysisError{Path: artifact.Path, Err: err}
		}
		if err := actx.setFindings(RoleAnalysis, findings); err != nil {
			return "", err
		}
		actx.Logf(RoleAnalysis, "quality %d/10, %d issues", findings.QualityScore, len(findings.Issues))
		return fmt.Sprintf("quality %d/10, %d issues", findings.QualityScore, len(findings.Issues)), nil
	}
}

func (c *Coordinator) generateFixes(actx *AgentContext, artifact *types.Artifact) workflow.StepFunc {
	return func(ctx context.Context, wfctx *workflow.Context) (string, error) {
		findings := actx.Findings()
		if findings == nil {
			return "", fmt.Errorf("analysis findings missing")
		}

		// Highest severity first; analyzer order breaks ties
		issues := make([]*types.Issue, len(findings.Issues))
		copy(issues, findings.Issues)
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].Severity.Rank() > issues[j].Severity.Rank()
		})
		if len(issues) > c.cfg.MaxFixes {
			issues = issues[:c.cfg.MaxFixes]
		}

		var fixes []*types.Fix
		for _, issue := range issues {
			fix, err := c.fixer.Propose(ctx, issue, artifact)
			if err != nil {
				actx.Logf(RoleFixGeneration, "no fix for %s: %v", issue.Location(), err)
				continue
			}
			if fix == nil {
				actx.Logf(RoleFixGeneration, "generator declined %s", issue.Location())
				continue
			}
			fix.State = types.FixProposed
			fixes = append(fixes, fix)
		}

		if err := actx.setFixes(RoleFixGeneration, fixes); err != nil {
			return "", err
		}
		return fmt.Sprintf("proposed %d fixes for %d issues", len(fixes), len(issues)), nil
	}
}

// validate applies each proposed fix in order and keeps only those the gates
// accept. The artifact with all accepted fixes applied becomes the
// integration input.
func (c *Coordinator) validate(actx *AgentContext, artifact *types.Artifact) workflow.StepFunc {
	return func(ctx context.Context, wfctx *workflow.Context) (string, error) {
		outcome := &ValidationOutcome{Artifact: artifact}
		working := artifact

		for _, fix := range actx.Fixes() {
			candidate, err := converge.ApplyFix(working, fix)
			if err != nil {
				fix.State = types.FixRejected
				outcome.Fixes = append(outcome.Fixes, &FixOutcome{Fix: fix})
				actx.Logf(RoleValidation, "fix for %s failed to apply: %v", fix.File, err)
				continue
			}
			fix.State = types.FixApplied

			gateResult := c.validator.Validate(ctx, candidate)
			fo := &FixOutcome{Fix: fix, Gates: gateResult, Accepted: gateResult.Passed}
			outcome.Fixes = append(outcome.Fixes, fo)

			if gateResult.Passed {
				fix.State = types.FixValidated
				outcome.Accepted++
				working = candidate
			} else {
				fix.State = types.FixRejected
			}
		}

		outcome.Artifact = working
		if err := actx.setValidation(RoleValidation, outcome); err != nil {
			return "", err
		}
		actx.Logf(RoleValidation, "%d/%d fixes validated", outcome.Accepted, len(outcome.Fixes))
		return fmt.Sprintf("%d/%d fixes validated", outcome.Accepted, len(outcome.Fixes)), nil
	}
}

func (c *Coordinator) integrate(actx *AgentContext) workflow.StepFunc {
	return func(ctx context.Context, wfctx *workflow.Context) (string, error) {
		outcome := actx.Validation()
		if outcome == nil || outcome.Accepted == 0 {
			actx.Logf(RoleIntegration, "no validated fixes, nothing to integrate")
			return "no validated fixes, nothing to integrate", nil
		}
		if c.vcs == nil {
			actx.Logf(RoleIntegration, "no VCS backend, leaving fixes local")
			return "no VCS backend, leaving fixes local", nil
		}

		if err := c.vcs.CreateBranch(ctx, c.cfg.Branch); err != nil {
			return "", err
		}
		if err := c.vcs.Commit(ctx, outcome.Artifact, c.cfg.CommitMessage); err != nil {
			return "", err
		}
		if err := c.vcs.Push(ctx, c.cfg.Branch); err != nil {
			return "", err
		}
		if !c.cfg.CreatePR {
			actx.Logf(RoleIntegration, "pushed branch %s", c.cfg.Branch)
			return fmt.Sprintf("pushed branch %s", c.cfg.Branch), nil
		}

		title := c.cfg.PRTitle
		if title == "" {
			title = fmt.Sprintf("Automated code improvements for %s", outcome.Artifact.Path)
		}
		ref, err := c.vcs.OpenPullRequest(ctx, title, c.prDescription(actx))
		if err != nil {
			return "", err
		}
		if err := actx.setPRReference(RoleIntegration, ref); err != nil {
			return "", err
		}
		actx.Logf(RoleIntegration, "opened pull request %s", ref)
		return fmt.Sprintf("opened pull request %s", ref), nil
	}
}

// prDescription builds the PR body from what the earlier roles recorded
func (c *Coordinator) prDescription(actx *AgentContext) string {
	var b strings.Builder
	b.WriteString("Automated fixes applied after analysis.\n\n")

	if findings := actx.Findings(); findings != nil {
		fmt.Fprintf(&b, "Quality score before fixes: %d/10\n\n", findings.QualityScore)
	}

	if outcome := actx.Validation(); outcome != nil {
		fmt.Fprintf(&b, "## Applied fixes (%d)\n", outcome.Accepted)
		for _, fo := range outcome.Fixes {
			if !fo.Accepted {
				continue
			}
			fmt.Fprintf(&b, "- %s:%d %s\n", fo.Fix.File, fo.Fix.Line, fo.Fix.Description)
		}
	}

	return b.String()
}
