// Package converge runs repeated analyze-fix-validate rounds over an
// artifact until a stopping condition fires. The loop handles round
// mechanics (ordering, history, cancellation) while delegating analysis and
// fix generation to pluggable collaborators.
//
// Stopping conditions, in the order they are checked each round:
//  1. converged:  the issue set is empty, or the quality score reached the
//     configured target
//  2. max_rounds: the round limit was reached
//  3. stalled:    the round produced zero validated fixes. This is the key
//     anti-oscillation guard - an LLM-backed fix generator can
//     deterministically fail to improve a file, and without it the loop
//     would burn rounds doing nothing.
//
// Quality is expected to trend upward but is not guaranteed monotonic; the
// loop never rolls back to an earlier, higher-scoring artifact on its own.
// It returns the artifact from the last round that validated at least one
// fix, plus the full round history so a caller can choose differently.
package converge

import (
	"context"
	"fmt"
	"strings"

	"github.com/codemend/codemend/internal/gates"
	"github.com/codemend/codemend/internal/tracker"
	"github.com/codemend/codemend/internal/types"
)

// Config controls the convergence loop
type Config struct {
	// MaxRounds caps the number of analyze-fix-validate rounds (required, > 0)
	MaxRounds int

	// QualityTarget stops the loop once the analysis score reaches this
	// value. Zero disables the target; the loop then runs until the issue
	// set empties, stalls, or MaxRounds.
	QualityTarget int

	// MaxFixesPerRound caps how many issues get fix attempts in one round
	// (default 10, matching the analyzer's practical output size)
	MaxFixesPerRound int
}

// Result captures the outcome of a convergence run
type Result struct {
	// Rounds is the append-only per-round history (the quality trend)
	Rounds []*types.RoundRecord

	// FinalArtifact is the artifact from the last round that validated at
	// least one fix (the initial artifact when no fix ever validated)
	FinalArtifact *types.Artifact

	// StopReason explains why the loop stopped
	StopReason types.StopReason
}

// Loop wires the collaborators for one convergence run. A Loop instance is
// exclusively owned by that run; the tracker state inside is not reusable.
type Loop struct {
	analyzer  types.Analyzer
	fixer     types.FixGenerator
	validator *gates.Validator
	issues    *tracker.Tracker
	cfg       Config
}

// New creates a convergence loop
func New(analyzer types.Analyzer, fixer types.FixGenerator, validator *gates.Validator, cfg Config) (*Loop, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if fixer == nil {
		return nil, fmt.Errorf("fix generator is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.MaxRounds < 1 {
		return nil, fmt.Errorf("MaxRounds must be positive (got %d)", cfg.MaxRounds)
	}
	if cfg.QualityTarget < 0 || cfg.QualityTarget > 10 {
		return nil, fmt.Errorf("QualityTarget must be within 1-10 or zero (got %d)", cfg.QualityTarget)
	}
	if cfg.MaxFixesPerRound < 1 {
		cfg.MaxFixesPerRound = 10
	}

	return &Loop{
		analyzer:  analyzer,
		fixer:     fixer,
		validator: validator,
		issues:    tracker.New(),
		cfg:       cfg,
	}, nil
}

// Run drives the loop starting from the initial artifact. The returned
// result always carries the rounds recorded so far; the error is non-nil
// only when a collaborator failed hard (analysis error), in which case the
// caller converts it into a step failure.
func (l *Loop) Run(ctx context.Context, initial *types.Artifact) (*Result, error) {
	result := &Result{FinalArtifact: initial}
	current := initial

	for round := 1; round <= l.cfg.MaxRounds; round++ {
		// Cancellation is checked between rounds, never inside a
		// collaborator call, which the loop cannot interrupt.
		if ctx.Err() != nil {
			result.StopReason = types.StopCancelled
			return result, nil
		}

		analysis, err := l.analyzer.Analyze(ctx, current)
		if err != nil {
			return result, &types.AnalysisError{Path: current.Path, Err: err}
		}

		reg, err := l.issues.Register(analysis.Issues, round)
		if err != nil {
			return result, err
		}

		record := &types.RoundRecord{
			Round:          round,
			Analysis:       analysis,
			QualityScore:   analysis.QualityScore,
			IssuesNew:      len(reg.New),
			IssuesResolved: len(reg.Resolved),
			IssuesPersist:  len(reg.Persisting),
		}

		if len(analysis.Issues) == 0 || (l.cfg.QualityTarget > 0 && analysis.QualityScore >= l.cfg.QualityTarget) {
			result.Rounds = append(result.Rounds, record)
			result.StopReason = types.StopConverged
			return result, nil
		}

		if round == l.cfg.MaxRounds {
			result.Rounds = append(result.Rounds, record)
			result.StopReason = types.StopMaxRounds
			return result, nil
		}

		next, err := l.improve(ctx, current, analysis, record)
		result.Rounds = append(result.Rounds, record)
		if err != nil {
			return result, err
		}

		if record.FixesValidated == 0 {
			result.StopReason = types.StopStalled
			return result, nil
		}

		current = next
		result.FinalArtifact = next
	}

	// Unreachable: the round == MaxRounds branch returns first. Kept so the
	// compiler sees a terminal return.
	result.StopReason = types.StopMaxRounds
	return result, nil
}

// improve runs one round's fix phase: propose, apply, and validate fixes for
// the highest-severity unresolved issues. Returns the improved artifact
// (which may equal the input when nothing validated).
func (l *Loop) improve(ctx context.Context, current *types.Artifact, analysis *types.AnalysisResult, record *types.RoundRecord) (*types.Artifact, error) {
	candidates := l.issues.Open()
	if len(candidates) > l.cfg.MaxFixesPerRound {
		candidates = candidates[:l.cfg.MaxFixesPerRound]
	}

	fixedThisRound := make(map[string]bool)
	working := current

	for _, issue := range candidates {
		fp := issue.Fingerprint()
		if fixedThisRound[fp] {
			// A fix is never applied twice for the same fingerprint in a round
			continue
		}

		fix, err := l.fixer.Propose(ctx, issue, working)
		if err != nil {
			// Hard generator failure: give up on this issue for the round,
			// not on the round itself.
			fmt.Printf("warning: fix generation failed for %s: %v\n", issue.Location(), err)
			continue
		}
		if fix == nil {
			continue // generator cannot address this issue
		}
		fix.State = types.FixProposed
		record.FixesGenerated++

		candidate, err := ApplyFix(working, fix)
		if err != nil {
			fix.State = types.FixRejected
			continue
		}
		fix.State = types.FixApplied
		record.FixesApplied++

		validation := l.validator.Validate(ctx, candidate)
		if !validation.Passed {
			// Discard, don't retry; the next round may request a fresh fix
			// for the same issue.
			fix.State = types.FixRejected
			continue
		}

		fix.State = types.FixValidated
		record.FixesValidated++
		working = candidate
		for _, addressed := range fix.Fingerprints {
			fixedThisRound[addressed] = true
		}
	}

	return working, nil
}

// ApplyFix produces a candidate artifact with the fix applied, leaving the
// input artifact untouched. Full-content fixes win over targeted
// replacements; a targeted replacement whose original text is absent fails
// application.
func ApplyFix(artifact *types.Artifact, fix *types.Fix) (*types.Artifact, error) {
	if err := fix.Validate(); err != nil {
		return nil, err
	}

	content := artifact.Content
	if fix.FixedContent != "" {
		content = fix.FixedContent
	} else {
		if !strings.Contains(content, fix.Original) {
			return nil, fmt.Errorf("original text not found in artifact")
		}
		content = strings.Replace(content, fix.Original, fix.Replacement, 1)
	}

	return &types.Artifact{
		Path:     artifact.Path,
		Content:  content,
		Language: artifact.Language,
	}, nil
}
