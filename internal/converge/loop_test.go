package converge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/codemend/codemend/internal/gates"
	"github.com/codemend/codemend/internal/types"
)

// mockAnalyzer scripts one analysis result per round
type mockAnalyzer struct {
	analyzeFunc func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error)
	calls       int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
	m.calls++
	if m.analyzeFunc != nil {
		return m.analyzeFunc(ctx, artifact)
	}
	return &types.AnalysisResult{Language: "python", SyntaxValid: true, QualityScore: 10}, nil
}

// mockFixer is a test implementation of the fix generator
type mockFixer struct {
	proposeFunc func(ctx context.Context, issue *types.Issue, artifact *types.Artifact) (*types.Fix, error)
	calls       int
}

func (m *mockFixer) Propose(ctx context.Context, issue *types.Issue, artifact *types.Artifact) (*types.Fix, error) {
	m.calls++
	if m.proposeFunc != nil {
		return m.proposeFunc(ctx, issue, artifact)
	}
	return nil, nil
}

func issue(severity types.Severity, line int, desc string) *types.Issue {
	return &types.Issue{
		Category:    types.CategoryQuality,
		Severity:    severity,
		File:        "app.py",
		Line:        line,
		Description: desc,
	}
}

func analysis(score int, issues ...*types.Issue) *types.AnalysisResult {
	return &types.AnalysisResult{
		Language:     "python",
		SyntaxValid:  true,
		QualityScore: score,
		Issues:       issues,
	}
}

// passValidator accepts every candidate artifact
func passValidator(t *testing.T) *gates.Validator {
	t.Helper()
	v, err := gates.NewValidator([]gates.Gate{
		&gates.FuncGate{GateName: "accept", GateTier: gates.TierBlocking, CheckFn: func(ctx context.Context, a *types.Artifact) (bool, string, error) {
			return true, "", nil
		}},
	})
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	return v
}

// rewriteFixer returns a full-content fix for every issue it sees
func rewriteFixer() *mockFixer {
	return &mockFixer{
		proposeFunc: func(ctx context.Context, iss *types.Issue, artifact *types.Artifact) (*types.Fix, error) {
			return &types.Fix{
				File:         iss.File,
				Line:         iss.Line,
				Description:  "rewrite",
				FixedContent: fmt.Sprintf("%s\n# mended: %s", artifact.Content, iss.Description),
				Fingerprints: []string{iss.Fingerprint()},
			}, nil
		},
	}
}

func TestRun_ConvergesOnQualityTarget(t *testing.T) {
	ctx := context.Background()

	// Three rounds: score climbs 4 -> 6 -> 8, one issue resolved per round
	a := issue(types.SeverityHigh, 3, "eval of user input")
	b := issue(types.SeverityMedium, 10, "file opened without closing")
	c := issue(types.SeverityLow, 20, "comparison with None uses !=")

	round := 0
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			round++
			switch round {
			case 1:
				return analysis(4, a, b, c), nil
			case 2:
				return analysis(6, b, c), nil
			default:
				return analysis(8, c), nil
			}
		},
	}

	loop, err := New(analyzer, rewriteFixer(), passValidator(t), Config{MaxRounds: 5, QualityTarget: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	initial := &types.Artifact{Path: "app.py", Content: "original", Language: "python"}
	result, err := loop.Run(ctx, initial)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.StopReason != types.StopConverged {
		t.Errorf("Expected converged, got %s", result.StopReason)
	}
	if len(result.Rounds) != 3 {
		t.Fatalf("Expected 3 rounds, got %d", len(result.Rounds))
	}
	if result.Rounds[2].QualityScore != 8 {
		t.Errorf("Expected final score 8, got %d", result.Rounds[2].QualityScore)
	}
	// Fixes validated in rounds 1 and 2; the final artifact carries them
	if result.FinalArtifact == initial {
		t.Error("Expected improved artifact, got the initial one")
	}
	if result.Rounds[0].FixesValidated == 0 || result.Rounds[1].FixesValidated == 0 {
		t.Error("Expected validated fixes in rounds 1 and 2")
	}

	// Round accounting: round 1 all new, later rounds split resolved/persist
	r1 := result.Rounds[0]
	if r1.IssuesNew != 3 || r1.IssuesResolved != 0 || r1.IssuesPersist != 0 {
		t.Errorf("Round 1 accounting wrong: new=%d resolved=%d persist=%d", r1.IssuesNew, r1.IssuesResolved, r1.IssuesPersist)
	}
	r2 := result.Rounds[1]
	if r2.IssuesNew != 0 || r2.IssuesResolved != 1 || r2.IssuesPersist != 2 {
		t.Errorf("Round 2 accounting wrong: new=%d resolved=%d persist=%d", r2.IssuesNew, r2.IssuesResolved, r2.IssuesPersist)
	}
}

func TestRun_ConvergesOnEmptyIssueSet(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			return analysis(7), nil // no issues even though below any target
		},
	}

	loop, err := New(analyzer, &mockFixer{}, passValidator(t), Config{MaxRounds: 3, QualityTarget: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := loop.Run(context.Background(), &types.Artifact{Path: "a.py", Content: "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.StopReason != types.StopConverged {
		t.Errorf("Expected converged, got %s", result.StopReason)
	}
	if len(result.Rounds) != 1 {
		t.Errorf("Expected 1 round, got %d", len(result.Rounds))
	}
}

func TestRun_StallsWhenGeneratorDeclines(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			return analysis(3, issue(types.SeverityHigh, 1, "use of exec")), nil
		},
	}
	// Default mockFixer returns (nil, nil): cannot address anything
	fixer := &mockFixer{}

	loop, err := New(analyzer, fixer, passValidator(t), Config{MaxRounds: 5, QualityTarget: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	initial := &types.Artifact{Path: "a.py", Content: "exec(cmd)", Language: "python"}
	result, err := loop.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.StopReason != types.StopStalled {
		t.Errorf("Expected stalled, got %s", result.StopReason)
	}
	if len(result.Rounds) != 1 {
		t.Errorf("Expected stall after round 1, got %d rounds", len(result.Rounds))
	}
	if result.FinalArtifact != initial {
		t.Error("A stalled round must not change the final artifact")
	}
	if fixer.calls != 1 {
		t.Errorf("Expected 1 propose call, got %d", fixer.calls)
	}
}

func TestRun_StallsWhenValidationRejectsEveryFix(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			return analysis(3, issue(types.SeverityHigh, 1, "use of exec")), nil
		},
	}

	rejectAll, err := gates.NewValidator([]gates.Gate{
		&gates.FuncGate{GateName: "reject", GateTier: gates.TierBlocking, CheckFn: func(ctx context.Context, a *types.Artifact) (bool, string, error) {
			return false, "broken", nil
		}},
	})
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	loop, err := New(analyzer, rewriteFixer(), rejectAll, Config{MaxRounds: 5, QualityTarget: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	initial := &types.Artifact{Path: "a.py", Content: "exec(cmd)"}
	result, err := loop.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.StopReason != types.StopStalled {
		t.Errorf("Expected stalled, got %s", result.StopReason)
	}
	r := result.Rounds[0]
	if r.FixesGenerated != 1 || r.FixesApplied != 1 || r.FixesValidated != 0 {
		t.Errorf("Expected generated=1 applied=1 validated=0, got %d/%d/%d", r.FixesGenerated, r.FixesApplied, r.FixesValidated)
	}
	if result.FinalArtifact != initial {
		t.Error("Rejected fixes must not reach the final artifact")
	}
}

func TestRun_StopsAtMaxRounds(t *testing.T) {
	// Quality improves every round but never reaches the target; fixes keep
	// validating so the stall guard never fires.
	round := 0
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			round++
			return analysis(min(3+round, 7), issue(types.SeverityMedium, round, fmt.Sprintf("issue round %d", round))), nil
		},
	}

	loop, err := New(analyzer, rewriteFixer(), passValidator(t), Config{MaxRounds: 4, QualityTarget: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := loop.Run(context.Background(), &types.Artifact{Path: "a.py", Content: "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.StopReason != types.StopMaxRounds {
		t.Errorf("Expected max_rounds, got %s", result.StopReason)
	}
	if len(result.Rounds) != 4 {
		t.Errorf("Expected exactly 4 rounds, got %d", len(result.Rounds))
	}
	// The final round records analysis only; no fix phase ran for it
	if result.Rounds[3].FixesGenerated != 0 {
		t.Errorf("Final round must not generate fixes, got %d", result.Rounds[3].FixesGenerated)
	}
}

func TestRun_CancellationBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			cancel() // fires mid-round; honored before the next round starts
			return analysis(3, issue(types.SeverityLow, 1, "todo density high")), nil
		},
	}

	loop, err := New(analyzer, rewriteFixer(), passValidator(t), Config{MaxRounds: 10, QualityTarget: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := loop.Run(ctx, &types.Artifact{Path: "a.py", Content: "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.StopReason != types.StopCancelled {
		t.Errorf("Expected cancelled, got %s", result.StopReason)
	}
	// Round 1 completed in full before the cancellation was observed
	if len(result.Rounds) != 1 {
		t.Errorf("Expected 1 completed round, got %d", len(result.Rounds))
	}
	if analyzer.calls != 1 {
		t.Errorf("Expected 1 analyze call, got %d", analyzer.calls)
	}
}

func TestRun_AnalyzerErrorPropagates(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			return nil, errors.New("model overloaded")
		},
	}

	loop, err := New(analyzer, &mockFixer{}, passValidator(t), Config{MaxRounds: 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = loop.Run(context.Background(), &types.Artifact{Path: "a.py", Content: "x"})
	if err == nil {
		t.Fatal("Expected error from failed analysis")
	}

	var analysisErr *types.AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("Expected *types.AnalysisError, got %T", err)
	}
	if analysisErr.Path != "a.py" {
		t.Errorf("Expected path a.py, got %q", analysisErr.Path)
	}
}

func TestRun_FixGeneratorErrorSkipsIssueNotRound(t *testing.T) {
	a := issue(types.SeverityHigh, 1, "eval of user input")
	b := issue(types.SeverityMedium, 5, "bare except clause")

	round := 0
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			round++
			if round == 1 {
				return analysis(4, a, b), nil
			}
			return analysis(9, a), nil
		},
	}

	// Generation fails hard for the first issue but succeeds for the second
	fixer := &mockFixer{
		proposeFunc: func(ctx context.Context, iss *types.Issue, artifact *types.Artifact) (*types.Fix, error) {
			if iss.Line == 1 {
				return nil, errors.New("context window exceeded")
			}
			return &types.Fix{
				File:         iss.File,
				Line:         iss.Line,
				Description:  "fix",
				FixedContent: artifact.Content + "\n# mended",
				Fingerprints: []string{iss.Fingerprint()},
			}, nil
		},
	}

	loop, err := New(analyzer, fixer, passValidator(t), Config{MaxRounds: 5, QualityTarget: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := loop.Run(context.Background(), &types.Artifact{Path: "a.py", Content: "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.StopReason != types.StopConverged {
		t.Errorf("Expected converged, got %s", result.StopReason)
	}
	if result.Rounds[0].FixesValidated != 1 {
		t.Errorf("Expected the surviving fix to validate, got %d", result.Rounds[0].FixesValidated)
	}
}

func TestRun_FingerprintNotFixedTwiceInOneRound(t *testing.T) {
	a := issue(types.SeverityHigh, 1, "eval of user input")
	b := issue(types.SeverityMedium, 5, "bare except clause")

	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			return analysis(4, a, b), nil
		},
	}

	// The first fix claims to address both issues, so the second issue must
	// not get its own propose call this round.
	fixer := &mockFixer{
		proposeFunc: func(ctx context.Context, iss *types.Issue, artifact *types.Artifact) (*types.Fix, error) {
			return &types.Fix{
				File:         iss.File,
				Line:         iss.Line,
				Description:  "combined fix",
				FixedContent: artifact.Content + "\n# mended both",
				Fingerprints: []string{a.Fingerprint(), b.Fingerprint()},
			}, nil
		},
	}

	loop, err := New(analyzer, fixer, passValidator(t), Config{MaxRounds: 2, QualityTarget: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := loop.Run(context.Background(), &types.Artifact{Path: "a.py", Content: "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fixer.calls != 1 {
		t.Errorf("Expected 1 propose call for the round, got %d", fixer.calls)
	}
	if result.Rounds[0].FixesValidated != 1 {
		t.Errorf("Expected 1 validated fix, got %d", result.Rounds[0].FixesValidated)
	}
}

func TestRun_TargetedReplacementFix(t *testing.T) {
	analyzed := false
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, artifact *types.Artifact) (*types.AnalysisResult, error) {
			if analyzed {
				return analysis(9), nil
			}
			analyzed = true
			return analysis(5, issue(types.SeverityLow, 1, "comparison with None uses !=")), nil
		},
	}

	fixer := &mockFixer{
		proposeFunc: func(ctx context.Context, iss *types.Issue, artifact *types.Artifact) (*types.Fix, error) {
			return &types.Fix{
				File:         iss.File,
				Line:         iss.Line,
				Description:  "use is not None",
				Original:     "x != None",
				Replacement:  "x is not None",
				Fingerprints: []string{iss.Fingerprint()},
			}, nil
		},
	}

	loop, err := New(analyzer, fixer, passValidator(t), Config{MaxRounds: 3, QualityTarget: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := loop.Run(context.Background(), &types.Artifact{Path: "a.py", Content: "if x != None:\n    pass\n"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "if x is not None:\n    pass\n"
	if result.FinalArtifact.Content != want {
		t.Errorf("Expected %q, got %q", want, result.FinalArtifact.Content)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	analyzer := &mockAnalyzer{}
	fixer := &mockFixer{}
	validator := passValidator(t)

	if _, err := New(nil, fixer, validator, Config{MaxRounds: 3}); err == nil {
		t.Error("Expected error for nil analyzer")
	}
	if _, err := New(analyzer, nil, validator, Config{MaxRounds: 3}); err == nil {
		t.Error("Expected error for nil fixer")
	}
	if _, err := New(analyzer, fixer, nil, Config{MaxRounds: 3}); err == nil {
		t.Error("Expected error for nil validator")
	}
	if _, err := New(analyzer, fixer, validator, Config{MaxRounds: 0}); err == nil {
		t.Error("Expected error for zero MaxRounds")
	}
	if _, err := New(analyzer, fixer, validator, Config{MaxRounds: 3, QualityTarget: 11}); err == nil {
		t.Error("Expected error for out-of-range target")
	}
}
