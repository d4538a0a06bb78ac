package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueFingerprint_Stable(t *testing.T) {
	a := &Issue{Category: CategorySecurity, Severity: SeverityHigh, File: "main.go", Line: 12, Description: "use of eval with user input", Source: "static"}
	b := &Issue{Category: CategorySecurity, Severity: SeverityHigh, File: "main.go", Line: 12, Description: "use of eval with user input", Source: "llm"}

	// Source tag does not participate in identity
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestIssueFingerprint_NormalizesDescription(t *testing.T) {
	a := &Issue{Category: CategoryStyle, Severity: SeverityLow, File: "util.py", Line: 3, Description: "Use  'is not None'   instead"}
	b := &Issue{Category: CategoryStyle, Severity: SeverityLow, File: "util.py", Line: 3, Description: "use 'is not none' instead"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestIssueFingerprint_DistinguishesLocationAndCategory(t *testing.T) {
	base := &Issue{Category: CategoryBug, Severity: SeverityMedium, File: "a.go", Line: 10, Description: "possible nil dereference"}
	otherLine := &Issue{Category: CategoryBug, Severity: SeverityMedium, File: "a.go", Line: 11, Description: "possible nil dereference"}
	otherCategory := &Issue{Category: CategoryQuality, Severity: SeverityMedium, File: "a.go", Line: 10, Description: "possible nil dereference"}

	assert.NotEqual(t, base.Fingerprint(), otherLine.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), otherCategory.Fingerprint())
}

func TestIssueFingerprint_PrefixCollapse(t *testing.T) {
	// Same category+location with descriptions agreeing on the prefix collapse
	// to one identity. Deliberate precision/recall trade-off, not a bug.
	long := strings.Repeat("unclosed file handle leaks descriptor ", 4)
	a := &Issue{Category: CategoryQuality, Severity: SeverityMedium, File: "io.py", Line: 7, Description: long + "variant one"}
	b := &Issue{Category: CategoryQuality, Severity: SeverityMedium, File: "io.py", Line: 7, Description: long + "variant two"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestIssueValidate(t *testing.T) {
	valid := &Issue{Category: CategoryBug, Severity: SeverityHigh, File: "x.go", Line: 1, Description: "boom"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		issue Issue
	}{
		{"bad category", Issue{Category: "cosmic", Severity: SeverityHigh, File: "x.go", Line: 1, Description: "d"}},
		{"bad severity", Issue{Category: CategoryBug, Severity: "critical", File: "x.go", Line: 1, Description: "d"}},
		{"missing file", Issue{Category: CategoryBug, Severity: SeverityHigh, Line: 1, Description: "d"}},
		{"negative line", Issue{Category: CategoryBug, Severity: SeverityHigh, File: "x.go", Line: -1, Description: "d"}},
		{"blank description", Issue{Category: CategoryBug, Severity: SeverityHigh, File: "x.go", Line: 1, Description: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.issue.Validate())
		})
	}
}

func TestAnalysisResultValidate_DuplicateFingerprints(t *testing.T) {
	issue := &Issue{Category: CategoryBug, Severity: SeverityHigh, File: "x.go", Line: 5, Description: "dup"}
	clone := *issue
	result := &AnalysisResult{
		Language:     "go",
		SyntaxValid:  true,
		QualityScore: 5,
		Issues:       []*Issue{issue, &clone},
	}

	err := result.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate issue fingerprint")
}

func TestAnalysisResultValidate_ScoreRange(t *testing.T) {
	for _, score := range []int{0, 11, -3} {
		r := &AnalysisResult{QualityScore: score}
		assert.Error(t, r.Validate(), "score %d should be rejected", score)
	}
	r := &AnalysisResult{QualityScore: 10}
	assert.NoError(t, r.Validate())
}

func TestFixStateTransitions(t *testing.T) {
	assert.True(t, FixProposed.CanTransitionTo(FixApplied))
	assert.True(t, FixProposed.CanTransitionTo(FixRejected))
	assert.True(t, FixApplied.CanTransitionTo(FixValidated))
	assert.True(t, FixApplied.CanTransitionTo(FixRejected))

	// Terminal states go nowhere
	assert.False(t, FixValidated.CanTransitionTo(FixApplied))
	assert.False(t, FixRejected.CanTransitionTo(FixProposed))
	// Validation cannot be skipped
	assert.False(t, FixProposed.CanTransitionTo(FixValidated))
}

func TestStepStatusTransitions(t *testing.T) {
	assert.True(t, StepPending.CanTransitionTo(StepRunning))
	assert.True(t, StepPending.CanTransitionTo(StepSkipped))
	assert.True(t, StepRunning.CanTransitionTo(StepCompleted))
	assert.True(t, StepRunning.CanTransitionTo(StepFailed))
	assert.True(t, StepFailed.CanTransitionTo(StepRunning)) // retry
	assert.True(t, StepFailed.CanTransitionTo(StepSkipped)) // non-critical exhaustion

	assert.False(t, StepCompleted.CanTransitionTo(StepRunning))
	assert.False(t, StepSkipped.CanTransitionTo(StepRunning))
	assert.False(t, StepPending.CanTransitionTo(StepCompleted))
}

func TestFixValidate(t *testing.T) {
	valid := &Fix{File: "x.go", Description: "swap", Original: "a", Replacement: "b", Fingerprints: []string{"fp"}}
	require.NoError(t, valid.Validate())

	full := &Fix{File: "x.go", Description: "rewrite", FixedContent: "package x", Fingerprints: []string{"fp"}}
	require.NoError(t, full.Validate())

	noEdit := &Fix{File: "x.go", Description: "nothing", Fingerprints: []string{"fp"}}
	assert.Error(t, noEdit.Validate())

	noFP := &Fix{File: "x.go", Description: "swap", Original: "a", Replacement: "b"}
	assert.Error(t, noFP.Validate())
}

func TestWorkflowResult_StepOutcome(t *testing.T) {
	r := &WorkflowResult{
		Status: WorkflowSuccess,
		Steps: []StepOutcome{
			{Name: "analysis", Status: StepCompleted},
			{Name: "integration", Status: StepSkipped},
		},
	}

	require.NotNil(t, r.StepOutcome("integration"))
	assert.Equal(t, StepSkipped, r.StepOutcome("integration").Status)
	assert.Nil(t, r.StepOutcome("missing"))
}

func TestRoundRecordValidate(t *testing.T) {
	analysis := &AnalysisResult{QualityScore: 5}
	good := &RoundRecord{Round: 1, Analysis: analysis, FixesGenerated: 3, FixesApplied: 2, FixesValidated: 1}
	require.NoError(t, good.Validate())

	bad := &RoundRecord{Round: 1, Analysis: analysis, FixesGenerated: 1, FixesApplied: 2, FixesValidated: 3}
	assert.Error(t, bad.Validate())

	zeroRound := &RoundRecord{Round: 0, Analysis: analysis}
	assert.Error(t, zeroRound.Validate())
}
