package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Category classifies what kind of problem an issue describes
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryQuality     Category = "quality"
	CategoryBug         Category = "bug"
	CategoryStyle       Category = "style"
)

// IsValid checks if the category value is valid
func (c Category) IsValid() bool {
	switch c {
	case CategorySecurity, CategoryPerformance, CategoryQuality, CategoryBug, CategoryStyle:
		return true
	}
	return false
}

// Severity indicates how urgent an issue is
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank returns a sortable weight for the severity (higher is more urgent)
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Issue represents one detected problem in an artifact.
// Issues are immutable once created; rounds that re-detect the same
// problem produce new Issue values with the same fingerprint.
type Issue struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Column      int      `json:"column,omitempty"`
	Description string   `json:"description"`
	Source      string   `json:"source,omitempty"` // which analyzer/agent produced it
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if !i.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", i.Category)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.File == "" {
		return fmt.Errorf("file is required")
	}
	if i.Line < 0 {
		return fmt.Errorf("line cannot be negative (got %d)", i.Line)
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

// Location returns the issue position as "file:line" or "file:line:col"
func (i *Issue) Location() string {
	if i.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column)
	}
	return fmt.Sprintf("%s:%d", i.File, i.Line)
}

// fingerprintPrefixLen bounds how much of the normalized description
// participates in the fingerprint. Two issues at the same location whose
// descriptions agree on this prefix collapse to one identity. This trades
// recall for precision: reworded findings from different analyzers dedupe
// instead of accumulating across rounds.
const fingerprintPrefixLen = 48

// Fingerprint returns a stable identity key for cross-round deduplication.
// It hashes (category, location, normalized description prefix) so the same
// underlying problem maps to the same key regardless of which round or
// analyzer reported it.
func (i *Issue) Fingerprint() string {
	desc := strings.ToLower(strings.Join(strings.Fields(i.Description), " "))
	if len(desc) > fingerprintPrefixLen {
		desc = desc[:fingerprintPrefixLen]
	}
	h := sha256.Sum256([]byte(string(i.Category) + "|" + i.Location() + "|" + desc))
	return hex.EncodeToString(h[:8])
}

// Artifact is the unit of work flowing through workflows: one source file
// (or file-shaped blob) being analyzed and improved.
type Artifact struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// LineCount returns the number of lines in the artifact content
func (a *Artifact) LineCount() int {
	if a.Content == "" {
		return 0
	}
	return strings.Count(a.Content, "\n") + 1
}

// AnalysisResult is the output of one analysis pass over an artifact.
// Results are never mutated; later rounds produce new instances.
type AnalysisResult struct {
	Language        string    `json:"language"`
	LineCount       int       `json:"line_count"`
	SyntaxValid     bool      `json:"syntax_valid"`
	Issues          []*Issue  `json:"issues"`
	QualityScore    int       `json:"quality_score"` // 1-10
	Recommendations []string  `json:"recommendations,omitempty"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Validate checks if the analysis result has valid field values.
// Issue fingerprints must be unique within a single result's issue set.
func (r *AnalysisResult) Validate() error {
	if r.QualityScore < 1 || r.QualityScore > 10 {
		return fmt.Errorf("quality_score must be between 1 and 10 (got %d)", r.QualityScore)
	}
	seen := make(map[string]string, len(r.Issues))
	for _, issue := range r.Issues {
		if err := issue.Validate(); err != nil {
			return fmt.Errorf("invalid issue at %s: %w", issue.Location(), err)
		}
		fp := issue.Fingerprint()
		if prev, ok := seen[fp]; ok {
			return fmt.Errorf("duplicate issue fingerprint %s (%s and %s)", fp, prev, issue.Location())
		}
		seen[fp] = issue.Location()
	}
	return nil
}

// FixState tracks a fix through its lifecycle
type FixState string

const (
	FixProposed  FixState = "proposed"
	FixApplied   FixState = "applied"
	FixValidated FixState = "validated"
	FixRejected  FixState = "rejected"
)

// IsValid checks if the fix state value is valid
func (s FixState) IsValid() bool {
	switch s {
	case FixProposed, FixApplied, FixValidated, FixRejected:
		return true
	}
	return false
}

// CanTransitionTo checks if a transition from this state to the target is valid.
// Lifecycle: proposed -> applied -> validated | rejected. A proposed fix can
// also be rejected outright (application failed).
func (s FixState) CanTransitionTo(target FixState) bool {
	switch s {
	case FixProposed:
		return target == FixApplied || target == FixRejected
	case FixApplied:
		return target == FixValidated || target == FixRejected
	}
	return false
}

// Fix is a proposed change to an artifact. A rejected fix is discarded, not
// retried; the loop may request a fresh fix for the same issue next round.
type Fix struct {
	File         string   `json:"file"`
	Line         int      `json:"line,omitempty"`
	Description  string   `json:"description"`
	Original     string   `json:"original,omitempty"`      // exact text to replace
	Replacement  string   `json:"replacement,omitempty"`   // replacement text
	FixedContent string   `json:"fixed_content,omitempty"` // full replacement content, preferred when set
	Fingerprints []string `json:"fingerprints"`            // issue fingerprint(s) this fix addresses
	State        FixState `json:"state"`
}

// Validate checks if the fix has valid field values
func (f *Fix) Validate() error {
	if f.File == "" {
		return fmt.Errorf("file is required")
	}
	if len(f.Fingerprints) == 0 {
		return fmt.Errorf("fix must reference at least one issue fingerprint")
	}
	if f.FixedContent == "" && (f.Original == "" || f.Replacement == "") {
		return fmt.Errorf("fix must carry either fixed_content or an original/replacement pair")
	}
	if f.State != "" && !f.State.IsValid() {
		return fmt.Errorf("invalid fix state: %s", f.State)
	}
	return nil
}
