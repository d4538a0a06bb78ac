package agents

import (
	"fmt"
	"time"

	"github.com/codemend/codemend/internal/gates"
	"github.com/codemend/codemend/internal/types"
	"github.com/codemend/codemend/internal/workflow"
)

// Slot names, one per producing role. A role only ever reads slots written by
// roles earlier in the sequence; the workflow context's ownership check backs
// this up at runtime.
const (
	slotPlan     = "plan"
	slotFindings = "findings"
	slotFixes    = "fixes"
	slotOutcome  = "validation"
	slotPR       = "pr-reference"
)

// StatusEntry is one line of the per-role activity log
type StatusEntry struct {
	Role    string    `json:"role"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// FixOutcome records what validation decided about one proposed fix
type FixOutcome struct {
	Fix      *types.Fix
	Accepted bool
	Gates    *gates.ValidationResult
}

// ValidationOutcome is the validation role's full output: the per-fix
// decisions plus the artifact with all accepted fixes applied.
type ValidationOutcome struct {
	Fixes    []*FixOutcome
	Artifact *types.Artifact
	Accepted int
}

// AgentContext is the shared state for one coordinated run, a typed view
// over the workflow context's named slots. Exclusively owned by that run.
type AgentContext struct {
	wf  *workflow.Context
	log []StatusEntry
}

// NewAgentContext creates an empty context for one run
func NewAgentContext() *AgentContext {
	return &AgentContext{wf: workflow.NewContext()}
}

// Workflow exposes the underlying step context for the engine
func (c *AgentContext) Workflow() *workflow.Context {
	return c.wf
}

// Logf appends a status entry on behalf of a role
func (c *AgentContext) Logf(role, format string, args ...any) {
	c.log = append(c.log, StatusEntry{
		Role:    role,
		Message: fmt.Sprintf(format, args...),
		At:      time.Now(),
	})
}

// Log returns the per-role activity log in append order
func (c *AgentContext) Log() []StatusEntry {
	return c.log
}

func (c *AgentContext) setPlan(role string, roles []string) error {
	return c.wf.Put(role, slotPlan, roles)
}

// Plan returns the role sequence the coordinator committed to
func (c *AgentContext) Plan() []string {
	v, ok := c.wf.Get(slotPlan)
	if !ok {
		return nil
	}
	return v.([]string)
}

func (c *AgentContext) setFindings(role string, findings *types.AnalysisResult) error {
	return c.wf.Put(role, slotFindings, findings)
}

// Findings returns the analysis role's result, or nil if analysis never ran
func (c *AgentContext) Findings() *types.AnalysisResult {
	v, ok := c.wf.Get(slotFindings)
	if !ok {
		return nil
	}
	return v.(*types.AnalysisResult)
}

func (c *AgentContext) setFixes(role string, fixes []*types.Fix) error {
	return c.wf.Put(role, slotFixes, fixes)
}

// Fixes returns the fix-generation role's proposals
func (c *AgentContext) Fixes() []*types.Fix {
	v, ok := c.wf.Get(slotFixes)
	if !ok {
		return nil
	}
	return v.([]*types.Fix)
}

func (c *AgentContext) setValidation(role string, outcome *ValidationOutcome) error {
	return c.wf.Put(role, slotOutcome, outcome)
}

// Validation returns the validation role's output, or nil if it never ran
func (c *AgentContext) Validation() *ValidationOutcome {
	v, ok := c.wf.Get(slotOutcome)
	if !ok {
		return nil
	}
	return v.(*ValidationOutcome)
}

func (c *AgentContext) setPRReference(role, ref string) error {
	return c.wf.Put(role, slotPR, ref)
}

// PRReference returns the opened pull request reference, if any
func (c *AgentContext) PRReference() (string, bool) {
	v, ok := c.wf.Get(slotPR)
	if !ok {
		return "", false
	}
	return v.(string), true
}
