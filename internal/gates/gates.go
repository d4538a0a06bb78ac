// Package gates validates candidate fixes before they are accepted.
// A validator runs an ordered list of gates over an artifact and records a
// per-gate outcome. Gates come in two tiers: blocking gates reject the fix
// on failure, advisory gates are recorded but never reject. The two-tier
// policy exists because some checks (import resolution, external linters)
// are only meaningful in environments the engine cannot always control;
// treating them as advisory avoids rejecting valid fixes over environment
// gaps.
package gates

import (
	"context"
	"fmt"
	"time"

	"github.com/codemend/codemend/internal/types"
)

// Tier classifies how a gate failure is treated
type Tier string

const (
	// TierBlocking failures reject the candidate fix
	TierBlocking Tier = "blocking"

	// TierAdvisory failures are recorded but do not reject
	TierAdvisory Tier = "advisory"
)

// IsValid checks if the tier value is valid
func (t Tier) IsValid() bool {
	return t == TierBlocking || t == TierAdvisory
}

// Gate is the capability contract for one validation check
type Gate interface {
	// Name identifies the gate (e.g. "syntax", "imports")
	Name() string

	// Tier returns whether a failure blocks or is advisory
	Tier() Tier

	// Check runs the gate against the artifact. A returned error is treated
	// the same as a failed check, with the error text as detail.
	Check(ctx context.Context, artifact *types.Artifact) (passed bool, detail string, err error)
}

// GateResult records the outcome of one gate check
type GateResult struct {
	Gate   string `json:"gate"`
	Tier   Tier   `json:"tier"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationResult is the outcome of validating one candidate artifact.
// Passed is true only when every blocking gate passed.
type ValidationResult struct {
	Passed  bool         `json:"passed"`
	PerGate []GateResult `json:"per_gate"`
}

// Validator runs a configured, ordered set of gates
type Validator struct {
	gates   []Gate
	timeout time.Duration // per-gate timeout, 0 = none
}

// Option configures a Validator
type Option func(*Validator)

// WithGateTimeout bounds each individual gate check
func WithGateTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// NewValidator creates a validator over the given gates. Gate order is
// preserved: checks run in declaration order.
func NewValidator(gateList []Gate, opts ...Option) (*Validator, error) {
	seen := make(map[string]struct{}, len(gateList))
	for _, g := range gateList {
		if !g.Tier().IsValid() {
			return nil, fmt.Errorf("gate %q has invalid tier %q", g.Name(), g.Tier())
		}
		if _, dup := seen[g.Name()]; dup {
			return nil, fmt.Errorf("duplicate gate name %q", g.Name())
		}
		seen[g.Name()] = struct{}{}
	}

	v := &Validator{gates: gateList}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate runs the gates in order against the artifact.
//
// The first blocking failure short-circuits the remaining blocking gates
// (their result is already decided) but advisory gates still run, so the
// caller gets full diagnostic detail either way. Validation is idempotent:
// the same artifact and gate set produce identical per-gate results.
func (v *Validator) Validate(ctx context.Context, artifact *types.Artifact) *ValidationResult {
	result := &ValidationResult{Passed: true}
	blockingFailed := false

	for _, gate := range v.gates {
		if blockingFailed && gate.Tier() == TierBlocking {
			continue
		}

		checkCtx := ctx
		var cancel context.CancelFunc
		if v.timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, v.timeout)
		}
		passed, detail, err := gate.Check(checkCtx, artifact)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			passed = false
			detail = err.Error()
		}

		result.PerGate = append(result.PerGate, GateResult{
			Gate:   gate.Name(),
			Tier:   gate.Tier(),
			Passed: passed,
			Detail: detail,
		})

		if !passed && gate.Tier() == TierBlocking {
			result.Passed = false
			blockingFailed = true
		}
	}

	return result
}

// Gates returns the configured gate names in execution order
func (v *Validator) Gates() []string {
	names := make([]string, len(v.gates))
	for i, g := range v.gates {
		names[i] = g.Name()
	}
	return names
}

// FuncGate adapts a plain function into a Gate. Useful for custom checks
// and tests.
type FuncGate struct {
	GateName string
	GateTier Tier
	CheckFn  func(ctx context.Context, artifact *types.Artifact) (bool, string, error)
}

func (f *FuncGate) Name() string { return f.GateName }
func (f *FuncGate) Tier() Tier   { return f.GateTier }

func (f *FuncGate) Check(ctx context.Context, artifact *types.Artifact) (bool, string, error) {
	return f.CheckFn(ctx, artifact)
}
