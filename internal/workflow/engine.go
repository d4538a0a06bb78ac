// Package workflow executes an ordered sequence of named steps with state
// transitions, timing, retry, and failure short-circuiting.
//
// Execution is deterministic and strictly sequential: steps run in
// topological order of their declared dependencies, with ties broken by
// declaration order. Nothing runs concurrently because each step's output is
// a precondition for later steps and side effects (file mutation, branch
// creation) must stay strictly ordered.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/codemend/codemend/internal/types"
)

// StepFunc is the callable capability behind a step. The returned summary is
// recorded in the step outcome. A returned error (including a collaborator
// timeout surfacing as context.DeadlineExceeded) marks the attempt failed;
// errors never escape the engine.
type StepFunc func(ctx context.Context, wfctx *Context) (summary string, err error)

// Step declares one unit of work
type Step struct {
	// Name identifies the step and the context slot it writes
	Name string

	// DependsOn lists upstream step names that must reach completed or
	// skipped before this step starts
	DependsOn []string

	// Run is the capability delegated to an external collaborator
	Run StepFunc

	// Critical marks the workflow failed when this step exhausts retries.
	// Non-critical steps degrade to skipped and the workflow continues.
	Critical bool

	// Attempts is the retry budget (total attempts, default 1 = no retry)
	Attempts int

	// Timeout bounds each attempt's collaborator call, 0 = unbounded
	Timeout time.Duration
}

// Engine executes a validated step sequence
type Engine struct {
	steps []Step
	order []int // topological execution order over steps indices
}

// NewEngine validates the step graph and computes the execution order.
// Misconfiguration (duplicate names, unknown dependencies, cycles) returns
// an *types.EngineError immediately; it is never surfaced mid-run.
func NewEngine(steps []Step) (*Engine, error) {
	index := make(map[string]int, len(steps))
	for i, step := range steps {
		if step.Name == "" {
			return nil, &types.EngineError{Reason: fmt.Sprintf("step %d has no name", i)}
		}
		if step.Run == nil {
			return nil, &types.EngineError{Reason: fmt.Sprintf("step %q has no run function", step.Name)}
		}
		if _, dup := index[step.Name]; dup {
			return nil, &types.EngineError{Reason: fmt.Sprintf("duplicate step name %q", step.Name)}
		}
		index[step.Name] = i
	}
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, &types.EngineError{Reason: fmt.Sprintf("step %q depends on unknown step %q", step.Name, dep)}
			}
			if dep == step.Name {
				return nil, &types.EngineError{Reason: fmt.Sprintf("step %q depends on itself", step.Name)}
			}
		}
	}

	order, err := topoSort(steps, index)
	if err != nil {
		return nil, err
	}

	return &Engine{steps: steps, order: order}, nil
}

// topoSort is Kahn's algorithm with declaration order as the tie-breaker so
// independently-runnable steps execute deterministically.
func topoSort(steps []Step, index map[string]int) ([]int, error) {
	indegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, step := range steps {
		indegree[i] = len(step.DependsOn)
		for _, dep := range step.DependsOn {
			d := index[dep]
			dependents[d] = append(dependents[d], i)
		}
	}

	order := make([]int, 0, len(steps))
	for len(order) < len(steps) {
		next := -1
		for i := range steps {
			if indegree[i] == 0 {
				indegree[i] = -1 // consumed
				next = i
				break
			}
		}
		if next == -1 {
			return nil, &types.EngineError{Reason: "dependency cycle detected"}
		}
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}
	return order, nil
}

// Execute runs the steps against the shared context and returns the terminal
// workflow result. Collaborator errors become step failures; Execute itself
// never returns an error. Cancellation is cooperative: the signal is checked
// between steps (never inside a collaborator call) and finalizes the result
// as failed with whatever outcomes are already recorded.
func (e *Engine) Execute(ctx context.Context, wfctx *Context) *types.WorkflowResult {
	result := &types.WorkflowResult{
		Status:    types.WorkflowSuccess,
		StartedAt: time.Now(),
	}

	status := make(map[string]types.StepStatus, len(e.steps))
	for _, step := range e.steps {
		status[step.Name] = types.StepPending
	}

	aborted := false
	for _, idx := range e.order {
		step := e.steps[idx]

		if aborted {
			status[step.Name] = types.StepSkipped
			result.Steps = append(result.Steps, types.StepOutcome{
				Name:    step.Name,
				Status:  types.StepSkipped,
				Summary: "skipped: earlier critical step failed",
			})
			continue
		}

		if err := ctx.Err(); err != nil {
			status[step.Name] = types.StepSkipped
			result.Steps = append(result.Steps, types.StepOutcome{
				Name:    step.Name,
				Status:  types.StepSkipped,
				Summary: "skipped: run cancelled",
			})
			result.Status = types.WorkflowFailed
			continue
		}

		// Dependencies must all be completed or skipped before a step starts
		if blocked, dep := e.blockedOn(step, status); blocked {
			status[step.Name] = types.StepSkipped
			result.Steps = append(result.Steps, types.StepOutcome{
				Name:    step.Name,
				Status:  types.StepSkipped,
				Summary: fmt.Sprintf("skipped: dependency %q did not complete", dep),
			})
			if result.Status == types.WorkflowSuccess {
				result.Status = types.WorkflowPartial
			}
			continue
		}

		outcome := e.runStep(ctx, step, wfctx)
		status[step.Name] = outcome.Status
		result.Steps = append(result.Steps, outcome)

		switch outcome.Status {
		case types.StepFailed:
			// Critical exhaustion: short-circuit everything downstream. A
			// failed critical step guarantees no further artifact mutation.
			result.Status = types.WorkflowFailed
			aborted = true
		case types.StepSkipped:
			if result.Status == types.WorkflowSuccess {
				result.Status = types.WorkflowPartial
			}
		}
	}

	result.FinishedAt = time.Now()
	return result
}

// blockedOn reports whether any dependency finished in a state other than
// completed or skipped
func (e *Engine) blockedOn(step Step, status map[string]types.StepStatus) (bool, string) {
	for _, dep := range step.DependsOn {
		s := status[dep]
		if s != types.StepCompleted && s != types.StepSkipped {
			return true, dep
		}
	}
	return false, ""
}

// runStep executes one step with its retry budget. Failure of a non-critical
// step degrades to skipped so the workflow can continue.
func (e *Engine) runStep(ctx context.Context, step Step, wfctx *Context) types.StepOutcome {
	attempts := step.Attempts
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	var lastErr error
	var summary string

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		summary, lastErr = step.Run(attemptCtx, wfctx)
		if cancel != nil {
			cancel()
		}

		if lastErr == nil {
			return types.StepOutcome{
				Name:     step.Name,
				Status:   types.StepCompleted,
				Duration: time.Since(start),
				Attempts: attempt,
				Summary:  summary,
			}
		}
		// A timeout is treated identically to a returned failure; retry with
		// no added backoff beyond what the collaborator itself imposes.
	}

	outcome := types.StepOutcome{
		Name:     step.Name,
		Duration: time.Since(start),
		Attempts: attempts,
		Error:    lastErr.Error(),
	}
	if step.Critical {
		outcome.Status = types.StepFailed
	} else {
		outcome.Status = types.StepSkipped
		outcome.Summary = "failed but non-critical, continuing"
	}
	return outcome
}
