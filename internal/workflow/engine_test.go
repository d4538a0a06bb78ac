package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemend/codemend/internal/types"
)

func okStep(name string, deps ...string) Step {
	return Step{
		Name:      name,
		DependsOn: deps,
		Run: func(ctx context.Context, wfctx *Context) (string, error) {
			return "done", nil
		},
	}
}

func TestNewEngine_DetectsCycle(t *testing.T) {
	_, err := NewEngine([]Step{
		okStep("a", "b"),
		okStep("b", "a"),
	})
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Contains(t, engineErr.Reason, "cycle")
}

func TestNewEngine_DetectsUnknownDependency(t *testing.T) {
	_, err := NewEngine([]Step{okStep("a", "ghost")})
	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
}

func TestNewEngine_DetectsDuplicateName(t *testing.T) {
	_, err := NewEngine([]Step{okStep("a"), okStep("a")})
	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
}

func TestExecute_RespectsDependencyOrder(t *testing.T) {
	var trace []string
	record := func(name string, deps ...string) Step {
		return Step{
			Name:      name,
			DependsOn: deps,
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				trace = append(trace, name)
				return "", nil
			},
		}
	}

	// Declared out of order on purpose: fix depends on analyze, validate on fix
	engine, err := NewEngine([]Step{
		record("validate", "fix"),
		record("analyze"),
		record("fix", "analyze"),
	})
	require.NoError(t, err)

	result := engine.Execute(context.Background(), NewContext())
	assert.Equal(t, types.WorkflowSuccess, result.Status)
	assert.Equal(t, []string{"analyze", "fix", "validate"}, trace)
}

func TestExecute_TiesBrokenByDeclarationOrder(t *testing.T) {
	var trace []string
	record := func(name string) Step {
		return Step{Name: name, Run: func(ctx context.Context, wfctx *Context) (string, error) {
			trace = append(trace, name)
			return "", nil
		}}
	}

	engine, err := NewEngine([]Step{record("c"), record("a"), record("b")})
	require.NoError(t, err)
	engine.Execute(context.Background(), NewContext())

	assert.Equal(t, []string{"c", "a", "b"}, trace)
}

func TestExecute_RetriesUpToBudget(t *testing.T) {
	calls := 0
	engine, err := NewEngine([]Step{{
		Name:     "flaky",
		Attempts: 3,
		Critical: true,
		Run: func(ctx context.Context, wfctx *Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "recovered", nil
		},
	}})
	require.NoError(t, err)

	result := engine.Execute(context.Background(), NewContext())
	assert.Equal(t, types.WorkflowSuccess, result.Status)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Steps[0].Attempts)
}

func TestExecute_CriticalFailureShortCircuitsDependents(t *testing.T) {
	mutations := 0
	engine, err := NewEngine([]Step{
		okStep("analyze"),
		{
			Name:      "fix",
			DependsOn: []string{"analyze"},
			Critical:  true,
			Attempts:  2,
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				return "", errors.New("generator unavailable")
			},
		},
		{
			Name:      "validate",
			DependsOn: []string{"fix"},
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				mutations++
				return "", nil
			},
		},
		{
			Name: "independent",
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				mutations++
				return "", nil
			},
		},
	})
	require.NoError(t, err)

	result := engine.Execute(context.Background(), NewContext())

	assert.Equal(t, types.WorkflowFailed, result.Status)
	assert.Equal(t, types.StepCompleted, result.StepOutcome("analyze").Status)
	assert.Equal(t, types.StepFailed, result.StepOutcome("fix").Status)
	assert.Equal(t, 2, result.StepOutcome("fix").Attempts)
	assert.Equal(t, types.StepSkipped, result.StepOutcome("validate").Status)
	assert.Equal(t, types.StepSkipped, result.StepOutcome("independent").Status)
	// Zero additional mutations after the failure point
	assert.Equal(t, 0, mutations)
}

func TestExecute_NonCriticalFailureYieldsPartial(t *testing.T) {
	engine, err := NewEngine([]Step{
		okStep("analyze"),
		{
			Name:      "style-recheck",
			DependsOn: []string{"analyze"},
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				return "", errors.New("linter missing")
			},
		},
		okStep("report", "style-recheck"),
	})
	require.NoError(t, err)

	result := engine.Execute(context.Background(), NewContext())

	assert.Equal(t, types.WorkflowPartial, result.Status)
	assert.Equal(t, types.StepSkipped, result.StepOutcome("style-recheck").Status)
	// A skipped dependency still satisfies the dependent
	assert.Equal(t, types.StepCompleted, result.StepOutcome("report").Status)
}

func TestExecute_TimeoutTreatedAsFailure(t *testing.T) {
	engine, err := NewEngine([]Step{{
		Name:     "slow",
		Critical: true,
		Timeout:  10 * time.Millisecond,
		Run: func(ctx context.Context, wfctx *Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
				return "too late", nil
			}
		},
	}})
	require.NoError(t, err)

	result := engine.Execute(context.Background(), NewContext())
	assert.Equal(t, types.WorkflowFailed, result.Status)
	assert.Contains(t, result.Steps[0].Error, "deadline")
}

func TestExecute_CancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	engine, err := NewEngine([]Step{
		{
			Name: "first",
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				cancel() // fires mid-run; checked before the next step
				return "", nil
			},
		},
		okStep("second"),
	})
	require.NoError(t, err)

	result := engine.Execute(ctx, NewContext())

	assert.Equal(t, types.WorkflowFailed, result.Status)
	assert.Equal(t, types.StepCompleted, result.StepOutcome("first").Status)
	assert.Equal(t, types.StepSkipped, result.StepOutcome("second").Status)
}

func TestContext_SlotOwnership(t *testing.T) {
	wfctx := NewContext()

	require.NoError(t, wfctx.Put("analyze", "analysis", 42))
	// Same step may rewrite its own slot (retry attempts)
	require.NoError(t, wfctx.Put("analyze", "analysis", 43))
	// Another step may not
	assert.Error(t, wfctx.Put("fix", "analysis", 0))

	v, ok := wfctx.Get("analysis")
	require.True(t, ok)
	assert.Equal(t, 43, v)
	assert.Equal(t, "analyze", wfctx.Owner("analysis"))
}

func TestExecute_StepFailureDoesNotCorruptPriorSlots(t *testing.T) {
	engine, err := NewEngine([]Step{
		{
			Name: "analyze",
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				return "", wfctx.Put("analyze", "analysis", "pristine")
			},
		},
		{
			Name:      "fix",
			DependsOn: []string{"analyze"},
			Run: func(ctx context.Context, wfctx *Context) (string, error) {
				if err := wfctx.Put("fix", "analysis", "clobbered"); err != nil {
					return "", err
				}
				return "", nil
			},
		},
	})
	require.NoError(t, err)

	wfctx := NewContext()
	result := engine.Execute(context.Background(), wfctx)

	assert.Equal(t, types.WorkflowPartial, result.Status)
	v, _ := wfctx.Get("analysis")
	assert.Equal(t, "pristine", v)
}
