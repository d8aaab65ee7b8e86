package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		return HandlerResult{Payload: "echo:" + req.Input, Confidence: 1}, nil
	})
}

func newTestOrchestrator(cfg Config) *Orchestrator {
	o := NewOrchestrator(cfg, nil)
	o.RegisterHandler("echo", echoHandler())
	return o
}

func TestDeclareTask_Duplicate(t *testing.T) {
	o := newTestOrchestrator(Config{})
	require.NoError(t, o.DeclareTask(Task{ID: "a", HandlerName: "echo"}))

	err := o.DeclareTask(Task{ID: "a", HandlerName: "echo"})
	var dup *DuplicateTaskError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.TaskID)
}

func TestDeclareTask_UnknownDependency(t *testing.T) {
	o := newTestOrchestrator(Config{})
	err := o.DeclareTask(Task{ID: "b", HandlerName: "echo", DependsOn: []string{"ghost"}})

	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Dependency)
}

func TestDeclareTask_MissingID(t *testing.T) {
	o := newTestOrchestrator(Config{})
	require.Error(t, o.DeclareTask(Task{HandlerName: "echo"}))
}

func TestRun_CyclicGraphFailsBeforeExecution(t *testing.T) {
	o := NewOrchestrator(Config{}, nil)
	executed := int32(0)
	o.RegisterHandler("count", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		atomic.AddInt32(&executed, 1)
		return HandlerResult{}, nil
	}))
	require.NoError(t, o.DeclareTasks([]Task{
		{ID: "a", HandlerName: "count", DependsOn: []string{"b"}},
		{ID: "b", HandlerName: "count", DependsOn: []string{"a"}},
	}))

	_, err := o.Run(context.Background(), nil)

	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Zero(t, atomic.LoadInt32(&executed), "no task may execute on a cyclic graph")
}

func TestRun_UnknownHandlerFailsRun(t *testing.T) {
	o := NewOrchestrator(Config{}, nil)
	require.NoError(t, o.DeclareTask(Task{ID: "a", HandlerName: "nowhere"}))

	_, err := o.Run(context.Background(), nil)

	var unknown *UnknownHandlerError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nowhere", unknown.HandlerName)
}

func TestRun_OneResultPerTask(t *testing.T) {
	o := newTestOrchestrator(Config{})
	require.NoError(t, o.DeclareTask(Task{ID: "a", HandlerName: "echo", InputTemplate: "one"}))
	require.NoError(t, o.DeclareTask(Task{ID: "b", HandlerName: "echo", InputTemplate: "two"}))
	require.NoError(t, o.DeclareTask(Task{ID: "c", HandlerName: "echo", InputTemplate: "three", DependsOn: []string{"a", "b"}}))

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Len(t, result.Results, 3)
	assert.False(t, result.Partial)
	for id, r := range result.Results {
		assert.Equal(t, id, r.TaskID)
		assert.True(t, r.Success)
	}
}

func TestRun_SubstitutesDependencyPayload(t *testing.T) {
	o := NewOrchestrator(Config{}, nil)
	o.RegisterHandler("analyze", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		return HandlerResult{Payload: map[string][]string{"features": {"X"}}}, nil
	}))

	var received string
	o.RegisterHandler("generate", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		received = req.Input
		return HandlerResult{Payload: "done"}, nil
	}))

	require.NoError(t, o.DeclareTask(Task{ID: "analyze", HandlerName: "analyze"}))
	require.NoError(t, o.DeclareTask(Task{
		ID: "generate", HandlerName: "generate",
		InputTemplate: "features: {taskResult:analyze}",
		DependsOn:     []string{"analyze"},
	}))

	_, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, `features: {"features":["X"]}`, received)
}

func TestRun_SharedVarSubstitution(t *testing.T) {
	o := newTestOrchestrator(Config{})
	require.NoError(t, o.DeclareTask(Task{ID: "a", HandlerName: "echo", InputTemplate: "name={state.project_name}"}))

	result, err := o.Run(context.Background(), map[string]any{"project_name": "draftd"})

	require.NoError(t, err)
	assert.Equal(t, "echo:name=draftd", result.Results["a"].Payload)
}

func TestRun_FailedDependencyLeavesPlaceholderUnresolved(t *testing.T) {
	o := NewOrchestrator(Config{}, nil)
	o.RegisterHandler("fail", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		return HandlerResult{}, errors.New("exploded")
	}))
	var received string
	o.RegisterHandler("capture", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		received = req.Input
		return HandlerResult{Payload: "ok"}, nil
	}))

	require.NoError(t, o.DeclareTask(Task{ID: "up", HandlerName: "fail"}))
	require.NoError(t, o.DeclareTask(Task{
		ID: "down", HandlerName: "capture",
		InputTemplate: "got {taskResult:up}",
		DependsOn:     []string{"up"},
	}))

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, result.Results["up"].Success)
	assert.Equal(t, "exploded", result.Results["up"].Error)
	// Dependent still runs; the failed upstream stays as a raw placeholder.
	assert.True(t, result.Results["down"].Success)
	assert.Equal(t, "got {taskResult:up}", received)
}

func TestRun_HandlerPanicBecomesFailedResult(t *testing.T) {
	o := NewOrchestrator(Config{}, nil)
	o.RegisterHandler("panic", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		panic("boom")
	}))
	o.RegisterHandler("echo", echoHandler())

	require.NoError(t, o.DeclareTask(Task{ID: "bad", HandlerName: "panic"}))
	require.NoError(t, o.DeclareTask(Task{ID: "good", HandlerName: "echo", InputTemplate: "x"}))

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, result.Results["bad"].Success)
	assert.Contains(t, result.Results["bad"].Error, "handler panic")
	assert.True(t, result.Results["good"].Success, "independent tasks survive a sibling panic")
}

func TestRun_Events(t *testing.T) {
	o := newTestOrchestrator(Config{})
	require.NoError(t, o.DeclareTask(Task{ID: "a", HandlerName: "echo"}))
	require.NoError(t, o.DeclareTask(Task{ID: "b", HandlerName: "echo", DependsOn: []string{"a"}}))

	var mu sync.Mutex
	var started, completed []string
	var runResults map[string]TaskResult
	o.OnEvents(Events{
		TaskStarted: func(id string) {
			mu.Lock()
			started = append(started, id)
			mu.Unlock()
		},
		TaskCompleted: func(id string, r TaskResult) {
			mu.Lock()
			completed = append(completed, id)
			mu.Unlock()
		},
		RunCompleted: func(results map[string]TaskResult) {
			runResults = results
		},
	})

	_, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, started)
	assert.Equal(t, []string{"a", "b"}, completed)
	assert.Len(t, runResults, 2)
}

func TestRun_DependencyOrderingUnderConcurrency(t *testing.T) {
	o := NewOrchestrator(Config{MaxConcurrency: 4}, nil)

	var mu sync.Mutex
	finished := make(map[string]time.Time)
	o.RegisterHandler("timed", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		finished[req.Task.ID] = time.Now()
		mu.Unlock()
		return HandlerResult{Payload: req.Task.ID}, nil
	}))

	require.NoError(t, o.DeclareTask(Task{ID: "root", HandlerName: "timed"}))
	require.NoError(t, o.DeclareTask(Task{ID: "l1", HandlerName: "timed", DependsOn: []string{"root"}}))
	require.NoError(t, o.DeclareTask(Task{ID: "l2", HandlerName: "timed", DependsOn: []string{"root"}}))
	require.NoError(t, o.DeclareTask(Task{ID: "join", HandlerName: "timed", DependsOn: []string{"l1", "l2"}}))

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Len(t, result.Results, 4)
	assert.True(t, finished["root"].Before(finished["l1"]))
	assert.True(t, finished["root"].Before(finished["l2"]))
	assert.True(t, finished["l1"].Before(finished["join"]))
	assert.True(t, finished["l2"].Before(finished["join"]))
}

func TestRun_DeadlineReturnsPartialResults(t *testing.T) {
	o := NewOrchestrator(Config{RunTimeout: 30 * time.Millisecond}, nil)
	o.RegisterHandler("quick", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		return HandlerResult{Payload: "quick"}, nil
	}))
	o.RegisterHandler("slow", HandlerFunc(func(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
		time.Sleep(60 * time.Millisecond)
		return HandlerResult{Payload: "slow"}, nil
	}))

	require.NoError(t, o.DeclareTask(Task{ID: "fast", HandlerName: "quick"}))
	require.NoError(t, o.DeclareTask(Task{ID: "blocker", HandlerName: "slow", DependsOn: []string{"fast"}}))
	require.NoError(t, o.DeclareTask(Task{ID: "starved", HandlerName: "quick", DependsOn: []string{"blocker"}}))

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Contains(t, result.Results, "fast")
	assert.Contains(t, result.Results, "blocker", "in-flight tasks complete after deadline")
	assert.NotContains(t, result.Results, "starved", "no new dispatch after deadline")
}

func TestDeclareTasks_BatchForwardReference(t *testing.T) {
	o := newTestOrchestrator(Config{})
	err := o.DeclareTasks([]Task{
		{ID: "later", HandlerName: "echo", DependsOn: []string{"earlier"}},
		{ID: "earlier", HandlerName: "echo"},
	})
	require.NoError(t, err)

	result, runErr := o.Run(context.Background(), nil)
	require.NoError(t, runErr)
	assert.Len(t, result.Results, 2)
}

func TestDeclareTasks_BatchUnknownDependency(t *testing.T) {
	o := newTestOrchestrator(Config{})
	err := o.DeclareTasks([]Task{
		{ID: "x", HandlerName: "echo", DependsOn: []string{"nope"}},
	})
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
}

func TestRun_RunIDAssigned(t *testing.T) {
	o := newTestOrchestrator(Config{})
	require.NoError(t, o.DeclareTask(Task{ID: "a", HandlerName: "echo"}))

	r1, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, r1.RunID)
}
