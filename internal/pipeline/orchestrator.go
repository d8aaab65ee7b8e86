package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/draftd/internal/logging"
)

const tracerName = "github.com/fyrsmithlabs/draftd/internal/pipeline"

// Handler executes the work for one task.
type Handler interface {
	Execute(ctx context.Context, req HandlerRequest) (HandlerResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req HandlerRequest) (HandlerResult, error)

func (f HandlerFunc) Execute(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	return f(ctx, req)
}

// HandlerRequest is what a handler receives: the declared task, its fully
// resolved input, and a read-only view of run state.
type HandlerRequest struct {
	Task  Task
	Input string
	State StateView
}

// HandlerResult is the successful outcome of a handler.
type HandlerResult struct {
	Payload    any
	Confidence float64
	TokensUsed int
	Provider   string
}

// Events are the observable hooks emitted during a run. Nil callbacks are
// skipped. Callbacks may fire from worker goroutines when concurrency is
// enabled and must be safe for that.
type Events struct {
	TaskStarted   func(taskID string)
	TaskCompleted func(taskID string, result TaskResult)
	RunCompleted  func(results map[string]TaskResult)
}

// Config tunes the executor.
type Config struct {
	// MaxConcurrency bounds simultaneously running ready tasks.
	// Values below 1 mean sequential execution.
	MaxConcurrency int `koanf:"max_concurrency"`

	// RunTimeout is the run-level deadline. Zero disables it. On expiry,
	// in-flight tasks finish but nothing new is dispatched and the run
	// returns a partial result set.
	RunTimeout time.Duration `koanf:"run_timeout"`
}

// Orchestrator owns a set of declared tasks and their handlers and runs
// them in dependency order.
type Orchestrator struct {
	cfg      Config
	logger   *logging.Logger
	metrics  *Metrics
	events   Events
	handlers map[string]Handler

	tasks         map[string]Task
	declaredOrder []string
}

// NewOrchestrator creates an empty orchestrator.
func NewOrchestrator(cfg Config, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("pipeline"),
		metrics:  NewMetrics(),
		handlers: make(map[string]Handler),
		tasks:    make(map[string]Task),
	}
}

// RegisterHandler binds a handler name used by declared tasks.
func (o *Orchestrator) RegisterHandler(name string, h Handler) {
	o.handlers[name] = h
}

// OnEvents sets the observable event callbacks.
func (o *Orchestrator) OnEvents(events Events) {
	o.events = events
}

// DeclareTask adds a task. Dependencies must reference previously declared
// tasks; a duplicate id or unknown dependency is a configuration error.
func (o *Orchestrator) DeclareTask(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if _, exists := o.tasks[t.ID]; exists {
		return &DuplicateTaskError{TaskID: t.ID}
	}
	for _, dep := range t.DependsOn {
		if _, ok := o.tasks[dep]; !ok {
			return &UnknownDependencyError{TaskID: t.ID, Dependency: dep}
		}
	}
	o.tasks[t.ID] = t
	o.declaredOrder = append(o.declaredOrder, t.ID)
	return nil
}

// DeclareTasks adds a batch whose dependencies may reference any member of
// the batch regardless of slice order. Cycles inside the batch surface as
// CyclicDependencyError from Run.
func (o *Orchestrator) DeclareTasks(batch []Task) error {
	ids := make(map[string]struct{}, len(batch))
	for _, t := range batch {
		if t.ID == "" {
			return fmt.Errorf("task id is required")
		}
		if _, exists := o.tasks[t.ID]; exists {
			return &DuplicateTaskError{TaskID: t.ID}
		}
		if _, dup := ids[t.ID]; dup {
			return &DuplicateTaskError{TaskID: t.ID}
		}
		ids[t.ID] = struct{}{}
	}
	for _, t := range batch {
		for _, dep := range t.DependsOn {
			if _, inBatch := ids[dep]; inBatch {
				continue
			}
			if _, declared := o.tasks[dep]; !declared {
				return &UnknownDependencyError{TaskID: t.ID, Dependency: dep}
			}
		}
	}
	for _, t := range batch {
		o.tasks[t.ID] = t
		o.declaredOrder = append(o.declaredOrder, t.ID)
	}
	return nil
}

type completion struct {
	taskID string
	result TaskResult
}

// Run executes all declared tasks. Configuration errors (cycle, missing
// handler) abort before any task executes; handler failures are captured
// as failed TaskResults and do not stop independent tasks.
func (o *Orchestrator) Run(ctx context.Context, sharedVars map[string]any) (*RunResult, error) {
	start := time.Now()

	order, err := topologicalOrder(o.tasks, o.declaredOrder)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		t := o.tasks[id]
		if _, ok := o.handlers[t.HandlerName]; !ok {
			return nil, &UnknownHandlerError{TaskID: t.ID, HandlerName: t.HandlerName}
		}
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	tracer := otel.Tracer(tracerName)
	ctx, runSpan := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("tasks", len(order)),
	))
	defer runSpan.End()

	o.logger.Info(ctx, "run started",
		zap.Int("tasks", len(order)),
		zap.Int("max_concurrency", o.concurrency()))

	state := newExecutionState(sharedVars)
	done := make(chan completion, len(order))
	pending := make(map[string]struct{}, len(order))
	for _, id := range order {
		pending[id] = struct{}{}
	}
	running := 0
	completed := 0
	partial := false

	for completed < len(order) {
		// Dispatch every ready task up to the concurrency bound, unless
		// the run deadline has expired.
		if ctx.Err() == nil {
			for _, id := range order {
				if running >= o.concurrency() {
					break
				}
				if _, isPending := pending[id]; !isPending {
					continue
				}
				if !o.depsSatisfied(id, state) {
					continue
				}
				delete(pending, id)
				running++
				task := o.tasks[id]
				go o.executeTask(ctx, tracer, task, state, done)
			}
		}

		if running == 0 {
			// Deadline expired (or caller cancelled) with work left.
			partial = len(pending) > 0
			break
		}

		c := <-done
		running--
		completed++
		state.storeResult(c.result)
		if o.events.TaskCompleted != nil {
			o.events.TaskCompleted(c.taskID, c.result)
		}
	}

	results := state.Results()
	if o.events.RunCompleted != nil {
		o.events.RunCompleted(results)
	}

	outcome := "completed"
	if partial {
		outcome = "partial"
		runSpan.SetStatus(codes.Error, "run deadline expired")
	}
	o.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	o.metrics.RunDurationSeconds.Observe(time.Since(start).Seconds())
	o.logger.Info(ctx, "run finished",
		zap.String("outcome", outcome),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return &RunResult{
		RunID:    runID,
		Results:  results,
		Partial:  partial,
		Duration: time.Since(start),
	}, nil
}

func (o *Orchestrator) concurrency() int {
	if o.cfg.MaxConcurrency < 1 {
		return 1
	}
	return o.cfg.MaxConcurrency
}

// depsSatisfied reports whether every dependency has a stored result,
// success or failure. The orchestrator never short-circuits on upstream
// failure; handlers decide whether partial context is still useful.
func (o *Orchestrator) depsSatisfied(id string, state *executionState) bool {
	for _, dep := range o.tasks[id].DependsOn {
		if _, ok := state.Result(dep); !ok {
			return false
		}
	}
	return true
}

// executeTask resolves the task input, invokes the handler, and reports the
// completion. Handler panics and errors become failed TaskResults.
func (o *Orchestrator) executeTask(ctx context.Context, tracer trace.Tracer, task Task, state *executionState, done chan<- completion) {
	if o.events.TaskStarted != nil {
		o.events.TaskStarted(task.ID)
	}

	ctx, span := tracer.Start(ctx, "pipeline.task", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.handler", task.HandlerName),
	))
	defer span.End()

	start := time.Now()
	input := parseTemplate(task.InputTemplate).resolve(state)
	o.logger.Debug(ctx, "task started",
		zap.String("task", task.ID),
		zap.String("handler", task.HandlerName))

	result := o.invokeHandler(ctx, task, input, state)
	result.Metadata.LatencyMS = time.Since(start).Milliseconds()

	status := "success"
	if !result.Success {
		status = "failure"
		span.SetStatus(codes.Error, result.Error)
		o.logger.Warn(ctx, "task failed",
			zap.String("task", task.ID),
			zap.String("error", result.Error))
	} else {
		o.logger.Info(ctx, "task completed",
			zap.String("task", task.ID),
			zap.Int64("latency_ms", result.Metadata.LatencyMS))
	}
	o.metrics.TasksTotal.WithLabelValues(status).Inc()
	o.metrics.TaskDurationSeconds.WithLabelValues(task.HandlerName).Observe(time.Since(start).Seconds())

	done <- completion{taskID: task.ID, result: result}
}

func (o *Orchestrator) invokeHandler(ctx context.Context, task Task, input string, state StateView) (result TaskResult) {
	result = TaskResult{TaskID: task.ID}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("handler panic: %v", r)
		}
	}()

	handler := o.handlers[task.HandlerName]
	out, err := handler.Execute(ctx, HandlerRequest{Task: task, Input: input, State: state})
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Payload = out.Payload
	result.Metadata.Confidence = out.Confidence
	result.Metadata.TokensUsed = out.TokensUsed
	result.Metadata.Provider = out.Provider
	return result
}
