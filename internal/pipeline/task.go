// Package pipeline executes declared content-generation tasks in dependency
// order, threading prior results and shared state into each task's input.
// Tasks with no dependency relation may run concurrently under a bounded
// worker pool; results are write-once per task id.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is one declared unit of work. Immutable during a run.
type Task struct {
	// ID uniquely names the task within a run.
	ID string `json:"id"`

	// HandlerName selects the registered handler that executes the task.
	HandlerName string `json:"handler_name"`

	// InputTemplate may reference prior results as {taskResult:ID} and
	// shared variables as {state.KEY}; both resolve before the handler
	// is invoked.
	InputTemplate string `json:"input_template"`

	// DependsOn lists task IDs that must produce a result first.
	DependsOn []string `json:"depends_on"`

	// Params carries handler-specific settings (task type, content type,
	// subject). Opaque to the executor.
	Params map[string]string `json:"params,omitempty"`
}

// Param returns the named param or fallback when absent.
func (t Task) Param(key, fallback string) string {
	if v, ok := t.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// ResultMetadata carries per-task telemetry for the content sink.
type ResultMetadata struct {
	LatencyMS  int64   `json:"latency_ms"`
	Confidence float64 `json:"confidence"`
	TokensUsed int     `json:"tokens_used"`
	Provider   string  `json:"provider,omitempty"`
}

// TaskResult is produced exactly once per task per run.
type TaskResult struct {
	TaskID   string         `json:"task_id"`
	Success  bool           `json:"success"`
	Payload  any            `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata ResultMetadata `json:"metadata"`
}

// SerializedPayload renders the payload for template substitution. Strings
// pass through untouched; structured payloads are JSON-encoded.
func (r TaskResult) SerializedPayload() string {
	switch p := r.Payload.(type) {
	case nil:
		return ""
	case string:
		return p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprintf("%v", p)
		}
		return string(data)
	}
}

// RunResult is the outcome of one orchestrator run.
type RunResult struct {
	RunID    string                `json:"run_id"`
	Results  map[string]TaskResult `json:"results"`
	Partial  bool                  `json:"partial"`
	Duration time.Duration         `json:"duration"`
}

// DuplicateTaskError reports a task declared with an already-used id.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already declared", e.TaskID)
}

// UnknownDependencyError reports a dependency on an undeclared task.
type UnknownDependencyError struct {
	TaskID     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on undeclared task %q", e.TaskID, e.Dependency)
}

// CyclicDependencyError reports a dependency cycle. Remaining lists the
// task ids left with unsatisfied in-degree after ordering.
type CyclicDependencyError struct {
	Remaining []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle among tasks: %v", e.Remaining)
}

// UnknownHandlerError reports a task whose handler was never registered.
// This is an infrastructure error that fails the whole run.
type UnknownHandlerError struct {
	TaskID      string
	HandlerName string
}

func (e *UnknownHandlerError) Error() string {
	return fmt.Sprintf("task %q references unregistered handler %q", e.TaskID, e.HandlerName)
}
