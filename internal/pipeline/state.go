package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"
)

// StateView is the read-only view of run state handed to handlers.
type StateView interface {
	// Result returns a prior task's result.
	Result(taskID string) (TaskResult, bool)

	// SharedVar returns a shared variable set at run start or by the caller.
	SharedVar(key string) (any, bool)

	// Results returns a copy of all results stored so far.
	Results() map[string]TaskResult
}

// executionState owns the per-run result map and shared variables.
// Single-writer-per-key: only the executor stores a task's result, exactly
// once; readers may access concurrently under the lock.
type executionState struct {
	mu      sync.RWMutex
	results map[string]TaskResult
	shared  map[string]any
}

func newExecutionState(sharedVars map[string]any) *executionState {
	shared := make(map[string]any, len(sharedVars))
	for k, v := range sharedVars {
		shared[k] = v
	}
	return &executionState{
		results: make(map[string]TaskResult),
		shared:  shared,
	}
}

func (s *executionState) Result(taskID string) (TaskResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[taskID]
	return r, ok
}

func (s *executionState) SharedVar(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.shared[key]
	return v, ok
}

func (s *executionState) Results() map[string]TaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]TaskResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// storeResult records a task's result. Write-once: storing twice for the
// same id panics, as that indicates an executor bug, never user input.
func (s *executionState) storeResult(r TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.TaskID]; exists {
		panic(fmt.Sprintf("pipeline: result for task %q stored twice", r.TaskID))
	}
	s.results[r.TaskID] = r
}

// lookupResult implements resolver: serialized payload of successful results.
func (s *executionState) lookupResult(taskID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[taskID]
	if !ok || !r.Success {
		return "", false
	}
	return r.SerializedPayload(), true
}

// lookupState implements resolver: shared vars rendered as strings.
func (s *executionState) lookupState(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.shared[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val), true
		}
		return string(data), true
	}
}
