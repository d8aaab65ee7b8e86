// Package provider dispatches generation requests across an ordered chain of
// LLM backends. The chain is tried strictly in priority order (cheapest
// first); a failing provider degrades to the next one rather than aborting
// the request. Retry of transient failures is the caller's concern, layered
// above this package.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request describes one generation call.
type Request struct {
	// System is the system prompt framing the task.
	System string

	// Prompt is the user-facing prompt, context included.
	Prompt string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens bounds the response length. Zero means provider default.
	MaxTokens int
}

// Response is a completed generation.
type Response struct {
	Text       string
	Provider   string
	TokensUsed int
	Latency    time.Duration
}

// Provider is one backend in the degradation chain.
//
// Available is re-evaluated on every dispatch; a provider may flip between
// available and unavailable across calls (credentials revoked, endpoint
// down) without reconfiguration.
type Provider interface {
	Name() string
	Priority() int
	Available(ctx context.Context) bool
	Generate(ctx context.Context, req Request) (*Response, error)
}

// AllProvidersFailedError reports chain exhaustion, carrying the last error
// observed from each attempted provider.
type AllProvidersFailedError struct {
	Attempts map[string]error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers failed: no provider was available"
	}
	parts := make([]string, 0, len(e.Attempts))
	for name, err := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}
