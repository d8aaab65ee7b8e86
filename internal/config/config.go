// Package config provides configuration loading for draftd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, with hardcoded defaults filling the rest.
package config

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/draftd/internal/logging"
	"github.com/fyrsmithlabs/draftd/internal/pipeline"
	"github.com/fyrsmithlabs/draftd/internal/provider"
	"github.com/fyrsmithlabs/draftd/internal/quality"
	"github.com/fyrsmithlabs/draftd/internal/telemetry"
)

// Config holds the complete draftd configuration.
type Config struct {
	Logging   logging.Config   `koanf:"logging"`
	Project   ProjectConfig    `koanf:"project"`
	Providers ProvidersConfig  `koanf:"providers"`
	Dispatch  DispatchConfig   `koanf:"dispatch"`
	Quality   QualityConfig    `koanf:"quality"`
	Pipeline  PipelineConfig   `koanf:"pipeline"`
	Selection SelectionConfig  `koanf:"selection"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// ProjectConfig locates the project documents to generate from.
type ProjectConfig struct {
	// Dir is the project root scanned for markdown and text documents.
	Dir string `koanf:"dir"`

	// OutputDir receives the generated content files.
	OutputDir string `koanf:"output_dir"`

	// MaxFileKB skips source documents larger than this.
	MaxFileKB int `koanf:"max_file_kb"`
}

// OpenAIProviderConfig configures the cost-optimized chain member. Any
// OpenAI-compatible endpoint works.
type OpenAIProviderConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Name     string `koanf:"name"`
	Priority int    `koanf:"priority"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
}

// AnthropicProviderConfig configures the quality-fallback chain member.
type AnthropicProviderConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Name     string `koanf:"name"`
	Priority int    `koanf:"priority"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
}

// StubProviderConfig configures the offline last-resort provider.
type StubProviderConfig struct {
	Enabled  bool `koanf:"enabled"`
	Priority int  `koanf:"priority"`
}

// ProvidersConfig holds the fallback chain membership.
type ProvidersConfig struct {
	OpenAI    OpenAIProviderConfig    `koanf:"openai"`
	Anthropic AnthropicProviderConfig `koanf:"anthropic"`
	Stub      StubProviderConfig      `koanf:"stub"`
}

// DispatchConfig tunes the provider fallback chain.
type DispatchConfig struct {
	DegradationCap int      `koanf:"degradation_cap"`
	CallTimeout    Duration `koanf:"call_timeout"`
	RatePerSecond  float64  `koanf:"rate_per_second"`
	RateBurst      int      `koanf:"rate_burst"`
}

// Dispatcher converts to the provider package's config type.
func (d DispatchConfig) Dispatcher() provider.DispatcherConfig {
	return provider.DispatcherConfig{
		DegradationCap: d.DegradationCap,
		CallTimeout:    d.CallTimeout.Duration(),
		RatePerSecond:  d.RatePerSecond,
		RateBurst:      d.RateBurst,
	}
}

// QualityConfig tunes the generate-validate-retry loop.
type QualityConfig struct {
	MaxRetries              int     `koanf:"max_retries"`
	PassScore               int     `koanf:"pass_score"`
	CreativeTemperature     float64 `koanf:"creative_temperature"`
	ConservativeTemperature float64 `koanf:"conservative_temperature"`
	MaxTokens               int     `koanf:"max_tokens"`
}

// Gate converts to the quality package's config type.
func (q QualityConfig) Gate() quality.GateConfig {
	return quality.GateConfig{
		MaxRetries:              q.MaxRetries,
		PassScore:               q.PassScore,
		CreativeTemperature:     q.CreativeTemperature,
		ConservativeTemperature: q.ConservativeTemperature,
		MaxTokens:               q.MaxTokens,
	}
}

// PipelineConfig tunes run execution.
type PipelineConfig struct {
	MaxConcurrency int      `koanf:"max_concurrency"`
	RunTimeout     Duration `koanf:"run_timeout"`
}

// Orchestrator converts to the pipeline package's config type.
func (p PipelineConfig) Orchestrator() pipeline.Config {
	return pipeline.Config{
		MaxConcurrency: p.MaxConcurrency,
		RunTimeout:     p.RunTimeout.Duration(),
	}
}

// SelectionConfig overrides per-task-type context selection tuning.
type SelectionConfig struct {
	// Budgets overrides the token budget per task type, keyed by task
	// type name. Unknown keys are rejected by Validate.
	Budgets map[string]int `koanf:"budgets"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9102". Empty
	// disables the endpoint.
	Addr string `koanf:"addr"`
}

// knownTaskTypes mirrors the selection registry's built-in strategies.
var knownTaskTypes = map[string]bool{
	"marketing-copy": true,
	"technical-doc":  true,
	"feature-list":   true,
	"faq":            true,
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Project.Dir == "" {
		return errors.New("project.dir is required")
	}
	if c.Project.MaxFileKB < 0 {
		return fmt.Errorf("project.max_file_kb cannot be negative: %d", c.Project.MaxFileKB)
	}

	if !c.Providers.OpenAI.Enabled && !c.Providers.Anthropic.Enabled && !c.Providers.Stub.Enabled {
		return errors.New("at least one provider must be enabled")
	}
	if c.Providers.OpenAI.Enabled && c.Providers.OpenAI.Model == "" {
		return errors.New("providers.openai.model is required when enabled")
	}
	if c.Providers.Anthropic.Enabled {
		if c.Providers.Anthropic.Model == "" {
			return errors.New("providers.anthropic.model is required when enabled")
		}
		if !c.Providers.Anthropic.APIKey.IsSet() {
			return errors.New("providers.anthropic.api_key is required when enabled")
		}
	}

	if c.Dispatch.DegradationCap < 0 {
		return fmt.Errorf("dispatch.degradation_cap cannot be negative: %d", c.Dispatch.DegradationCap)
	}
	if c.Dispatch.RatePerSecond < 0 {
		return fmt.Errorf("dispatch.rate_per_second cannot be negative: %v", c.Dispatch.RatePerSecond)
	}

	if c.Quality.MaxRetries < 0 {
		return fmt.Errorf("quality.max_retries cannot be negative: %d", c.Quality.MaxRetries)
	}
	if c.Quality.PassScore < 0 || c.Quality.PassScore > 100 {
		return fmt.Errorf("quality.pass_score must be 0-100: %d", c.Quality.PassScore)
	}
	for _, t := range []float64{c.Quality.CreativeTemperature, c.Quality.ConservativeTemperature} {
		if t < 0 || t > 2 {
			return fmt.Errorf("quality temperature must be 0-2: %v", t)
		}
	}

	if c.Pipeline.MaxConcurrency < 0 {
		return fmt.Errorf("pipeline.max_concurrency cannot be negative: %d", c.Pipeline.MaxConcurrency)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	for taskType, budget := range c.Selection.Budgets {
		if !knownTaskTypes[taskType] {
			return fmt.Errorf("selection.budgets: unknown task type %q", taskType)
		}
		if budget <= 0 {
			return fmt.Errorf("selection.budgets[%s]: budget must be positive, got %d", taskType, budget)
		}
	}

	return nil
}
