package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// AnthropicConfig configures the quality-fallback provider.
type AnthropicConfig struct {
	Name     string `koanf:"name"`
	Priority int    `koanf:"priority"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

// AnthropicProvider is the quality-fallback chain member. It sits behind the
// cost-optimized provider and is only reached when that one fails.
type AnthropicProvider struct {
	cfg   AnthropicConfig
	model llms.Model
}

// NewAnthropicProvider builds the provider from config.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.Model == "" {
		return nil, errors.New("anthropic provider: model is required")
	}
	model, err := anthropic.New(
		anthropic.WithModel(cfg.Model),
		anthropic.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("anthropic provider: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	return &AnthropicProvider{cfg: cfg, model: model}, nil
}

func (p *AnthropicProvider) Name() string  { return p.cfg.Name }
func (p *AnthropicProvider) Priority() int { return p.cfg.Priority }

func (p *AnthropicProvider) Available(ctx context.Context) bool {
	return p.cfg.APIKey != ""
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return generateWithModel(ctx, p.model, p.cfg.Name, req)
}
