package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// OpenAIConfig configures the cost-optimized provider. Any
// OpenAI-compatible endpoint works (OpenAI itself, a local inference
// server, a cheaper hosted reseller).
type OpenAIConfig struct {
	Name     string `koanf:"name"`
	Priority int    `koanf:"priority"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

// OpenAIProvider is the cost-optimized chain member backed by langchaingo's
// OpenAI client.
type OpenAIProvider struct {
	cfg   OpenAIConfig
	model llms.Model
}

// NewOpenAIProvider builds the provider from config.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai provider: model is required")
	}
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai provider: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	return &OpenAIProvider{cfg: cfg, model: model}, nil
}

func (p *OpenAIProvider) Name() string  { return p.cfg.Name }
func (p *OpenAIProvider) Priority() int { return p.cfg.Priority }

// Available reports whether the provider has credentials to attempt a call.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	return p.cfg.APIKey != "" || p.cfg.BaseURL != ""
}

// Generate performs one completion call. No internal retry.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return generateWithModel(ctx, p.model, p.cfg.Name, req)
}

// generateWithModel is the shared langchaingo call path for chat models.
func generateWithModel(ctx context.Context, model llms.Model, name string, req Request) (*Response, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: generate: %w", name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: malformed response: no choices", name)
	}
	choice := resp.Choices[0]
	if choice.Content == "" {
		return nil, fmt.Errorf("%s: malformed response: empty content", name)
	}

	return &Response{
		Text:       choice.Content,
		Provider:   name,
		TokensUsed: tokensFromInfo(choice.GenerationInfo),
		Latency:    time.Since(start),
	}, nil
}

// tokensFromInfo extracts a completion token count from the provider's
// generation info. Key names vary by backend.
func tokensFromInfo(info map[string]any) int {
	for _, key := range []string{"TotalTokens", "CompletionTokens", "OutputTokens"} {
		if v, ok := info[key]; ok {
			switch n := v.(type) {
			case int:
				return n
			case float64:
				return int(n)
			}
		}
	}
	return 0
}
