package quality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/draftd/internal/logging"
	"github.com/fyrsmithlabs/draftd/internal/provider"
)

// Generator is the dispatch capability the gate needs; satisfied by
// *provider.Dispatcher.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req provider.Request) (*provider.Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	return f(ctx, req)
}

// GateConfig tunes the generate-validate-retry loop. The numeric defaults
// are product tuning, not invariants; override via configuration.
type GateConfig struct {
	MaxRetries int `koanf:"max_retries"`
	PassScore  int `koanf:"pass_score"`

	// CreativeTemperature applies to the first attempt,
	// ConservativeTemperature to every retry, trading variance for
	// structural compliance.
	CreativeTemperature     float64 `koanf:"creative_temperature"`
	ConservativeTemperature float64 `koanf:"conservative_temperature"`

	MaxTokens int `koanf:"max_tokens"`
}

// DefaultGateConfig returns the standard tuning.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxRetries:              2,
		PassScore:               PassScore,
		CreativeTemperature:     0.9,
		ConservativeTemperature: 0.3,
		MaxTokens:               2048,
	}
}

// GenerateRequest asks the gate for one validated content block.
type GenerateRequest struct {
	Prompt      string
	System      string
	ContentType ContentType

	// Subject names what is being written about; used to fill the
	// fallback template when generation never passes validation.
	Subject string
}

// Content is the gate's result. Callers always receive usable text; Passed
// reports whether it cleared validation or is fallback/low-confidence.
type Content struct {
	Text        string        `json:"text"`
	ContentType ContentType   `json:"content_type"`
	Passed      bool          `json:"passed"`
	Score       int           `json:"score"`
	Attempts    int           `json:"attempts"`
	Fallback    bool          `json:"fallback"`
	Provider    string        `json:"provider,omitempty"`
	TokensUsed  int           `json:"tokens_used"`
	Latency     time.Duration `json:"latency"`
}

// Gate drives Attempt -> Generate -> Validate -> {Accept | AdjustAndRetry | Fallback}.
type Gate struct {
	cfg       GateConfig
	generator Generator
	validator *Validator
	logger    *logging.Logger
}

// NewGate builds a quality gate over the given generator.
func NewGate(cfg GateConfig, generator Generator, logger *logging.Logger) *Gate {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PassScore <= 0 {
		cfg.PassScore = PassScore
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{
		cfg:       cfg,
		generator: generator,
		validator: NewValidator(cfg.PassScore),
		logger:    logger.Named("quality"),
	}
}

// GenerateValidated produces content for req, retrying with an adjusted
// prompt on validation failure. It never returns an error: once
// MaxRetries+1 attempts are spent (or the provider chain stays exhausted),
// the content-type fallback template is returned with Passed=false.
func (g *Gate) GenerateValidated(ctx context.Context, req GenerateRequest) Content {
	start := time.Now()
	prompt := req.Prompt
	attempts := 0
	var lastResult ValidationResult

	for attempts <= g.cfg.MaxRetries {
		attempts++

		temperature := g.cfg.CreativeTemperature
		if attempts > 1 {
			temperature = g.cfg.ConservativeTemperature
		}

		resp, err := g.generator.Generate(ctx, provider.Request{
			System:      req.System,
			Prompt:      prompt,
			Temperature: temperature,
			MaxTokens:   g.cfg.MaxTokens,
		})
		if err != nil {
			g.logger.Warn(ctx, "generation attempt failed",
				zap.Int("attempt", attempts),
				zap.String("content_type", string(req.ContentType)),
				zap.Error(err))
			continue
		}

		result := g.validator.Validate(resp.Text, req.ContentType)
		lastResult = result
		if result.Passed {
			g.logger.Info(ctx, "content accepted",
				zap.Int("attempt", attempts),
				zap.Int("score", result.Score),
				zap.String("content_type", string(req.ContentType)))
			return Content{
				Text:        resp.Text,
				ContentType: req.ContentType,
				Passed:      true,
				Score:       result.Score,
				Attempts:    attempts,
				Provider:    resp.Provider,
				TokensUsed:  resp.TokensUsed,
				Latency:     time.Since(start),
			}
		}

		g.logger.Warn(ctx, "content rejected by validation",
			zap.Int("attempt", attempts),
			zap.Int("score", result.Score),
			zap.Int("errors", len(result.Errors)))
		prompt = adjustPrompt(req.Prompt, result)
	}

	g.logger.Warn(ctx, "retry budget spent, using fallback template",
		zap.String("content_type", string(req.ContentType)),
		zap.Int("attempts", attempts))

	return Content{
		Text:        FallbackContent(req.ContentType, req.Subject),
		ContentType: req.ContentType,
		Passed:      false,
		Score:       lastResult.Score,
		Attempts:    attempts,
		Fallback:    true,
		Latency:     time.Since(start),
	}
}

// adjustPrompt augments the original prompt with the specific validation
// findings, steering the retry toward structural compliance.
func adjustPrompt(original string, result ValidationResult) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nThe previous attempt failed these checks; fix every one:\n")
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "- (%s) %s\n", e.Severity, e.Message)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "- (warning) %s\n", w)
	}
	return b.String()
}
