package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/draftd/internal/config"
	"github.com/fyrsmithlabs/draftd/internal/document"
	"github.com/fyrsmithlabs/draftd/internal/logging"
	"github.com/fyrsmithlabs/draftd/internal/pipeline"
	"github.com/fyrsmithlabs/draftd/internal/provider"
	"github.com/fyrsmithlabs/draftd/internal/quality"
	"github.com/fyrsmithlabs/draftd/internal/selection"
	"github.com/fyrsmithlabs/draftd/internal/telemetry"
)

const (
	handlerAnalyze = "analyze-project"
	handlerContent = "generate-content"

	taskAnalyze = "analyze"
)

var (
	flagProject     string
	flagOut         string
	flagTypes       []string
	flagSubject     string
	flagMetricsAddr string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate content for a project",
	Long: `Scan the project directory, analyze it, and generate the requested
content types in dependency order.

Examples:
  # Generate everything for the current directory
  draftd generate

  # Marketing copy and FAQ only, for a specific project
  draftd generate --project ~/src/myproj --types marketing-copy,faq

  # Expose Prometheus metrics while running
  draftd generate --metrics-addr :9102`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&flagProject, "project", "", "project directory to scan (overrides config)")
	generateCmd.Flags().StringVar(&flagOut, "out", "", "output directory for generated files (overrides config)")
	generateCmd.Flags().StringSliceVar(&flagTypes, "types", nil, "content types to generate (default: all)")
	generateCmd.Flags().StringVar(&flagSubject, "subject", "", "project name used in prompts (default: derived from README)")
	generateCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "listen address for /metrics (empty: disabled)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagProject != "" {
		cfg.Project.Dir = flagProject
	}
	if flagOut != "" {
		cfg.Project.OutputDir = flagOut
	}
	if flagMetricsAddr != "" {
		cfg.Metrics.Addr = flagMetricsAddr
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	types, err := contentTypes(flagTypes)
	if err != nil {
		return err
	}

	scanner, err := document.NewScanner(cfg.Project.Dir, cfg.Project.MaxFileKB, logger)
	if err != nil {
		return err
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	dispatcher := provider.NewDispatcher(cfg.Dispatch.Dispatcher(), providers, logger)
	gate := quality.NewGate(cfg.Quality.Gate(), dispatcher, logger)
	selector := selection.NewSelector(buildRegistry(cfg), logger)

	orch := pipeline.NewOrchestrator(cfg.Pipeline.Orchestrator(), logger)
	orch.RegisterHandler(handlerAnalyze, pipeline.NewAnalyzeProjectHandler(scanner))
	orch.RegisterHandler(handlerContent, pipeline.NewContentHandler(scanner, selector, gate))

	if err := declareTasks(orch, types); err != nil {
		return err
	}

	sharedVars := map[string]any{}
	if flagSubject != "" {
		sharedVars["project_name"] = flagSubject
	}

	run, err := orch.Run(ctx, sharedVars)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := writeOutputs(cfg.Project.OutputDir, types, run); err != nil {
		return err
	}

	logger.Info(ctx, "generation complete",
		zap.String("run_id", run.RunID),
		zap.Duration("duration", run.Duration),
		zap.Bool("partial", run.Partial),
		zap.Int("tasks", len(run.Results)))

	if run.Partial {
		return fmt.Errorf("run %s finished partial: deadline expired before all tasks ran", run.RunID)
	}
	var failed []string
	for id, result := range run.Results {
		if !result.Success {
			failed = append(failed, fmt.Sprintf("%s: %s", id, result.Error))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("tasks failed:\n  %s", strings.Join(failed, "\n  "))
	}
	return nil
}

// contentTypes validates the requested types, defaulting to all known ones.
func contentTypes(requested []string) ([]quality.ContentType, error) {
	all := []quality.ContentType{
		quality.ContentMarketingCopy,
		quality.ContentTechnicalDoc,
		quality.ContentFeatureList,
		quality.ContentFAQ,
	}
	if len(requested) == 0 {
		return all, nil
	}

	known := make(map[quality.ContentType]bool, len(all))
	for _, t := range all {
		known[t] = true
	}
	var types []quality.ContentType
	for _, r := range requested {
		t := quality.ContentType(strings.TrimSpace(r))
		if !known[t] {
			return nil, fmt.Errorf("unknown content type %q (known: %s)", r, joinTypes(all))
		}
		types = append(types, t)
	}
	return types, nil
}

func joinTypes(types []quality.ContentType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// buildProviders assembles the fallback chain from config. Order inside the
// slice is irrelevant; the dispatcher sorts by priority.
func buildProviders(cfg *config.Config) ([]provider.Provider, error) {
	var providers []provider.Provider

	if cfg.Providers.OpenAI.Enabled {
		p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
			Name:     cfg.Providers.OpenAI.Name,
			Priority: cfg.Providers.OpenAI.Priority,
			BaseURL:  cfg.Providers.OpenAI.BaseURL,
			Model:    cfg.Providers.OpenAI.Model,
			APIKey:   cfg.Providers.OpenAI.APIKey.Value(),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.Providers.Anthropic.Enabled {
		p, err := provider.NewAnthropicProvider(provider.AnthropicConfig{
			Name:     cfg.Providers.Anthropic.Name,
			Priority: cfg.Providers.Anthropic.Priority,
			Model:    cfg.Providers.Anthropic.Model,
			APIKey:   cfg.Providers.Anthropic.APIKey.Value(),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.Providers.Stub.Enabled {
		providers = append(providers, provider.NewStubProvider(cfg.Providers.Stub.Priority))
	}

	return providers, nil
}

// buildRegistry applies configured token budget overrides to the built-in
// selection strategies.
func buildRegistry(cfg *config.Config) *selection.Registry {
	registry := selection.DefaultRegistry()
	for taskType, budget := range cfg.Selection.Budgets {
		s, err := registry.Get(taskType)
		if err != nil {
			continue // Validate already rejected unknown types
		}
		s.MaxTokens = budget
		_ = registry.Register(s)
	}
	return registry
}

// declareTasks builds the standard graph: one analysis task, then one
// content task per requested type depending on it.
func declareTasks(orch *pipeline.Orchestrator, types []quality.ContentType) error {
	tasks := []pipeline.Task{{
		ID:          taskAnalyze,
		HandlerName: handlerAnalyze,
		Params:      map[string]string{pipeline.ParamSubject: flagSubject},
	}}

	for _, t := range types {
		tasks = append(tasks, pipeline.Task{
			ID:          string(t),
			HandlerName: handlerContent,
			DependsOn:   []string{taskAnalyze},
			InputTemplate: fmt.Sprintf(
				"Write %s for the project described by this profile:\n\n{taskResult:%s}",
				taskDescription(t), taskAnalyze),
			Params: map[string]string{
				pipeline.ParamTaskType:    string(t),
				pipeline.ParamContentType: string(t),
				pipeline.ParamSubject:     flagSubject,
			},
		})
	}

	return orch.DeclareTasks(tasks)
}

func taskDescription(t quality.ContentType) string {
	switch t {
	case quality.ContentMarketingCopy:
		return "launch-ready marketing copy"
	case quality.ContentTechnicalDoc:
		return "a technical overview document"
	case quality.ContentFeatureList:
		return "a feature list"
	case quality.ContentFAQ:
		return "a frequently-asked-questions page"
	default:
		return string(t)
	}
}

// writeOutputs persists successful results as <type>.md under outDir.
func writeOutputs(outDir string, types []quality.ContentType, run *pipeline.RunResult) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	for _, t := range types {
		result, ok := run.Results[string(t)]
		if !ok || !result.Success {
			continue
		}
		text, _ := result.Payload.(string)
		path := filepath.Join(outDir, string(t)+".md")
		if err := os.WriteFile(path, []byte(text), 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}

// serveMetrics exposes the Prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn(ctx, "metrics server stopped", zap.Error(err))
	}
}
