package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/draftd/internal/logging"
	"github.com/fyrsmithlabs/draftd/internal/telemetry"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "DRAFTD_"
)

// Load loads configuration from a YAML file, then overrides with
// DRAFTD_-prefixed environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DRAFTD_QUALITY_MAX_RETRIES, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/draftd/config.yaml is used; a missing file at the
// default path is not an error.
//
// Config files must have 0600 or 0400 permissions (API keys live here) and
// are rejected above 1MB.
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting on the first underscore:
//
//	DRAFTD_QUALITY_MAX_RETRIES       -> quality.max_retries
//	DRAFTD_PIPELINE_RUN_TIMEOUT      -> pipeline.run_timeout
//	DRAFTD_PROVIDERS_OPENAI_API_KEY  -> providers.openai.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "draftd", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the draftd config directory if it doesn't exist,
// with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "draftd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// envKeyTransformer maps DRAFTD_ environment variables to config keys.
// Sections are two levels deep only under "providers"; everywhere else the
// split is section.field_name on the first underscore.
func envKeyTransformer(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	section := parts[0]
	rest := parts[1]

	if section == "providers" {
		sub := strings.SplitN(rest, "_", 2)
		if len(sub) == 2 {
			return section + "." + sub[0] + "." + sub[1]
		}
	}

	return section + "." + rest
}

// validateConfigFileProperties checks file permissions and size using
// FileInfo from an already-opened descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	// Permission check skipped on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == 0 && cfg.Logging.Format == "" {
		cfg.Logging = *logging.NewDefaultConfig()
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Project.Dir == "" {
		cfg.Project.Dir = "."
	}
	if cfg.Project.OutputDir == "" {
		cfg.Project.OutputDir = "draftd-out"
	}
	if cfg.Project.MaxFileKB == 0 {
		cfg.Project.MaxFileKB = 256
	}

	// The offline stub is always a valid last resort unless explicitly
	// configured away; it keeps a keyless install usable.
	if !cfg.Providers.OpenAI.Enabled && !cfg.Providers.Anthropic.Enabled && !cfg.Providers.Stub.Enabled {
		cfg.Providers.Stub.Enabled = true
	}
	if cfg.Providers.OpenAI.Enabled && cfg.Providers.OpenAI.Name == "" {
		cfg.Providers.OpenAI.Name = "openai"
	}
	if cfg.Providers.Anthropic.Enabled && cfg.Providers.Anthropic.Name == "" {
		cfg.Providers.Anthropic.Name = "anthropic"
	}
	if cfg.Providers.Anthropic.Enabled && cfg.Providers.Anthropic.Priority == 0 {
		cfg.Providers.Anthropic.Priority = 10
	}
	if cfg.Providers.Stub.Enabled && cfg.Providers.Stub.Priority == 0 {
		cfg.Providers.Stub.Priority = 100
	}

	if cfg.Dispatch.DegradationCap == 0 {
		cfg.Dispatch.DegradationCap = 3
	}
	if cfg.Dispatch.CallTimeout == 0 {
		cfg.Dispatch.CallTimeout = Duration(60 * time.Second)
	}

	if cfg.Quality.MaxRetries == 0 {
		cfg.Quality.MaxRetries = 2
	}
	if cfg.Quality.PassScore == 0 {
		cfg.Quality.PassScore = 70
	}
	if cfg.Quality.CreativeTemperature == 0 {
		cfg.Quality.CreativeTemperature = 0.9
	}
	if cfg.Quality.ConservativeTemperature == 0 {
		cfg.Quality.ConservativeTemperature = 0.3
	}
	if cfg.Quality.MaxTokens == 0 {
		cfg.Quality.MaxTokens = 2048
	}

	if cfg.Pipeline.MaxConcurrency == 0 {
		cfg.Pipeline.MaxConcurrency = 4
	}

	tel := telemetry.NewDefaultConfig()
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = tel.Endpoint
		// A defaulted local collector endpoint implies plaintext.
		cfg.Telemetry.Insecure = true
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = tel.Protocol
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = tel.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = tel.ServiceVersion
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = tel.SampleRate
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = tel.ShutdownTimeout
	}
}
