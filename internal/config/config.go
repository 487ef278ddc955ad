// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/locsmith/internal/retry"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMRouterConfig
	Pipeline() PipelineConfig
	Repair() RepairConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLMCfg      LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	PipelineCfg PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	RepairCfg   RepairConfig    `mapstructure:"repair" yaml:"repair"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) LLM() LLMRouterConfig     { return c.LLMCfg }
func (c *Config) Pipeline() PipelineConfig { return c.PipelineCfg }
func (c *Config) Repair() RepairConfig     { return c.RepairCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerSecond    float64                   `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst                int                       `mapstructure:"burst" yaml:"burst"`
	TaskTiers            map[string]string         `mapstructure:"task_tiers" yaml:"task_tiers"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// TierFor returns the configured tier name for a task such as
// "identify-elements". Keys in the config use underscores.
func (c LLMRouterConfig) TierFor(task string) string {
	return c.TaskTiers[strings.ReplaceAll(task, "-", "_")]
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"-"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
	// Bedrock settings apply to the anthropic provider only.
	UseBedrock bool   `mapstructure:"use_bedrock" yaml:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region" yaml:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"`
}

// PipelineConfig drives the identification and synthesis orchestrators.
type PipelineConfig struct {
	DefaultPlatform string      `mapstructure:"default_platform" yaml:"default_platform"`
	AnalysisRuns    int         `mapstructure:"analysis_runs" yaml:"analysis_runs"`
	SynthesisRuns   int         `mapstructure:"synthesis_runs" yaml:"synthesis_runs"`
	Concurrency     int         `mapstructure:"concurrency" yaml:"concurrency"`
	Retry           RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig is the backoff applied to generation calls whose failure is
// fatal to the pipeline.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// Policy converts the config to a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{MaxRetries: r.MaxRetries, InitialDelay: r.InitialDelay, MaxDelay: r.MaxDelay}
}

// RepairConfig drives the locator repair orchestrator.
type RepairConfig struct {
	BatchSize          int           `mapstructure:"batch_size" yaml:"batch_size"`
	MaxAttempts        int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay       time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxXMLBytes        int           `mapstructure:"max_xml_bytes" yaml:"max_xml_bytes"`
	SimplifyDepth      int           `mapstructure:"simplify_depth" yaml:"simplify_depth"`
	MaxScreenshotBytes int           `mapstructure:"max_screenshot_bytes" yaml:"max_screenshot_bytes"`
	Concurrency        int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// Policy converts the per-batch attempt budget into a retry policy.
func (r RepairConfig) Policy() retry.Policy {
	return retry.Policy{MaxRetries: r.MaxAttempts - 1, InitialDelay: r.InitialDelay, MaxDelay: r.MaxDelay}
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "locsmith")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	// Model keys must not contain dots; viper splits keys on them.
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 2)
	v.SetDefault("llm.task_tiers", map[string]string{
		"identify_elements": "powerful",
		"map_state_id":      "fast",
		"generate_xpaths":   "powerful",
		"repair_xpaths":     "powerful",
	})
	v.SetDefault("llm.models", map[string]any{
		"gemini-flash": map[string]any{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "60s",
			"temperature": 0.2,
			"max_tokens":  8192,
		},
		"gemini-pro": map[string]any{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "180s",
			"temperature": 0.4,
			"max_tokens":  16384,
		},
	})

	// -- Pipeline --
	v.SetDefault("pipeline.default_platform", "android")
	v.SetDefault("pipeline.analysis_runs", 3)
	v.SetDefault("pipeline.synthesis_runs", 3)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.retry.max_retries", 3)
	v.SetDefault("pipeline.retry.initial_delay", "1s")
	v.SetDefault("pipeline.retry.max_delay", "30s")

	// -- Repair --
	v.SetDefault("repair.batch_size", 5)
	v.SetDefault("repair.max_attempts", 3)
	v.SetDefault("repair.initial_delay", "1s")
	v.SetDefault("repair.max_delay", "30s")
	v.SetDefault("repair.max_xml_bytes", 1<<20)
	v.SetDefault("repair.simplify_depth", 10)
	v.SetDefault("repair.max_screenshot_bytes", 5<<20)
	v.SetDefault("repair.concurrency", 1)
}

// Load unmarshals a prepared viper instance and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.LoggerCfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.LoggerCfg.Format)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.PipelineCfg.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}
	if err := c.RepairCfg.Validate(); err != nil {
		return fmt.Errorf("repair configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the LLM routing settings.
func (l *LLMRouterConfig) Validate() error {
	if l.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	for task, tier := range l.TaskTiers {
		if tier != "fast" && tier != "powerful" {
			return fmt.Errorf("task_tiers.%s must be 'fast' or 'powerful', got %q", task, tier)
		}
	}
	for name, m := range l.Models {
		switch m.Provider {
		case ProviderGemini, ProviderAnthropic:
		default:
			return fmt.Errorf("models.%s has unsupported provider %q", name, m.Provider)
		}
	}
	return nil
}

// Validate checks the PipelineConfig settings.
func (p *PipelineConfig) Validate() error {
	if strings.TrimSpace(p.DefaultPlatform) == "" {
		return fmt.Errorf("default_platform is required")
	}
	if p.AnalysisRuns <= 0 {
		return fmt.Errorf("analysis_runs must be a positive integer")
	}
	if p.SynthesisRuns <= 0 {
		return fmt.Errorf("synthesis_runs must be a positive integer")
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if p.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	return nil
}

// Validate checks the RepairConfig settings.
func (r *RepairConfig) Validate() error {
	if r.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be a positive integer")
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if r.SimplifyDepth < 0 {
		return fmt.Errorf("simplify_depth must not be negative")
	}
	if r.MaxXMLBytes <= 0 || r.MaxScreenshotBytes <= 0 {
		return fmt.Errorf("max_xml_bytes and max_screenshot_bytes must be positive")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	return nil
}
