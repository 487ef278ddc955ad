// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "locsmith", cfg.Logger().ServiceName)
	assert.Equal(t, "android", cfg.Pipeline().DefaultPlatform)
	assert.Equal(t, 3, cfg.Pipeline().AnalysisRuns)
	assert.Equal(t, 3, cfg.Pipeline().SynthesisRuns)
	assert.Equal(t, time.Second, cfg.Pipeline().Retry.InitialDelay)

	assert.Equal(t, 5, cfg.Repair().BatchSize)
	assert.Equal(t, 3, cfg.Repair().MaxAttempts)
	assert.Equal(t, 10, cfg.Repair().SimplifyDepth)
	assert.Equal(t, 1<<20, cfg.Repair().MaxXMLBytes)
	assert.Equal(t, 5<<20, cfg.Repair().MaxScreenshotBytes)

	require.Contains(t, cfg.LLM().Models, "gemini-pro")
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM().Models["gemini-pro"].Model)
	assert.Equal(t, ProviderGemini, cfg.LLM().Models["gemini-pro"].Provider)
	assert.Equal(t, 180*time.Second, cfg.LLM().Models["gemini-pro"].APITimeout)
	assert.Equal(t, "fast", cfg.LLM().TierFor("map-state-id"))
	assert.Equal(t, "powerful", cfg.LLM().TierFor("repair-xpaths"))

	require.NoError(t, cfg.Validate())
}

func TestRepairConfig_PolicyMatchesAttemptBudget(t *testing.T) {
	cfg := NewDefaultConfig()
	p := cfg.Repair().Policy()
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 3, p.Attempts())
	assert.Equal(t, time.Second, p.InitialDelay)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad log format", func(c *Config) { c.LoggerCfg.Format = "xml" }, "logger.format"},
		{"no default platform", func(c *Config) { c.PipelineCfg.DefaultPlatform = " " }, "default_platform is required"},
		{"zero analysis runs", func(c *Config) { c.PipelineCfg.AnalysisRuns = 0 }, "analysis_runs"},
		{"zero synthesis runs", func(c *Config) { c.PipelineCfg.SynthesisRuns = 0 }, "synthesis_runs"},
		{"zero concurrency", func(c *Config) { c.PipelineCfg.Concurrency = 0 }, "concurrency"},
		{"negative retries", func(c *Config) { c.PipelineCfg.Retry.MaxRetries = -1 }, "max_retries"},
		{"zero batch size", func(c *Config) { c.RepairCfg.BatchSize = 0 }, "batch_size"},
		{"zero attempts", func(c *Config) { c.RepairCfg.MaxAttempts = 0 }, "max_attempts"},
		{"negative depth", func(c *Config) { c.RepairCfg.SimplifyDepth = -2 }, "simplify_depth"},
		{"bad tier", func(c *Config) { c.LLMCfg.TaskTiers["map_state_id"] = "medium" }, "task_tiers.map_state_id"},
		{"bad provider", func(c *Config) {
			c.LLMCfg.Models["x"] = LLMModelConfig{Provider: "openai"}
		}, "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// -- Loading Tests --

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	yaml := []byte(`
logger:
  format: json
pipeline:
  default_platform: ios
  analysis_runs: 5
repair:
  batch_size: 2
  initial_delay: 250ms
llm:
  models:
    claude:
      provider: anthropic
      model: claude-sonnet-4-5
`)
	require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Logger().Format)
	assert.Equal(t, "ios", cfg.Pipeline().DefaultPlatform)
	assert.Equal(t, 5, cfg.Pipeline().AnalysisRuns)
	assert.Equal(t, 3, cfg.Pipeline().SynthesisRuns, "untouched keys keep defaults")
	assert.Equal(t, 2, cfg.Repair().BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Repair().InitialDelay)
	assert.Equal(t, ProviderAnthropic, cfg.LLM().Models["claude"].Provider)
}

func TestLoad_InvalidConfig(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("repair.batch_size", 0)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
