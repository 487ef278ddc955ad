package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
)

// NewClient is a factory function that creates an LLMClient for one model
// configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderAnthropic)
	}
}

// NewRouterFromConfig builds the fast and powerful clients named by cfg,
// joins them in an LLMRouter and applies the configured rate limit.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	return newRouter(ctx, cfg, logger, NewClient)
}

type clientBuilder func(context.Context, config.LLMModelConfig, *zap.Logger) (schemas.LLMClient, error)

func newRouter(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger, build clientBuilder) (schemas.LLMClient, error) {
	fastCfg, ok := cfg.Models[cfg.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("default fast model %q is not defined in llm.models", cfg.DefaultFastModel)
	}
	powerfulCfg, ok := cfg.Models[cfg.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("default powerful model %q is not defined in llm.models", cfg.DefaultPowerfulModel)
	}

	fast, err := build(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client: %w", err)
	}
	powerful := fast
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		if powerful, err = build(ctx, powerfulCfg, logger); err != nil {
			_ = fast.Close()
			return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
		}
	}

	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	return NewRateLimitedClient(router, cfg.RequestsPerSecond, cfg.Burst), nil
}
