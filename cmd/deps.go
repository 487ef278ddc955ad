package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
	"github.com/xkilldash9x/locsmith/internal/llmclient"
	"github.com/xkilldash9x/locsmith/internal/observability"
)

// clientFactory builds the GenerativeClient used by model-backed commands and
// a function that releases it.
type clientFactory func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.GenerativeClient, func() error, error)

// newGenerativeClient is replaced in tests.
var newGenerativeClient clientFactory = defaultGenerativeClient

func defaultGenerativeClient(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.GenerativeClient, func() error, error) {
	llm, err := llmclient.NewRouterFromConfig(ctx, cfg.LLM(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	adapter, err := llmclient.NewAdapter(llm, nil, cfg.LLM(), logger)
	if err != nil {
		_ = llm.Close()
		return nil, nil, fmt.Errorf("failed to initialize generative client: %w", err)
	}
	return adapter, llm.Close, nil
}

// modelCommand bundles what every model-backed command needs.
type modelCommand struct {
	cfg    config.Interface
	logger *zap.Logger
	client schemas.GenerativeClient
	sink   schemas.DiagnosticSink
	close  func() error
}

func (m *modelCommand) Close() {
	if m.close == nil {
		return
	}
	if err := m.close(); err != nil {
		m.logger.Warn("Failed to close LLM client", zap.Error(err))
	}
}

// setupModelCommand resolves config from the command context and builds the
// generative client.
func setupModelCommand(cmd *cobra.Command) (*modelCommand, error) {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	logger := observability.GetLogger()
	client, closeFn, err := newGenerativeClient(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &modelCommand{
		cfg:    cfg,
		logger: logger,
		client: client,
		sink:   observability.NewLogSink(logger),
		close:  closeFn,
	}, nil
}
