package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/config"
)

const (
	defaultAnthropicMaxTokens = 8192
	// statusOverloaded is returned by the Anthropic API under load.
	statusOverloaded = 529
)

// AnthropicClient implements schemas.LLMClient for Claude models, either
// directly with an API key or through AWS Bedrock.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
	logger *zap.Logger
	config config.LLMModelConfig
}

var _ schemas.LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient builds the client. Without Bedrock the API key falls
// back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	// Retries are driven by the orchestrators' policies, not the SDK.
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key is required (llm.models.*.api_key or ANTHROPIC_API_KEY)")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
		config: cfg,
		logger: logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends a single user turn, with images first, and concatenates the
// text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	maxTokens := int64(c.config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	temperature := float64(c.config.Temperature)
	if req.Options.Temperature > 0 {
		temperature = req.Options.Temperature
	}

	userPrompt := req.UserPrompt
	if req.Options.ForceJSONFormat {
		userPrompt += "\n\nRespond with JSON only, without markdown fences or commentary."
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(userPrompt))

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}

	c.logger.Info("LLM generation complete (Anthropic)",
		zap.String("model", string(c.model)),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.InputTokens),
		zap.Int64("completion_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", string(resp.StopReason)),
	)

	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic API returned no text content (stop reason: %s)", resp.StopReason)
	}
	return sb.String(), nil
}

// Close is a no-op.
func (c *AnthropicClient) Close() error { return nil }

func classifyAnthropicError(err error) error {
	wrapped := fmt.Errorf("anthropic API request failed: %w", err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == statusOverloaded {
			return wrapped
		}
		return classifyStatus(apiErr.StatusCode, wrapped)
	}
	return wrapped
}
