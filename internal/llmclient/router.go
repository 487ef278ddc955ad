package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

// LLMRouter sends each prompt to the fast or powerful model. The adapter picks
// the tier per task; only state id mapping defaults to fast.
type LLMRouter struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

var _ schemas.LLMClient = (*LLMRouter)(nil)

// NewLLMRouter pairs the two tier clients. When both tiers name the same model
// the factory passes one client twice.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("llm router needs a client for both the fast and powerful tiers")
	}

	return &LLMRouter{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// Generate forwards req to its tier's client, defaulting to powerful.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("unknown model tier %q", tier)
	}

	r.logger.Debug("Routing generation request",
		zap.String("tier", string(tier)),
		zap.Bool("force_json", req.Options.ForceJSONFormat))
	return client.Generate(ctx, req)
}

// Close releases a shared client only once.
func (r *LLMRouter) Close() error {
	fast := r.clients[schemas.TierFast]
	powerful := r.clients[schemas.TierPowerful]

	err := fast.Close()
	if powerful != fast {
		err = errors.Join(err, powerful.Close())
	}
	return err
}
