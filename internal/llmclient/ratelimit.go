package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

// RateLimitedClient holds each request until the token bucket allows it.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

var _ schemas.LLMClient = (*RateLimitedClient)(nil)

// NewRateLimitedClient wraps next with a limiter of rps requests per second.
// A non-positive rps disables limiting; burst is raised to at least 1.
func NewRateLimitedClient(next schemas.LLMClient, rps float64, burst int) *RateLimitedClient {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return c.next.Generate(ctx, req)
}

func (c *RateLimitedClient) Close() error { return c.next.Close() }
