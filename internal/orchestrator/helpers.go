package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
	"github.com/xkilldash9x/locsmith/internal/retry"
)

// generateWithRetry calls the client under policy p. The returned error wraps
// ErrGeneration and the last client error.
func generateWithRetry(
	ctx context.Context,
	client schemas.GenerativeClient,
	p retry.Policy,
	task schemas.Task,
	gc schemas.GenerationContext,
	logger *zap.Logger,
) (schemas.RawModelOutput, error) {
	op := func(ctx context.Context, _ int) (schemas.RawModelOutput, error) {
		return client.Generate(ctx, task, gc)
	}
	notify := func(err error, attempt int, next time.Duration) {
		logger.Warn("Generation attempt failed, retrying",
			zap.String("task", string(task)),
			zap.Int("attempt", attempt+1),
			zap.Duration("next_delay", next),
			zap.Error(err),
		)
	}

	out, err := retry.Do(ctx, p, op, notify)
	if err != nil {
		return schemas.RawModelOutput{}, fmt.Errorf("%w: %s: %w", ErrGeneration, task, err)
	}
	return out, nil
}

// normalizePlatforms lowercases, trims and de-duplicates platform names,
// keeping first-seen order and dropping empties.
func normalizePlatforms(platforms []string) []string {
	seen := make(map[string]struct{}, len(platforms))
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		p = schemas.NormalizePlatform(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// groupKey is the composite "stateId_platform" key.
func groupKey(stateID, platform string) string {
	return stateID + "_" + platform
}

func concurrencyLimit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
