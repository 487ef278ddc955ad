// File: internal/retry/retry.go
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// defaultMaxDelay caps a single wait when the policy leaves MaxDelay unset.
const defaultMaxDelay = 10 * time.Minute

// Policy configures exponential backoff. The delay before attempt i (0-indexed,
// i >= 1) is InitialDelay * 2^(i-1), capped at MaxDelay.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Attempts returns the total number of invocations the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Operation is invoked once per attempt; attempt starts at 0.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Notify is called after a failed attempt, before sleeping for next.
type Notify func(err error, attempt int, next time.Duration)

// Do runs op until it succeeds, the retries are exhausted, op returns an error
// wrapped with Permanent, or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, op Operation[T], notify Notify) (T, error) {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()

	// WithMaxRetries treats 0 as "no limit", so zero retries needs StopBackOff.
	var limited backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxRetries > 0 {
		limited = backoff.WithMaxRetries(eb, uint64(p.MaxRetries))
	}
	b := backoff.WithContext(limited, ctx)

	attempt := 0
	wrapped := func() (T, error) {
		current := attempt
		attempt++
		return op(ctx, current)
	}

	var onFailure backoff.Notify
	if notify != nil {
		onFailure = func(err error, next time.Duration) {
			notify(err, attempt-1, next)
		}
	}

	return backoff.RetryNotifyWithData(wrapped, b, onFailure)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
