package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy controls fixed-interval retry behavior. Rate-limited calls back off
// longer than ordinary transport failures; neither interval grows between
// attempts. Fixed intervals are adequate here because batch pacing already
// keeps call concurrency at one per orchestrator.
type Policy struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// RateLimitBackoff is the sleep after a 429. Default: 5s.
	RateLimitBackoff time.Duration

	// TransportBackoff is the sleep after any other transient error. Default: 2s.
	TransportBackoff time.Duration

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the retry policy used for provider calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		RateLimitBackoff: 5 * time.Second,
		TransportBackoff: 2 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RateLimitBackoff <= 0 {
		p.RateLimitBackoff = 5 * time.Second
	}
	if p.TransportBackoff <= 0 {
		p.TransportBackoff = 2 * time.Second
	}
	return p
}

// DoVal executes fn with retries according to p, preserving the value from
// the successful call. Only transient errors are retried; context
// cancellation stops retries immediately.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		if !IsTransient(lastErr) {
			return zero, lastErr
		}

		// Don't sleep after the last attempt.
		if attempt >= p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}

		delay := p.TransportBackoff
		if IsRateLimited(lastErr) {
			delay = p.RateLimitBackoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(provider, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
