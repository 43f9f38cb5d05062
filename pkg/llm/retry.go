package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig bounds the retry loop around a model call. Zero values get
// conservative defaults suitable for a live call path.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	IsRetryable func(error) bool
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}
	return cfg
}

// Retry runs fn with exponential backoff until it succeeds, the error is
// terminal, attempts run out, or the context ends. Backoff sleeps abort on
// context cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) (Response, error)) (Response, error) {
	cfg = cfg.withDefaults()
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(cfg, attempt-1)); err != nil {
				return Response{}, err
			}
		}
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !cfg.IsRetryable(err) {
			break
		}
	}
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}
	return Response{}, fmt.Errorf("llm retry failed: %w", lastErr)
}

// DefaultIsRetryable treats everything as transient except context ends;
// the circuit breaker handles persistent rate limiting above this layer.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay << uint(attempt)
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * rand.Float64())
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
