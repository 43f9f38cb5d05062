package resilience

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures with a fixed backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	p := RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 2
	}
	if p.Backoff <= 0 {
		p.Backoff = 200 * time.Millisecond
	}
	return p
}

func (r RetryPolicy) Do(fn func() error) error {
	return r.DoCtx(context.Background(), fn)
}

// DoCtx retries fn up to MaxRetries times, giving up as soon as ctx is
// done. Used around network-bound turn steps where a stale result must not
// be waited on.
func (r RetryPolicy) DoCtx(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= r.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Backoff):
		}
	}
}
