package llm

import (
	"context"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/metrics"
	"github.com/parryvoice/parry/pkg/resilience"
)

// CircuitBreakerAdapter wraps an LLMAdapter with bounded retries and
// rate-limit circuit breaking. Rate-limit errors are never retried here;
// they feed the breaker instead.
type CircuitBreakerAdapter struct {
	inner   LLMAdapter
	breaker *resilience.CircuitBreaker
	retry   RetryConfig
	obs     metrics.Observer
	open    bool
	mu      sync.Mutex
}

func NewCircuitBreakerAdapter(inner LLMAdapter, breaker *resilience.CircuitBreaker) *CircuitBreakerAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	retry := RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   150 * time.Millisecond,
		Jitter:      0.2,
		IsRetryable: func(err error) bool {
			return DefaultIsRetryable(err) && !resilience.IsRateLimit(err)
		},
	}
	return &CircuitBreakerAdapter{inner: inner, breaker: breaker, retry: retry}
}

func (a *CircuitBreakerAdapter) generate(input Context) func(context.Context) (Response, error) {
	return func(ctx context.Context) (Response, error) {
		return a.inner.Generate(ctx, input)
	}
}

func (a *CircuitBreakerAdapter) Name() string { return a.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (a *CircuitBreakerAdapter) SetObserver(obs metrics.Observer) { a.obs = obs }

func (a *CircuitBreakerAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	if err := a.allow(); err != nil {
		return Response{}, err
	}
	resp, err := Retry(ctx, a.retry, a.generate(input))
	if err != nil {
		a.fail(err)
		return Response{}, err
	}
	a.breaker.OnSuccess()
	return resp, nil
}

func (a *CircuitBreakerAdapter) Stream(ctx context.Context, input Context) (<-chan string, error) {
	if err := a.allow(); err != nil {
		return nil, err
	}
	ch, err := a.inner.Stream(ctx, input)
	if err != nil {
		a.fail(err)
		return nil, err
	}
	a.breaker.OnSuccess()
	return ch, nil
}

// allow consults the breaker and returns a rate-limit error while it is
// open, so callers degrade the same way they would on a provider 429.
func (a *CircuitBreakerAdapter) allow() error {
	if !a.breaker.Allow() {
		a.setOpen(true)
		a.record(metrics.EventBreakerDenied)
		return resilience.RateLimitError{Provider: a.Name(), Message: "degraded"}
	}
	a.setOpen(false)
	return nil
}

func (a *CircuitBreakerAdapter) fail(err error) {
	if resilience.IsRateLimit(err) {
		a.record(metrics.EventRateLimit)
	}
	a.breaker.OnError(err)
}

func (a *CircuitBreakerAdapter) record(name string) {
	if a.obs == nil {
		return
	}
	ev := metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{"provider": a.inner.Name(), "component": "llm"},
	}
	a.obs.RecordEvent(ev)
}

// setOpen tracks the breaker state and emits an event only on transitions,
// so a long outage logs once rather than per request.
func (a *CircuitBreakerAdapter) setOpen(open bool) {
	a.mu.Lock()
	changed := a.open != open
	a.open = open
	a.mu.Unlock()

	switch {
	case !changed:
	case open:
		a.record(metrics.EventBreakerOpen)
	default:
		a.record(metrics.EventBreakerClose)
	}
}
