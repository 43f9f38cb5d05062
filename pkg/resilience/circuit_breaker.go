package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError marks a vendor 429-style response. Only these errors count
// toward opening the breaker; ordinary failures are handled by retry.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreaker opens after `threshold` consecutive rate-limit errors and
// stays open for the cooldown. Any success closes it again.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	mu       sync.Mutex
	strikes  int
	openedAt time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, clock: time.Now}
}

// Allow reports whether a request may go out right now.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openedAt.IsZero() {
		return true
	}
	if c.clock().Sub(c.openedAt) >= c.cooldown {
		// Cooldown elapsed: half-open, let the next request probe.
		c.openedAt = time.Time{}
		c.strikes = 0
		return true
	}
	return false
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.strikes = 0
	c.openedAt = time.Time{}
	c.mu.Unlock()
}

func (c *CircuitBreaker) OnError(err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strikes++
	if c.strikes >= c.threshold && c.openedAt.IsZero() {
		c.openedAt = c.clock()
	}
}
