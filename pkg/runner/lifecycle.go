package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleRunner walks a session through new → starting → running →
// draining → stopped. Run blocks until the context ends, then drains with a
// bounded timeout. Stop is safe to call from any goroutine, any number of
// times.
type LifecycleRunner struct {
	drainer Drainer
	hooks   Hooks
	timeout time.Duration

	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &LifecycleRunner{
		drainer: drainer,
		hooks:   hooks,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	r.state.Store(int32(StateNew))
	return r
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner already started")
	}
	PrintBanner()
	if ctx != nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.Store(int32(StateRunning))
	<-r.ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		r.stopErr = r.drainWithTimeout()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.stopErr
}

// drainWithTimeout reports only the timeout; individual drain errors are the
// drainer's to log.
func (r *LifecycleRunner) drainWithTimeout() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = r.drainer.Drain()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(r.timeout):
		return errors.New("drain timeout")
	}
}
