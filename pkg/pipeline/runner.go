package pipeline

import (
	"context"
	"time"

	"github.com/parryvoice/parry/pkg/runner"
)

// Runner binds a drain procedure to the lifecycle state machine. The engine
// uses one per session; Run blocks until the context ends, then drains.
type Runner struct {
	lc *runner.LifecycleRunner
}

// DrainerFunc adapts a plain func to the runner.Drainer contract.
type DrainerFunc func() error

func (f DrainerFunc) Drain() error { return f() }

// NewDrainRunner wires an arbitrary drainer into a lifecycle runner with a
// bounded drain timeout.
func NewDrainRunner(drainer runner.Drainer, hooks runner.Hooks, timeout time.Duration) *Runner {
	return &Runner{lc: runner.NewLifecycleRunner(drainer, hooks, timeout)}
}

func (r *Runner) Run(ctx context.Context) error { return r.lc.Run(ctx) }

func (r *Runner) Stop() error { return r.lc.Stop() }

// State exposes the lifecycle phase for health reporting.
func (r *Runner) State() runner.State { return r.lc.State() }
