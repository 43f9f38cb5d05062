// Package runner owns process lifecycle: banner, start/stop hooks, and
// bounded draining on shutdown.
package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks fire around the running phase: OnStart once the runner is up,
// OnStop after draining finishes.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer flushes in-flight work before shutdown completes.
type Drainer interface {
	Drain() error
}

// EngineVersion is stamped at build time via -ldflags.
var EngineVersion = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"PARRY\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
