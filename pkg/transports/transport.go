// Package transports defines the vendor-agnostic I/O boundary that carries
// audio, transcript, and control frames between the wire and the engine.
package transports

import (
	"context"

	"github.com/parryvoice/parry/pkg/frames"
)

// Transport is the frame boundary for one call medium. Implementations own
// their network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// OutboundDialer places outbound calls so a training session can ring the
// trainee instead of waiting for an inbound call.
type OutboundDialer interface {
	Dial(ctx context.Context, to, from, url string) (callSID string, err error)
}

// ReadyReporter exposes readiness metadata (webhook URLs and the like) for
// startup logging. Optional.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
