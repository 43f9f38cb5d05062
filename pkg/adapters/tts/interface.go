// Package tts defines the vendor-neutral text-to-speech contract.
package tts

import (
	"context"

	"github.com/parryvoice/parry/pkg/frames"
)

// StreamingTTS is a live synthesis stream. SendText queues text for
// synthesis and audio comes back on Results. Flush aborts the current
// synthesis and drops queued audio, which is how a barge-in reaches the
// vendor.
type StreamingTTS interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
	SendText(text string) error
	Flush()
	Results() <-chan frames.Frame
}
