// Package stt defines the vendor-neutral speech-to-text contract. Providers
// under pkg/providers satisfy it; the pipeline only sees this interface.
package stt

import (
	"context"

	"github.com/parryvoice/parry/pkg/frames"
)

// StreamingSTT is a live transcription stream. Callers feed caller audio
// with SendAudio and read transcript and VAD frames from Results. Close ends
// the stream and closes the Results channel.
type StreamingSTT interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
	SendAudio(frame frames.AudioFrame) error
	Results() <-chan frames.Frame
}
