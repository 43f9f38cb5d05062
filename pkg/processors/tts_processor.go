package processors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parryvoice/parry/pkg/adapters/tts"
	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/logging"
)

// TTSProcessor forwards agent text frames to the TTS adapter and flushes
// synthesis on interruption so no stale audio reaches the caller after a
// barge-in.
type TTSProcessor struct {
	adapter tts.StreamingTTS
	log     *slog.Logger
}

func NewTTSProcessor(adapter tts.StreamingTTS, logger *slog.Logger) *TTSProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TTSProcessor{
		adapter: adapter,
		log:     logging.NewComponentLogger(logger, "tts_processor"),
	}
}

func (p *TTSProcessor) Name() string { return "tts" }

func (p *TTSProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	switch f.Kind() {
	case frames.KindText:
		tf := f.(frames.TextFrame)
		if tf.Speaker() != frames.SpeakerAgent {
			return []frames.Frame{f}, nil
		}
		if err := p.adapter.SendText(tf.Text()); err != nil {
			p.log.Warn("tts_send_failed", "error", err.Error())
		}
		if tf.Meta()[frames.MetaTTSFlush] == "true" {
			p.adapter.Flush()
		}
		return nil, nil
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		if cf.Code() == frames.ControlStartInterruption {
			p.adapter.Flush()
		}
		return []frames.Frame{f}, nil
	}
	return []frames.Frame{f}, nil
}

// TTSSpeaker adapts the TTS stream to the turn engine's Say contract.
// Sentences are serialized so concurrent turns cannot interleave text.
type TTSSpeaker struct {
	mu      sync.Mutex
	adapter tts.StreamingTTS
}

func NewTTSSpeaker(adapter tts.StreamingTTS) *TTSSpeaker {
	return &TTSSpeaker{adapter: adapter}
}

func (s *TTSSpeaker) Say(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter.SendText(text)
}

// Cancel flushes any in-flight synthesis.
func (s *TTSSpeaker) Cancel() {
	s.adapter.Flush()
}
