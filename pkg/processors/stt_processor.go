// Package processors holds the pipeline stages between the transport and
// the conversation engine: audio out to STT, transcripts in to the
// orchestrator, agent text out to TTS.
package processors

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/adapters/stt"
	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/logging"
)

const sttFailureThreshold = 3

// STTProcessor forwards caller audio frames to the STT adapter. Repeated
// send failures emit one Fallback control frame so the engine can degrade
// instead of silently eating audio.
type STTProcessor struct {
	mu       sync.Mutex
	adapter  stt.StreamingSTT
	log      *slog.Logger
	failures int
	tripped  bool
}

func NewSTTProcessor(adapter stt.StreamingSTT, logger *slog.Logger) *STTProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &STTProcessor{
		adapter: adapter,
		log:     logging.NewComponentLogger(logger, "stt_processor"),
	}
}

func (p *STTProcessor) Name() string { return "stt" }

func (p *STTProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	switch f.Kind() {
	case frames.KindAudio:
		af, ok := f.(frames.AudioFrame)
		if !ok {
			return nil, nil
		}
		return p.sendAudio(af)
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		if cf.Code() == frames.ControlCancel {
			_ = p.adapter.Close()
		}
		return []frames.Frame{f}, nil
	}
	return []frames.Frame{f}, nil
}

func (p *STTProcessor) sendAudio(af frames.AudioFrame) ([]frames.Frame, error) {
	err := p.adapter.SendAudio(af)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.failures = 0
		return nil, nil
	}
	p.failures++
	p.log.Warn("stt_send_failed",
		"error", err.Error(),
		"consecutive", p.failures,
	)
	if p.failures >= sttFailureThreshold && !p.tripped {
		p.tripped = true
		meta := af.Meta()
		meta[frames.MetaReason] = "stt_unavailable"
		return []frames.Frame{
			frames.NewControlFrame(meta[frames.MetaStreamID], time.Now().UnixNano(), frames.ControlFallback, meta),
		}, nil
	}
	return nil, nil
}
