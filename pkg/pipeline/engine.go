// Package pipeline moves frames from the transport through an ordered chain
// of processors, with a priority lane for control frames and lag-based
// shedding for stale audio.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/metrics"
)

// FrameProcessor is one stage. Returning (nil, nil) consumes the frame;
// returned frames continue to the next stage.
type FrameProcessor interface {
	Process(frames.Frame) ([]frames.Frame, error)
	Name() string
}

type BackpressureMode int

const (
	// BackpressureDrop sheds frames when a stage buffer is full. The
	// default: on a live call, late audio is worse than lost audio.
	BackpressureDrop BackpressureMode = iota
	BackpressureWait
)

type Config struct {
	Async         bool
	StageBuffer   int
	HighCapacity  int
	LowCapacity   int
	FairnessRatio int
	Backpressure  BackpressureMode
}

// EngineConfig holds the timing constants the audio path is built around.
type EngineConfig struct {
	SampleRate   int `mapstructure:"samplerate"`
	MicFrameMS   int `mapstructure:"mic_frame_ms"`
	PlaybackLead int `mapstructure:"playback_lead_ms"`
}

func LogConfiguration(cfg EngineConfig) {
	slog.Info("engine_config",
		"sample_rate", cfg.SampleRate,
		"mic_frame_ms", cfg.MicFrameMS,
		"playback_lead_ms", cfg.PlaybackLead,
	)
}

type Orchestrator interface {
	Start() error
	Stop() error
	In() chan frames.Frame
	Out() chan frames.Frame
	AddProcessor(p FrameProcessor) error
	SetContext(ctx context.Context)
	SetSink(sink func(frames.Frame))
	SetObserver(obs metrics.Observer)
}
