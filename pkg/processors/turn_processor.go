package processors

import (
	"log/slog"
	"time"

	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/logging"
	"github.com/parryvoice/parry/pkg/orchestrator"
	"github.com/parryvoice/parry/pkg/redact"
)

// TurnProcessor is the bridge from the frame pipeline into the turn
// engine's event channel. It is a sink: frames stop here.
type TurnProcessor struct {
	events chan<- orchestrator.Event
	log    *slog.Logger
}

func NewTurnProcessor(events chan<- orchestrator.Event, logger *slog.Logger) *TurnProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnProcessor{
		events: events,
		log:    logging.NewComponentLogger(logger, "turn_processor"),
	}
}

func (p *TurnProcessor) Name() string { return "turn" }

func (p *TurnProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	switch f.Kind() {
	case frames.KindText:
		tf := f.(frames.TextFrame)
		if tf.IsFinal() {
			p.log.Info("transcript_final",
				"speaker", tf.Speaker(),
				"text", redact.Text(tf.Text()),
			)
		}
		p.push(orchestrator.Event{
			Kind:  orchestrator.EventTranscript,
			Role:  tf.Speaker(),
			Text:  tf.Text(),
			Final: tf.IsFinal(),
			At:    time.Unix(0, tf.PTS()),
		})
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		if cf.Code() == frames.ControlFallback {
			// Transcription is gone for good; end the session instead of
			// leaving the caller talking to silence.
			p.log.Error("transcription_unavailable", "reason", cf.Meta()[frames.MetaReason])
			p.push(orchestrator.Event{Kind: orchestrator.EventCallEnd, At: time.Unix(0, cf.PTS())})
		}
	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		switch sf.Name() {
		case frames.SystemUserSpeechStart:
			p.push(orchestrator.Event{Kind: orchestrator.EventSpeechStart, Role: "user", At: time.Unix(0, sf.PTS())})
		case frames.SystemAgentSpeechEnd:
			p.push(orchestrator.Event{Kind: orchestrator.EventAgentSpeechEnd, Role: "agent", At: time.Unix(0, sf.PTS())})
		case frames.SystemCallEnd:
			p.push(orchestrator.Event{Kind: orchestrator.EventCallEnd, At: time.Unix(0, sf.PTS())})
		}
	}
	return nil, nil
}

func (p *TurnProcessor) push(ev orchestrator.Event) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("event_channel_full", "kind", string(ev.Kind))
	}
}
