// Package deepgram adapts the Deepgram live-transcription websocket to the
// engine's speech-to-text interface.
package deepgram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/parryvoice/parry/pkg/adapters/stt"
	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	Encoding       string
	Interim        bool
	VADEvents      bool
	UtteranceEndMS int
	StreamID       string
	CallSID        string
	TraceID        string
}

// StreamingSTT streams caller audio to Deepgram and turns its callbacks
// into text and system frames for the turn engine: transcripts carry a
// speaker tag and finality, native VAD speech-start becomes a system frame
// so barge-in fires before any transcript lands.
type StreamingSTT struct {
	cfg    Config
	ws     *client.WSCallback
	out    chan frames.Frame
	ctx    context.Context
	cancel context.CancelFunc
	pr     *io.PipeReader
	pw     *io.PipeWriter
	log    *slog.Logger

	metaSeen bool
}

func New(cfg Config) *StreamingSTT {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &StreamingSTT{
		cfg: cfg,
		out: make(chan frames.Frame, 256),
		log: logging.NewComponentLogger(slog.Default(), "deepgram_stt").
			With("stream_id", cfg.StreamID),
	}
}

func (s *StreamingSTT) Name() string { return "deepgram_streaming" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pr, s.pw = io.Pipe()

	s.log.Info("stt_connecting",
		"call_sid", s.cfg.CallSID,
		"model", s.cfg.Model,
		"sample_rate", s.cfg.SampleRate,
		"vad_events", s.cfg.VADEvents,
	)

	ws, err := client.NewWSUsingCallback(s.ctx, s.cfg.APIKey,
		&interfaces.ClientOptions{EnableKeepAlive: true},
		s.liveOptions(),
		&events{s: s},
	)
	if err != nil {
		s.log.Error("stt_client_create_failed", "error", err.Error())
		return err
	}
	s.ws = ws

	if !s.ws.Connect() {
		s.log.Error("stt_connect_failed")
		return errors.New("deepgram connection failed")
	}
	s.log.Info("stt_connected", "call_sid", s.cfg.CallSID)

	// The SDK reads audio off the pipe; SendAudio writes the other end.
	go func() {
		if err := s.ws.Stream(s.pr); err != nil && s.ctx.Err() == nil {
			s.log.Error("stt_stream_failed", "error", err.Error())
		}
	}()
	return nil
}

func (s *StreamingSTT) liveOptions() *interfaces.LiveTranscriptionOptions {
	opts := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       s.cfg.Language,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		InterimResults: s.cfg.Interim,
		VadEvents:      s.cfg.VADEvents,
		SmartFormat:    true,
	}
	if s.cfg.UtteranceEndMS > 0 {
		opts.UtteranceEndMs = strconv.Itoa(s.cfg.UtteranceEndMS)
	}
	return opts
}

func (s *StreamingSTT) Close() error {
	s.log.Info("stt_closing")
	if s.cancel != nil {
		s.cancel()
	}
	if s.pw != nil {
		_ = s.pw.Close()
	}
	if s.ws != nil {
		s.ws.Stop()
	}
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	if s.pw == nil {
		return errors.New("not started")
	}
	if _, err := s.pw.Write(frame.RawPayload()); err != nil {
		s.log.Error("stt_send_failed", "error", err.Error())
		return err
	}
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

func (s *StreamingSTT) baseMeta() map[string]string {
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaCallSID:  s.cfg.CallSID,
		frames.MetaSource:   "stt",
	}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	return meta
}

func (s *StreamingSTT) emit(f frames.Frame) {
	select {
	case s.out <- f:
	default:
		s.log.Warn("stt_output_full")
	}
}

// events receives the SDK callbacks and translates them into frames.
type events struct {
	s *StreamingSTT
}

func (e *events) Open(*msginterfaces.OpenResponse) error {
	e.s.log.Info("stt_socket_opened")
	return nil
}

func (e *events) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := mr.Channel.Alternatives[0].Transcript
	if text == "" {
		return nil
	}
	final := mr.IsFinal || mr.SpeechFinal

	meta := e.s.baseMeta()
	meta[frames.MetaSpeaker] = frames.SpeakerUser
	meta[frames.MetaIsFinal] = strconv.FormatBool(final)

	e.s.log.Debug("stt_transcript", "text", text, "is_final", final)
	e.s.emit(frames.NewTextFrame(e.s.cfg.StreamID, time.Now().UnixNano(), text, meta))
	return nil
}

func (e *events) Metadata(md *msginterfaces.MetadataResponse) error {
	// Log the request id once for cross-referencing with Deepgram's console.
	if !e.s.metaSeen {
		e.s.metaSeen = true
		e.s.log.Info("stt_session_metadata", "request_id", md.RequestID)
	}
	return nil
}

func (e *events) SpeechStarted(*msginterfaces.SpeechStartedResponse) error {
	// Native VAD: the caller started talking. This drives barge-in, so it
	// goes out immediately, ahead of any transcript.
	e.s.log.Info("stt_speech_started")
	e.s.emit(frames.NewSystemFrame(
		e.s.cfg.StreamID, time.Now().UnixNano(),
		frames.SystemUserSpeechStart, e.s.baseMeta(),
	))
	return nil
}

func (e *events) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	meta := e.s.baseMeta()
	meta[frames.MetaReason] = "utterance_end"
	e.s.emit(frames.NewControlFrame(
		e.s.cfg.StreamID, time.Now().UnixNano(),
		frames.ControlFlush, meta,
	))
	return nil
}

func (e *events) Close(*msginterfaces.CloseResponse) error {
	e.s.log.Info("stt_socket_closed")
	return nil
}

func (e *events) Error(er *msginterfaces.ErrorResponse) error {
	e.s.log.Error("stt_error", "code", er.ErrCode, "message", er.ErrMsg)
	return nil
}

func (e *events) UnhandledEvent(raw []byte) error {
	e.s.log.Debug("stt_unhandled_event", "data", string(raw))
	return nil
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
