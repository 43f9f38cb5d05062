// Package parry assembles the full roleplay stack for one training call:
// transport in, STT, judgment-gated turn engine, candidate response
// pipeline, TTS and scheduled playback out.
package parry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parryvoice/parry/pkg/adapters/stt"
	"github.com/parryvoice/parry/pkg/adapters/tts"
	"github.com/parryvoice/parry/pkg/audio"
	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/judgment"
	"github.com/parryvoice/parry/pkg/llm"
	"github.com/parryvoice/parry/pkg/logging"
	"github.com/parryvoice/parry/pkg/metrics"
	"github.com/parryvoice/parry/pkg/observers"
	"github.com/parryvoice/parry/pkg/orchestrator"
	"github.com/parryvoice/parry/pkg/phase"
	"github.com/parryvoice/parry/pkg/pipeline"
	"github.com/parryvoice/parry/pkg/processors"
	"github.com/parryvoice/parry/pkg/redact"
	"github.com/parryvoice/parry/pkg/resilience"
	"github.com/parryvoice/parry/pkg/response"
	"github.com/parryvoice/parry/pkg/runner"
	"github.com/parryvoice/parry/pkg/strategy"
	"github.com/parryvoice/parry/pkg/transports"
)

// Engine hosts one training session end to end.
type Engine struct {
	cfg       Config
	sessionID string
	transport transports.Transport
	registry  *ProviderRegistry

	sttAdapter stt.StreamingSTT
	ttsAdapter tts.StreamingTTS
	session    *audio.Session
	pipe       pipeline.Orchestrator
	orch       *orchestrator.Orchestrator
	runner     *pipeline.Runner

	asyncObs *metrics.AsyncObserver
	timeline *observers.TimelineObserver
	report   *observers.SessionReportObserver

	ctx    context.Context
	cancel context.CancelFunc
}

type EngineOptions struct {
	Config    Config
	Transport transports.Transport
	Providers *ProviderRegistry
	SessionID string
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	if opts.Transport == nil {
		return nil, fmt.Errorf("missing transport")
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	registry := opts.Providers
	if registry == nil {
		registry = DefaultRegistry()
	}

	slog.Info("parry_init",
		"environment", cfg.Environment,
		"session_id", sessionID,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"transport", opts.Transport.Name(),
	)
	pipeline.LogConfiguration(cfg.Engine)

	latencyObs := observers.NewTurnLatencyObserver(slog.Default())
	logObs := observers.NewLoggerObserver(slog.Default())
	obsList := []metrics.Observer{latencyObs, logObs}
	var timeline *observers.TimelineObserver
	var report *observers.SessionReportObserver
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			_, _ = observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
		}
		timeline = observers.NewTimelineObserver(dir, sessionID)
		report = observers.NewSessionReportObserver(dir, sessionID)
		obsList = append(obsList, timeline, report)
	}
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	sttAdapter, err := registry.BuildSTT(cfg, sessionID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	ttsAdapter, err := registry.BuildTTS(cfg, sessionID)
	if err != nil {
		return nil, err
	}
	llmAdapter, err := registry.BuildLLM(cfg)
	if err != nil {
		return nil, err
	}
	llmAdapter = llm.NewCircuitBreakerAdapter(llmAdapter, resilience.NewCircuitBreaker(
		cfg.Response.BreakerThreshold,
		time.Duration(cfg.Response.BreakerCooldownMS)*time.Millisecond,
	))

	output := &transportOutput{transport: opts.Transport, streamID: sessionID, rate: cfg.Engine.SampleRate}
	session := audio.NewSession(audio.Config{
		StreamID:     sessionID,
		SampleRate:   cfg.Engine.SampleRate,
		MicFrame:     time.Duration(cfg.Engine.MicFrameMS) * time.Millisecond,
		MinBatch:     time.Duration(cfg.Audio.BatchMinMS) * time.Millisecond,
		IdleFlush:    time.Duration(cfg.Audio.IdleFlushMS) * time.Millisecond,
		Lead:         time.Duration(cfg.Engine.PlaybackLead) * time.Millisecond,
		EchoWindow:   time.Duration(cfg.Audio.EchoWindowMS) * time.Millisecond,
		EchoMaxWords: cfg.Audio.EchoMaxWords,
	}, output)
	session.SetObserver(asyncObs)

	pitchers := response.NewPitchers(llmAdapter, response.NewFeedbackLog(), personaPrompt(cfg.Persona),
		time.Duration(cfg.Response.PitchTimeoutMS)*time.Millisecond)
	selector := response.NewSelector(llmAdapter, time.Duration(cfg.Response.SelectTimeoutMS)*time.Millisecond)
	responder := response.NewPipeline(pitchers, selector, response.NewEmotionalState(), asyncObs)

	orch := orchestrator.New(orchestrator.Config{
		Logger:    slog.Default(),
		Observer:  asyncObs,
		Audio:     session,
		Speaker:   processors.NewTTSSpeaker(ttsAdapter),
		Gate:      judgment.NewGate(slog.Default(), asyncObs),
		Phases:    phase.NewManager(slog.Default(), asyncObs),
		Strategy:  strategy.NewLayer(),
		Responder: responder,
	})

	pipe := pipeline.New(cfg.Pipeline)
	_ = pipe.AddProcessor(processors.NewSTTProcessor(sttAdapter, slog.Default()))
	_ = pipe.AddProcessor(processors.NewTTSProcessor(ttsAdapter, slog.Default()))
	_ = pipe.AddProcessor(processors.NewTurnProcessor(orch.Events(), slog.Default()))
	pipe.SetObserver(asyncObs)

	// The interruption that clears the remote playback buffer loops back
	// through the pipeline's control lane so the synthesis stage flushes too.
	output.loopback = pipe.In()
	// Played-out playback reports back as an agent speech-end event, giving
	// the gate's echo window a real end time instead of the text-send time.
	session.SetSpeechEndFunc(func(at time.Time) {
		nonBlockingSend(pipe.In(), frames.NewSystemFrame(sessionID, at.UnixNano(), frames.SystemAgentSpeechEnd,
			map[string]string{frames.MetaStreamID: sessionID, frames.MetaSource: "playback"}))
	})

	e := &Engine{
		cfg:        cfg,
		sessionID:  sessionID,
		transport:  opts.Transport,
		registry:   registry,
		sttAdapter: sttAdapter,
		ttsAdapter: ttsAdapter,
		session:    session,
		pipe:       pipe,
		orch:       orch,
		asyncObs:   asyncObs,
		timeline:   timeline,
		report:     report,
	}

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Parry Engine Ready", "session_id", sessionID}
			if rr, ok := opts.Transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			if timeline != nil {
				_ = timeline.Close()
			}
			if report != nil {
				_ = report.Close()
			}
			slog.Info("shutdown", "goroutines", runtime.NumGoroutine())
		},
	}
	drainer := pipeline.DrainerFunc(func() error {
		_ = opts.Transport.Stop()
		_ = e.sttAdapter.Close()
		e.ttsAdapter.Flush()
		_ = e.ttsAdapter.Close()
		return e.pipe.Stop()
	})
	e.runner = pipeline.NewDrainRunner(drainer, hooks, 30*time.Second)
	return e, nil
}

// Start brings up the adapters and runs the session until ctx ends or the
// call completes.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.transport.Start(e.ctx); err != nil {
		return err
	}
	if err := e.sttAdapter.Start(e.ctx); err != nil {
		return err
	}
	if err := e.ttsAdapter.Start(e.ctx); err != nil {
		return err
	}
	if err := e.pipe.Start(); err != nil {
		return err
	}

	go e.routeTransport()
	go e.pumpSTT()
	go e.pumpTTS()
	go func() {
		_ = e.orch.Run(e.ctx)
		e.cancel()
	}()
	go func() {
		_ = e.runner.Run(e.ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

// SessionID identifies this call in timelines and reports.
func (e *Engine) SessionID() string { return e.sessionID }

// Report returns the training summary accumulated so far, if enabled.
func (e *Engine) Report() (observers.SessionReport, bool) {
	if e.report == nil {
		return observers.SessionReport{}, false
	}
	return e.report.Snapshot(), true
}

// routeTransport feeds inbound wire frames into the processing pipeline.
// Caller audio is re-cut into exact mic-sized frames first, so the
// transcriber always sees the cadence it was configured for and muting
// actually drops audio.
func (e *Engine) routeTransport() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			if af, isAudio := f.(frames.AudioFrame); isAudio {
				for _, mic := range e.session.CaptureFrame(af.RawPayload()) {
					nonBlockingSend(e.pipe.In(), mic)
				}
				frames.ReleaseAudioFrame(f)
				continue
			}
			nonBlockingSend(e.pipe.In(), f)
		}
	}
}

// pumpSTT moves transcription results into the pipeline where the turn
// stage converts them to session events.
func (e *Engine) pumpSTT() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case f, ok := <-e.sttAdapter.Results():
			if !ok {
				return
			}
			nonBlockingSend(e.pipe.In(), f)
		}
	}
}

// pumpTTS hands synthesized persona audio to the playback scheduler, which
// batches it and writes it to the transport.
func (e *Engine) pumpTTS() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case f, ok := <-e.ttsAdapter.Results():
			if !ok {
				return
			}
			if af, isAudio := f.(frames.AudioFrame); isAudio {
				e.session.SchedulePlayback(af.RawPayload())
			}
		}
	}
}

// transportOutput adapts the wire to the playback scheduler's device
// contract: batches go out as audio frames, interruption clears the remote
// buffer and loops back through the pipeline to flush synthesis.
type transportOutput struct {
	transport transports.Transport
	streamID  string
	rate      int
	loopback  chan frames.Frame
}

func (t *transportOutput) Schedule(buf audio.ScheduledBuffer) error {
	meta := map[string]string{
		frames.MetaStreamID: t.streamID,
		frames.MetaSpeaker:  frames.SpeakerAgent,
		frames.MetaSource:   "playback",
	}
	return t.transport.Send(frames.NewAudioFrame(t.streamID, buf.Start.UnixNano(), buf.Data, buf.Rate, 1, meta))
}

func (t *transportOutput) StopAll() error {
	meta := map[string]string{frames.MetaStreamID: t.streamID}
	cf := frames.NewControlFrame(t.streamID, time.Now().UnixNano(), frames.ControlStartInterruption, meta)
	if t.loopback != nil {
		nonBlockingSend(t.loopback, cf)
	}
	return t.transport.Send(cf)
}

func (t *transportOutput) Resume() error { return nil }

func personaPrompt(p PersonaConfig) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(p.Name)
	if p.Role != "" {
		b.WriteString(", ")
		b.WriteString(p.Role)
	}
	if p.Company != "" {
		b.WriteString(" at ")
		b.WriteString(p.Company)
	}
	b.WriteString(". You just picked up a ")
	if p.Scenario != "" {
		b.WriteString(p.Scenario)
	} else {
		b.WriteString("cold call")
	}
	b.WriteString(". You are busy, skeptical, and did not ask for this call. Speak like a real person on the phone.")
	return b.String()
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}

// SetDefaultLogger installs the process-wide logger from config strings.
func SetDefaultLogger(level, format string) {
	slog.SetDefault(logging.InitLogger(logging.ParseLevel(level), format))
}
