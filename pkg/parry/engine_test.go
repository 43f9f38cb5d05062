package parry

import (
	"context"
	"testing"
	"time"

	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/pipeline"
	providermock "github.com/parryvoice/parry/pkg/providers/mock"
	mocktransport "github.com/parryvoice/parry/pkg/transports/mock"
)

func mockConfig() Config {
	cfg := Config{
		Pipeline: pipeline.Config{
			Async:         true,
			StageBuffer:   64,
			HighCapacity:  128,
			LowCapacity:   256,
			FairnessRatio: 3,
			Backpressure:  pipeline.BackpressureDrop,
		},
		LogLevel:  "error",
		LogFormat: "text",
	}
	cfg.Engine.SampleRate = 16000
	cfg.Engine.MicFrameMS = 30
	cfg.Engine.PlaybackLead = 30
	cfg.Audio = AudioConfig{BatchMinMS: 20, IdleFlushMS: 40, EchoWindowMS: 1000, EchoMaxWords: 3}
	cfg.Response = ResponseConfig{PitchTimeoutMS: 2000, SelectTimeoutMS: 1000, BreakerThreshold: 5, BreakerCooldownMS: 10000}
	cfg.Vendors.STT.Provider = "mock"
	cfg.Vendors.TTS.Provider = "mock"
	cfg.Vendors.LLM.Provider = "mock"
	cfg.Transports.Provider = "mock"
	return cfg
}

func TestNewEngineRequiresTransport(t *testing.T) {
	if _, err := NewEngine(EngineOptions{Config: mockConfig()}); err == nil {
		t.Fatal("expected error for nil transport")
	}
}

func TestNewEngineRejectsUnknownVendor(t *testing.T) {
	cfg := mockConfig()
	cfg.Vendors.LLM.Provider = "bogus"
	_, err := NewEngine(EngineOptions{Config: cfg, Transport: mocktransport.New()})
	if err == nil {
		t.Fatal("expected unknown provider error")
	}
}

// A pushed transcript should come back out of the transport as persona
// audio: transcript in, turn engine speaks, TTS audio is batched and
// written to the wire.
func TestEngineSpeaksInResponseToTranscript(t *testing.T) {
	transport := mocktransport.New()
	eng, err := NewEngine(EngineOptions{
		Config:    mockConfig(),
		Transport: transport,
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if eng.SessionID() != "sess-1" {
		t.Fatalf("SessionID = %q", eng.SessionID())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = eng.Stop() }()

	// An opening identity check takes the canned-reply path, so no model
	// round trip is involved.
	meta := map[string]string{
		frames.MetaStreamID: "sess-1",
		frames.MetaSpeaker:  frames.SpeakerUser,
		frames.MetaIsFinal:  "true",
	}
	transport.Push(frames.NewTextFrame("sess-1", time.Now().UnixNano(), "Is this Jordan?", meta))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-transport.Sent():
			if f.Kind() != frames.KindAudio {
				continue
			}
			af := f.(frames.AudioFrame)
			if len(af.RawPayload()) == 0 {
				t.Fatal("empty playback frame")
			}
			if af.Meta()[frames.MetaSpeaker] != frames.SpeakerAgent {
				t.Fatalf("playback speaker = %q", af.Meta()[frames.MetaSpeaker])
			}
			return
		case <-deadline:
			t.Fatal("no persona audio reached the transport")
		}
	}
}

// Talking over the persona must not only clear scheduled playback but also
// flush the synthesizer, so the tail of the interrupted reply never reaches
// the wire afterwards.
func TestEngineBargeInFlushesSynthesis(t *testing.T) {
	transport := mocktransport.New()
	eng, err := NewEngine(EngineOptions{Config: mockConfig(), Transport: transport, SessionID: "sess-5"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = eng.Stop() }()

	meta := map[string]string{
		frames.MetaStreamID: "sess-5",
		frames.MetaSpeaker:  frames.SpeakerUser,
		frames.MetaIsFinal:  "true",
	}
	transport.Push(frames.NewTextFrame("sess-5", time.Now().UnixNano(), "Is this Jordan?", meta))

	// Wait until the persona's reply is audibly on the wire.
	deadline := time.After(5 * time.Second)
	for speaking := false; !speaking; {
		select {
		case f := <-transport.Sent():
			speaking = f.Kind() == frames.KindAudio
		case <-deadline:
			t.Fatal("persona never spoke")
		}
	}

	transport.Push(frames.NewSystemFrame("sess-5", time.Now().UnixNano(), frames.SystemUserSpeechStart,
		map[string]string{frames.MetaStreamID: "sess-5"}))

	tts := eng.ttsAdapter.(*providermock.TTS)
	waitUntil(t, 3*time.Second, "barge-in did not flush synthesis", func() bool {
		return tts.Flushes() > 0
	})
}

// Inbound caller audio is re-cut to the configured mic cadence before it
// reaches transcription: 30ms at 16kHz PCM16 is 960 bytes, the remainder is
// carried to the next chunk.
func TestEngineCutsCallerAudioToMicFrames(t *testing.T) {
	transport := mocktransport.New()
	eng, err := NewEngine(EngineOptions{Config: mockConfig(), Transport: transport, SessionID: "sess-6"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = eng.Stop() }()

	stt := eng.sttAdapter.(*providermock.STT)
	meta := map[string]string{frames.MetaStreamID: "sess-6", frames.MetaSpeaker: frames.SpeakerUser}

	transport.Push(frames.NewAudioFrame("sess-6", time.Now().UnixNano(), make([]byte, 1000), 16000, 1, meta))
	waitUntil(t, 3*time.Second, "first mic frame never reached transcription", func() bool {
		return stt.AudioBytes() == 960
	})

	// 920 more bytes complete the 40-byte remainder into a second frame.
	transport.Push(frames.NewAudioFrame("sess-6", time.Now().UnixNano(), make([]byte, 920), 16000, 1, meta))
	waitUntil(t, 3*time.Second, "carried remainder was not completed", func() bool {
		return stt.AudioBytes() == 1920
	})
}

func waitUntil(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEngineStopsOnCallEnd(t *testing.T) {
	transport := mocktransport.New()
	eng, err := NewEngine(EngineOptions{Config: mockConfig(), Transport: transport, SessionID: "sess-2"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	transport.Push(frames.NewSystemFrame("sess-2", time.Now().UnixNano(), frames.SystemCallEnd,
		map[string]string{frames.MetaStreamID: "sess-2"}))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("engine did not wind down after call end")
		default:
		}
		if eng.ctx.Err() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = eng.Stop()
}

func TestEngineReportDisabledWithoutArtifactsDir(t *testing.T) {
	eng, err := NewEngine(EngineOptions{Config: mockConfig(), Transport: mocktransport.New()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, ok := eng.Report(); ok {
		t.Fatal("report should be disabled when artifacts_dir is empty")
	}
}
