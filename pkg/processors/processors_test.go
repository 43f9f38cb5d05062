package processors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/orchestrator"
	"github.com/parryvoice/parry/pkg/providers/mock"
)

func audioFrame(streamID string, n int) frames.AudioFrame {
	return frames.NewAudioFrame(streamID, time.Now().UnixNano(), make([]byte, n), 16000, 1, nil)
}

func TestSTTProcessorForwardsAudio(t *testing.T) {
	adapter := mock.NewSTT("s1")
	p := NewSTTProcessor(adapter, nil)

	out, err := p.Process(audioFrame("s1", 960))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("audio should be consumed, got %d frames", len(out))
	}
	if adapter.AudioBytes() != 960 {
		t.Fatalf("AudioBytes = %d, want 960", adapter.AudioBytes())
	}
}

type failingSTT struct {
	*mock.STT
	err error
}

func (f *failingSTT) SendAudio(frames.AudioFrame) error { return f.err }

func TestSTTProcessorTripsFallbackOnce(t *testing.T) {
	adapter := &failingSTT{STT: mock.NewSTT("s1"), err: errors.New("socket closed")}
	p := NewSTTProcessor(adapter, nil)

	var fallbacks int
	for i := 0; i < 6; i++ {
		out, err := p.Process(audioFrame("s1", 320))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		for _, f := range out {
			cf, ok := f.(frames.ControlFrame)
			if !ok {
				t.Fatalf("unexpected frame kind %q", f.Kind())
			}
			if cf.Code() != frames.ControlFallback {
				t.Fatalf("code = %q, want fallback", cf.Code())
			}
			if cf.Meta()[frames.MetaReason] != "stt_unavailable" {
				t.Fatalf("reason = %q", cf.Meta()[frames.MetaReason])
			}
			fallbacks++
		}
	}
	if fallbacks != 1 {
		t.Fatalf("fallback emitted %d times, want exactly once", fallbacks)
	}
}

func TestMockSTTInjectsScriptedResults(t *testing.T) {
	adapter := mock.NewSTT("s1")

	adapter.InjectSpeechStart()
	adapter.InjectTranscript("hello, who is this", true)

	f := <-adapter.Results()
	sf, ok := f.(frames.SystemFrame)
	if !ok || sf.Name() != frames.SystemUserSpeechStart {
		t.Fatalf("expected speech start, got %#v", f)
	}
	f = <-adapter.Results()
	tf, ok := f.(frames.TextFrame)
	if !ok || tf.Text() != "hello, who is this" || !tf.IsFinal() {
		t.Fatalf("transcript frame = %#v", f)
	}
	if tf.Speaker() != frames.SpeakerUser {
		t.Fatalf("speaker = %q", tf.Speaker())
	}
	if tf.PTS() <= sf.PTS() {
		t.Fatalf("timestamps not increasing: %d then %d", sf.PTS(), tf.PTS())
	}
}

func TestSTTProcessorClosesAdapterOnCancel(t *testing.T) {
	adapter := mock.NewSTT("s1")
	p := NewSTTProcessor(adapter, nil)

	cancel := frames.NewControlFrame("s1", time.Now().UnixNano(), frames.ControlCancel, nil)
	out, err := p.Process(cancel)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("cancel should pass through, got %d frames", len(out))
	}
	// Results channel closes with the adapter.
	if _, ok := <-adapter.Results(); ok {
		t.Fatal("adapter still open after cancel")
	}
}

func TestTTSProcessorSendsAgentText(t *testing.T) {
	adapter := mock.NewTTS("s1", 16000)
	p := NewTTSProcessor(adapter, nil)

	agent := frames.NewTextFrame("s1", time.Now().UnixNano(), "Who's calling?",
		map[string]string{frames.MetaSpeaker: frames.SpeakerAgent})
	out, err := p.Process(agent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("agent text should be consumed, got %d frames", len(out))
	}
	sent := adapter.Sent()
	if len(sent) != 1 || sent[0] != "Who's calling?" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestTTSProcessorPassesUserTextThrough(t *testing.T) {
	adapter := mock.NewTTS("s1", 16000)
	p := NewTTSProcessor(adapter, nil)

	user := frames.NewTextFrame("s1", time.Now().UnixNano(), "hello",
		map[string]string{frames.MetaSpeaker: frames.SpeakerUser})
	out, err := p.Process(user)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("user text must not be synthesized, got %d frames", len(out))
	}
	if len(adapter.Sent()) != 0 {
		t.Fatalf("user text reached the synthesizer: %v", adapter.Sent())
	}
}

func TestTTSProcessorFlushesOnInterruption(t *testing.T) {
	adapter := mock.NewTTS("s1", 16000)
	p := NewTTSProcessor(adapter, nil)

	intr := frames.NewControlFrame("s1", time.Now().UnixNano(), frames.ControlStartInterruption, nil)
	if _, err := p.Process(intr); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if adapter.Flushes() != 1 {
		t.Fatalf("Flushes = %d, want 1", adapter.Flushes())
	}
}

func TestTTSSpeakerSerializesAndCancels(t *testing.T) {
	adapter := mock.NewTTS("s1", 16000)
	sp := NewTTSSpeaker(adapter)

	if err := sp.Say(context.Background(), "One moment."); err != nil {
		t.Fatalf("Say: %v", err)
	}
	sp.Cancel()
	if adapter.Flushes() != 1 {
		t.Fatalf("Flushes = %d, want 1", adapter.Flushes())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sp.Say(ctx, "late"); err == nil {
		t.Fatal("Say with canceled context should fail")
	}
}

func TestTurnProcessorMapsFramesToEvents(t *testing.T) {
	events := make(chan orchestrator.Event, 8)
	p := NewTurnProcessor(events, nil)

	now := time.Now().UnixNano()
	final := frames.NewTextFrame("s1", now, "I already have a vendor.",
		map[string]string{frames.MetaSpeaker: frames.SpeakerUser, frames.MetaIsFinal: "true"})
	if _, err := p.Process(final); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := p.Process(frames.NewSystemFrame("s1", now, frames.SystemUserSpeechStart, nil)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := p.Process(frames.NewSystemFrame("s1", now, frames.SystemAgentSpeechEnd, nil)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := p.Process(frames.NewSystemFrame("s1", now, frames.SystemCallEnd, nil)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	ev := <-events
	if ev.Kind != orchestrator.EventTranscript || !ev.Final || ev.Text != "I already have a vendor." {
		t.Fatalf("transcript event = %+v", ev)
	}
	if ev.Role != frames.SpeakerUser {
		t.Fatalf("role = %q", ev.Role)
	}
	ev = <-events
	if ev.Kind != orchestrator.EventSpeechStart {
		t.Fatalf("kind = %q, want speech_start", ev.Kind)
	}
	ev = <-events
	if ev.Kind != orchestrator.EventAgentSpeechEnd || ev.Role != "agent" {
		t.Fatalf("kind = %q role = %q, want agent_speech_end", ev.Kind, ev.Role)
	}
	ev = <-events
	if ev.Kind != orchestrator.EventCallEnd {
		t.Fatalf("kind = %q, want call_end", ev.Kind)
	}
}

func TestTurnProcessorDropsWhenChannelFull(t *testing.T) {
	events := make(chan orchestrator.Event) // unbuffered, nobody reading
	p := NewTurnProcessor(events, nil)

	f := frames.NewTextFrame("s1", time.Now().UnixNano(), "hi",
		map[string]string{frames.MetaIsFinal: "true"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Process(f)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Process blocked on a full event channel")
	}
}
