package mock

import (
	"context"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/adapters/tts"
	"github.com/parryvoice/parry/pkg/frames"
)

// TTS synthesizes silence: every sent text becomes one PCM frame of zeros
// sized to a rough speaking duration, so timing-sensitive code paths run
// without a vendor.
type TTS struct {
	streamID   string
	sampleRate int
	out        chan frames.Frame

	mu      sync.Mutex
	sent    []string
	flushes int
}

func NewTTS(streamID string, sampleRate int) *TTS {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &TTS{
		streamID:   streamID,
		sampleRate: sampleRate,
		out:        make(chan frames.Frame, 64),
	}
}

func (t *TTS) Name() string { return "mock_tts" }

func (t *TTS) Start(context.Context) error { return nil }

func (t *TTS) Close() error {
	close(t.out)
	return nil
}

func (t *TTS) SendText(text string) error {
	t.mu.Lock()
	t.sent = append(t.sent, text)
	t.mu.Unlock()

	// ~150ms of silence per word, a crude stand-in for speech.
	words := 1
	for _, r := range text {
		if r == ' ' {
			words++
		}
	}
	samples := t.sampleRate * words * 150 / 1000
	data := make([]byte, samples*2)
	meta := map[string]string{
		frames.MetaStreamID: t.streamID,
		frames.MetaSource:   "mock_tts",
		frames.MetaSpeaker:  frames.SpeakerAgent,
	}
	select {
	case t.out <- frames.NewAudioFrame(t.streamID, time.Now().UnixNano(), data, t.sampleRate, 1, meta):
	default:
	}
	return nil
}

func (t *TTS) Flush() {
	t.mu.Lock()
	t.flushes++
	t.mu.Unlock()
	for {
		select {
		case <-t.out:
		default:
			return
		}
	}
}

func (t *TTS) Results() <-chan frames.Frame { return t.out }

// Sent returns every text handed to the synthesizer.
func (t *TTS) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

// Flushes reports how many times synthesis was interrupted.
func (t *TTS) Flushes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushes
}

var _ tts.StreamingTTS = (*TTS)(nil)
