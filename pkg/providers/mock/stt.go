package mock

import (
	"context"
	"sync"

	"github.com/parryvoice/parry/pkg/adapters/stt"
	"github.com/parryvoice/parry/pkg/frames"
)

// STT is a scriptable speech-to-text stand-in: audio in is counted and
// discarded, transcripts are injected by the test or demo harness.
type STT struct {
	streamID string
	out      chan frames.Frame
	pts      *frames.PTSGen

	mu         sync.Mutex
	audioBytes int
	started    bool
}

func NewSTT(streamID string) *STT {
	return &STT{
		streamID: streamID,
		out:      make(chan frames.Frame, 64),
		pts:      frames.NewPTSGen(),
	}
}

func (s *STT) Name() string { return "mock_stt" }

func (s *STT) Start(context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *STT) Close() error {
	close(s.out)
	return nil
}

func (s *STT) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	s.audioBytes += len(frame.RawPayload())
	s.mu.Unlock()
	return nil
}

func (s *STT) Results() <-chan frames.Frame { return s.out }

// AudioBytes reports how much audio was forwarded.
func (s *STT) AudioBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioBytes
}

// InjectTranscript pushes a transcript frame as if the vendor produced it.
func (s *STT) InjectTranscript(text string, final bool) {
	meta := map[string]string{
		frames.MetaStreamID: s.streamID,
		frames.MetaSource:   "stt",
		frames.MetaSpeaker:  frames.SpeakerUser,
		frames.MetaIsFinal:  "false",
	}
	if final {
		meta[frames.MetaIsFinal] = "true"
	}
	s.out <- frames.NewTextFrame(s.streamID, s.pts.Next(s.streamID), text, meta)
}

// InjectSpeechStart pushes a native VAD speech-start signal.
func (s *STT) InjectSpeechStart() {
	s.out <- frames.NewSystemFrame(s.streamID, s.pts.Next(s.streamID),
		frames.SystemUserSpeechStart,
		map[string]string{frames.MetaStreamID: s.streamID, frames.MetaSource: "stt"})
}

var _ stt.StreamingSTT = (*STT)(nil)
