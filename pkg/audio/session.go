package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/errorsx"
	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/logging"
	"github.com/parryvoice/parry/pkg/metrics"
)

// Output is the audio sink receiving scheduled playback buffers. It is the
// boundary to the realtime device/transport: Schedule hands over ownership of
// the buffer, StopAll cancels everything in flight, Resume reopens a
// suspended device.
type Output interface {
	Schedule(buf ScheduledBuffer) error
	StopAll() error
	Resume() error
}

// ScheduledBuffer is one flushed playback batch with an absolute start time.
type ScheduledBuffer struct {
	Start time.Time
	Data  []byte
	Rate  int
}

func (b ScheduledBuffer) Duration() time.Duration {
	if b.Rate <= 0 {
		return 0
	}
	samples := len(b.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(b.Rate)
}

type Config struct {
	StreamID     string
	SampleRate   int
	MicFrame     time.Duration // outbound frame size
	MinBatch     time.Duration // minimum aggregated playback batch
	IdleFlush    time.Duration // flush a short batch after this much silence from TTS
	Lead         time.Duration // scheduling lead to absorb jitter
	EchoWindow   time.Duration // window after playback start treated as echo-suspect
	EchoMaxWords int
	MaxBuffered  int // bytes retained while the output device is unavailable
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.MicFrame <= 0 {
		c.MicFrame = 30 * time.Millisecond
	}
	if c.MinBatch <= 0 {
		c.MinBatch = 20 * time.Millisecond
	}
	if c.IdleFlush <= 0 {
		c.IdleFlush = 40 * time.Millisecond
	}
	if c.Lead <= 0 {
		c.Lead = 30 * time.Millisecond
	}
	if c.EchoWindow <= 0 {
		c.EchoWindow = time.Second
	}
	if c.EchoMaxWords <= 0 {
		c.EchoMaxWords = 3
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = 1 << 20
	}
	return c
}

// Session owns the bidirectional PCM path for one call: exact-size outbound
// mic frames and jitter-tolerant inbound playback scheduling with barge-in.
type Session struct {
	cfg   Config
	out   Output
	clock func() time.Time
	obs   metrics.Observer
	log   *slog.Logger

	mu                sync.Mutex
	remainder         []byte
	muted             bool
	playhead          time.Time
	pending           []byte
	idleTimer         *time.Timer
	speechEndTimer    *time.Timer
	onSpeechEnd       func(at time.Time)
	generation        uint64 // bumped by Interrupt so a racing idle flush is discarded
	lastPlaybackStart time.Time
	firstFlush        bool
	degraded          bool
	resumeTried       bool
}

func NewSession(cfg Config, out Output) *Session {
	return NewSessionWithClock(cfg, out, time.Now)
}

func NewSessionWithClock(cfg Config, out Output, clock func() time.Time) *Session {
	return &Session{
		cfg:   cfg.withDefaults(),
		out:   out,
		clock: clock,
		log:   logging.NewComponentLogger(slog.Default(), "audio_session"),
	}
}

func (s *Session) SetObserver(obs metrics.Observer) { s.obs = obs }

// SetSpeechEndFunc registers a callback fired once scheduled playback has
// fully played out, with the playhead time it finished at. A later flush
// pushes the moment back; Interrupt cancels it.
func (s *Session) SetSpeechEndFunc(fn func(at time.Time)) {
	s.mu.Lock()
	s.onSpeechEnd = fn
	s.mu.Unlock()
}

func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	if muted {
		s.remainder = nil
	}
	s.mu.Unlock()
}

// CaptureFrame accumulates arbitrary-sized capture callbacks into exact
// MicFrame-sized frames, carrying the remainder forward. Returns zero or
// more completed frames. Drops input silently while muted.
func (s *Session) CaptureFrame(raw []byte) []frames.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted || len(raw) == 0 {
		return nil
	}
	frameBytes := s.frameBytes()
	s.remainder = append(s.remainder, raw...)
	var out []frames.AudioFrame
	for len(s.remainder) >= frameBytes {
		data := make([]byte, frameBytes)
		copy(data, s.remainder[:frameBytes])
		s.remainder = s.remainder[frameBytes:]
		out = append(out, frames.NewAudioFrame(
			s.cfg.StreamID,
			s.clock().UnixNano(),
			data,
			s.cfg.SampleRate,
			1,
			map[string]string{
				frames.MetaStreamID: s.cfg.StreamID,
				frames.MetaSource:   "capture",
				frames.MetaSpeaker:  frames.SpeakerUser,
			},
		))
	}
	return out
}

func (s *Session) frameBytes() int {
	samples := int(float64(s.cfg.SampleRate) * s.cfg.MicFrame.Seconds())
	return samples * 2
}

// SchedulePlayback appends a synthesized PCM chunk to the aggregation buffer
// and flushes once the batch reaches MinBatch. A short batch is flushed by
// the idle timer so word-final fragments are not held back.
func (s *Session) SchedulePlayback(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, chunk...)
	if s.pendingDurationLocked() >= s.cfg.MinBatch {
		s.flushLocked()
		return
	}
	s.armIdleFlushLocked()
}

// FlushPending forces out whatever is aggregated, regardless of batch size.
func (s *Session) FlushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Session) pendingDurationLocked() time.Duration {
	samples := len(s.pending) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.cfg.SampleRate)
}

func (s *Session) armIdleFlushLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	gen := s.generation
	s.idleTimer = time.AfterFunc(s.cfg.IdleFlush, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return
		}
		s.flushLocked()
	})
}

func (s *Session) flushLocked() {
	if len(s.pending) == 0 {
		return
	}
	data := s.pending
	s.pending = nil
	now := s.clock()
	start := now.Add(s.cfg.Lead)
	if s.playhead.After(start) {
		start = s.playhead
	}
	buf := ScheduledBuffer{Start: start, Data: data, Rate: s.cfg.SampleRate}
	if err := s.scheduleLocked(buf); err != nil {
		return
	}
	s.playhead = start.Add(buf.Duration())
	s.lastPlaybackStart = now
	s.armSpeechEndLocked()
	if !s.firstFlush {
		s.firstFlush = true
		s.record(metrics.EventPlaybackFirst, nil)
	}
	s.record(metrics.EventPlaybackFlush, map[string]any{
		"bytes":    len(data),
		"start_in": start.Sub(now).Milliseconds(),
	})
}

// armSpeechEndLocked re-arms the speech-end timer for the current playhead.
// The generation guard discards a firing that raced an Interrupt.
func (s *Session) armSpeechEndLocked() {
	if s.onSpeechEnd == nil {
		return
	}
	if s.speechEndTimer != nil {
		s.speechEndTimer.Stop()
	}
	gen := s.generation
	end := s.playhead
	delay := end.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	s.speechEndTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		fn := s.onSpeechEnd
		stale := s.generation != gen
		s.mu.Unlock()
		if stale || fn == nil {
			return
		}
		fn(end)
	})
}

func (s *Session) scheduleLocked(buf ScheduledBuffer) error {
	err := s.out.Schedule(buf)
	if err == nil {
		s.degraded = false
		s.resumeTried = false
		return nil
	}
	// One resume attempt, then degrade without dropping the session.
	if !s.resumeTried {
		s.resumeTried = true
		if rerr := s.out.Resume(); rerr == nil {
			if err = s.out.Schedule(buf); err == nil {
				s.degraded = false
				return nil
			}
		}
	}
	if !s.degraded {
		s.degraded = true
		s.log.Warn("speaker_unavailable",
			"stream_id", s.cfg.StreamID,
			"reason_code", string(errorsx.ReasonPlaybackDevice),
			"error", err.Error(),
		)
	}
	// Keep the audio around, capped, so a later resume can replay the tail.
	s.pending = append(buf.Data, s.pending...)
	if len(s.pending) > s.cfg.MaxBuffered {
		s.pending = s.pending[len(s.pending)-s.cfg.MaxBuffered:]
	}
	return err
}

// Degraded reports whether the output device is currently unavailable.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Interrupt stops all in-flight and scheduled playback, clears the
// aggregation buffer, and resets the playhead to now. Safe to call at any
// time, including concurrently with a flush, and idempotent.
func (s *Session) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.speechEndTimer != nil {
		s.speechEndTimer.Stop()
		s.speechEndTimer = nil
	}
	s.pending = nil
	_ = s.out.StopAll()
	s.playhead = s.clock()
	s.record(metrics.EventBargeIn, nil)
}

// Playhead returns the next free playback slot.
func (s *Session) Playhead() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

// LastPlaybackStart returns when the session last started speaking.
func (s *Session) LastPlaybackStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPlaybackStart
}

// IsLikelyEcho reports whether a user transcript arriving at time at, with
// the given text, is probably the microphone picking up the session's own
// voice: inside the echo window after playback start and only a word or two
// long.
func (s *Session) IsLikelyEcho(text string, at time.Time) bool {
	s.mu.Lock()
	last := s.lastPlaybackStart
	s.mu.Unlock()
	if last.IsZero() {
		return false
	}
	if at.Sub(last) > s.cfg.EchoWindow {
		return false
	}
	return countWords(text) < s.cfg.EchoMaxWords
}

func countWords(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

func (s *Session) record(name string, fields map[string]any) {
	if s.obs == nil {
		return
	}
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   s.clock(),
		Tags:   map[string]string{frames.MetaStreamID: s.cfg.StreamID, "component": "audio"},
		Fields: fields,
	})
}
