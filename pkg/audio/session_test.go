package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeOutput struct {
	mu        sync.Mutex
	scheduled []ScheduledBuffer
	stopped   int
	resumed   int
	failNext  int
}

func (f *fakeOutput) Schedule(buf ScheduledBuffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("device busy")
	}
	f.scheduled = append(f.scheduled, buf)
	return nil
}

func (f *fakeOutput) StopAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeOutput) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed++
	return nil
}

func (f *fakeOutput) buffers() []ScheduledBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ScheduledBuffer, len(f.scheduled))
	copy(out, f.scheduled)
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSession(out *fakeOutput, clock *fakeClock) *Session {
	return NewSessionWithClock(Config{
		StreamID:   "MZtest",
		SampleRate: 16000,
		IdleFlush:  time.Hour, // flushes are explicit in tests
	}, out, clock.Now)
}

// pcm returns PCM16 bytes of the given duration at 16kHz.
func pcm(d time.Duration) []byte {
	samples := int(16000 * d.Seconds())
	return make([]byte, samples*2)
}

func TestCaptureFrameExactFraming(t *testing.T) {
	s := newTestSession(&fakeOutput{}, newFakeClock())
	frameBytes := s.frameBytes()
	if frameBytes != 960 {
		t.Fatalf("expected 960-byte frames at 16kHz/30ms, got %d", frameBytes)
	}

	// 70ms of audio: two full frames plus a 10ms remainder.
	got := s.CaptureFrame(pcm(70 * time.Millisecond))
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	for _, f := range got {
		if len(f.Data()) != frameBytes {
			t.Fatalf("frame size %d, want %d", len(f.Data()), frameBytes)
		}
	}

	// 20ms more completes the carried remainder into a third frame.
	got = s.CaptureFrame(pcm(20 * time.Millisecond))
	if len(got) != 1 {
		t.Fatalf("expected remainder to complete 1 frame, got %d", len(got))
	}
}

func TestCaptureFrameDropsWhileMuted(t *testing.T) {
	s := newTestSession(&fakeOutput{}, newFakeClock())
	s.SetMuted(true)
	if got := s.CaptureFrame(pcm(90 * time.Millisecond)); got != nil {
		t.Fatalf("muted session produced %d frames", len(got))
	}
	s.SetMuted(false)
	// No stale remainder survives the mute.
	if got := s.CaptureFrame(pcm(30 * time.Millisecond)); len(got) != 1 {
		t.Fatalf("expected exactly 1 frame after unmute, got %d", len(got))
	}
}

func TestSchedulePlaybackBatchesAndAdvancesPlayhead(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)

	// 10ms is below the batch floor, nothing flushes yet.
	s.SchedulePlayback(pcm(10 * time.Millisecond))
	if n := len(out.buffers()); n != 0 {
		t.Fatalf("short chunk flushed early: %d buffers", n)
	}

	// Another 15ms pushes the batch over 20ms.
	s.SchedulePlayback(pcm(15 * time.Millisecond))
	bufs := out.buffers()
	if len(bufs) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(bufs))
	}
	wantStart := clock.Now().Add(30 * time.Millisecond)
	if !bufs[0].Start.Equal(wantStart) {
		t.Fatalf("start = %v, want now+lead %v", bufs[0].Start, wantStart)
	}
	if got := s.Playhead(); !got.Equal(wantStart.Add(25 * time.Millisecond)) {
		t.Fatalf("playhead = %v, want %v", got, wantStart.Add(25*time.Millisecond))
	}
}

func TestPlayheadMonotonicAcrossBatches(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)

	s.SchedulePlayback(pcm(100 * time.Millisecond))
	s.SchedulePlayback(pcm(100 * time.Millisecond))
	s.SchedulePlayback(pcm(100 * time.Millisecond))

	bufs := out.buffers()
	if len(bufs) != 3 {
		t.Fatalf("expected 3 flushes, got %d", len(bufs))
	}
	for i := 1; i < len(bufs); i++ {
		prevEnd := bufs[i-1].Start.Add(bufs[i-1].Duration())
		if bufs[i].Start.Before(prevEnd) {
			t.Fatalf("batch %d starts %v, before previous end %v", i, bufs[i].Start, prevEnd)
		}
	}
}

func TestInterruptResetsPlayhead(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)

	// Build up a long scheduled tail.
	s.SchedulePlayback(pcm(2 * time.Second))
	if s.Playhead().Sub(clock.Now()) < time.Second {
		t.Fatal("precondition: playhead should be well in the future")
	}

	s.Interrupt()
	if out.stopped != 1 {
		t.Fatalf("StopAll called %d times, want 1", out.stopped)
	}
	if !s.Playhead().Equal(clock.Now()) {
		t.Fatalf("playhead = %v, want now %v", s.Playhead(), clock.Now())
	}

	// Idempotent.
	s.Interrupt()
	if out.stopped != 2 {
		t.Fatalf("second interrupt StopAll count = %d", out.stopped)
	}

	// New speech after interrupt starts from now+lead, not the old tail.
	s.SchedulePlayback(pcm(25 * time.Millisecond))
	bufs := out.buffers()
	last := bufs[len(bufs)-1]
	if last.Start.Before(clock.Now()) {
		t.Fatalf("post-interrupt start %v is before now %v", last.Start, clock.Now())
	}
	if last.Start.Sub(clock.Now()) > 60*time.Millisecond {
		t.Fatalf("post-interrupt start %v too far ahead", last.Start.Sub(clock.Now()))
	}
}

func TestInterruptDiscardsPendingBatch(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)

	s.SchedulePlayback(pcm(10 * time.Millisecond)) // below floor, pending
	s.Interrupt()
	s.FlushPending()
	if n := len(out.buffers()); n != 0 {
		t.Fatalf("pending audio survived interrupt: %d buffers", n)
	}
}

func TestSpeechEndFiresAfterPlayout(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)
	ends := make(chan time.Time, 1)
	s.SetSpeechEndFunc(func(at time.Time) { ends <- at })

	s.SchedulePlayback(pcm(25 * time.Millisecond))
	select {
	case at := <-ends:
		want := out.buffers()[0].Start.Add(25 * time.Millisecond)
		if !at.Equal(want) {
			t.Fatalf("speech end at %v, want playhead %v", at, want)
		}
	case <-time.After(time.Second):
		t.Fatal("speech end never fired")
	}
}

func TestSpeechEndCanceledByInterrupt(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)
	ends := make(chan time.Time, 1)
	s.SetSpeechEndFunc(func(at time.Time) { ends <- at })

	s.SchedulePlayback(pcm(25 * time.Millisecond))
	s.Interrupt()
	select {
	case at := <-ends:
		t.Fatalf("speech end %v fired for interrupted playback", at)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIsLikelyEcho(t *testing.T) {
	out := &fakeOutput{}
	clock := newFakeClock()
	s := newTestSession(out, clock)

	// Never echo before the session has spoken.
	if s.IsLikelyEcho("yeah", clock.Now()) {
		t.Fatal("echo flagged before any playback")
	}

	s.SchedulePlayback(pcm(25 * time.Millisecond))
	at := clock.Now().Add(400 * time.Millisecond)
	if !s.IsLikelyEcho("uh huh", at) {
		t.Fatal("short fragment inside echo window not flagged")
	}
	if s.IsLikelyEcho("no I really need to think about this", at) {
		t.Fatal("substantive utterance flagged as echo")
	}
	if s.IsLikelyEcho("uh huh", clock.Now().Add(1500*time.Millisecond)) {
		t.Fatal("fragment outside echo window flagged")
	}
}

func TestDeviceFailureDegradesAndRecovers(t *testing.T) {
	out := &fakeOutput{failNext: 2} // first Schedule and the post-Resume retry fail
	clock := newFakeClock()
	s := newTestSession(out, clock)

	s.SchedulePlayback(pcm(25 * time.Millisecond))
	if !s.Degraded() {
		t.Fatal("session not degraded after device failure")
	}
	if out.resumed != 1 {
		t.Fatalf("Resume called %d times, want 1", out.resumed)
	}

	// Device comes back: buffered tail plays on the next flush.
	s.FlushPending()
	if s.Degraded() {
		t.Fatal("session still degraded after successful schedule")
	}
	bufs := out.buffers()
	if len(bufs) != 1 {
		t.Fatalf("expected buffered audio to flush once recovered, got %d", len(bufs))
	}
	if bufs[0].Duration() != 25*time.Millisecond {
		t.Fatalf("recovered buffer duration %v", bufs[0].Duration())
	}
}
