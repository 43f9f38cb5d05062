// Package frames defines the value types that flow through the pipeline:
// audio, transcript text, control signals, and session lifecycle markers.
// Frames are immutable once built; Meta always returns a copy.
package frames

import (
	"maps"
	"sync"
	"time"
)

type Kind string

const (
	KindAudio   Kind = "audio"
	KindText    Kind = "text"
	KindControl Kind = "control"
	KindSystem  Kind = "system"
)

type ControlCode string

const (
	ControlCancel            ControlCode = "cancel"
	ControlFlush             ControlCode = "flush"
	ControlStartInterruption ControlCode = "start_interruption"
	ControlFallback          ControlCode = "fallback"
	ControlClarify           ControlCode = "clarify"
	ControlAudioReady        ControlCode = "audio_ready"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// header carries what every frame kind shares: a presentation timestamp in
// nanoseconds and the metadata map.
type header struct {
	pts  int64
	meta map[string]string
}

func newHeader(streamID string, pts int64, meta map[string]string) header {
	merged := make(map[string]string, 2+len(meta))
	if streamID != "" {
		merged[MetaStreamID] = streamID
	}
	maps.Copy(merged, meta)
	return header{pts: pts, meta: merged}
}

func (h header) PTS() int64              { return h.pts }
func (h header) Meta() map[string]string { return maps.Clone(h.meta) }

// tag reads a meta key without the defensive copy Meta makes.
func (h header) tag(key string) string { return h.meta[key] }

type AudioFrame struct {
	header
	data   []byte
	rate   int
	ch     int
	pooled bool
}

func NewAudioFrame(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		header: newHeader(streamID, pts, meta),
		data:   data,
		rate:   rate,
		ch:     ch,
	}
}

// NewAudioFrameFromPool copies data into a pooled buffer. Pair with
// ReleaseAudioFrame once the frame leaves the pipeline.
func NewAudioFrameFromPool(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(data))
	copy(buf, data)
	return AudioFrame{
		header: newHeader(streamID, pts, meta),
		data:   buf,
		rate:   rate,
		ch:     ch,
		pooled: true,
	}
}

func (a AudioFrame) Kind() Kind         { return KindAudio }
func (a AudioFrame) Data() []byte       { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte { return a.data }
func (a AudioFrame) Rate() int          { return a.rate }
func (a AudioFrame) Channels() int      { return a.ch }

// Duration reports the wall-clock length of the PCM payload assuming
// 16-bit mono samples.
func (a AudioFrame) Duration() time.Duration {
	if a.rate <= 0 {
		return 0
	}
	samples := len(a.data) / 2
	return time.Duration(samples) * time.Second / time.Duration(a.rate)
}

// ReleaseAudioFrame returns a pooled frame's buffer to the pool. Safe to
// call on any frame; non-pooled and non-audio frames are a no-op.
func ReleaseAudioFrame(f Frame) bool {
	var af AudioFrame
	switch v := f.(type) {
	case AudioFrame:
		af = v
	case *AudioFrame:
		af = *v
	default:
		return false
	}
	if !af.pooled {
		return false
	}
	ReleaseAudioBuf(af.data)
	return true
}

type TextFrame struct {
	header
	text string
}

func NewTextFrame(streamID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{header: newHeader(streamID, pts, meta), text: text}
}

func (t TextFrame) Kind() Kind   { return KindText }
func (t TextFrame) Text() string { return t.text }

// IsFinal reports whether the frame carries a finalized transcript.
func (t TextFrame) IsFinal() bool { return t.tag(MetaIsFinal) == "true" }

// Speaker returns the transcript speaker role, defaulting to user.
func (t TextFrame) Speaker() string {
	if s := t.tag(MetaSpeaker); s != "" {
		return s
	}
	return SpeakerUser
}

type ControlFrame struct {
	header
	code ControlCode
}

func NewControlFrame(streamID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{header: newHeader(streamID, pts, meta), code: code}
}

func (c ControlFrame) Kind() Kind        { return KindControl }
func (c ControlFrame) Code() ControlCode { return c.code }

type SystemFrame struct {
	header
	name string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{header: newHeader(streamID, pts, meta), name: name}
}

func (s SystemFrame) Kind() Kind   { return KindSystem }
func (s SystemFrame) Name() string { return s.name }

// PTSGen hands out strictly increasing per-stream timestamps for sources
// that have no natural clock of their own.
type PTSGen struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{next: make(map[string]int64)}
}

func (g *PTSGen) Next(streamID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[streamID] += time.Millisecond.Nanoseconds()
	return g.next[streamID]
}

var audioBufPool = sync.Pool{
	New: func() any { return make([]byte, 0, 4096) },
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}
