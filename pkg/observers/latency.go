package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/metrics"
)

// TurnLatency is the timing breakdown of one conversational turn.
type TurnLatency struct {
	TranscriptAt time.Time
	GenerateMS   int64
	SelectMS     int64
	ResponseMS   int64
}

// TurnLatencyObserver measures how long the persona takes to answer: final
// transcript in, candidates generated, winner selected, first audio out.
// One conversation per observer.
type TurnLatencyObserver struct {
	mu   sync.Mutex
	cur  TurnLatency
	last TurnLatency
	log  *slog.Logger
}

func NewTurnLatencyObserver(log *slog.Logger) *TurnLatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &TurnLatencyObserver{log: log}
}

func (o *TurnLatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.Name {
	case metrics.EventTranscriptFinal:
		o.cur = TurnLatency{TranscriptAt: ev.Time}
	case metrics.EventCandidatesDone:
		if !o.cur.TranscriptAt.IsZero() {
			o.cur.GenerateMS = ev.Time.Sub(o.cur.TranscriptAt).Milliseconds()
		}
	case metrics.EventSelectionDone:
		if !o.cur.TranscriptAt.IsZero() {
			o.cur.SelectMS = ev.Time.Sub(o.cur.TranscriptAt).Milliseconds()
		}
	case metrics.EventPlaybackFirst:
		if o.cur.TranscriptAt.IsZero() {
			return
		}
		o.cur.ResponseMS = ev.Time.Sub(o.cur.TranscriptAt).Milliseconds()
		o.last = o.cur
		o.log.Info("turn_latency",
			"generate_ms", o.cur.GenerateMS,
			"select_ms", o.cur.SelectMS,
			"response_ms", o.cur.ResponseMS,
		)
		o.cur = TurnLatency{}
	}
}

// Last returns the most recently completed turn measurement.
func (o *TurnLatencyObserver) Last() TurnLatency {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

var _ metrics.Observer = (*TurnLatencyObserver)(nil)
