package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Well-known event names shared across components.
const (
	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"

	EventTranscriptFinal = "transcript_final"
	EventJudgment        = "judgment_decision"
	EventSuppression     = "suppression"
	EventPhaseTransition = "phase_transition"
	EventCandidatesDone  = "candidates_done"
	EventSelectionDone   = "selection_done"
	EventPlaybackFlush   = "playback_flush"
	EventPlaybackFirst   = "playback_first"
	EventBargeIn         = "barge_in"
	EventStaleDiscard    = "stale_generation_discarded"
	EventGarbled         = "garbled_transcript"
	EventPersonaHangup   = "persona_hangup"
)
