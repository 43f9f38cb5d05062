// Package observers holds metrics.Observer implementations that turn
// engine events into logs, per-session timelines, and training reports.
package observers

import (
	"context"
	"log/slog"

	"github.com/parryvoice/parry/pkg/metrics"
)

// LoggerObserver mirrors every engine event into the debug log, one line
// per event with tags and fields flattened into attrs.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	attrs := make([]slog.Attr, 0, 3+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs, slog.String("event", ev.Name))
	if !ev.Time.IsZero() {
		attrs = append(attrs, slog.Time("at", ev.Time))
	}
	if ev.Value != 0 {
		attrs = append(attrs, slog.Float64("value", ev.Value))
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "engine_event", attrs...)
}

// MultiObserver fans one event out to every sink; nil entries are skipped.
type MultiObserver struct {
	sinks []metrics.Observer
}

func NewMultiObserver(sinks ...metrics.Observer) *MultiObserver {
	return &MultiObserver{sinks: sinks}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.RecordEvent(ev)
		}
	}
}
