package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/metrics"
)

// SessionReport is the end-of-call summary handed to the trainee: how many
// turns the roleplay ran, how far it got, and how often the persona had to
// hold back or was interrupted.
type SessionReport struct {
	SessionID       string         `json:"session_id"`
	Turns           int            `json:"turns"`
	Suppressions    map[string]int `json:"suppressions,omitempty"`
	BargeIns        int            `json:"barge_ins"`
	StaleDiscards   int            `json:"stale_discards"`
	GarbledInputs   int            `json:"garbled_inputs"`
	PhasesReached   []string       `json:"phases_reached,omitempty"`
	SelectionMethod map[string]int `json:"selection_method,omitempty"`
	RecordedAtUTC   string         `json:"recorded_at_utc"`
}

// SessionReportObserver aggregates engine events into a SessionReport and
// writes it as JSON on Close.
type SessionReportObserver struct {
	dir string

	mu     sync.Mutex
	report SessionReport
}

func NewSessionReportObserver(dir, sessionID string) *SessionReportObserver {
	return &SessionReportObserver{
		dir: dir,
		report: SessionReport{
			SessionID:       sessionID,
			Suppressions:    make(map[string]int),
			SelectionMethod: make(map[string]int),
		},
	}
}

func (o *SessionReportObserver) RecordEvent(ev metrics.MetricsEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.Name {
	case metrics.EventTranscriptFinal:
		o.report.Turns++
	case metrics.EventSuppression:
		reason := ev.Tags["reason"]
		if reason == "" {
			reason = "unknown"
		}
		o.report.Suppressions[reason]++
	case metrics.EventBargeIn:
		o.report.BargeIns++
	case metrics.EventStaleDiscard:
		o.report.StaleDiscards++
	case metrics.EventGarbled:
		o.report.GarbledInputs++
	case metrics.EventPhaseTransition:
		if to := ev.Tags["to"]; to != "" {
			o.report.PhasesReached = append(o.report.PhasesReached, to)
		}
	case metrics.EventSelectionDone:
		method := ev.Tags["method"]
		if method == "" {
			method = "unknown"
		}
		o.report.SelectionMethod[method]++
	}
}

// Snapshot returns the report accumulated so far.
func (o *SessionReportObserver) Snapshot() SessionReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.report
	r.Suppressions = copyCounts(o.report.Suppressions)
	r.SelectionMethod = copyCounts(o.report.SelectionMethod)
	r.PhasesReached = append([]string(nil), o.report.PhasesReached...)
	return r
}

// Close writes the report to <dir>/<session>.report.json.
func (o *SessionReportObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	r := o.Snapshot()
	r.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(o.dir, sanitizeID(r.SessionID)+".report.json")
	return os.WriteFile(path, b, 0o644)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*SessionReportObserver)(nil)
