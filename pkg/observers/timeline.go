package observers

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/metrics"
	"github.com/parryvoice/parry/pkg/redact"
)

// TimelineObserver writes a per-session JSONL trace of every engine event,
// the raw material for reviewing a training call afterwards. One file per
// stream, opened lazily on the first event for that stream.
type TimelineObserver struct {
	dir       string
	sessionID string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewTimelineObserver writes traces under dir. Events without a stream_id
// tag fall back to sessionID.
func NewTimelineObserver(dir, sessionID string) *TimelineObserver {
	return &TimelineObserver{
		dir:       dir,
		sessionID: sessionID,
		files:     make(map[string]*os.File),
	}
}

type timelineEvent struct {
	Time   time.Time         `json:"time"`
	Event  string            `json:"event"`
	Value  float64           `json:"value,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	id := o.streamFor(ev)
	if id == "" {
		return
	}
	line, err := json.Marshal(timelineEvent{
		Time:   ev.Time.UTC(),
		Event:  ev.Name,
		Value:  ev.Value,
		Tags:   maps.Clone(ev.Tags),
		Fields: redactFields(ev.Fields),
	})
	if err != nil {
		return
	}
	o.append(id, line)
}

// streamFor resolves which trace file an event belongs to.
func (o *TimelineObserver) streamFor(ev metrics.MetricsEvent) string {
	if id := ev.Tags["stream_id"]; id != "" {
		return id
	}
	return o.sessionID
}

func (o *TimelineObserver) append(id string, line []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.openLocked(id)
	if f == nil {
		return
	}
	_, _ = f.Write(append(line, '\n'))
}

func (o *TimelineObserver) openLocked(id string) *os.File {
	safe := sanitizeID(id)
	if safe == "" {
		return nil
	}
	if f, ok := o.files[safe]; ok {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, safe+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// Remember the failure so each event does not retry the open.
		o.files[safe] = nil
		return nil
	}
	o.files[safe] = f
	return f
}

func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for _, f := range o.files {
		if f == nil {
			continue
		}
		errs = append(errs, f.Close())
	}
	o.files = make(map[string]*os.File)
	return errors.Join(errs...)
}

// sanitizeID keeps trace filenames shell- and filesystem-safe.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

// redactFields runs PII redaction over string field values before they are
// persisted. Non-string values pass through.
func redactFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
		} else {
			out[k] = v
		}
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
