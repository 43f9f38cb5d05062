package metrics

import "sync"

// MemoryObserver keeps every event in a slice. Test helper; not for the
// live path.
type MemoryObserver struct {
	mu     sync.Mutex
	Events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.Events = append(m.Events, ev)
	m.mu.Unlock()
}

// Named returns the recorded events with the given name, in order.
func (m *MemoryObserver) Named(name string) []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MetricsEvent
	for _, ev := range m.Events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Len reports how many events were recorded.
func (m *MemoryObserver) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// Reset discards everything recorded so far.
func (m *MemoryObserver) Reset() {
	m.mu.Lock()
	m.Events = nil
	m.mu.Unlock()
}
