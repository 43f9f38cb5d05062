// Package phase drives the staged arc of a training call: opening,
// discovery, qualification, objection, closing. Transitions are
// one-directional and logged; the manager also owns the per-call
// ConversationContext.
package phase

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/logging"
	"github.com/parryvoice/parry/pkg/metrics"
)

type Phase int

const (
	Opening Phase = iota + 1
	Discovery
	Qualification
	Objection
	Closing
)

func (p Phase) String() string {
	switch p {
	case Opening:
		return "opening"
	case Discovery:
		return "discovery"
	case Qualification:
		return "qualification"
	case Objection:
		return "objection"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Trigger records what caused a transition.
type Trigger string

const (
	TriggerAutomatic   Trigger = "automatic"
	TriggerUserInput   Trigger = "user_input"
	TriggerTimeElapsed Trigger = "time_elapsed"
)

// Transition is one logged phase change.
type Transition struct {
	From    Phase
	To      Phase
	At      time.Time
	Trigger Trigger
}

// Fact keys the phase predicates look at.
const (
	FactCallerName = "caller_name"
	FactCompany    = "company"
	FactNeed       = "need"
	FactBudget     = "budget"
	FactObjection  = "objection"
)

type phaseSpec struct {
	budget   time.Duration // soft time budget before a timed advance
	required []string      // facts that trigger an early automatic advance
	prompt   string
}

var specs = map[Phase]phaseSpec{
	Opening: {
		budget:   45 * time.Second,
		required: []string{FactCallerName},
		prompt:   "You just picked up a cold call. You are mildly wary and busy. Make them earn the conversation.",
	},
	Discovery: {
		budget:   2 * time.Minute,
		required: []string{FactNeed},
		prompt:   "They are probing for your situation. Share surface details only if asked well; volunteer nothing.",
	},
	Qualification: {
		budget:   2 * time.Minute,
		required: []string{FactBudget},
		prompt:   "Money and fit are on the table now. Stay noncommittal about budget unless trust is earned.",
	},
	Objection: {
		budget:   90 * time.Second,
		required: []string{FactObjection},
		prompt:   "Push back with your real concerns. Do not fold on the first rebuttal.",
	},
	Closing: {
		budget: 90 * time.Second,
		prompt: "Wind the call down. Commit only if the whole call earned it; otherwise leave it open or decline.",
	},
}

// Manager owns the current phase and its context. Mutated only from the
// turn-processing flow.
type Manager struct {
	log   *slog.Logger
	obs   metrics.Observer
	clock func() time.Time

	mu        sync.Mutex
	current   Phase
	enteredAt time.Time
	ctx       *ConversationContext
	history   []Transition
}

func NewManager(logger *slog.Logger, obs metrics.Observer) *Manager {
	return NewManagerWithClock(logger, obs, time.Now)
}

func NewManagerWithClock(logger *slog.Logger, obs metrics.Observer, clock func() time.Time) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Manager{
		log:       logging.NewComponentLogger(logger, "phase_manager"),
		obs:       obs,
		clock:     clock,
		current:   Opening,
		enteredAt: clock(),
		ctx:       NewConversationContext(),
	}
}

func (m *Manager) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) Context() *ConversationContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// PromptContext returns the phase-specific persona framing for the response
// pipeline.
func (m *Manager) PromptContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return specs[m.current].prompt
}

// Advance moves to a later phase. Backward moves and same-phase moves are
// no-ops; the arc only runs forward.
func (m *Manager) Advance(to Phase, trigger Trigger) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceLocked(to, trigger)
}

func (m *Manager) advanceLocked(to Phase, trigger Trigger) bool {
	if to <= m.current || to > Closing {
		return false
	}
	from := m.current
	now := m.clock()
	m.current = to
	m.enteredAt = now
	m.history = append(m.history, Transition{From: from, To: to, At: now, Trigger: trigger})

	m.log.Info("phase_transition",
		"from", from.String(),
		"to", to.String(),
		"trigger", string(trigger),
	)
	m.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventPhaseTransition,
		Time: now,
		Tags: map[string]string{"from": from.String(), "to": to.String(), "trigger": string(trigger)},
	})
	return true
}

// Evaluate applies the automatic-transition predicate: required facts
// present advances immediately; a blown time budget advances on its own.
// Called once per turn by the orchestrator.
func (m *Manager) Evaluate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current >= Closing {
		return false
	}
	spec := specs[m.current]
	if len(spec.required) > 0 && m.hasAllLocked(spec.required) {
		return m.advanceLocked(m.current+1, TriggerAutomatic)
	}
	if spec.budget > 0 && m.clock().Sub(m.enteredAt) >= spec.budget {
		return m.advanceLocked(m.current+1, TriggerTimeElapsed)
	}
	return false
}

func (m *Manager) hasAllLocked(keys []string) bool {
	for _, k := range keys {
		if !m.ctx.HasFact(k) {
			return false
		}
	}
	return true
}

// History returns a copy of the transition log.
func (m *Manager) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Elapsed reports time in the current phase.
func (m *Manager) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock().Sub(m.enteredAt)
}

// Reset restores the initial phase and a fresh context for a new call.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Opening
	m.enteredAt = m.clock()
	m.ctx = NewConversationContext()
	m.history = nil
}
