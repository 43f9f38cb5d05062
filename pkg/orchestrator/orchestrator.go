// Package orchestrator is the glue for one call: it drains a single inbound
// event channel, runs the completeness analyzers, consults the judgment
// gate, drives the response pipeline, and hands spoken text to the audio
// path. Teardown is closing the event channel.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/parryvoice/parry/pkg/analysis"
	"github.com/parryvoice/parry/pkg/judgment"
	"github.com/parryvoice/parry/pkg/logging"
	"github.com/parryvoice/parry/pkg/metrics"
	"github.com/parryvoice/parry/pkg/phase"
	"github.com/parryvoice/parry/pkg/response"
	"github.com/parryvoice/parry/pkg/strategy"
)

// EventKind discriminates inbound session events.
type EventKind string

const (
	EventTranscript     EventKind = "transcript"
	EventSpeechStart    EventKind = "speech_start"
	EventAgentSpeechEnd EventKind = "agent_speech_end"
	EventCallEnd        EventKind = "call_end"
)

// Event is one inbound item on the session channel.
type Event struct {
	Kind  EventKind
	Role  string // "user" or "agent"
	Text  string
	Final bool
	At    time.Time
}

// AudioControl is the slice of the audio session the orchestrator needs.
type AudioControl interface {
	Interrupt()
	IsLikelyEcho(text string, at time.Time) bool
}

// Speaker receives the final spoken text. Wired to TTS in production, a
// capture fake in tests. Cancel drops whatever synthesis is still
// streaming so an interrupted reply cannot trickle out after a barge-in.
type Speaker interface {
	Say(ctx context.Context, text string) error
	Cancel()
}

// Responder is the response pipeline contract.
type Responder interface {
	Respond(ctx context.Context, tc response.TurnContext) (response.Selection, error)
	State() *response.EmotionalState
}

// Config wires an Orchestrator.
type Config struct {
	Logger    *slog.Logger
	Observer  metrics.Observer
	Audio     AudioControl
	Speaker   Speaker
	Gate      *judgment.Gate
	Phases    *phase.Manager
	Strategy  *strategy.Layer
	Responder Responder
	Extractor phase.Extractor
	Clock     func() time.Time
	QueueSize int
	// HangupLinger is how long a persona-initiated hangup waits after the
	// farewell is handed to the speaker, so the audio can play out.
	HangupLinger time.Duration
}

type utterance struct {
	seq  uint64
	text string
	at   time.Time
}

type genResult struct {
	seq         uint64
	sel         response.Selection
	err         error
	speculative bool
}

// Orchestrator owns the turn-processing flow for one call. All state below
// is mutated only from the Run loop.
type Orchestrator struct {
	log       *slog.Logger
	obs       metrics.Observer
	audio     AudioControl
	speaker   Speaker
	gate      *judgment.Gate
	phases    *phase.Manager
	strat     *strategy.Layer
	responder Responder
	extractor phase.Extractor
	clock     func() time.Time
	linger    time.Duration

	events  chan Event
	results chan genResult
	timers  chan uint64

	seq            uint64
	inFlight       bool
	currentText    string
	queued         *utterance
	signals        signalTracker
	lastAgentSpoke time.Time
	lastUserSpoke  time.Time
	exchanges      int
	openerDone     bool

	// Speculative reply prepared during a hold, consumed by the hold
	// timeout or offered to the gate on the next utterance.
	specSel        *response.Selection
	specSeq        uint64
	specSuperseded uint64
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Extractor == nil {
		cfg.Extractor = phase.HeuristicExtractor{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HangupLinger <= 0 {
		cfg.HangupLinger = 2 * time.Second
	}
	return &Orchestrator{
		log:       logging.NewComponentLogger(cfg.Logger, "orchestrator"),
		obs:       cfg.Observer,
		audio:     cfg.Audio,
		speaker:   cfg.Speaker,
		gate:      cfg.Gate,
		phases:    cfg.Phases,
		strat:     cfg.Strategy,
		responder: cfg.Responder,
		extractor: cfg.Extractor,
		clock:     cfg.Clock,
		linger:    cfg.HangupLinger,
		events:    make(chan Event, cfg.QueueSize),
		results:   make(chan genResult, 4),
		timers:    make(chan uint64, 4),
	}
}

// Events is the inbound channel. Closing it ends the Run loop.
func (o *Orchestrator) Events() chan<- Event { return o.events }

// Run drains events until the channel closes or the context ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.events:
			if !ok {
				return nil
			}
			if done := o.handleEvent(ctx, ev); done {
				return nil
			}
		case res := <-o.results:
			o.handleResult(ctx, res)
		case seq := <-o.timers:
			o.handleTimer(ctx, seq)
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev Event) bool {
	if ev.At.IsZero() {
		ev.At = o.clock()
	}
	switch ev.Kind {
	case EventCallEnd:
		return true
	case EventSpeechStart:
		if ev.Role == "user" {
			// Barge-in: user talking over us preempts playback now, and
			// the synthesizer is flushed so the interrupted reply does not
			// keep arriving afterwards.
			o.audio.Interrupt()
			o.speaker.Cancel()
			o.lastUserSpoke = ev.At
		}
	case EventAgentSpeechEnd:
		o.lastAgentSpoke = ev.At
	case EventTranscript:
		if ev.Role != "user" || !ev.Final {
			return false
		}
		o.onUserUtterance(ctx, ev)
	}
	return false
}

func (o *Orchestrator) onUserUtterance(ctx context.Context, ev Event) {
	if o.audio.IsLikelyEcho(ev.Text, ev.At) {
		o.log.Debug("echo_discarded", "text", ev.Text)
		return
	}
	o.seq++
	o.lastUserSpoke = ev.At
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventTranscriptFinal,
		Time:   ev.At,
		Fields: map[string]any{"seq": o.seq, "chars": len(ev.Text)},
	})

	u := utterance{seq: o.seq, text: ev.Text, at: ev.At}
	if o.inFlight {
		// Queue-latest: only the newest pending utterance survives.
		o.queued = &u
		return
	}
	o.startTurn(ctx, u)
}

// startTurn runs everything up to the gate decision and acts on it.
func (o *Orchestrator) startTurn(ctx context.Context, u utterance) {
	o.exchanges++
	o.currentText = u.text
	o.phases.Context().Use(phase.CounterExchanges)

	tone := response.DetectTone(u.text)
	o.signals.observe(u.text, tone)
	o.extractor.Extract(u.text, o.phases.Context())
	o.phases.Evaluate()

	// Garbled input never reaches the model; ask again instead.
	if q := analysis.CheckTranscriptQuality(u.text); q.LikelyGarbled {
		o.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventGarbled,
			Time: o.clock(),
			Tags: map[string]string{"reason": q.Reason},
		})
		o.say(ctx, response.ClarificationLine)
		return
	}

	// First-utterance shortcut: canned zero-latency reply for the small
	// set of recognizable opening shapes.
	if !o.openerDone && o.exchanges == 1 {
		o.openerDone = true
		if m, ok := response.MatchOpener(u.text); ok {
			o.say(ctx, m.Reply)
			return
		}
	}

	in := judgment.Input{
		Transcript:       u.text,
		Candidate:        o.specCandidateText(),
		CandidateReady:   o.specSel != nil,
		Moment:           judgment.ClassifyMoment(u.text),
		SinceAgentSpeech: o.sinceAgentSpoke(u.at),
		SinceUserSpeech:  0,
		Sentence:         analysis.AnalyzeSentence(u.text),
		Cognitive:        analysis.AnalyzeCognitive(u.text),
	}
	d := o.gate.Decide(in)
	switch d.Action {
	case judgment.ActionSuppress:
		return
	case judgment.ActionWait:
		o.armTimer(u.seq, d.Delay)
	case judgment.ActionHold:
		// Re-evaluated when the user continues (a newer utterance takes
		// over) or when the bounded timeout fires and we speak. The reply
		// is prepared during the silence so either path has it ready.
		o.armTimer(u.seq, d.HoldTimeout)
		o.beginSpeculative(ctx, u)
	case judgment.ActionSpeak:
		o.beginGeneration(ctx, u)
	}
}

func (o *Orchestrator) armTimer(seq uint64, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	time.AfterFunc(d, func() {
		select {
		case o.timers <- seq:
		default:
		}
	})
}

func (o *Orchestrator) handleTimer(ctx context.Context, seq uint64) {
	// A newer utterance superseded this wait/hold; nothing to resume.
	// The timer only survives when the user stayed quiet, so the text the
	// gate saw is still the current one.
	if seq != o.seq || o.inFlight {
		return
	}
	// A hold that prepared its reply speaks it with zero extra latency.
	if o.specSel != nil && o.specSeq == seq {
		sel := *o.specSel
		o.specSel = nil
		o.speakSelection(ctx, sel)
		return
	}
	o.beginGeneration(ctx, utterance{seq: seq, text: o.currentText, at: o.clock()})
}

func (o *Orchestrator) turnContext(u utterance) response.TurnContext {
	return response.TurnContext{
		Transcript:    u.text,
		Phase:         o.phases.Current(),
		PhasePrompt:   o.phases.PromptContext(),
		Strategy:      o.strat.Compute(o.phases.Current(), o.signals.snapshot(), strategy.DetectIntent(u.text), o.responder.State().Trust()),
		ExchangeCount: o.exchanges,
		Irritation:    o.responder.State().Irritation(),
		Trust:         o.responder.State().Trust(),
	}
}

func (o *Orchestrator) beginGeneration(ctx context.Context, u utterance) {
	o.inFlight = true
	// A committed generation supersedes any speculative one still out for
	// this utterance; its late result must not linger as a ready candidate.
	o.specSel = nil
	o.specSuperseded = u.seq
	tc := o.turnContext(u)
	go func() {
		sel, err := o.responder.Respond(ctx, tc)
		o.results <- genResult{seq: u.seq, sel: sel, err: err}
	}()
}

// beginSpeculative prepares a reply during a hold without committing to
// speak it. The result is stashed, never spoken directly from here.
func (o *Orchestrator) beginSpeculative(ctx context.Context, u utterance) {
	tc := o.turnContext(u)
	go func() {
		sel, err := o.responder.Respond(ctx, tc)
		o.results <- genResult{seq: u.seq, sel: sel, err: err, speculative: true}
	}()
}

func (o *Orchestrator) specCandidateText() string {
	if o.specSel == nil {
		return ""
	}
	return o.specSel.Winner.Text
}

func (o *Orchestrator) handleResult(ctx context.Context, res genResult) {
	if res.speculative {
		if res.err == nil && res.seq == o.seq && res.seq != o.specSuperseded && !o.inFlight {
			sel := res.sel
			o.specSel = &sel
			o.specSeq = res.seq
		}
		return
	}
	o.inFlight = false
	if res.seq != o.seq {
		// The user moved on while we were generating. Silence, not speech.
		o.obs.RecordEvent(metrics.MetricsEvent{
			Name:   metrics.EventStaleDiscard,
			Time:   o.clock(),
			Fields: map[string]any{"stale_seq": res.seq, "current_seq": o.seq},
		})
		o.drainQueued(ctx)
		return
	}
	if res.err != nil {
		o.log.Warn("generation_failed", "error", res.err.Error())
		o.say(ctx, response.FallbackLine)
		o.drainQueued(ctx)
		return
	}
	o.speakSelection(ctx, res.sel)
	o.drainQueued(ctx)
}

// speakSelection voices the winner and honors a persona-initiated hangup.
func (o *Orchestrator) speakSelection(ctx context.Context, sel response.Selection) {
	o.say(ctx, sel.Winner.Text)
	if sel.Winner.Meta.EndCall {
		o.scheduleHangup()
	}
}

// scheduleHangup ends the call once the farewell has had time to play out.
func (o *Orchestrator) scheduleHangup() {
	o.log.Info("persona_hangup")
	o.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventPersonaHangup, Time: o.clock()})
	time.AfterFunc(o.linger, func() {
		select {
		case o.events <- Event{Kind: EventCallEnd, At: o.clock()}:
		default:
		}
	})
}

func (o *Orchestrator) drainQueued(ctx context.Context) {
	if o.queued == nil || o.inFlight {
		return
	}
	u := *o.queued
	o.queued = nil
	if u.seq == o.seq {
		o.startTurn(ctx, u)
	}
}

func (o *Orchestrator) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if err := o.speaker.Say(ctx, text); err != nil {
		o.log.Warn("speak_failed", "error", err.Error())
		return
	}
	o.lastAgentSpoke = o.clock()
}

func (o *Orchestrator) sinceAgentSpoke(at time.Time) time.Duration {
	if o.lastAgentSpoke.IsZero() {
		return -1
	}
	return at.Sub(o.lastAgentSpoke)
}
