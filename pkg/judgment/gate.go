// Package judgment implements the turn-taking decision engine. For every
// finalized user utterance it emits exactly one decision: speak, wait,
// suppress, or hold. The decision order is a fixed priority list and the
// relative ordering is intentional; the thinking-pattern fallback overlaps
// the cognitive thinking signal on purpose.
package judgment

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/analysis"
	"github.com/parryvoice/parry/pkg/logging"
	"github.com/parryvoice/parry/pkg/metrics"
)

type Action string

const (
	ActionSpeak    Action = "speak"
	ActionWait     Action = "wait"
	ActionSuppress Action = "suppress"
	ActionHold     Action = "hold"
)

// HoldUntil names what resolves a hold.
type HoldUntil string

const (
	HoldUserContinues   HoldUntil = "user_continues"
	HoldStrategyTimeout HoldUntil = "strategy_timeout"
)

const (
	echoSuppressWindow = 500 * time.Millisecond
	waitDelayScale     = 2 * time.Second // sentence-incomplete delay at confidence 1.0
	thinkingWaitDelay  = 1200 * time.Millisecond
	holdUserTimeout    = 700 * time.Millisecond
	holdStrategyWait   = 3 * time.Second
	suppressionLogCap  = 100
)

// Input is the full witness set for one utterance. Assembled by the
// orchestrator, consumed once.
type Input struct {
	Transcript       string
	Candidate        string
	CandidateReady   bool
	Moment           Moment
	SinceAgentSpeech time.Duration
	SinceUserSpeech  time.Duration
	Sentence         analysis.SentenceVerdict
	Cognitive        analysis.CognitiveVerdict
}

// Decision is the gate's verdict. For wait, Delay says how long; for hold,
// HoldTimeout bounds the wait so the conversation cannot deadlock.
type Decision struct {
	Action      Action
	Reason      string
	Confidence  float64
	Delay       time.Duration
	HoldUntil   HoldUntil
	HoldTimeout time.Duration
}

// Suppression is one audit entry for a candidate that never reached the
// speaker.
type Suppression struct {
	At         time.Time
	Transcript string
	Candidate  string
	Reason     string
}

// Gate holds no per-turn state; the suppression log is the only thing that
// survives between utterances, bounded for audit use.
type Gate struct {
	log *slog.Logger
	obs metrics.Observer

	mu           sync.Mutex
	suppressions []Suppression
}

func NewGate(logger *slog.Logger, obs metrics.Observer) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Gate{
		log: logging.NewComponentLogger(logger, "judgment_gate"),
		obs: obs,
	}
}

// Decide applies the priority list. First match wins.
func (g *Gate) Decide(in Input) Decision {
	d := g.decide(in)
	g.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventJudgment,
		Time: time.Now(),
		Tags: map[string]string{"action": string(d.Action), "reason": d.Reason},
		Fields: map[string]any{
			"confidence":        d.Confidence,
			"delay_ms":          d.Delay.Milliseconds(),
			"since_agent_ms":    in.SinceAgentSpeech.Milliseconds(),
			"moment_type":       string(in.Moment.Type),
			"moment_risk":       string(in.Moment.Risk),
			"sentence_complete": in.Sentence.Complete,
		},
	})
	if d.Action == ActionSuppress {
		g.recordSuppression(in, d.Reason)
	}
	return d
}

func (g *Gate) decide(in Input) Decision {
	// 1. Echo timing: our own voice just stopped, anything arriving this
	// fast is the microphone hearing us.
	if in.SinceAgentSpeech >= 0 && in.SinceAgentSpeech < echoSuppressWindow {
		return Decision{Action: ActionSuppress, Reason: "agent_just_spoke", Confidence: 0.99}
	}

	// 2. Grammar says they aren't done.
	if !in.Sentence.Complete {
		return Decision{
			Action:     ActionWait,
			Reason:     "sentence_incomplete:" + in.Sentence.Reason,
			Confidence: in.Sentence.Confidence,
			Delay:      time.Duration(float64(waitDelayScale) * in.Sentence.Confidence),
		}
	}

	// 3. Pragmatics say the thought hasn't landed.
	if !in.Cognitive.Complete {
		sig := in.Cognitive.Signals
		switch {
		case sig.Hedging || sig.Ambiguous:
			return Decision{
				Action:      ActionHold,
				Reason:      "cognitive_incomplete:" + in.Cognitive.Reason,
				Confidence:  in.Cognitive.Confidence,
				HoldUntil:   HoldUserContinues,
				HoldTimeout: holdUserTimeout,
			}
		case sig.StrategicPause:
			// Silence here has training value; do not rush it.
			return Decision{
				Action:      ActionHold,
				Reason:      "strategic_pause",
				Confidence:  in.Cognitive.Confidence,
				HoldUntil:   HoldStrategyTimeout,
				HoldTimeout: holdStrategyWait,
			}
		default:
			return Decision{
				Action:     ActionWait,
				Reason:     "cognitive_incomplete:" + in.Cognitive.Reason,
				Confidence: in.Cognitive.Confidence,
				Delay:      thinkingWaitDelay,
			}
		}
	}

	// 4. Raw-text fallback for thinking phrasing the analyzers missed.
	if analysis.ThinkingPattern.MatchString(in.Transcript) {
		return Decision{Action: ActionWait, Reason: "thinking_pattern", Confidence: 0.6, Delay: thinkingWaitDelay}
	}

	// 5. Moment-based speak. Timing comes from natural generation latency,
	// never from injected delay.
	if in.Moment.Type == MomentReflex && in.Moment.Risk == RiskLow {
		return Decision{Action: ActionSpeak, Reason: "reflex_low_risk", Confidence: 0.9}
	}
	if in.Moment.Type == MomentJudgment {
		return Decision{Action: ActionSpeak, Reason: "judgment_moment", Confidence: 0.8}
	}
	if in.Moment.Type == MomentStrategic && in.CandidateReady {
		return Decision{Action: ActionSpeak, Reason: "strategic_ready", Confidence: 0.8}
	}

	// 6. Default.
	return Decision{Action: ActionSpeak, Reason: "default", Confidence: 0.5}
}

func (g *Gate) recordSuppression(in Input, reason string) {
	g.mu.Lock()
	g.suppressions = append(g.suppressions, Suppression{
		At:         time.Now(),
		Transcript: in.Transcript,
		Candidate:  in.Candidate,
		Reason:     reason,
	})
	if len(g.suppressions) > suppressionLogCap {
		g.suppressions = g.suppressions[len(g.suppressions)-suppressionLogCap:]
	}
	g.mu.Unlock()

	g.log.Debug("candidate_suppressed", "reason", reason, "transcript", in.Transcript, "candidate", in.Candidate)
	g.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventSuppression,
		Time: time.Now(),
		Tags: map[string]string{"reason": reason},
	})
}

// Suppressions returns a copy of the audit log, newest last.
func (g *Gate) Suppressions() []Suppression {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Suppression, len(g.suppressions))
	copy(out, g.suppressions)
	return out
}
