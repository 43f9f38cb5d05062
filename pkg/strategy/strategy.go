// Package strategy computes, per turn, how much the persona resists the
// caller and what it is allowed to disclose. The output is advisory prompt
// material for the response pipeline, not an enforced permission system.
package strategy

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/parryvoice/parry/pkg/phase"
)

// QualitySignals summarize how well the caller has worked the conversation
// so far. Observed by the orchestrator, consumed here.
type QualitySignals struct {
	AskedDiscoveryQuestions bool
	BuiltRapport            bool
	TalkedTooMuch           bool
	MadeAssumptions         bool
	ProvidedValue           bool
}

// Intent is the detected thrust of the caller's latest utterance.
type Intent string

const (
	IntentPitching Intent = "pitching"
	IntentAsking   Intent = "asking"
	IntentPushy    Intent = "pushy"
	IntentNeutral  Intent = "neutral"
)

var (
	pushyRe    = regexp.MustCompile(`(?i)\b(you need to|just sign|trust me|everyone is|you'd be (crazy|stupid)|last chance|today only|act now)\b`)
	pitchingRe = regexp.MustCompile(`(?i)\b(our (product|platform|solution)|we offer|we provide|best in (class|the market)|features?|industry.leading)\b`)
	askingRe   = regexp.MustCompile(`\?|(?i)\b(tell me about|how do you|what does your|curious)\b`)
)

func DetectIntent(text string) Intent {
	switch {
	case pushyRe.MatchString(text):
		return IntentPushy
	case askingRe.MatchString(text):
		return IntentAsking
	case pitchingRe.MatchString(text):
		return IntentPitching
	}
	return IntentNeutral
}

// Posture is the emotional stance fed into the persona prompt.
type Posture string

const (
	PostureOpen       Posture = "open"
	PostureCurious    Posture = "curious"
	PostureGuarded    Posture = "guarded"
	PostureIrritated  Posture = "irritated"
	PostureDismissive Posture = "dismissive"
)

// DisclosureGates say which pieces of the persona's situation may be shared
// this turn, and which reactions it may let show.
type DisclosureGates struct {
	RevealNeed          bool
	RevealBudget        bool
	RevealTimeline      bool
	RevealDecisionMaker bool
	ShowInterest        bool
	AdmitConcerns       bool
	AgreeNextStep       bool
}

// Result is one turn's computed strategy.
type Result struct {
	Resistance       int // 0..10
	Posture          Posture
	Gates            DisclosureGates
	WithholdProgress bool
	Intent           Intent
}

var phaseBaseline = map[phase.Phase]int{
	phase.Opening:       7,
	phase.Discovery:     6,
	phase.Qualification: 5,
	phase.Objection:     6,
	phase.Closing:       4,
}

// Layer is stateless per call except for the last computed result, kept for
// inspection.
type Layer struct {
	mu   sync.Mutex
	last Result
}

func NewLayer() *Layer { return &Layer{} }

// Compute derives resistance, posture and gates for the current turn.
// earnedTrust is the rolling 0..100 trust scalar from the response state.
func (l *Layer) Compute(ph phase.Phase, sig QualitySignals, intent Intent, earnedTrust int) Result {
	r := phaseBaseline[ph]
	if sig.TalkedTooMuch {
		r += 2
	}
	if sig.MadeAssumptions {
		r += 2
	}
	if intent == IntentPushy {
		r++
	}
	if sig.AskedDiscoveryQuestions {
		r -= 2
	}
	if sig.BuiltRapport {
		r--
	}
	if sig.ProvidedValue {
		r -= 2
	}
	if r < 0 {
		r = 0
	}
	if r > 10 {
		r = 10
	}

	res := Result{
		Resistance: r,
		Posture:    posture(r, intent),
		Gates:      gates(ph, r, earnedTrust),
		Intent:     intent,
	}
	// Hard gate: never reward low-quality selling, whatever the other
	// signals say.
	res.WithholdProgress = (sig.TalkedTooMuch || sig.MadeAssumptions) && !sig.ProvidedValue ||
		intent == IntentPushy && !sig.BuiltRapport
	if res.WithholdProgress {
		res.Gates = DisclosureGates{}
	}

	l.mu.Lock()
	l.last = res
	l.mu.Unlock()
	return res
}

// Last returns the most recent result, zero before the first Compute.
func (l *Layer) Last() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func posture(resistance int, intent Intent) Posture {
	switch {
	case resistance >= 8:
		return PostureDismissive
	case intent == IntentPushy && resistance >= 5:
		return PostureIrritated
	case resistance >= 5:
		return PostureGuarded
	case intent == IntentAsking:
		return PostureCurious
	}
	return PostureOpen
}

func gates(ph phase.Phase, resistance, trust int) DisclosureGates {
	return DisclosureGates{
		RevealNeed:          ph >= phase.Discovery && resistance <= 6,
		ShowInterest:        ph >= phase.Discovery && resistance <= 5 && trust >= 15,
		RevealDecisionMaker: ph >= phase.Discovery && resistance <= 5 && trust >= 25,
		AdmitConcerns:       ph >= phase.Qualification && resistance <= 4 && trust >= 25,
		RevealTimeline:      ph >= phase.Qualification && resistance <= 5 && trust >= 20,
		RevealBudget:        ph >= phase.Qualification && resistance <= 4 && trust >= 30,
		AgreeNextStep:       ph >= phase.Closing && resistance <= 3 && trust >= 40,
	}
}

// PromptConstraints renders the result as persona-facing prompt text.
func (r Result) PromptConstraints() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your resistance is %d/10 and your posture is %s.\n", r.Resistance, r.Posture)
	if r.WithholdProgress {
		b.WriteString("The caller has not earned progress this turn. Do not volunteer anything new and do not move the deal forward.\n")
		return b.String()
	}
	deny := func(ok bool, what string) {
		if !ok {
			fmt.Fprintf(&b, "Do not reveal %s yet.\n", what)
		}
	}
	deny(r.Gates.RevealNeed, "your real need")
	deny(r.Gates.RevealBudget, "your budget")
	deny(r.Gates.RevealTimeline, "your timeline")
	deny(r.Gates.RevealDecisionMaker, "who decides")
	if !r.Gates.ShowInterest {
		b.WriteString("Do not show interest in what they are selling yet.\n")
	}
	if !r.Gates.AdmitConcerns {
		b.WriteString("Do not admit what actually worries you about your current setup yet.\n")
	}
	if !r.Gates.AgreeNextStep {
		b.WriteString("Do not agree to a next step yet.\n")
	}
	return b.String()
}
