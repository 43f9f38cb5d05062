// Package response implements the multi-candidate reply pipeline: three
// biased pitchers generate concurrently, a deterministic critic scores each
// candidate, a selector picks one, and a bounded feedback log biases future
// prompts. The persona's rolling emotional state lives here too.
package response

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/parryvoice/parry/pkg/llm"
	"github.com/parryvoice/parry/pkg/phase"
	"github.com/parryvoice/parry/pkg/strategy"
)

// Voice names one of the three fixed behavioral biases.
type Voice string

const (
	VoiceTerse   Voice = "terse"
	VoiceEmotive Voice = "emotive"
	VoiceGuarded Voice = "guarded"
)

// Voices in generation order. Order is stable so ties in selection are
// deterministic.
var Voices = []Voice{VoiceTerse, VoiceEmotive, VoiceGuarded}

var voiceBias = map[Voice]string{
	VoiceTerse:   "Bias: answer in as few words as a real person would. Surface-level, no elaboration, sentence fragments are fine.",
	VoiceEmotive: "Bias: lead with how this call makes you feel right now. Let the emotion color the words before any facts do.",
	VoiceGuarded: "Bias: protect yourself. Deflect, set boundaries, answer the question you wish they'd asked.",
}

// TurnContext is the full per-turn input, assembled once by the
// orchestrator and threaded through every stage.
type TurnContext struct {
	Transcript    string
	History       []map[string]any
	Phase         phase.Phase
	PhasePrompt   string
	Strategy      strategy.Result
	ExchangeCount int
	Irritation    float64
	Trust         int
}

// Candidate is one generated reply with its parsed metadata.
type Candidate struct {
	Voice       Voice
	Text        string // spoken text, metadata stripped
	Meta        Metadata
	ParseStatus ParseStatus
	Err         error
}

// Pitchers fans one turn context out to the three voices concurrently.
type Pitchers struct {
	adapter  llm.LLMAdapter
	feedback *FeedbackLog
	persona  string
	timeout  time.Duration
}

func NewPitchers(adapter llm.LLMAdapter, feedback *FeedbackLog, persona string, timeout time.Duration) *Pitchers {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	if feedback == nil {
		feedback = NewFeedbackLog()
	}
	return &Pitchers{adapter: adapter, feedback: feedback, persona: persona, timeout: timeout}
}

func (p *Pitchers) Feedback() *FeedbackLog { return p.feedback }

// Generate produces all three candidates, awaited together. A failed voice
// yields a Candidate with Err set; callers filter.
func (p *Pitchers) Generate(ctx context.Context, tc TurnContext) []Candidate {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out := make([]Candidate, len(Voices))
	var wg sync.WaitGroup
	for i, voice := range Voices {
		wg.Add(1)
		go func(i int, voice Voice) {
			defer wg.Done()
			out[i] = p.generateOne(ctx, voice, tc)
		}(i, voice)
	}
	wg.Wait()
	return out
}

func (p *Pitchers) generateOne(ctx context.Context, voice Voice, tc TurnContext) Candidate {
	input := llm.NewContext(p.systemPrompt(voice, tc), tc.History, tc.Transcript)
	input.Temperature = 0.9
	input.MaxTokens = 200

	resp, err := p.adapter.Generate(ctx, input)
	if err != nil {
		return Candidate{Voice: voice, Err: err}
	}
	spoken, md, status := ParseMetadata(resp.Text)
	return Candidate{Voice: voice, Text: spoken, Meta: md, ParseStatus: status}
}

func (p *Pitchers) systemPrompt(voice Voice, tc TurnContext) string {
	var b strings.Builder
	b.WriteString(p.persona)
	b.WriteString("\n\n")
	b.WriteString(tc.PhasePrompt)
	b.WriteString("\n")
	b.WriteString(tc.Strategy.PromptConstraints())
	fmt.Fprintf(&b, "This is exchange %d. Your irritation is %.1f/10, your trust in the caller is %d/100.\n",
		tc.ExchangeCount, tc.Irritation, tc.Trust)
	b.WriteString(voiceBias[voice])
	if hint := p.feedback.PromptHint(voice, 10); hint != "" {
		b.WriteString("\n")
		b.WriteString(hint)
	}
	b.WriteString("\nAfter your reply, append <meta>{\"emotion\":\"...\",\"followup\":\"...\",\"end_call\":false,\"objection\":\"...\",\"state_feedback\":\"...\"}</meta>. Set end_call to true only if you are hanging up right now.")
	return b.String()
}
