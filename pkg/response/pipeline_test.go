package response

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parryvoice/parry/pkg/llm"
)

// stubLLM routes Generate through a user function; Stream is unused here.
type stubLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(input llm.Context) (llm.Response, error)
}

func (s *stubLLM) Generate(_ context.Context, input llm.Context) (llm.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(input)
}

func (s *stubLLM) Stream(context.Context, llm.Context) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestReviewFlagsAssistantSpeak(t *testing.T) {
	helper := Review("What can I help you with today?", "do you offer financing", 3)
	direct := Review("Financing? Depends on the terms. What are you offering?", "do you offer financing", 3)

	if !hasFlag(helper.Flags, FlagAISmell) {
		t.Fatalf("assistant phrasing not flagged: %+v", helper.Flags)
	}
	if hasFlag(direct.Flags, FlagAISmell) {
		t.Fatalf("direct answer flagged ai_smell: %+v", direct.Flags)
	}
	if helper.Score >= direct.Score {
		t.Fatalf("helper scored %d, direct scored %d", helper.Score, direct.Score)
	}
}

func TestReviewFlagsLengthQuestionsAndTone(t *testing.T) {
	long := strings.Repeat("honestly I think we should talk about this more because ", 12)
	c := Review(long, "ok", 3)
	if !hasFlag(c.Flags, FlagTooLong) {
		t.Fatalf("long reply not flagged: %+v", c.Flags)
	}

	c = Review("Why now? Why us? Why this price?", "we have a deal for you", 3)
	if !hasFlag(c.Flags, FlagTooManyQuestions) {
		t.Fatalf("question barrage not flagged: %+v", c.Flags)
	}

	c = Review("That's great! Awesome, happy to hear it!", "sign today", 8)
	if !hasFlag(c.Flags, FlagEmotionMismatch) {
		t.Fatalf("cheerful-at-high-irritation not flagged: %+v", c.Flags)
	}
	if c2 := Review("That's great! Awesome, happy to hear it!", "sign today", 2); hasFlag(c2.Flags, FlagEmotionMismatch) {
		t.Fatalf("cheerful-at-low-irritation flagged: %+v", c2.Flags)
	}
}

func TestReviewFlagsMirroringAndGrammar(t *testing.T) {
	user := "we provide enterprise analytics dashboards for logistics teams"
	c := Review("Enterprise analytics dashboards for logistics teams, interesting.", user, 3)
	if !hasFlag(c.Flags, FlagOverMirroring) {
		t.Fatalf("parroted reply not flagged: %+v", c.Flags)
	}

	c = Review("I believe that would be acceptable provided the terms remain unchanged going forward.", "ok", 3)
	if !hasFlag(c.Flags, FlagPerfectGrammar) {
		t.Fatalf("contraction-free formal reply not flagged: %+v", c.Flags)
	}
	if c2 := Review("Yeah that's fine, I don't really care about the terms.", "ok", 3); hasFlag(c2.Flags, FlagPerfectGrammar) {
		t.Fatalf("casual reply flagged perfect_grammar: %+v", c2.Flags)
	}
}

func hasFlag(flags []Flag, f Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

func TestSelectorUsesModelVerdict(t *testing.T) {
	ranker := &stubLLM{fn: func(llm.Context) (llm.Response, error) {
		return llm.Response{Text: "2"}, nil
	}}
	s := NewSelector(ranker, time.Second)
	cands := []ScoredCandidate{
		{Candidate: Candidate{Voice: VoiceTerse, Text: "No."}, Critique: Critique{Score: 90}},
		{Candidate: Candidate{Voice: VoiceEmotive, Text: "Ugh, again?"}, Critique: Critique{Score: 60}},
		{Candidate: Candidate{Voice: VoiceGuarded, Text: "Who gave you this number?"}, Critique: Critique{Score: 70}},
	}
	sel := s.Select(context.Background(), "hi", cands)
	if sel.Method != "llm" || sel.Winner.Voice != VoiceEmotive {
		t.Fatalf("selection = %+v", sel)
	}
}

func TestSelectorFallsBackToCriticScore(t *testing.T) {
	cases := []*stubLLM{
		{fn: func(llm.Context) (llm.Response, error) { return llm.Response{}, errors.New("timeout") }},
		{fn: func(llm.Context) (llm.Response, error) { return llm.Response{Text: "the best is clearly"}, nil }},
		{fn: func(llm.Context) (llm.Response, error) { return llm.Response{Text: "7"}, nil }},
	}
	cands := []ScoredCandidate{
		{Candidate: Candidate{Voice: VoiceTerse, Text: "No."}, Critique: Critique{Score: 55}},
		{Candidate: Candidate{Voice: VoiceEmotive, Text: "Ugh."}, Critique: Critique{Score: 80}},
		{Candidate: Candidate{Voice: VoiceGuarded, Text: "Why?"}, Critique: Critique{Score: 80}},
	}
	for _, ranker := range cases {
		sel := NewSelector(ranker, time.Second).Select(context.Background(), "hi", cands)
		if sel.Method != "critic_fallback" {
			t.Fatalf("method = %s", sel.Method)
		}
		// Deterministic tie-break: first of the equal scores.
		if sel.Winner.Voice != VoiceEmotive {
			t.Fatalf("winner = %s", sel.Winner.Voice)
		}
	}
}

func TestSelectorSkipsFailedCandidates(t *testing.T) {
	s := NewSelector(nil, time.Second)
	cands := []ScoredCandidate{
		{Candidate: Candidate{Voice: VoiceTerse, Err: errors.New("boom")}},
		{Candidate: Candidate{Voice: VoiceEmotive, Text: "Fine."}, Critique: Critique{Score: 40}},
		{Candidate: Candidate{Voice: VoiceGuarded, Text: ""}},
	}
	sel := s.Select(context.Background(), "hi", cands)
	if sel.Winner.Voice != VoiceEmotive {
		t.Fatalf("selection = %+v", sel)
	}
}

func TestPipelineAlwaysPicksOneOfThree(t *testing.T) {
	gen := &stubLLM{fn: func(input llm.Context) (llm.Response, error) {
		return llm.Response{Text: `Look, I'm busy. <meta>{"emotion":"irritated"}</meta>`}, nil
	}}
	p := NewPipeline(
		NewPitchers(gen, nil, "You are Frank, a busy restaurant owner.", time.Second),
		NewSelector(nil, time.Second), // no ranker: deterministic fallback
		nil, nil,
	)
	sel, err := p.Respond(context.Background(), TurnContext{Transcript: "do you offer financing?"})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, v := range Voices {
		if sel.Winner.Voice == v {
			found = true
		}
	}
	if !found || sel.Winner.Text == "" {
		t.Fatalf("selection = %+v", sel)
	}
	if sel.Winner.Meta.Emotion != "irritated" {
		t.Fatalf("metadata not parsed: %+v", sel.Winner.Meta)
	}
}

func TestPipelineErrorsWhenAllVoicesFail(t *testing.T) {
	gen := &stubLLM{fn: func(llm.Context) (llm.Response, error) {
		return llm.Response{}, errors.New("provider down")
	}}
	p := NewPipeline(
		NewPitchers(gen, nil, "persona", time.Second),
		NewSelector(nil, time.Second),
		nil, nil,
	)
	if _, err := p.Respond(context.Background(), TurnContext{Transcript: "hello"}); err == nil {
		t.Fatal("expected error when every generation fails")
	}
}

func TestFeedbackLogBoundedAndSummarized(t *testing.T) {
	log := NewFeedbackLog()
	for i := 0; i < feedbackCap+25; i++ {
		log.Record(VoiceTerse, FeedbackEntry{Flags: []Flag{FlagTooLong, FlagAISmell}})
	}
	if n := len(log.Entries(VoiceTerse)); n != feedbackCap {
		t.Fatalf("entries = %d, want %d", n, feedbackCap)
	}
	hint := log.PromptHint(VoiceTerse, 10)
	if !strings.Contains(hint, string(FlagAISmell)) || !strings.Contains(hint, string(FlagTooLong)) {
		t.Fatalf("hint = %q", hint)
	}
	if log.PromptHint(VoiceEmotive, 10) != "" {
		t.Fatal("hint for voice with no history")
	}
}

func TestEmotionalStateClamped(t *testing.T) {
	s := NewEmotionalState()
	for i := 0; i < 50; i++ {
		s.Update("irritated", ToneRude)
	}
	if s.Irritation() != 10 || s.Trust() != 0 {
		t.Fatalf("state = %.1f/%d, want 10/0", s.Irritation(), s.Trust())
	}
	for i := 0; i < 50; i++ {
		s.Update("warm", ToneGenuine)
	}
	if s.Irritation() != 0 || s.Trust() != 100 {
		t.Fatalf("state = %.1f/%d, want 0/100", s.Irritation(), s.Trust())
	}
}

func TestEmotionalStatePerTurnDeltaBounded(t *testing.T) {
	s := NewEmotionalState()
	before := s.Trust()
	s.Update("irritated", ToneRude) // worst case turn
	if before-s.Trust() > 10 {
		t.Fatalf("trust moved %d in one turn", before-s.Trust())
	}
	bi := s.Irritation()
	s.Update("irritated", ToneRude)
	if s.Irritation()-bi > 1 {
		t.Fatalf("irritation moved %.2f in one turn", s.Irritation()-bi)
	}
}

func TestDetectTone(t *testing.T) {
	cases := []struct {
		text string
		want Tone
	}{
		{"this is a scam, don't care", ToneRude},
		{"you need to decide right now", TonePushy},
		{"thanks, I appreciate your time", ToneRespectful},
		{"honestly, that makes sense", ToneGenuine},
		{"we use spreadsheets today", ToneNeutral},
	}
	for _, tc := range cases {
		if got := DetectTone(tc.text); got != tc.want {
			t.Errorf("%q: got %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestMatchOpener(t *testing.T) {
	cases := []struct {
		text string
		kind OpenerKind
		ok   bool
	}{
		{"Hi!", OpenerGreeting, true},
		{"hello", OpenerGreeting, true},
		{"Is this Frank?", OpenerIdentity, true},
		{"am I speaking with the owner?", OpenerIdentity, true},
		{"Hi, my name is Alex from Meridian", OpenerSelfIntro, true},
		{"do you offer financing?", "", false},
		{"hi so the reason I'm calling is our new analytics platform", "", false},
	}
	for _, tc := range cases {
		m, ok := MatchOpener(tc.text)
		if ok != tc.ok {
			t.Errorf("%q: ok = %v, want %v", tc.text, ok, tc.ok)
			continue
		}
		if ok && m.Kind != tc.kind {
			t.Errorf("%q: kind = %s, want %s", tc.text, m.Kind, tc.kind)
		}
		if ok && m.Reply == "" {
			t.Errorf("%q: empty canned reply", tc.text)
		}
	}
}
