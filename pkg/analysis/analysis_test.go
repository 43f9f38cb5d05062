package analysis

import "testing"

func TestAnalyzeSentenceQuestionAlwaysComplete(t *testing.T) {
	cases := []string{
		"do you offer financing?",
		"and what about the, uh?",
		"Could you walk me through the pricing?",
	}
	for _, text := range cases {
		v := AnalyzeSentence(text)
		if !v.Complete {
			t.Errorf("%q: expected complete", text)
		}
		if v.Confidence < 0.95 {
			t.Errorf("%q: confidence %.2f, want >= 0.95", text, v.Confidence)
		}
	}
}

func TestAnalyzeSentenceTrailingTokens(t *testing.T) {
	cases := []struct {
		text   string
		reason string
	}{
		{"I was hoping to talk about the", "trailing_article"},
		{"we looked at it and", "trailing_conjunction"},
		{"I can't move forward because", "trailing_subordinator"},
		{"I wanted to ask you about", "trailing_preposition"},
		{"there's something that", "trailing_relative_pronoun"},
		{"well I would", "trailing_auxiliary"},
		{"what I really want", "trailing_transitive_verb"},
	}
	for _, tc := range cases {
		v := AnalyzeSentence(tc.text)
		if v.Complete {
			t.Errorf("%q: expected incomplete", tc.text)
		}
		if v.Reason != tc.reason {
			t.Errorf("%q: reason %q, want %q", tc.text, v.Reason, tc.reason)
		}
		if v.Confidence < 0.75 || v.Confidence > 0.95 {
			t.Errorf("%q: confidence %.2f outside pattern band", tc.text, v.Confidence)
		}
	}
}

func TestAnalyzeSentenceDefaults(t *testing.T) {
	v := AnalyzeSentence("We already have a vendor for this.")
	if !v.Complete || v.Confidence != 0.9 {
		t.Fatalf("punctuated capitalized sentence: %+v", v)
	}
	v = AnalyzeSentence("we already have a vendor for this.")
	if !v.Complete || v.Confidence != 0.7 {
		t.Fatalf("punctuated lowercase sentence: %+v", v)
	}
	v = AnalyzeSentence("we already have a vendor for this")
	if v.Complete {
		t.Fatalf("unpunctuated sentence judged complete: %+v", v)
	}
	if v.Confidence < 0.4 || v.Confidence > 0.5 {
		t.Fatalf("unpunctuated confidence %.2f outside low band", v.Confidence)
	}
}

func TestAnalyzeCognitiveFarewellWins(t *testing.T) {
	v := AnalyzeCognitive("alright I gotta go, um, bye")
	if !v.Complete || v.Reason != "farewell" || v.Confidence != 0.95 {
		t.Fatalf("farewell with thinking markers: %+v", v)
	}
}

func TestAnalyzeCognitiveCommittedAskOverridesHedging(t *testing.T) {
	v := AnalyzeCognitive("I guess, could you tell me what your timeline looks like?")
	if !v.Complete {
		t.Fatalf("committed ask judged incomplete: %+v", v)
	}
	if v.Reason != "committed_ask" {
		t.Fatalf("reason = %q", v.Reason)
	}
	if !v.Signals.Hedging {
		t.Fatal("hedging signal should still be reported as witness data")
	}
}

func TestAnalyzeCognitiveSignalPriority(t *testing.T) {
	cases := []struct {
		text   string
		reason string
	}{
		{"yeah ok", "ambiguous_ack"},
		{"hold on let me think", "thinking"},
		{"I guess it's fine I suppose", "hedging"},
		{"we shipped it last week, you know", "invites_followup"},
		{"I need some time, let me get back to you", "strategic_pause"},
	}
	for _, tc := range cases {
		v := AnalyzeCognitive(tc.text)
		if v.Complete {
			t.Errorf("%q: expected incomplete", tc.text)
		}
		if v.Reason != tc.reason {
			t.Errorf("%q: reason %q, want %q", tc.text, v.Reason, tc.reason)
		}
	}
}

func TestAnalyzeCognitiveDefaultComplete(t *testing.T) {
	v := AnalyzeCognitive("we already signed with a competitor last quarter")
	if !v.Complete || v.Reason != "no_incompleteness_signals" {
		t.Fatalf("plain statement: %+v", v)
	}
}

func TestCheckTranscriptQualityRepeatedRun(t *testing.T) {
	v := CheckTranscriptQuality("optimum optimum optimum pricing is great great")
	if !v.LikelyGarbled {
		t.Fatal("repeated-token run not flagged")
	}
	if v.Confidence < 0.4 {
		t.Fatalf("confidence %.2f, want >= 0.4", v.Confidence)
	}
}

func TestCheckTranscriptQualityCleanText(t *testing.T) {
	v := CheckTranscriptQuality("we're comparing two vendors and pricing matters a lot")
	if v.LikelyGarbled {
		t.Fatalf("clean transcript flagged: %+v", v)
	}
}

func TestCheckTranscriptQualityDuplicateRatio(t *testing.T) {
	v := CheckTranscriptQuality("pricing great pricing great pricing great pricing")
	if !v.LikelyGarbled {
		t.Fatal("high duplicate ratio not flagged")
	}
}

func TestCheckTranscriptQualityShortInputIgnored(t *testing.T) {
	if v := CheckTranscriptQuality("no no"); v.LikelyGarbled {
		t.Fatalf("two-word input flagged: %+v", v)
	}
}
