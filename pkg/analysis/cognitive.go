package analysis

import (
	"regexp"
	"strings"
)

// CognitiveSignals are the five pragmatic markers computed per utterance.
type CognitiveSignals struct {
	Hedging         bool
	Ambiguous       bool
	Thinking        bool
	InvitesFollowup bool
	StrategicPause  bool
}

// CognitiveVerdict classifies whether the speaker's thought has landed,
// independent of grammar.
type CognitiveVerdict struct {
	Complete   bool
	Reason     string
	Confidence float64
	Signals    CognitiveSignals
}

var (
	farewellRe = regexp.MustCompile(`(?i)\b(goodbye|bye|gotta go|have to go|talk (to you )?later|take care|have a (good|great) (one|day|night)|see you)\b`)

	hedgingRe = regexp.MustCompile(`(?i)\b(i guess|i think|i suppose|maybe|sort of|kind of|probably|not (really )?sure|i mean)\b`)

	shortAcks = tokenSet(
		"yeah", "yes", "yep", "no", "nope", "ok", "okay", "sure", "right",
		"mhm", "uh-huh", "huh", "hmm", "hm", "alright", "fine", "cool",
	)

	thinkingRe = regexp.MustCompile(`(?i)\b(let me think|let me see|hold on|hang on|give me a (sec|second|minute)|one (sec|second|moment)|umm+|uhh+|err+|hmm+)\b`)

	followupRe = regexp.MustCompile(`(?i)\b(you know\??|does that make sense|what do you think|if that makes sense|know what i mean)\s*\??$`)

	strategicPauseRe = regexp.MustCompile(`(?i)\b(let me get back to you|i('ll| will) (think it over|get back to you)|i need (some time|to think about)|sleep on it|think about it (for a bit|first)|need to (run|check) (the )?numbers)\b`)

	// Committed-ask patterns: when one of these is present, hedging and
	// thinking markers are delivery style, not incompleteness.
	whQuestionRe     = regexp.MustCompile(`(?i)\b(what|when|where|who|why|how|which)\b`)
	modalRequestRe   = regexp.MustCompile(`(?i)\b(can|could|would|will) you\b`)
	imperativeAskRe  = regexp.MustCompile(`(?i)\b(tell me|give me|send me|show me|walk me through|explain|break (it|that) down)\b`)
	discourseAskRe   = regexp.MustCompile(`(?i)\b(i('m| am| was) wondering|i want(ed)? to (know|ask)|i('d| would) like to know)\b`)
	offerClosureRe   = regexp.MustCompile(`(?i)\b(i('ll| will) take|let's do it|sign me up|we can offer|i can offer|here's what|sounds good,? let's)\b`)
)

// AnalyzeCognitive runs the pragmatic heuristic. Evaluation is strict
// priority order: farewell wins outright, the committed-ask override beats
// hedging and thinking, then the individual signals fire in a fixed order.
func AnalyzeCognitive(text string) CognitiveVerdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return CognitiveVerdict{Complete: false, Reason: "empty", Confidence: 0.4}
	}

	if farewellRe.MatchString(trimmed) {
		return CognitiveVerdict{Complete: true, Reason: "farewell", Confidence: 0.95}
	}

	signals := CognitiveSignals{
		Hedging:         hedgingRe.MatchString(trimmed),
		Ambiguous:       isAmbiguousAck(trimmed),
		Thinking:        thinkingRe.MatchString(trimmed),
		InvitesFollowup: followupRe.MatchString(trimmed),
		StrategicPause:  strategicPauseRe.MatchString(trimmed),
	}

	if isCommittedAsk(trimmed) {
		return CognitiveVerdict{Complete: true, Reason: "committed_ask", Confidence: 0.85, Signals: signals}
	}

	switch {
	case signals.Ambiguous:
		return CognitiveVerdict{Reason: "ambiguous_ack", Confidence: 0.8, Signals: signals}
	case signals.Thinking:
		return CognitiveVerdict{Reason: "thinking", Confidence: 0.85, Signals: signals}
	case signals.Hedging:
		return CognitiveVerdict{Reason: "hedging", Confidence: 0.75, Signals: signals}
	case signals.InvitesFollowup:
		return CognitiveVerdict{Reason: "invites_followup", Confidence: 0.7, Signals: signals}
	case signals.StrategicPause:
		return CognitiveVerdict{Reason: "strategic_pause", Confidence: 0.65, Signals: signals}
	}
	return CognitiveVerdict{Complete: true, Reason: "no_incompleteness_signals", Confidence: 0.8, Signals: signals}
}

func isCommittedAsk(text string) bool {
	return strings.Contains(text, "?") ||
		whQuestionRe.MatchString(text) ||
		modalRequestRe.MatchString(text) ||
		imperativeAskRe.MatchString(text) ||
		discourseAskRe.MatchString(text) ||
		offerClosureRe.MatchString(text)
}

// isAmbiguousAck flags bare acknowledgements: one or two tokens from the
// short-ack set with no question attached.
func isAmbiguousAck(text string) bool {
	if strings.Contains(text, "?") {
		return false
	}
	words := strings.Fields(strings.ToLower(strings.Trim(text, ".,!")))
	if len(words) == 0 || len(words) > 2 {
		return false
	}
	for _, w := range words {
		if !shortAcks[strings.Trim(w, ".,!")] {
			return false
		}
	}
	return true
}

// ThinkingPattern is the raw-text fallback the judgment gate applies after
// both verdicts have been consulted. It intentionally overlaps the cognitive
// thinking signal; the ordering of checks in the gate is load-bearing.
var ThinkingPattern = regexp.MustCompile(`(?i)\b(let me think|thinking|hold on|hang on|one moment|give me a (sec|second))\b`)
