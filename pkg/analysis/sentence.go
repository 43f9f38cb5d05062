// Package analysis holds the stateless utterance classifiers: a grammatical
// sentence-completeness heuristic, a pragmatic cognitive-completeness
// heuristic, and a transcript-quality check for garbled STT output. All of
// them are best-effort witness data for the judgment gate, not decisions.
package analysis

import (
	"strings"
	"unicode"
)

// SentenceVerdict classifies whether an utterance looks grammatically
// finished. Produced fresh per transcript, never mutated.
type SentenceVerdict struct {
	Complete   bool
	Reason     string
	Confidence float64
}

// Trailing-token closed sets. A transcript ending on one of these almost
// always has more words coming.
var (
	coordinatingConjunctions = tokenSet("and", "but", "or", "nor", "so", "yet", "for")
	subordinatingConjunctions = tokenSet(
		"because", "although", "though", "while", "if", "unless", "since",
		"when", "whenever", "whereas", "after", "before", "until", "once",
	)
	trailingPrepositions = tokenSet(
		"to", "of", "in", "on", "at", "with", "from", "about", "by",
		"into", "onto", "over", "under", "through", "between", "without",
	)
	modalAuxVerbs = tokenSet(
		"can", "could", "would", "should", "will", "shall", "may", "might",
		"must", "am", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "gonna", "wanna",
	)
	articles         = tokenSet("a", "an", "the")
	relativePronouns = tokenSet("that", "which", "who", "whom", "whose")
	transitiveVerbs  = tokenSet(
		"want", "need", "like", "get", "give", "tell", "make", "take",
		"send", "show", "find", "call",
	)
)

// AnalyzeSentence runs the grammatical heuristic over a finalized transcript.
func AnalyzeSentence(text string) SentenceVerdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SentenceVerdict{Complete: false, Reason: "empty", Confidence: 0.4}
	}
	if strings.HasSuffix(trimmed, "?") {
		return SentenceVerdict{Complete: true, Reason: "question", Confidence: 0.97}
	}

	last := lastToken(trimmed)
	switch {
	case articles[last]:
		return SentenceVerdict{Reason: "trailing_article", Confidence: 0.95}
	case coordinatingConjunctions[last]:
		return SentenceVerdict{Reason: "trailing_conjunction", Confidence: 0.9}
	case subordinatingConjunctions[last]:
		return SentenceVerdict{Reason: "trailing_subordinator", Confidence: 0.9}
	case trailingPrepositions[last]:
		return SentenceVerdict{Reason: "trailing_preposition", Confidence: 0.85}
	case relativePronouns[last]:
		return SentenceVerdict{Reason: "trailing_relative_pronoun", Confidence: 0.8}
	case modalAuxVerbs[last]:
		return SentenceVerdict{Reason: "trailing_auxiliary", Confidence: 0.8}
	case transitiveVerbs[last]:
		return SentenceVerdict{Reason: "trailing_transitive_verb", Confidence: 0.75}
	}

	if hasTerminalPunctuation(trimmed) {
		conf := 0.7
		if startsCapitalized(trimmed) {
			conf = 0.9
		}
		return SentenceVerdict{Complete: true, Reason: "terminal_punctuation", Confidence: conf}
	}
	return SentenceVerdict{Complete: false, Reason: "no_terminal_punctuation", Confidence: 0.45}
}

func lastToken(text string) string {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	idx := strings.LastIndexFunc(trimmed, unicode.IsSpace)
	return strings.ToLower(trimmed[idx+1:])
}

func hasTerminalPunctuation(text string) bool {
	return strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?")
}

func startsCapitalized(text string) bool {
	for _, r := range text {
		return unicode.IsUpper(r)
	}
	return false
}

func tokenSet(tokens ...string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
