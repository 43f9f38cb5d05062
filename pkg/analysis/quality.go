package analysis

import (
	"regexp"
	"strings"
)

// QualityVerdict flags transcripts the STT layer probably mangled. A garbled
// transcript short-circuits to a clarification request instead of burning a
// generation round trip on nonsense.
type QualityVerdict struct {
	LikelyGarbled bool
	Reason        string
	Confidence    float64
}

var noVowelRe = regexp.MustCompile(`^[^aeiouAEIOU\W\d]{6,}$`)

// CheckTranscriptQuality looks for repeated-token runs, a high
// duplicate-word ratio, and consonant-only gibberish tokens.
func CheckTranscriptQuality(text string) QualityVerdict {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 3 {
		return QualityVerdict{}
	}

	if run := longestRepeatRun(words); run >= 3 {
		conf := 0.5 + 0.1*float64(run-3)
		if conf > 0.9 {
			conf = 0.9
		}
		return QualityVerdict{LikelyGarbled: true, Reason: "repeated_token_run", Confidence: conf}
	}

	if len(words) >= 5 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.Trim(w, ".,!?")] = struct{}{}
		}
		ratio := float64(len(unique)) / float64(len(words))
		if ratio < 0.6 {
			return QualityVerdict{LikelyGarbled: true, Reason: "duplicate_word_ratio", Confidence: 0.9 - ratio}
		}
	}

	gibberish := 0
	for _, w := range words {
		if noVowelRe.MatchString(strings.Trim(w, ".,!?")) {
			gibberish++
		}
	}
	if gibberish*2 >= len(words) {
		return QualityVerdict{LikelyGarbled: true, Reason: "gibberish_tokens", Confidence: 0.6}
	}

	return QualityVerdict{}
}

func longestRepeatRun(words []string) int {
	best, run := 1, 1
	for i := 1; i < len(words); i++ {
		if words[i] == words[i-1] {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 1
	}
	return best
}
