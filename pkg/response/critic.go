package response

import (
	"regexp"
	"strings"
)

// Flag names one way a candidate fails to sound human.
type Flag string

const (
	FlagAISmell          Flag = "ai_smell"
	FlagTooLong          Flag = "too_long"
	FlagTooManyQuestions Flag = "too_many_questions"
	FlagOverMirroring    Flag = "over_mirroring"
	FlagEmotionMismatch  Flag = "emotion_mismatch"
	FlagOverExplaining   Flag = "over_explaining"
	FlagPerfectGrammar   Flag = "perfect_grammar"
)

// Critique is a candidate's 0..100 human score plus the flags that cost it.
type Critique struct {
	Score int
	Flags []Flag
}

const (
	maxWords     = 60
	maxQuestions = 1
)

var penalties = map[Flag]int{
	FlagAISmell:          25,
	FlagTooLong:          15,
	FlagTooManyQuestions: 10,
	FlagOverMirroring:    10,
	FlagEmotionMismatch:  15,
	FlagOverExplaining:   10,
	FlagPerfectGrammar:   10,
}

var (
	aiSmellRe = regexp.MustCompile(`(?i)(how can i (help|assist)|what can i help you with|i('d| would) be happy to|is there anything else|i understand your (concern|frustration)|as an? |i appreciate you (reaching out|sharing)|great question|certainly!|absolutely!|^\s*(1\.|- ))`)

	cheerfulRe   = regexp.MustCompile(`(?i)\b(great|awesome|wonderful|fantastic|love (it|that)|happy to)\b|!`)
	explainRe    = regexp.MustCompile(`(?i)\b(which means|in other words|the reason is|to clarify|essentially)\b`)
	contractionRe = regexp.MustCompile(`(?i)\b\w+'(s|t|re|ll|ve|d|m)\b`)

	wordRe = regexp.MustCompile(`[a-zA-Z']+`)
)

// stop words excluded from the mirroring overlap check.
var mirrorStop = map[string]bool{
	"the": true, "a": true, "an": true, "i": true, "you": true, "it": true,
	"is": true, "are": true, "to": true, "of": true, "and": true, "that": true,
	"we": true, "do": true, "for": true, "on": true, "in": true, "with": true,
}

// Review scores one candidate against fast deterministic rules. No network,
// no model. Flags are returned for diagnostics and feedback framing.
func Review(text string, userTranscript string, irritation float64) Critique {
	var flags []Flag

	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) > maxWords {
		flags = append(flags, FlagTooLong)
	}
	if strings.Count(text, "?") > maxQuestions {
		flags = append(flags, FlagTooManyQuestions)
	}
	if aiSmellRe.MatchString(text) {
		flags = append(flags, FlagAISmell)
	}
	if overMirrors(words, userTranscript) {
		flags = append(flags, FlagOverMirroring)
	}
	if irritation >= 6 && cheerfulRe.MatchString(text) {
		flags = append(flags, FlagEmotionMismatch)
	}
	if strings.Count(text, ".") >= 3 && explainRe.MatchString(text) {
		flags = append(flags, FlagOverExplaining)
	}
	if len(words) > 10 && !contractionRe.MatchString(text) {
		flags = append(flags, FlagPerfectGrammar)
	}

	score := 100
	for _, f := range flags {
		score -= penalties[f]
	}
	if score < 0 {
		score = 0
	}
	return Critique{Score: score, Flags: flags}
}

// overMirrors reports whether most of the candidate's content words were
// lifted straight from the user's utterance.
func overMirrors(candidateWords []string, userTranscript string) bool {
	userWords := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(userTranscript), -1) {
		if !mirrorStop[w] {
			userWords[w] = true
		}
	}
	if len(userWords) == 0 {
		return false
	}
	content, mirrored := 0, 0
	for _, w := range candidateWords {
		if mirrorStop[w] {
			continue
		}
		content++
		if userWords[w] {
			mirrored++
		}
	}
	return content >= 4 && float64(mirrored) > 0.6*float64(content)
}
