package response

import (
	"regexp"
	"strings"
)

// OpenerKind classifies the small closed set of first-utterance shapes that
// can skip the full pipeline.
type OpenerKind string

const (
	OpenerGreeting  OpenerKind = "greeting"
	OpenerIdentity  OpenerKind = "identity"
	OpenerSelfIntro OpenerKind = "self_intro"
)

// OpenerMatch is a zero-latency canned reply for a recognized opener. The
// caller may discard it if the utterance keeps growing mid-stream.
type OpenerMatch struct {
	Kind  OpenerKind
	Reply string
}

var (
	greetingOpenRe = regexp.MustCompile(`(?i)^\s*(hi|hey|hello|good (morning|afternoon|evening))\b[\s,!.]*$`)
	identityRe     = regexp.MustCompile(`(?i)\b(is (this|that)|am i (speaking|talking) (to|with)|do i have)\b.*\?*`)
	selfIntroRe    = regexp.MustCompile(`(?i)\b(my name is|this is)\s+\w+.*\b(from|with|at)\s+\w+`)
)

var openerReplies = map[OpenerKind]string{
	OpenerGreeting:  "Hello?",
	OpenerIdentity:  "Yeah, this is him. Who's this?",
	OpenerSelfIntro: "Okay... and what's this about?",
}

// MatchOpener inspects the very first partial transcript of a call. Only
// meant for that first utterance; returns ok=false for anything
// substantive so the full pipeline runs.
func MatchOpener(text string) (OpenerMatch, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return OpenerMatch{}, false
	}
	switch {
	case greetingOpenRe.MatchString(trimmed):
		return OpenerMatch{Kind: OpenerGreeting, Reply: openerReplies[OpenerGreeting]}, true
	case identityRe.MatchString(trimmed) && len(strings.Fields(trimmed)) <= 10:
		return OpenerMatch{Kind: OpenerIdentity, Reply: openerReplies[OpenerIdentity]}, true
	case selfIntroRe.MatchString(trimmed) && len(strings.Fields(trimmed)) <= 16:
		return OpenerMatch{Kind: OpenerSelfIntro, Reply: openerReplies[OpenerSelfIntro]}, true
	}
	return OpenerMatch{}, false
}

// Canned fallbacks for failure paths. Persona-appropriate, never an error
// string.
const (
	FallbackLine      = "Sorry, you cut out for a second there. Say that again?"
	ClarificationLine = "I didn't catch that. Can you say it one more time?"
)
