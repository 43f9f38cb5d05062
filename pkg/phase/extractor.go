package phase

import (
	"regexp"
	"strings"
)

// Extractor pulls facts out of a user utterance into the context. The
// regex implementation below matches current behavior; a model-based
// extractor can be substituted without touching the state machine.
type Extractor interface {
	Extract(text string, ctx *ConversationContext)
}

// HeuristicExtractor is the regex-based default.
type HeuristicExtractor struct{}

var (
	nameRe       = regexp.MustCompile(`\b(?i:my name is|this is|i'?m)\s+([A-Z][a-z]+)\b`)
	companyRe    = regexp.MustCompile(`\b(?i:calling from|i'?m with|on behalf of|here at)\s+([A-Z][A-Za-z0-9&]+(?:\s+[A-Z][A-Za-z0-9&]+)?)`)
	needRe       = regexp.MustCompile(`(?i)\b(?:we need|i need|looking for|struggling with|problem with)\s+(.{3,60}?)(?:[.,!?]|$)`)
	budgetRe     = regexp.MustCompile(`(?i)\b(?:budget|spend|afford)(?:\s+\w+){0,3}\s+(\$?\d[\d,]*k?)\b`)
	objectionRe  = regexp.MustCompile(`(?i)\b(too expensive|not interested|already have|no time|need to think|not the right time|send me an email)\b`)
	correctionRe = regexp.MustCompile(`\b(?i:no,?\s+(?:it'?s|my name is)|actually,?\s+(?:it'?s|my name is))\s+([A-Z][a-z]+)\b`)
)

func (HeuristicExtractor) Extract(text string, ctx *ConversationContext) {
	// Explicit corrections first so they are not shadowed by the plain
	// name pattern in the same utterance.
	if m := correctionRe.FindStringSubmatch(text); m != nil {
		ctx.CorrectFact(FactCallerName, m[1])
	} else if m := nameRe.FindStringSubmatch(text); m != nil {
		ctx.ObserveFact(FactCallerName, m[1])
	}
	if m := companyRe.FindStringSubmatch(text); m != nil {
		ctx.ObserveFact(FactCompany, strings.TrimSpace(m[1]))
	}
	if m := needRe.FindStringSubmatch(text); m != nil {
		ctx.ObserveFact(FactNeed, strings.TrimSpace(m[1]))
	}
	if m := budgetRe.FindStringSubmatch(text); m != nil {
		ctx.ObserveFact(FactBudget, m[1])
	}
	if m := objectionRe.FindStringSubmatch(text); m != nil {
		ctx.ObserveFact(FactObjection, strings.ToLower(m[1]))
	}
}
