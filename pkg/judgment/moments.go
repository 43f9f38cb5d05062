package judgment

import (
	"regexp"
	"strings"
)

// Risk grades how costly a mistimed or wrong reply would be.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// MomentType grades how much deliberation the utterance deserves.
type MomentType string

const (
	// MomentReflex covers greetings, acks, and social noise a human answers
	// without thinking.
	MomentReflex MomentType = "reflex"
	// MomentJudgment is the ordinary case: a substantive statement or
	// question that deserves a considered reply.
	MomentJudgment MomentType = "judgment"
	// MomentStrategic covers money, commitment, and walk-away language
	// where timing itself carries signal.
	MomentStrategic MomentType = "strategic"
)

// Moment is the per-utterance classification the gate consumes.
type Moment struct {
	Risk Risk
	Type MomentType
}

var (
	highRiskRe = regexp.MustCompile(`(?i)\b(cancel|refund|lawyer|legal|lawsuit|complaint|contract|sue|chargeback|never call)\b`)
	medRiskRe  = regexp.MustCompile(`(?i)\b(too expensive|not interested|already have|competitor|why should|waste of|don't trust)\b`)

	strategicRe = regexp.MustCompile(`(?i)\b(price|pricing|cost|budget|discount|deal|sign|commit|decision|timeline|contract|terms)\b`)
	reflexRe    = regexp.MustCompile(`(?i)^\s*(hi|hey|hello|yeah|yes|no|ok|okay|sure|thanks|thank you|sounds good|got it)\b`)
)

// ClassifyMoment is a keyword heuristic, deliberately shallow. It exists to
// feed the gate's tie-breaks, not to understand the utterance.
func ClassifyMoment(text string) Moment {
	m := Moment{Risk: RiskLow, Type: MomentJudgment}
	switch {
	case highRiskRe.MatchString(text):
		m.Risk = RiskHigh
	case medRiskRe.MatchString(text):
		m.Risk = RiskMedium
	}
	switch {
	case strategicRe.MatchString(text):
		m.Type = MomentStrategic
	case reflexRe.MatchString(text) && len(strings.Fields(text)) <= 4:
		m.Type = MomentReflex
	}
	return m
}
