package orchestrator

import (
	"regexp"
	"strings"

	"github.com/parryvoice/parry/pkg/response"
	"github.com/parryvoice/parry/pkg/strategy"
)

// signalTracker accumulates caller-quality observations across the call
// and renders them as strategy.QualitySignals each turn.
type signalTracker struct {
	utterances     int
	totalWords     int
	discoveryAsks  int
	rapportMarks   int
	assumptionHits int
	valueHits      int
}

var (
	discoveryAskRe = regexp.MustCompile(`(?i)\b(how (do|does|are) you|what (do|does|are) you|tell me about|walk me through|what's your)\b`)
	assumptionRe   = regexp.MustCompile(`(?i)\b(you (need|must|have to)|i know you|obviously you|everyone in your)\b`)
	valueRe        = regexp.MustCompile(`(?i)\b(for example|we helped|saved (them|our clients)|case study|here's what we found)\b`)
)

func (t *signalTracker) observe(text string, tone response.Tone) {
	t.utterances++
	t.totalWords += len(strings.Fields(text))
	if discoveryAskRe.MatchString(text) {
		t.discoveryAsks++
	}
	if tone == response.ToneRespectful || tone == response.ToneGenuine {
		t.rapportMarks++
	}
	if assumptionRe.MatchString(text) {
		t.assumptionHits++
	}
	if valueRe.MatchString(text) {
		t.valueHits++
	}
}

func (t *signalTracker) snapshot() strategy.QualitySignals {
	avgWords := 0
	if t.utterances > 0 {
		avgWords = t.totalWords / t.utterances
	}
	return strategy.QualitySignals{
		AskedDiscoveryQuestions: t.discoveryAsks > 0,
		BuiltRapport:            t.rapportMarks >= 2,
		TalkedTooMuch:           avgWords > 40,
		MadeAssumptions:         t.assumptionHits > 0,
		ProvidedValue:           t.valueHits > 0,
	}
}
