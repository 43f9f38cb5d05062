package response

import (
	"regexp"
	"sync"
)

// Tone is the inferred attitude of the caller's latest utterance.
type Tone string

const (
	ToneRude       Tone = "rude"
	TonePushy      Tone = "pushy"
	ToneRespectful Tone = "respectful"
	ToneGenuine    Tone = "genuine"
	ToneNeutral    Tone = "neutral"
)

var (
	rudeRe       = regexp.MustCompile(`(?i)\b(shut up|idiot|stupid|waste of|don't care|whatever|scam)\b`)
	pushyToneRe  = regexp.MustCompile(`(?i)\b(you need to|just sign|right now|today only|last chance|come on)\b`)
	respectfulRe = regexp.MustCompile(`(?i)\b(please|thank you|thanks|appreciate|if you don't mind|no pressure)\b`)
	genuineRe    = regexp.MustCompile(`(?i)\b(honestly|to be honest|i get it|that makes sense|fair enough|i hear you)\b`)
)

// DetectTone is a keyword heuristic; first match wins, harshest first.
func DetectTone(text string) Tone {
	switch {
	case rudeRe.MatchString(text):
		return ToneRude
	case pushyToneRe.MatchString(text):
		return TonePushy
	case genuineRe.MatchString(text):
		return ToneGenuine
	case respectfulRe.MatchString(text):
		return ToneRespectful
	}
	return ToneNeutral
}

const (
	irritationMin = 0.0
	irritationMax = 10.0
	trustMin      = 0
	trustMax      = 100
)

// EmotionalState is the rolling irritation/trust scalar pair carried across
// the call. Deltas are small and clamped so no single turn can whiplash the
// persona.
type EmotionalState struct {
	mu         sync.Mutex
	irritation float64 // 0..10
	trust      int     // 0..100
}

func NewEmotionalState() *EmotionalState {
	return &EmotionalState{irritation: 3, trust: 20}
}

func (s *EmotionalState) Irritation() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.irritation
}

func (s *EmotionalState) Trust() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trust
}

// Update applies one turn's adjustment from the caller's tone and the
// winning candidate's inferred emotion. Per-turn movement is bounded to
// plus or minus 1 irritation and 10 trust.
func (s *EmotionalState) Update(winnerEmotion string, tone Tone) {
	var di float64
	var dt int
	switch tone {
	case ToneRude:
		di, dt = 1, -10
	case TonePushy:
		di, dt = 0.5, -5
	case ToneRespectful:
		di, dt = -0.5, 5
	case ToneGenuine:
		di, dt = -1, 10
	}
	switch winnerEmotion {
	case "irritated", "angry":
		di += 0.5
	case "amused", "warm":
		di -= 0.5
	}

	di = clampF(di, -1, 1)
	dt = clampI(dt, -10, 10)

	s.mu.Lock()
	s.irritation = clampF(s.irritation+di, irritationMin, irritationMax)
	s.trust = clampI(s.trust+dt, trustMin, trustMax)
	s.mu.Unlock()
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
