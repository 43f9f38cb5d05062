package response

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parryvoice/parry/pkg/llm"
)

// ScoredCandidate pairs a candidate with its critique.
type ScoredCandidate struct {
	Candidate
	Critique Critique
}

// Selection is the pipeline's final pick. Method records whether the model
// ranked it or the deterministic fallback did.
type Selection struct {
	Winner ScoredCandidate
	Method string // "llm" or "critic_fallback"
}

const selectorRubric = `You are ranking three candidate replies from the same character.
Rank by, in order: character fidelity, brevity, authentic flaws, non-helpfulness, emotional match.
Reply with ONLY the number of the best candidate: 1, 2, or 3.`

// Selector runs the ranking pass. Any failure (transport, timeout,
// unparsable verdict) falls back to the highest critic score; the pipeline
// always returns exactly one of the three.
type Selector struct {
	adapter llm.LLMAdapter
	timeout time.Duration
}

func NewSelector(adapter llm.LLMAdapter, timeout time.Duration) *Selector {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Selector{adapter: adapter, timeout: timeout}
}

// Select picks one winner from the viable candidates.
func (s *Selector) Select(ctx context.Context, transcript string, cands []ScoredCandidate) Selection {
	viable := viableOnly(cands)
	if len(viable) == 0 {
		return Selection{}
	}
	if len(viable) == 1 {
		return Selection{Winner: viable[0], Method: "critic_fallback"}
	}

	if s.adapter != nil {
		if winner, ok := s.rank(ctx, transcript, viable); ok {
			return Selection{Winner: winner, Method: "llm"}
		}
	}
	return Selection{Winner: bestByScore(viable), Method: "critic_fallback"}
}

func (s *Selector) rank(ctx context.Context, transcript string, cands []ScoredCandidate) (ScoredCandidate, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "The caller said: %q\n\n", transcript)
	for i, c := range cands {
		fmt.Fprintf(&b, "Candidate %d:\n%s\n\n", i+1, c.Text)
	}

	input := llm.NewContext(selectorRubric, nil, b.String())
	input.Temperature = 0.1
	input.MaxTokens = 4

	resp, err := s.adapter.Generate(ctx, input)
	if err != nil {
		return ScoredCandidate{}, false
	}
	idx := parseVerdict(resp.Text, len(cands))
	if idx < 0 {
		return ScoredCandidate{}, false
	}
	return cands[idx], true
}

// parseVerdict pulls the first usable digit out of the model's answer.
func parseVerdict(text string, n int) int {
	for _, r := range text {
		if r >= '1' && r <= '9' {
			idx := int(r-'1')
			if idx < n {
				return idx
			}
			return -1
		}
	}
	return -1
}

func viableOnly(cands []ScoredCandidate) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		if c.Err == nil && strings.TrimSpace(c.Text) != "" {
			out = append(out, c)
		}
	}
	return out
}

// bestByScore is deterministic: highest critic score, first wins ties.
func bestByScore(cands []ScoredCandidate) ScoredCandidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Critique.Score > best.Critique.Score {
			best = c
		}
	}
	return best
}
