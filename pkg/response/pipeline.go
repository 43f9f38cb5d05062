package response

import (
	"context"
	"time"

	"github.com/parryvoice/parry/pkg/errorsx"
	"github.com/parryvoice/parry/pkg/metrics"
)

// Pipeline chains the stages for one turn. Feedback recording is
// fire-and-forget so it can never delay the spoken reply.
type Pipeline struct {
	pitchers *Pitchers
	selector *Selector
	state    *EmotionalState
	obs      metrics.Observer
}

func NewPipeline(pitchers *Pitchers, selector *Selector, state *EmotionalState, obs metrics.Observer) *Pipeline {
	if state == nil {
		state = NewEmotionalState()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Pipeline{pitchers: pitchers, selector: selector, state: state, obs: obs}
}

func (p *Pipeline) State() *EmotionalState { return p.state }

// Respond runs the full pipeline and returns exactly one selection, or an
// error when every voice failed.
func (p *Pipeline) Respond(ctx context.Context, tc TurnContext) (Selection, error) {
	started := time.Now()
	cands := p.pitchers.Generate(ctx, tc)

	scored := make([]ScoredCandidate, len(cands))
	failed := 0
	for i, c := range cands {
		sc := ScoredCandidate{Candidate: c}
		if c.Err == nil {
			sc.Critique = Review(c.Text, tc.Transcript, tc.Irritation)
		} else {
			failed++
		}
		scored[i] = sc
	}
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventCandidatesDone,
		Time:   time.Now(),
		Fields: map[string]any{"failed": failed, "elapsed_ms": time.Since(started).Milliseconds()},
	})

	sel := p.selector.Select(ctx, tc.Transcript, scored)
	if sel.Winner.Text == "" {
		return Selection{}, errorsx.Wrap(ctxErrOrGenFailure(ctx), errorsx.ReasonLLMGenerate)
	}
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventSelectionDone,
		Time: time.Now(),
		Tags: map[string]string{"voice": string(sel.Winner.Voice), "method": sel.Method},
		Fields: map[string]any{
			"score":      sel.Winner.Critique.Score,
			"elapsed_ms": time.Since(started).Milliseconds(),
		},
	})

	go p.recordFeedback(scored, sel.Winner.Voice)
	p.state.Update(sel.Winner.Meta.Emotion, DetectTone(tc.Transcript))
	return sel, nil
}

func (p *Pipeline) recordFeedback(scored []ScoredCandidate, winner Voice) {
	for _, c := range scored {
		if c.Err != nil {
			continue
		}
		p.pitchers.Feedback().Record(c.Voice, FeedbackEntry{
			Won:   c.Voice == winner,
			Flags: c.Critique.Flags,
		})
	}
}

type genFailure struct{}

func (genFailure) Error() string { return "all candidate generations failed" }

func ctxErrOrGenFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return genFailure{}
}
